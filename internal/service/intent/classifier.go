// Package intent classifies free-text messages into structured intents. The
// language-model path is best-effort: any failure drops to the deterministic
// rules in internal/analysis/intentrules, so classification never errors
// past this boundary.
package intent

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/halcyonlabs/accord/backend/internal/analysis/intentrules"
	modelintent "github.com/halcyonlabs/accord/backend/internal/model/intent"
	"github.com/halcyonlabs/accord/backend/internal/service/completion"
)

// Plugin extends classification with additional intents, prompt hints, and
// an optional post-processing rewrite of the result.
type Plugin interface {
	DetectableIntents() []modelintent.Intent
	DetectionHints() []string
	PostProcess(ctx context.Context, message string, ictx modelintent.Context, result *modelintent.DetectionResult)
}

// PluginSource exposes the registered plugins in registration order.
type PluginSource interface {
	DetectionPlugins() []Plugin
}

// Classifier turns a message plus context into a DetectionResult.
type Classifier struct {
	completer completion.Completer
	plugins   PluginSource
}

// NewClassifier builds a classifier. completer may be nil, in which case
// every call takes the deterministic fallback path.
func NewClassifier(completer completion.Completer, plugins PluginSource) *Classifier {
	return &Classifier{completer: completer, plugins: plugins}
}

type classifierPayload struct {
	Intent           string              `json:"intent"`
	Confidence       string              `json:"confidence"`
	Tone             string              `json:"tone"`
	SessionID        string              `json:"sessionId"`
	Person           *modelintent.Person `json:"person"`
	SessionContext   string              `json:"sessionContext"`
	MissingInfo      []string            `json:"missingInfo"`
	FollowUpQuestion string              `json:"followUpQuestion"`
}

// Classify resolves the intent of a message. Failures of the completion
// service are absorbed here and answered by the fallback rules.
func (c *Classifier) Classify(ctx context.Context, message string, ictx modelintent.Context) modelintent.DetectionResult {
	result, ok := c.classifyWithModel(ctx, message, ictx)
	if !ok {
		result = intentrules.Detect(message, ictx)
	}

	for _, plugin := range c.detectionPlugins() {
		plugin.PostProcess(ctx, message, ictx, &result)
	}
	return result
}

func (c *Classifier) classifyWithModel(ctx context.Context, message string, ictx modelintent.Context) (modelintent.DetectionResult, bool) {
	if c.completer == nil {
		return modelintent.DetectionResult{}, false
	}

	payload := classifierPayload{}
	req := completion.Request{
		System:  c.buildSystemPrompt(ictx),
		History: historyTurns(ictx),
		Query:   message,
	}
	if !c.completer.CompleteJSON(ctx, req, &payload) {
		log.Printf("[intent] model classification unusable, using fallback rules")
		return modelintent.DetectionResult{}, false
	}

	result := modelintent.DetectionResult{
		Intent:           modelintent.ParseIntent(payload.Intent),
		Confidence:       modelintent.ParseConfidence(payload.Confidence),
		Tone:             modelintent.ParseTone(payload.Tone),
		SessionID:        strings.TrimSpace(payload.SessionID),
		Person:           payload.Person,
		SessionContext:   strings.TrimSpace(payload.SessionContext),
		MissingInfo:      payload.MissingInfo,
		FollowUpQuestion: strings.TrimSpace(payload.FollowUpQuestion),
	}
	if result.Person != nil && result.Person.Empty() {
		result.Person = nil
	}
	return result, true
}

func (c *Classifier) detectionPlugins() []Plugin {
	if c.plugins == nil {
		return nil
	}
	return c.plugins.DetectionPlugins()
}

func (c *Classifier) buildSystemPrompt(ictx modelintent.Context) string {
	var b strings.Builder
	b.WriteString("You route messages for a guided conflict-resolution service. ")
	b.WriteString("Classify the user's latest message into exactly one intent.\n\n")

	b.WriteString("Base intents: CREATE_SESSION, SWITCH_SESSION, CONTINUE_CONVERSATION, CHECK_STATUS, LIST_SESSIONS, HELP, UNKNOWN.\n")

	for _, plugin := range c.detectionPlugins() {
		for _, extra := range plugin.DetectableIntents() {
			fmt.Fprintf(&b, "Additional intent: %s.\n", extra)
		}
		for _, hint := range plugin.DetectionHints() {
			fmt.Fprintf(&b, "Hint: %s\n", hint)
		}
	}

	if ictx.ActiveSessionID != "" {
		fmt.Fprintf(&b, "\nThe user is currently in an active conversation with %s. A plain continuation of that topic is CONTINUE_CONVERSATION.\n", ictx.ActiveCounterpart)
	} else {
		b.WriteString("\nNo conversation is currently active.\n")
	}

	if len(ictx.Sessions) > 0 {
		b.WriteString("\nExisting conversations (prefer SWITCH_SESSION over CREATE_SESSION when a mentioned name matches one of these):\n")
		for _, ref := range ictx.Sessions {
			fmt.Fprintf(&b, "- sessionId=%s counterpart=%s status=%s\n", ref.SessionID, ref.CounterpartName, ref.Status)
		}
	}

	if len(ictx.SemanticMatches) > 0 {
		b.WriteString("\nSemantically similar past conversations (similarity >= 0.70 strongly suggests SWITCH_SESSION):\n")
		for _, m := range ictx.SemanticMatches {
			fmt.Fprintf(&b, "- sessionId=%s counterpart=%s similarity=%.2f\n", m.SessionID, m.CounterpartName, m.Similarity)
		}
	}

	if ictx.HasPendingCreation {
		fmt.Fprintf(&b, "\nThe user is mid-way through creating a new conversation (step: %s). Messages supplying a name, contact info, or topic belong to CREATE_SESSION.\n", ictx.PendingStep)
	}

	b.WriteString("\nRespond with only a JSON object: {\"intent\", \"confidence\" (high|medium|low), \"tone\" (neutral|calm|upset|frustrated|hopeful), \"sessionId\", \"person\": {\"firstName\", \"lastName\", \"contactInfo\"}, \"sessionContext\", \"missingInfo\": [], \"followUpQuestion\"}. Omit fields you cannot fill. No extra text.")
	return b.String()
}

func historyTurns(ictx modelintent.Context) []completion.Turn {
	turns := make([]completion.Turn, 0, len(ictx.RecentTurns))
	for _, t := range ictx.RecentTurns {
		turns = append(turns, completion.Turn{Role: t.Role, Content: t.Content})
	}
	return turns
}
