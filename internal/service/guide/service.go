// Package guide produces the assistant's reply for one session turn. It
// drives the five-stage repair conversation with per-stage prompting and
// reads auxiliary signals out of the model's answer.
package guide

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/halcyonlabs/accord/backend/internal/model/conversation"
	"github.com/halcyonlabs/accord/backend/internal/service/completion"
)

// TurnContext describes the participant's position in the session when the
// reply is generated.
type TurnContext struct {
	SessionID         string
	UserID            string
	UserName          string
	CounterpartName   string
	Stage             conversation.Stage
	TurnCount         int
	SessionAgeMinutes int
	FirstTurn         bool
	InvitationPhase   bool
	StageTransition   bool
	PreviousStage     conversation.Stage
}

// Signals are auxiliary cues the guide may attach to a reply.
type Signals struct {
	OfferConfirmHeard bool   `json:"offerConfirmHeard"`
	OfferShareEmpathy bool   `json:"offerShareEmpathy"`
	ProposedEmpathy   string `json:"proposedEmpathy"`
}

// Reply is the guide's answer for one turn.
type Reply struct {
	Content string
	Signals Signals
}

// Responder is the guide surface consumed by the turn processor.
type Responder interface {
	Respond(ctx context.Context, tctx TurnContext, history []conversation.Message, userMessage string) (Reply, error)
}

// Service generates replies through the completion service, substituting a
// canned response when the model is unavailable so a turn still completes.
type Service struct {
	completer completion.Completer
}

// NewService builds a guide over the given completer, which may be nil.
func NewService(completer completion.Completer) *Service {
	return &Service{completer: completer}
}

// signalsMarker separates the reply text from the trailing signal block.
const signalsMarker = "SIGNALS:"

// Respond generates the assistant reply for one turn.
func (s *Service) Respond(ctx context.Context, tctx TurnContext, history []conversation.Message, userMessage string) (Reply, error) {
	if s.completer == nil {
		return fallbackReply(tctx), nil
	}

	req := completion.Request{
		System:  buildSystemPrompt(tctx),
		History: historyTurns(history),
		Query:   userMessage,
	}

	content, err := s.completer.Complete(ctx, req)
	if err != nil || strings.TrimSpace(content) == "" {
		log.Printf("[guide] completion failed for session=%s, substituting default reply: %v", tctx.SessionID, err)
		return fallbackReply(tctx), nil
	}

	reply, signals := splitSignals(content)
	return Reply{Content: reply, Signals: signals}, nil
}

func fallbackReply(tctx TurnContext) Reply {
	return Reply{
		Content: fmt.Sprintf("I'm having trouble gathering my thoughts right now, %s. I heard what you said, and I want to give it the attention it deserves. Could you give me a moment and try again?", tctx.UserName),
	}
}

// splitSignals strips the trailing signal block from the reply, if present.
func splitSignals(content string) (string, Signals) {
	var signals Signals
	idx := strings.LastIndex(content, signalsMarker)
	if idx == -1 {
		return strings.TrimSpace(content), signals
	}

	tail := content[idx+len(signalsMarker):]
	if !completion.DecodeJSONBlock(tail, &signals) {
		return strings.TrimSpace(content), Signals{}
	}
	return strings.TrimSpace(content[:idx]), signals
}

func historyTurns(history []conversation.Message) []completion.Turn {
	turns := make([]completion.Turn, 0, len(history))
	for _, m := range history {
		role := "user"
		if m.Role == conversation.RoleAI {
			role = "assistant"
		}
		turns = append(turns, completion.Turn{Role: role, Content: m.Content})
	}
	return turns
}

func buildSystemPrompt(tctx TurnContext) string {
	var b strings.Builder
	b.WriteString("You are a warm, steady guide helping someone repair a strained relationship through a structured conversation. ")
	b.WriteString("Speak directly to the user, never about them. Keep replies short enough to read in one breath.\n\n")

	fmt.Fprintf(&b, "The user's name is %s. The conversation concerns their relationship with %s.\n", tctx.UserName, tctx.CounterpartName)
	fmt.Fprintf(&b, "Current stage: %d (%s). This is turn %d; the session is %d minutes old.\n",
		int(tctx.Stage), tctx.Stage.Name(), tctx.TurnCount, tctx.SessionAgeMinutes)

	if tctx.FirstTurn {
		b.WriteString("This is the user's first turn: welcome them and set expectations gently.\n")
	}
	if tctx.StageTransition {
		fmt.Fprintf(&b, "The user just moved here from stage %d (%s): acknowledge the shift before continuing.\n",
			int(tctx.PreviousStage), tctx.PreviousStage.Name())
	}
	if tctx.InvitationPhase {
		fmt.Fprintf(&b, "The invitation to %s has not been sent yet. When natural, remind the user they can send it.\n", tctx.CounterpartName)
	}

	b.WriteString("\n")
	b.WriteString(stageInstructions(tctx.Stage))

	b.WriteString("\nAfter your reply, on its own final line, append ")
	b.WriteString(signalsMarker)
	b.WriteString(` {"offerConfirmHeard": bool, "offerShareEmpathy": bool, "proposedEmpathy": string}. offerConfirmHeard: you believe the user has said all they need and could confirm feeling heard. offerShareEmpathy: only during the perspective-stretch stage, when a draft empathy statement is ready to offer. proposedEmpathy: the draft statement itself, else empty.`)
	return b.String()
}

// stageInstructions is the per-stage prompt table.
func stageInstructions(stage conversation.Stage) string {
	switch stage {
	case conversation.StageOnboarding:
		return "Stage focus, onboarding: explain how the guided conversation works, answer questions about the process, and help the user feel safe committing to the conversation compact."
	case conversation.StageWitness:
		return "Stage focus, witness: let the user tell their side fully. Reflect what you hear without judgment or advice. Ask open questions that deepen the telling, not ones that steer it."
	case conversation.StagePerspectiveStretch:
		return "Stage focus, perspective stretch: help the user imagine how the other person experienced the same events. Work toward a short empathy statement in the user's own words. Never pressure; offer drafts they can reshape."
	case conversation.StageNeedMapping:
		return "Stage focus, need mapping: help the user name the underlying needs beneath their positions, and guess generously at the other person's needs. Distinguish needs from strategies."
	case conversation.StageStrategicRepair:
		return "Stage focus, strategic repair: help the user design small, concrete, reversible repair steps both people could try. Favor experiments over promises."
	default:
		return "Stage focus: meet the user where they are and keep the conversation moving gently forward."
	}
}
