// Package intentrules provides the deterministic fallback used when the
// language-model classifier is unavailable or returns unusable output.
package intentrules

import (
	"strings"

	"github.com/halcyonlabs/accord/backend/internal/model/intent"
)

var helpKeywords = []string{
	"help", "how do i", "how does this work", "what can you do",
	"what is this", "confused", "instructions", "guide me",
}

var listKeywords = []string{
	"list", "show me my", "my sessions", "my conversations",
	"what conversations", "which conversations", "all my",
}

// Detect classifies a message without the language model, walking a fixed
// priority ladder: help words, list words, strong semantic match,
// counterpart-name substring, active session, unknown.
func Detect(message string, ctx intent.Context) intent.DetectionResult {
	normalized := strings.ToLower(strings.TrimSpace(message))

	if containsAny(normalized, helpKeywords) {
		return intent.DetectionResult{Intent: intent.Help, Confidence: intent.Low}
	}

	if containsAny(normalized, listKeywords) {
		return intent.DetectionResult{Intent: intent.ListSessions, Confidence: intent.Low}
	}

	if best, ok := ctx.BestSemanticMatch(); ok && best.Similarity >= intent.SwitchBiasThreshold {
		return intent.DetectionResult{
			Intent:     intent.SwitchSession,
			Confidence: intent.Medium,
			SessionID:  best.SessionID,
		}
	}

	if ref, ok := matchCounterpartName(normalized, ctx.Sessions); ok {
		return intent.DetectionResult{
			Intent:     intent.SwitchSession,
			Confidence: intent.Medium,
			SessionID:  ref.SessionID,
		}
	}

	if ctx.ActiveSessionID != "" {
		return intent.DetectionResult{Intent: intent.ContinueConversation, Confidence: intent.Low}
	}

	return intent.DetectionResult{
		Intent:           intent.Unknown,
		Confidence:       intent.Low,
		FollowUpQuestion: "I'm not sure what you'd like to do. Would you like to continue a conversation, start a new one, or see your existing ones?",
	}
}

func containsAny(text string, keywords []string) bool {
	for _, word := range keywords {
		if strings.Contains(text, word) {
			return true
		}
	}
	return false
}

// matchCounterpartName finds a session whose counterpart name appears as a
// case-insensitive substring of the message.
func matchCounterpartName(normalized string, sessions []intent.SessionRef) (intent.SessionRef, bool) {
	for _, ref := range sessions {
		name := strings.ToLower(strings.TrimSpace(ref.CounterpartName))
		if name == "" {
			continue
		}
		if strings.Contains(normalized, name) {
			return ref, true
		}
	}
	return intent.SessionRef{}, false
}
