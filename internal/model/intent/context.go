package intent

import (
	"time"

	"github.com/halcyonlabs/accord/backend/internal/model/conversation"
)

// SessionRef is a lightweight view of one of the user's existing sessions,
// offered to the classifier so a named person can bias toward switching.
type SessionRef struct {
	SessionID       string              `json:"sessionId"`
	CounterpartName string              `json:"counterpartName"`
	Status          conversation.Status `json:"status"`
	LastActivity    time.Time           `json:"lastActivity"`
}

// SemanticMatch is a semantically similar past session with its score in
// [0, 1].
type SemanticMatch struct {
	SessionID       string  `json:"sessionId"`
	CounterpartName string  `json:"counterpartName"`
	Similarity      float64 `json:"similarity"`
}

// Turn is one recent conversational exchange fed back as classifier context.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Context is everything the classifier may consider besides the message
// itself.
type Context struct {
	ActiveSessionID    string
	ActiveCounterpart  string
	Sessions           []SessionRef
	SemanticMatches    []SemanticMatch
	HasPendingCreation bool
	PendingStep        string
	RecentTurns        []Turn
}

// SwitchBiasThreshold is the similarity above which a semantic match
// strongly biases classification toward switching sessions.
const SwitchBiasThreshold = 0.7

// BestSemanticMatch returns the highest-similarity match, if any.
func (c Context) BestSemanticMatch() (SemanticMatch, bool) {
	var best SemanticMatch
	found := false
	for _, m := range c.SemanticMatches {
		if !found || m.Similarity > best.Similarity {
			best = m
			found = true
		}
	}
	return best, found
}
