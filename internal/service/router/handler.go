// Package router classifies inbound chat messages and dispatches them to
// the highest-priority handler that accepts the turn.
package router

import (
	"context"

	modelintent "github.com/halcyonlabs/accord/backend/internal/model/intent"
	"github.com/halcyonlabs/accord/backend/internal/service/turn"
	"github.com/halcyonlabs/accord/backend/internal/store"
)

// Turn is the assembled context for one inbound message, shared by the
// classifier and every consulted handler.
type Turn struct {
	UserID           string
	UserName         string
	Content          string
	CurrentSessionID string
	Detection        modelintent.DetectionResult
	Context          modelintent.Context
	Sessions         []store.SessionSummary
}

// SessionChange tells the caller the active session was created or
// switched during the turn.
type SessionChange struct {
	Type            string `json:"type"`
	SessionID       string `json:"sessionId"`
	CounterpartName string `json:"counterpartName,omitempty"`
	InvitationID    string `json:"invitationId,omitempty"`
}

const (
	SessionChangeCreated  = "created"
	SessionChangeSwitched = "switched"
)

// Action is a structured follow-up the UI can offer alongside a reply.
type Action struct {
	Type  string `json:"type"`
	Label string `json:"label"`
	Data  any    `json:"data,omitempty"`
}

// HandlerResult is the output contract of a handler.
type HandlerResult struct {
	ActionType    string         `json:"actionType"`
	Message       string         `json:"message"`
	Actions       []Action       `json:"actions,omitempty"`
	SessionChange *SessionChange `json:"sessionChange,omitempty"`
	PassThrough   *turn.Result   `json:"passThrough,omitempty"`
	Data          map[string]any `json:"data,omitempty"`
}

// Handler processes turns for one or more intents. Handlers are consulted
// in descending priority order; the first to accept a turn handles it.
type Handler interface {
	ID() string
	Intents() []modelintent.Intent
	Priority() int
	Accepts(ctx context.Context, t *Turn) bool
	Handle(ctx context.Context, t *Turn) (HandlerResult, error)
	// Cleanup discards any pending per-user state. Handlers without pending
	// state treat this as a no-op.
	Cleanup(userID string)
}
