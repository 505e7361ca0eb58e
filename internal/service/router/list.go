package router

import (
	"context"
	"fmt"
	"strings"

	"github.com/halcyonlabs/accord/backend/internal/analysis/projection"
	"github.com/halcyonlabs/accord/backend/internal/model/conversation"
	modelintent "github.com/halcyonlabs/accord/backend/internal/model/intent"
	"github.com/halcyonlabs/accord/backend/internal/store"
)

// ListHandler answers listing and status questions from session
// projections.
type ListHandler struct {
	store store.Store
}

// NewListHandler wires the sessions-list handler.
func NewListHandler(st store.Store) *ListHandler {
	return &ListHandler{store: st}
}

func (h *ListHandler) ID() string    { return "sessions-list" }
func (h *ListHandler) Priority() int { return 80 }

func (h *ListHandler) Intents() []modelintent.Intent {
	return []modelintent.Intent{modelintent.ListSessions, modelintent.CheckStatus}
}

// Accepts claims every list or status turn unconditionally.
func (h *ListHandler) Accepts(context.Context, *Turn) bool { return true }

func (h *ListHandler) Cleanup(string) {}

// Handle renders the user's sessions with their projected status pairs.
func (h *ListHandler) Handle(ctx context.Context, t *Turn) (HandlerResult, error) {
	if len(t.Sessions) == 0 {
		return HandlerResult{
			ActionType: "sessions_list",
			Message:    "You don't have any conversations yet. Tell me who you'd like to talk things through with, and I'll set one up.",
		}, nil
	}

	var b strings.Builder
	b.WriteString("Here's where your conversations stand:\n")
	views := make([]map[string]any, 0, len(t.Sessions))
	for _, sum := range t.Sessions {
		view := h.project(ctx, t.UserID, sum)
		name := sum.Relationship.DisplayName()
		fmt.Fprintf(&b, "- %s: you're %s; %s.\n", name, view.MyStatus, view.TheirStatus)
		views = append(views, map[string]any{
			"sessionId":       sum.Session.ID,
			"counterpartName": name,
			"status":          sum.Session.Status,
			"view":            view,
		})
	}

	return HandlerResult{
		ActionType: "sessions_list",
		Message:    strings.TrimSpace(b.String()),
		Data:       map[string]any{"sessions": views},
	}, nil
}

// project assembles the projection input for one session from its progress
// records.
func (h *ListHandler) project(ctx context.Context, userID string, sum store.SessionSummary) projection.View {
	counterpartID := sum.Relationship.CounterpartID
	if counterpartID == userID {
		counterpartID = sum.Relationship.UserID
	}

	in := projection.Input{
		SessionStatus:     sum.Session.Status,
		CounterpartName:   sum.Relationship.DisplayName(),
		Viewer:            participantState(h.loadProgress(ctx, sum.Session.ID, userID)),
		CounterpartJoined: counterpartID != "",
	}
	if counterpartID != "" {
		in.Counterpart = participantState(h.loadProgress(ctx, sum.Session.ID, counterpartID))
	}
	return projection.Project(in)
}

func (h *ListHandler) loadProgress(ctx context.Context, sessionID, userID string) []conversation.StageProgress {
	records, err := h.store.StageProgressFor(ctx, sessionID, userID)
	if err != nil {
		return nil
	}
	return records
}

// participantState reduces progress records to the highest-stage record's
// state, defaulting to a fresh witness stage.
func participantState(records []conversation.StageProgress) projection.ParticipantState {
	if len(records) == 0 {
		return projection.ParticipantState{
			Stage:  conversation.StageWitness,
			Status: conversation.ProgressNotStarted,
		}
	}
	current := records[len(records)-1]
	return projection.ParticipantState{Stage: current.Stage, Status: current.Status}
}
