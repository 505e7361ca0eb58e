// Package session exposes session listing and status projections over HTTP.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/halcyonlabs/accord/backend/internal/analysis/projection"
	"github.com/halcyonlabs/accord/backend/internal/model/conversation"
	"github.com/halcyonlabs/accord/backend/internal/store"
	"github.com/halcyonlabs/accord/backend/pkg/utils"
)

// Handler serves the session endpoints.
type Handler struct {
	store store.Store
}

// New creates the session handler.
func New(st store.Store) *Handler {
	return &Handler{store: st}
}

// RegisterRoutes mounts the session routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/sessions", h.handleListSessions)
	r.Get("/sessions/{sessionID}/status", h.handleSessionStatus)
	r.Post("/sessions/{sessionID}/compact", h.handleSignCompact)
	r.Post("/sessions/{sessionID}/invitation/confirm", h.handleConfirmInvitation)
}

type sessionEntry struct {
	SessionID       string              `json:"sessionId"`
	CounterpartName string              `json:"counterpartName"`
	Status          conversation.Status `json:"status"`
	Topic           string              `json:"topic,omitempty"`
}

func (h *Handler) handleListSessions(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		utils.RespondError(w, http.StatusBadRequest, "userId query parameter is required")
		return
	}

	summaries, err := h.store.ListSessionsForUser(r.Context(), userID, []conversation.Status{conversation.StatusAbandoned})
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}

	entries := make([]sessionEntry, 0, len(summaries))
	for _, sum := range summaries {
		entries = append(entries, sessionEntry{
			SessionID:       sum.Session.ID,
			CounterpartName: sum.Relationship.DisplayName(),
			Status:          sum.Session.Status,
			Topic:           sum.Topic,
		})
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{"sessions": entries})
}

func (h *Handler) handleSessionStatus(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		utils.RespondError(w, http.StatusBadRequest, "userId query parameter is required")
		return
	}

	sess, err := h.store.GetSession(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			utils.RespondError(w, http.StatusNotFound, "session not found")
			return
		}
		utils.RespondError(w, http.StatusInternalServerError, "failed to load session")
		return
	}

	rel, err := h.store.GetRelationship(r.Context(), sess.RelationshipID)
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "failed to load relationship")
		return
	}

	counterpartID := rel.CounterpartID
	if counterpartID == userID {
		counterpartID = rel.UserID
	}

	in := projection.Input{
		SessionStatus:     sess.Status,
		CounterpartName:   rel.DisplayName(),
		Viewer:            h.participantState(r.Context(), sessionID, userID),
		CounterpartJoined: counterpartID != "",
	}
	if counterpartID != "" {
		in.Counterpart = h.participantState(r.Context(), sessionID, counterpartID)
	}

	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"sessionId": sessionID,
		"view":      projection.Project(in),
	})
}

// handleSignCompact records the participant's conversation compact
// signature on their onboarding record. The next processed turn moves them
// into the witness stage. Re-signing is a no-op.
func (h *Handler) handleSignCompact(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var body struct {
		UserID string `json:"userId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.UserID == "" {
		utils.RespondError(w, http.StatusBadRequest, "userId is required")
		return
	}

	if _, err := h.store.GetSession(r.Context(), sessionID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			utils.RespondError(w, http.StatusNotFound, "session not found")
			return
		}
		utils.RespondError(w, http.StatusInternalServerError, "failed to load session")
		return
	}

	records, err := h.store.StageProgressFor(r.Context(), sessionID, body.UserID)
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "failed to load stage progress")
		return
	}

	now := time.Now().UTC()
	var onboarding conversation.StageProgress
	found := false
	for _, rec := range records {
		if rec.Stage == conversation.StageOnboarding {
			onboarding = rec
			found = true
			break
		}
	}
	if !found {
		onboarding = conversation.StageProgress{
			ID:        uuid.NewString(),
			SessionID: sessionID,
			UserID:    body.UserID,
			Stage:     conversation.StageOnboarding,
			Status:    conversation.ProgressInProgress,
			CreatedAt: now,
		}
	}

	if onboarding.Gates == nil {
		onboarding.Gates = make(map[string]any, 1)
	}
	if !onboarding.GateSatisfied(conversation.GateCompactSigned) {
		onboarding.Gates[conversation.GateCompactSigned] = now.Format(time.RFC3339)
	}
	if onboarding.Status == conversation.ProgressNotStarted {
		onboarding.Status = conversation.ProgressInProgress
	}

	if err := h.store.SaveStageProgress(r.Context(), onboarding); err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "failed to record compact signature")
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"sessionId": sessionID,
		"userId":    body.UserID,
		"status":    "signed",
	})
}

// handleConfirmInvitation marks the session's latest invitation as sent by
// the initiator and moves a freshly created session to INVITED. Expired
// invitations cannot be confirmed.
func (h *Handler) handleConfirmInvitation(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	sess, err := h.store.GetSession(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			utils.RespondError(w, http.StatusNotFound, "session not found")
			return
		}
		utils.RespondError(w, http.StatusInternalServerError, "failed to load session")
		return
	}

	inv, err := h.store.LatestInvitation(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			utils.RespondError(w, http.StatusNotFound, "no invitation for session")
			return
		}
		utils.RespondError(w, http.StatusInternalServerError, "failed to load invitation")
		return
	}
	if inv.Expired(time.Now().UTC()) {
		utils.RespondError(w, http.StatusGone, "invitation has expired")
		return
	}

	if err := h.store.ConfirmInvitation(r.Context(), inv.ID); err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "failed to confirm invitation")
		return
	}
	if sess.Status == conversation.StatusCreated {
		if err := h.store.UpdateSessionStatus(r.Context(), sessionID, conversation.StatusInvited); err != nil {
			utils.RespondError(w, http.StatusInternalServerError, "failed to update session status")
			return
		}
	}

	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"sessionId":    sessionID,
		"invitationId": inv.ID,
		"status":       "confirmed",
	})
}

// participantState reduces a participant's progress records to the
// highest-stage record, defaulting to a fresh witness stage.
func (h *Handler) participantState(ctx context.Context, sessionID, userID string) projection.ParticipantState {
	records, err := h.store.StageProgressFor(ctx, sessionID, userID)
	if err != nil || len(records) == 0 {
		return projection.ParticipantState{
			Stage:  conversation.StageWitness,
			Status: conversation.ProgressNotStarted,
		}
	}
	current := records[len(records)-1]
	return projection.ParticipantState{Stage: current.Stage, Status: current.Status}
}
