// Package chat exposes the conversational router over HTTP.
package chat

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/halcyonlabs/accord/backend/internal/service/router"
	"github.com/halcyonlabs/accord/backend/internal/service/turn"
	"github.com/halcyonlabs/accord/backend/pkg/utils"
)

// Handler serves the chat endpoints.
type Handler struct {
	router *router.Service
}

// New creates the chat handler.
func New(routerSvc *router.Service) *Handler {
	return &Handler{router: routerSvc}
}

// RegisterRoutes mounts the chat routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/chat/messages", h.handleProcessMessage)
	r.Get("/chat/context", h.handleGetContext)
	r.Post("/chat/cancel", h.handleCancelPending)
}

func (h *Handler) handleProcessMessage(w http.ResponseWriter, r *http.Request) {
	var payload router.ProcessRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if payload.UserID == "" {
		utils.RespondError(w, http.StatusBadRequest, "userId is required")
		return
	}

	response, err := h.router.ProcessMessage(r.Context(), payload)
	if err != nil {
		switch {
		case errors.Is(err, router.ErrEmptyMessage):
			utils.RespondError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, turn.ErrSessionNotFound):
			utils.RespondError(w, http.StatusNotFound, "session not found")
		default:
			utils.RespondError(w, http.StatusInternalServerError, "failed to process message")
		}
		return
	}

	utils.RespondJSON(w, http.StatusOK, response)
}

func (h *Handler) handleGetContext(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		utils.RespondError(w, http.StatusBadRequest, "userId query parameter is required")
		return
	}

	chatContext, err := h.router.GetChatContext(r.Context(), userID)
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "failed to load chat context")
		return
	}
	utils.RespondJSON(w, http.StatusOK, chatContext)
}

func (h *Handler) handleCancelPending(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		UserID string `json:"userId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if payload.UserID == "" {
		utils.RespondError(w, http.StatusBadRequest, "userId is required")
		return
	}

	h.router.CancelPendingCreation(payload.UserID)
	utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}
