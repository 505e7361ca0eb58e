package router

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/halcyonlabs/accord/backend/internal/model/conversation"
	modelintent "github.com/halcyonlabs/accord/backend/internal/model/intent"
	"github.com/halcyonlabs/accord/backend/internal/service/creation"
	"github.com/halcyonlabs/accord/backend/internal/service/semantic"
	"github.com/halcyonlabs/accord/backend/internal/store"
)

// CreateHandler drives the multi-turn session creation flow. It out-ranks
// every other handler so a user mid-creation who mentions a name is not
// redirected away from finishing.
type CreateHandler struct {
	states creation.StateStore
	store  store.Store
	index  *semantic.Index
}

// NewCreateHandler wires the creation handler. index may be nil.
func NewCreateHandler(states creation.StateStore, st store.Store, index *semantic.Index) *CreateHandler {
	return &CreateHandler{states: states, store: st, index: index}
}

func (h *CreateHandler) ID() string    { return "session-create" }
func (h *CreateHandler) Priority() int { return 100 }

// Intents covers every classification a mid-creation message can land on:
// the in-flight flow must see the turn no matter how the classifier reads a
// name mention or a question, and Accepts still declines when no flow is
// pending.
func (h *CreateHandler) Intents() []modelintent.Intent {
	return []modelintent.Intent{
		modelintent.CreateSession,
		modelintent.SwitchSession,
		modelintent.ContinueConversation,
		modelintent.CheckStatus,
		modelintent.ListSessions,
		modelintent.Help,
		modelintent.Unknown,
	}
}

// Accepts claims the turn for an explicit create intent or whenever the
// user already has an in-flight creation flow.
func (h *CreateHandler) Accepts(_ context.Context, t *Turn) bool {
	return t.Detection.Intent == modelintent.CreateSession || h.states.Has(t.UserID)
}

// Cleanup discards the user's pending creation state.
func (h *CreateHandler) Cleanup(userID string) {
	h.states.Delete(userID)
}

// Handle accumulates one more turn of creation state and creates the
// session once enough is known.
func (h *CreateHandler) Handle(ctx context.Context, t *Turn) (HandlerResult, error) {
	state, ok := h.states.Get(t.UserID)
	if !ok {
		state = &creation.State{UserID: t.UserID}
	}

	state.AppendTurn("user", t.Content)
	state.MergePerson(t.Detection.Person)
	state.MergeTopic(t.Detection.SessionContext)

	if question, pending := h.nextQuestion(state, t.Detection); pending {
		state.AppendTurn("assistant", question)
		h.states.Set(t.UserID, state)
		return HandlerResult{
			ActionType: "creation_prompt",
			Message:    question,
			Data:       map[string]any{"step": string(state.Step())},
		}, nil
	}

	return h.create(ctx, t, state)
}

// nextQuestion decides whether another gathering turn is needed and what to
// ask. The classifier's own follow-up question is used verbatim when given.
func (h *CreateHandler) nextQuestion(state *creation.State, detection modelintent.DetectionResult) (string, bool) {
	if !state.Completable() {
		if q := detection.FollowUpQuestion; q != "" {
			return q, true
		}
		return "Who would you like to have this conversation with?", true
	}

	// Ask for contact info once; a session can still be created without it.
	if state.Person.ContactInfo == "" && !state.AskedContact {
		state.AskedContact = true
		if q := detection.FollowUpQuestion; q != "" {
			return q, true
		}
		return fmt.Sprintf("What's %s's email or phone number, so I can send them an invitation?", state.Person.FirstName), true
	}

	return "", false
}

// create runs the effectively-atomic creation procedure. On hard failure
// the pending state is cleared anyway so the user is never stuck retrying
// against corrupt partial state.
func (h *CreateHandler) create(ctx context.Context, t *Turn, state *creation.State) (HandlerResult, error) {
	now := time.Now().UTC()

	relationship := conversation.Relationship{
		ID:        uuid.NewString(),
		UserID:    t.UserID,
		Nickname:  state.Person.FirstName,
		FirstName: state.Person.FirstName,
		LastName:  state.Person.LastName,
		CreatedAt: now,
	}
	session := conversation.Session{
		ID:             uuid.NewString(),
		Status:         conversation.StatusCreated,
		RelationshipID: relationship.ID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	invitation := conversation.Invitation{
		ID:          uuid.NewString(),
		SessionID:   session.ID,
		InviteeName: relationship.DisplayName(),
		Contact:     state.Person.ContactInfo,
		CreatedAt:   now,
		ExpiresAt:   now.Add(conversation.InvitationValidity),
	}
	graph := store.SessionGraph{
		Relationship: relationship,
		Session:      session,
		Progress: []conversation.StageProgress{{
			ID:        uuid.NewString(),
			SessionID: session.ID,
			UserID:    t.UserID,
			Stage:     conversation.StageOnboarding,
			Status:    conversation.ProgressNotStarted,
			CreatedAt: now,
		}},
		Invitation: invitation,
		Topic:      state.Topic,
	}

	if err := h.store.CreateSessionGraph(ctx, graph); err != nil {
		log.Printf("[create] session creation failed for user=%s: %v", t.UserID, err)
		h.states.Delete(t.UserID)
		return HandlerResult{
			ActionType: "creation_failed",
			Message:    "Something went wrong setting that up. Let's try again: who would you like to talk to?",
		}, nil
	}

	replayed := h.replayHistory(ctx, session.ID, t.UserID, state)
	h.mergePendingMessages(ctx, session.ID, t.UserID)
	h.kickOffEmbedding(session.ID, t.UserID, state, replayed)

	h.states.Delete(t.UserID)

	return HandlerResult{
		ActionType: "session_created",
		Message: fmt.Sprintf("You're all set. I've started a conversation about %s and prepared an invitation for them. You can begin whenever you're ready. Tell me what happened.",
			relationship.DisplayName()),
		Actions: []Action{{
			Type:  "send_invitation",
			Label: fmt.Sprintf("Send invitation to %s", relationship.DisplayName()),
			Data:  map[string]any{"invitationId": invitation.ID},
		}},
		SessionChange: &SessionChange{
			Type:            SessionChangeCreated,
			SessionID:       session.ID,
			CounterpartName: relationship.DisplayName(),
			InvitationID:    invitation.ID,
		},
	}, nil
}

// replayHistory copies the accumulated gathering transcript into the new
// session, preserving original timestamps and roles.
func (h *CreateHandler) replayHistory(ctx context.Context, sessionID, userID string, state *creation.State) []conversation.Message {
	var saved []conversation.Message
	for _, entry := range state.History {
		msg := conversation.Message{
			SessionID: sessionID,
			Content:   entry.Content,
			Stage:     conversation.StageOnboarding,
			CreatedAt: entry.Timestamp,
		}
		if entry.Role == "assistant" {
			msg.Role = conversation.RoleAI
			msg.ForUserID = userID
		} else {
			msg.Role = conversation.RoleUser
			msg.SenderID = userID
		}
		if err := h.store.SaveMessage(ctx, &msg); err != nil {
			log.Printf("[create] history replay failed for session=%s: %v", sessionID, err)
			continue
		}
		saved = append(saved, msg)
	}
	return saved
}

// mergePendingMessages folds any pre-session messages into the new session.
// Failures are logged and swallowed, never failing the creation.
func (h *CreateHandler) mergePendingMessages(ctx context.Context, sessionID, userID string) {
	pending, err := h.store.DrainPendingMessages(ctx, userID)
	if err != nil {
		log.Printf("[create] pending message drain failed for user=%s: %v", userID, err)
		return
	}
	for _, msg := range pending {
		msg.ID = ""
		msg.SessionID = sessionID
		msg.Stage = conversation.StageOnboarding
		if err := h.store.SaveMessage(ctx, &msg); err != nil {
			log.Printf("[create] pending message merge failed for session=%s: %v", sessionID, err)
		}
	}
}

// kickOffEmbedding indexes the new session's content without blocking the
// turn. Failures are logged only.
func (h *CreateHandler) kickOffEmbedding(sessionID, userID string, state *creation.State, messages []conversation.Message) {
	if h.index == nil {
		return
	}
	topic := state.Topic
	person := state.Person.FirstName
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := h.index.EmbedSession(ctx, sessionID, userID, person+" "+topic); err != nil {
			log.Printf("[create] session embedding failed for session=%s: %v", sessionID, err)
		}
		if err := h.index.EmbedMessages(ctx, sessionID, userID, messages); err != nil {
			log.Printf("[create] message embedding failed for session=%s: %v", sessionID, err)
		}
	}()
}
