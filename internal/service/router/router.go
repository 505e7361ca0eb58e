package router

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/halcyonlabs/accord/backend/internal/model/conversation"
	modelintent "github.com/halcyonlabs/accord/backend/internal/model/intent"
	"github.com/halcyonlabs/accord/backend/internal/service/creation"
	intentsvc "github.com/halcyonlabs/accord/backend/internal/service/intent"
	"github.com/halcyonlabs/accord/backend/internal/service/realtime"
	"github.com/halcyonlabs/accord/backend/internal/service/semantic"
	"github.com/halcyonlabs/accord/backend/internal/service/turn"
	"github.com/halcyonlabs/accord/backend/internal/store"
)

var (
	// ErrEmptyMessage rejects a turn whose content is missing.
	ErrEmptyMessage = errors.New("message content is required")
)

// recentTurnWindow is how many prior exchanges feed the classifier.
const recentTurnWindow = 6

// ProcessRequest is one inbound chat message.
type ProcessRequest struct {
	UserID           string `json:"userId"`
	UserName         string `json:"userName"`
	Content          string `json:"content"`
	CurrentSessionID string `json:"currentSessionId,omitempty"`
}

// Response is the caller-facing outcome of one processed message.
type Response struct {
	UserMessage       string         `json:"userMessage"`
	AssistantResponse string         `json:"assistantResponse"`
	ActionType        string         `json:"actionType"`
	Actions           []Action       `json:"actions,omitempty"`
	SessionChange     *SessionChange `json:"sessionChange,omitempty"`
	PassThrough       *turn.Result   `json:"passThrough,omitempty"`
	Data              map[string]any `json:"data,omitempty"`
}

// SessionInfo is one entry of the chat context listing.
type SessionInfo struct {
	SessionID       string              `json:"sessionId"`
	CounterpartName string              `json:"counterpartName"`
	Status          conversation.Status `json:"status"`
	LastActivity    time.Time           `json:"lastActivity"`
}

// ChatContext describes the user's standing for a fresh chat surface.
type ChatContext struct {
	ActiveSessions      []SessionInfo `json:"activeSessions"`
	HasPendingCreation  bool          `json:"hasPendingCreation"`
	PendingCreationStep string        `json:"pendingCreationStep,omitempty"`
	WelcomeMessage      string        `json:"welcomeMessage,omitempty"`
}

// Service is the conversational intent router: it classifies each message
// and dispatches it to the first accepting handler in priority order.
type Service struct {
	registry   *Registry
	classifier *intentsvc.Classifier
	store      store.Store
	states     creation.StateStore
	index      *semantic.Index
	publisher  realtime.Publisher
}

// NewService wires the router. index and publisher may be nil.
func NewService(
	registry *Registry,
	classifier *intentsvc.Classifier,
	st store.Store,
	states creation.StateStore,
	index *semantic.Index,
	publisher realtime.Publisher,
) *Service {
	return &Service{
		registry:   registry,
		classifier: classifier,
		store:      st,
		states:     states,
		index:      index,
		publisher:  publisher,
	}
}

// RegisterBuiltins installs the four built-in handlers.
func (s *Service) RegisterBuiltins(processor *turn.Processor) {
	s.registry.Register(NewCreateHandler(s.states, s.store, s.index))
	s.registry.Register(NewSwitchHandler(s.store, s.states))
	s.registry.Register(NewListHandler(s.store))
	s.registry.Register(NewContinueHandler(processor))
}

// Registry exposes the handler registry for plugin management.
func (s *Service) Registry() *Registry {
	return s.registry
}

// ProcessMessage runs one full turn: context assembly, classification,
// dispatch, and response.
func (s *Service) ProcessMessage(ctx context.Context, req ProcessRequest) (Response, error) {
	content := strings.TrimSpace(req.Content)
	if content == "" {
		return Response{}, ErrEmptyMessage
	}

	t, err := s.assembleTurn(ctx, req, content)
	if err != nil {
		return Response{}, err
	}

	t.Detection = s.classifier.Classify(ctx, content, t.Context)

	result, err := s.dispatch(ctx, t)
	if err != nil {
		return Response{}, err
	}

	s.publishChange(req.UserID, result.SessionChange)

	return Response{
		UserMessage:       content,
		AssistantResponse: result.Message,
		ActionType:        result.ActionType,
		Actions:           result.Actions,
		SessionChange:     result.SessionChange,
		PassThrough:       result.PassThrough,
		Data:              result.Data,
	}, nil
}

// GetChatContext reports the user's sessions and any pending creation flow.
func (s *Service) GetChatContext(ctx context.Context, userID string) (ChatContext, error) {
	summaries, err := s.store.ListSessionsForUser(ctx, userID, []conversation.Status{conversation.StatusAbandoned})
	if err != nil {
		return ChatContext{}, fmt.Errorf("list sessions: %w", err)
	}

	out := ChatContext{}
	for _, sum := range summaries {
		out.ActiveSessions = append(out.ActiveSessions, SessionInfo{
			SessionID:       sum.Session.ID,
			CounterpartName: sum.Relationship.DisplayName(),
			Status:          sum.Session.Status,
			LastActivity:    sum.LastActivity,
		})
	}

	if state, ok := s.states.Get(userID); ok {
		out.HasPendingCreation = true
		out.PendingCreationStep = string(state.Step())
	}

	if len(out.ActiveSessions) == 0 && !out.HasPendingCreation {
		out.WelcomeMessage = "Welcome. I help people work through conflict one conversation at a time. Tell me who you'd like to talk things through with, or just tell me what happened."
	}
	return out, nil
}

// CancelPendingCreation clears the user's pending multi-turn state by
// invoking every registered handler's cleanup hook. Calling it again is a
// no-op.
func (s *Service) CancelPendingCreation(userID string) {
	for _, handler := range s.registry.AllHandlers() {
		handler.Cleanup(userID)
	}
}

// dispatch walks the handlers for the classified intent in priority order;
// the first acceptor wins and later handlers are never consulted.
func (s *Service) dispatch(ctx context.Context, t *Turn) (HandlerResult, error) {
	for _, handler := range s.registry.HandlersFor(t.Detection.Intent) {
		if !handler.Accepts(ctx, t) {
			continue
		}
		result, err := handler.Handle(ctx, t)
		if err != nil {
			return HandlerResult{}, fmt.Errorf("handler %s: %w", handler.ID(), err)
		}
		return result, nil
	}
	return s.fallbackResult(ctx, t), nil
}

// fallbackResult answers a turn no handler accepted.
func (s *Service) fallbackResult(ctx context.Context, t *Turn) HandlerResult {
	// Nothing claimed the message: bucket it so a later-created session can
	// absorb it.
	if t.Detection.Intent == modelintent.Unknown && t.CurrentSessionID == "" && !s.states.Has(t.UserID) {
		pending := conversation.Message{Role: conversation.RoleUser, Content: t.Content}
		if err := s.store.SavePendingMessage(ctx, t.UserID, pending); err != nil {
			log.Printf("[router] pending message save failed for user=%s: %v", t.UserID, err)
		}
	}

	if t.Detection.Intent == modelintent.Help {
		return HandlerResult{
			ActionType: "help",
			Message:    "I guide structured conversations that help two people repair a conflict. You can start a new conversation by telling me who it's with, continue one that's underway, or ask to see where your conversations stand.",
		}
	}

	message := t.Detection.FollowUpQuestion
	if message == "" {
		message = "I'm not sure how to help with that yet. You can start a new conversation, continue an existing one, or ask what's in progress."
	}
	return HandlerResult{ActionType: "fallback", Message: message}
}

// assembleTurn gathers everything the classifier and handlers may need for
// one message.
func (s *Service) assembleTurn(ctx context.Context, req ProcessRequest, content string) (*Turn, error) {
	summaries, err := s.store.ListSessionsForUser(ctx, req.UserID, []conversation.Status{conversation.StatusAbandoned})
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	t := &Turn{
		UserID:   req.UserID,
		UserName: req.UserName,
		Content:  content,
		Sessions: summaries,
	}

	ictx := modelintent.Context{}
	for _, sum := range summaries {
		ictx.Sessions = append(ictx.Sessions, modelintent.SessionRef{
			SessionID:       sum.Session.ID,
			CounterpartName: sum.Relationship.DisplayName(),
			Status:          sum.Session.Status,
			LastActivity:    sum.LastActivity,
		})
		if sum.Session.ID == req.CurrentSessionID {
			t.CurrentSessionID = sum.Session.ID
			ictx.ActiveSessionID = sum.Session.ID
			ictx.ActiveCounterpart = sum.Relationship.DisplayName()
		}
	}

	if s.index != nil {
		matches, err := s.index.FindSimilar(ctx, req.UserID, content)
		if err != nil {
			log.Printf("[router] semantic lookup failed for user=%s: %v", req.UserID, err)
		} else {
			ictx.SemanticMatches = matches
		}
	}

	if state, ok := s.states.Get(req.UserID); ok {
		ictx.HasPendingCreation = true
		ictx.PendingStep = string(state.Step())
	}

	if t.CurrentSessionID != "" {
		recent, err := s.store.VisibleMessages(ctx, t.CurrentSessionID, req.UserID, recentTurnWindow)
		if err != nil {
			log.Printf("[router] recent history load failed for session=%s: %v", t.CurrentSessionID, err)
		}
		for _, m := range recent {
			role := "user"
			if m.Role == conversation.RoleAI {
				role = "assistant"
			}
			ictx.RecentTurns = append(ictx.RecentTurns, modelintent.Turn{Role: role, Content: m.Content})
		}
	}

	t.Context = ictx
	return t, nil
}

func (s *Service) publishChange(userID string, change *SessionChange) {
	if s.publisher == nil || change == nil {
		return
	}
	eventType := realtime.EventSessionSwitched
	if change.Type == SessionChangeCreated {
		eventType = realtime.EventSessionCreated
	}
	s.publisher.Publish(userID, realtime.Event{
		Type:            eventType,
		SessionID:       change.SessionID,
		CounterpartName: change.CounterpartName,
	})
}
