package router

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/halcyonlabs/accord/backend/internal/model/conversation"
	modelintent "github.com/halcyonlabs/accord/backend/internal/model/intent"
	"github.com/halcyonlabs/accord/backend/internal/service/creation"
	"github.com/halcyonlabs/accord/backend/internal/service/guide"
	intentsvc "github.com/halcyonlabs/accord/backend/internal/service/intent"
	"github.com/halcyonlabs/accord/backend/internal/service/realtime"
	"github.com/halcyonlabs/accord/backend/internal/service/semantic"
	"github.com/halcyonlabs/accord/backend/internal/service/turn"
	"github.com/halcyonlabs/accord/backend/internal/store"
)

type capturePublisher struct {
	users  []string
	events []realtime.Event
}

func (c *capturePublisher) Publish(userID string, event realtime.Event) {
	c.users = append(c.users, userID)
	c.events = append(c.events, event)
}

// extractorHandler stands in for the model classifier's extraction: it
// rewrites recognizable phrasings into structured detections but never
// handles a turn itself.
type extractorHandler struct{}

func (extractorHandler) ID() string                          { return "test-extractor" }
func (extractorHandler) Priority() int                       { return 1 }
func (extractorHandler) Intents() []modelintent.Intent       { return nil }
func (extractorHandler) Accepts(context.Context, *Turn) bool { return false }
func (extractorHandler) Cleanup(string)                      {}

func (extractorHandler) Handle(context.Context, *Turn) (HandlerResult, error) {
	return HandlerResult{}, nil
}

func (extractorHandler) DetectableIntents() []modelintent.Intent { return nil }

func (extractorHandler) DetectionHints() []string {
	return []string{"phrases like 'start a conversation with <name>' mean CREATE_SESSION"}
}

func (extractorHandler) PostProcess(_ context.Context, message string, _ modelintent.Context, result *modelintent.DetectionResult) {
	if strings.Contains(strings.ToLower(message), "start a conversation with sam") {
		result.Intent = modelintent.CreateSession
		result.Confidence = modelintent.High
		result.Person = &modelintent.Person{FirstName: "Sam"}
		result.SessionContext = "the rent"
	}
}

func newTestService(t *testing.T) (*Service, *store.MemoryStore, creation.StateStore, *capturePublisher) {
	t.Helper()
	st := store.NewMemoryStore()
	states := creation.NewMemoryStateStore()
	registry := NewRegistry()
	classifier := intentsvc.NewClassifier(nil, registry)
	index := semantic.NewIndex(st)
	publisher := &capturePublisher{}

	svc := NewService(registry, classifier, st, states, index, publisher)
	processor := turn.NewProcessor(st, guide.NewService(nil), nil, nil)
	svc.RegisterBuiltins(processor)
	return svc, st, states, publisher
}

func seedSessionGraph(t *testing.T, st store.Store, userID, sessionID, name string, status conversation.Status) {
	t.Helper()
	now := time.Now().UTC()
	err := st.CreateSessionGraph(context.Background(), store.SessionGraph{
		Relationship: conversation.Relationship{ID: "rel-" + sessionID, UserID: userID, Nickname: name, CreatedAt: now},
		Session: conversation.Session{
			ID: sessionID, Status: status, RelationshipID: "rel-" + sessionID,
			CreatedAt: now, UpdatedAt: now,
		},
		Invitation: conversation.Invitation{ID: "inv-" + sessionID, SessionID: sessionID, CreatedAt: now, ExpiresAt: now.Add(time.Hour)},
	})
	if err != nil {
		t.Fatalf("seed session graph: %v", err)
	}
}

func TestProcessMessageRejectsEmptyContent(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	_, err := svc.ProcessMessage(context.Background(), ProcessRequest{UserID: "alice", Content: "   "})
	if err != ErrEmptyMessage {
		t.Fatalf("expected ErrEmptyMessage, got %v", err)
	}
}

func TestProcessMessageAnswersHelp(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	resp, err := svc.ProcessMessage(context.Background(), ProcessRequest{
		UserID: "alice", UserName: "Alice", Content: "how does this work?",
	})
	if err != nil {
		t.Fatalf("process message: %v", err)
	}
	if resp.ActionType != "help" {
		t.Fatalf("expected help action, got %q", resp.ActionType)
	}
	if resp.AssistantResponse == "" {
		t.Fatalf("expected help text")
	}
}

func TestProcessMessageListsWithoutModel(t *testing.T) {
	svc, st, _, _ := newTestService(t)
	seedSessionGraph(t, st, "alice", "s-sam", "Sam", conversation.StatusActive)

	resp, err := svc.ProcessMessage(context.Background(), ProcessRequest{
		UserID: "alice", UserName: "Alice", Content: "show me my sessions",
	})
	if err != nil {
		t.Fatalf("process message: %v", err)
	}
	if resp.ActionType != "sessions_list" {
		t.Fatalf("expected sessions_list, got %q", resp.ActionType)
	}
	if !strings.Contains(resp.AssistantResponse, "Sam") {
		t.Fatalf("expected Sam in the listing, got %q", resp.AssistantResponse)
	}
}

func TestProcessMessageBucketsUnclaimedMessage(t *testing.T) {
	svc, st, _, _ := newTestService(t)

	resp, err := svc.ProcessMessage(context.Background(), ProcessRequest{
		UserID: "alice", UserName: "Alice", Content: "hmm",
	})
	if err != nil {
		t.Fatalf("process message: %v", err)
	}
	if resp.ActionType != "fallback" {
		t.Fatalf("expected fallback action, got %q", resp.ActionType)
	}
	if resp.AssistantResponse == "" {
		t.Fatalf("expected a follow-up question")
	}

	pending, err := st.DrainPendingMessages(context.Background(), "alice")
	if err != nil || len(pending) != 1 {
		t.Fatalf("expected one bucketed message, got %d (err=%v)", len(pending), err)
	}
	if pending[0].Content != "hmm" {
		t.Fatalf("unexpected bucketed content: %q", pending[0].Content)
	}
}

func TestCreateFlowEndToEnd(t *testing.T) {
	svc, st, states, publisher := newTestService(t)
	svc.Registry().Register(extractorHandler{})
	ctx := context.Background()

	first, err := svc.ProcessMessage(ctx, ProcessRequest{
		UserID: "alice", UserName: "Alice",
		Content: "I want to start a conversation with Sam about the rent",
	})
	if err != nil {
		t.Fatalf("first message: %v", err)
	}
	if first.ActionType != "creation_prompt" {
		t.Fatalf("expected creation prompt, got %q", first.ActionType)
	}
	if !states.Has("alice") {
		t.Fatalf("expected pending creation state after the first turn")
	}
	if state, _ := states.Get("alice"); state.Step() != creation.StepGatheringContact {
		t.Fatalf("expected contact-gathering step, got %s", state.Step())
	}

	second, err := svc.ProcessMessage(ctx, ProcessRequest{
		UserID: "alice", UserName: "Alice", Content: "sam@example.com",
	})
	if err != nil {
		t.Fatalf("second message: %v", err)
	}
	if second.ActionType != "session_created" {
		t.Fatalf("expected session created, got %q", second.ActionType)
	}
	if second.SessionChange == nil || second.SessionChange.Type != SessionChangeCreated {
		t.Fatalf("expected created session change, got %+v", second.SessionChange)
	}
	if second.SessionChange.CounterpartName != "Sam" {
		t.Fatalf("expected counterpart Sam, got %q", second.SessionChange.CounterpartName)
	}
	if len(second.Actions) == 0 || second.Actions[0].Type != "send_invitation" {
		t.Fatalf("expected a send_invitation action, got %+v", second.Actions)
	}
	if states.Has("alice") {
		t.Fatalf("expected pending state cleared after creation")
	}

	summaries, err := st.ListSessionsForUser(ctx, "alice", nil)
	if err != nil || len(summaries) != 1 {
		t.Fatalf("expected one session, got %d (err=%v)", len(summaries), err)
	}
	if summaries[0].Topic != "the rent" {
		t.Fatalf("expected topic carried over, got %q", summaries[0].Topic)
	}
	if summaries[0].Session.Status != conversation.StatusCreated {
		t.Fatalf("expected CREATED status, got %s", summaries[0].Session.Status)
	}

	replayed, err := st.VisibleMessages(ctx, second.SessionChange.SessionID, "alice", 0)
	if err != nil {
		t.Fatalf("visible messages: %v", err)
	}
	if len(replayed) != 3 {
		t.Fatalf("expected the gathering transcript replayed into the session, got %d messages", len(replayed))
	}

	if len(publisher.events) == 0 || publisher.events[len(publisher.events)-1].Type != realtime.EventSessionCreated {
		t.Fatalf("expected a session_created event, got %+v", publisher.events)
	}
}

func TestPendingCreationOutranksNameSwitch(t *testing.T) {
	svc, st, states, publisher := newTestService(t)
	seedSessionGraph(t, st, "alice", "s-bob", "Bob", conversation.StatusActive)

	state := &creation.State{UserID: "alice"}
	state.MergePerson(&modelintent.Person{FirstName: "Sam"})
	states.Set("alice", state)

	// "bob" classifies as a switch to s-bob, but the in-flight creation flow
	// must keep the turn.
	resp, err := svc.ProcessMessage(context.Background(), ProcessRequest{
		UserID: "alice", UserName: "Alice", Content: "it's about what Bob said to me",
	})
	if err != nil {
		t.Fatalf("process message: %v", err)
	}
	if resp.ActionType != "creation_prompt" {
		t.Fatalf("expected the creation flow to keep the turn, got %q", resp.ActionType)
	}
	if resp.SessionChange != nil {
		t.Fatalf("expected no session switch mid-creation, got %+v", resp.SessionChange)
	}
	if !states.Has("alice") {
		t.Fatalf("expected the pending creation flow to survive the turn")
	}
	if len(publisher.events) != 0 {
		t.Fatalf("expected no realtime events, got %+v", publisher.events)
	}
}

func TestSwitchByCounterpartNameWithoutModel(t *testing.T) {
	svc, st, _, publisher := newTestService(t)
	seedSessionGraph(t, st, "alice", "s-sam", "Sam", conversation.StatusActive)

	resp, err := svc.ProcessMessage(context.Background(), ProcessRequest{
		UserID: "alice", UserName: "Alice", Content: "Sam and I talked again today",
	})
	if err != nil {
		t.Fatalf("process message: %v", err)
	}
	if resp.ActionType != "session_switched" {
		t.Fatalf("expected session switched, got %q", resp.ActionType)
	}
	if resp.SessionChange == nil || resp.SessionChange.SessionID != "s-sam" {
		t.Fatalf("expected switch to s-sam, got %+v", resp.SessionChange)
	}

	if len(publisher.events) != 1 || publisher.events[0].Type != realtime.EventSessionSwitched {
		t.Fatalf("expected a session_switched event, got %+v", publisher.events)
	}
}

func TestSwitchWithoutMatchSeedsCreation(t *testing.T) {
	st := store.NewMemoryStore()
	states := creation.NewMemoryStateStore()
	handler := NewSwitchHandler(st, states)

	result, err := handler.Handle(context.Background(), &Turn{
		UserID:  "alice",
		Content: "I need to sort things out with Jordan",
		Detection: modelintent.DetectionResult{
			Intent: modelintent.SwitchSession,
			Person: &modelintent.Person{FirstName: "Jordan"},
		},
	})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if result.ActionType != "switch_no_match" {
		t.Fatalf("expected switch_no_match, got %q", result.ActionType)
	}
	if !strings.Contains(result.Message, "Jordan") {
		t.Fatalf("expected the name in the prompt, got %q", result.Message)
	}

	state, ok := states.Get("alice")
	if !ok {
		t.Fatalf("expected a seeded creation flow")
	}
	if state.Person.FirstName != "Jordan" {
		t.Fatalf("expected the name carried into the flow, got %q", state.Person.FirstName)
	}
	if len(state.History) != 2 {
		t.Fatalf("expected user turn and assistant question in history, got %d", len(state.History))
	}
}

func TestContinueRoutesToActiveSession(t *testing.T) {
	svc, st, _, _ := newTestService(t)
	seedSessionGraph(t, st, "alice", "s-sam", "Sam", conversation.StatusActive)

	resp, err := svc.ProcessMessage(context.Background(), ProcessRequest{
		UserID: "alice", UserName: "Alice",
		Content:          "I still feel unheard about that night",
		CurrentSessionID: "s-sam",
	})
	if err != nil {
		t.Fatalf("process message: %v", err)
	}
	if resp.ActionType != "conversation_turn" {
		t.Fatalf("expected a conversation turn, got %q", resp.ActionType)
	}
	if resp.PassThrough == nil {
		t.Fatalf("expected the turn result passed through")
	}
	if resp.PassThrough.Stage != conversation.StageWitness {
		t.Fatalf("expected witness stage for a fresh participant, got %d", resp.PassThrough.Stage)
	}
}

func TestDispatchShortCircuitsOnFirstAcceptor(t *testing.T) {
	st := store.NewMemoryStore()
	states := creation.NewMemoryStateStore()
	registry := NewRegistry()
	classifier := intentsvc.NewClassifier(nil, registry)
	svc := NewService(registry, classifier, st, states, nil, nil)

	var handled []string
	registry.Register(&fakeHandler{id: "high", priority: 100, intents: []modelintent.Intent{modelintent.Unknown}, accepts: true, handled: &handled})
	registry.Register(&fakeHandler{id: "low", priority: 50, intents: []modelintent.Intent{modelintent.Unknown}, accepts: true, handled: &handled})

	if _, err := svc.ProcessMessage(context.Background(), ProcessRequest{UserID: "alice", Content: "hmm"}); err != nil {
		t.Fatalf("process message: %v", err)
	}
	if len(handled) != 1 || handled[0] != "high" {
		t.Fatalf("expected only the highest-priority acceptor to run, got %v", handled)
	}
}

func TestCancelPendingCreationIsIdempotent(t *testing.T) {
	svc, _, states, _ := newTestService(t)

	states.Set("alice", &creation.State{UserID: "alice"})
	svc.CancelPendingCreation("alice")
	if states.Has("alice") {
		t.Fatalf("expected pending state cleared")
	}

	svc.CancelPendingCreation("alice")
	if states.Has("alice") {
		t.Fatalf("expected repeat cancellation to remain a no-op")
	}
}

func TestGetChatContext(t *testing.T) {
	svc, st, states, _ := newTestService(t)
	ctx := context.Background()

	empty, err := svc.GetChatContext(ctx, "alice")
	if err != nil {
		t.Fatalf("chat context: %v", err)
	}
	if empty.WelcomeMessage == "" {
		t.Fatalf("expected a welcome for a brand-new user")
	}

	states.Set("alice", &creation.State{UserID: "alice"})
	pending, err := svc.GetChatContext(ctx, "alice")
	if err != nil {
		t.Fatalf("chat context: %v", err)
	}
	if !pending.HasPendingCreation || pending.PendingCreationStep != string(creation.StepGatheringPerson) {
		t.Fatalf("expected pending creation surfaced, got %+v", pending)
	}
	if pending.WelcomeMessage != "" {
		t.Fatalf("expected no welcome while a flow is pending")
	}
	states.Delete("alice")

	seedSessionGraph(t, st, "alice", "s-sam", "Sam", conversation.StatusActive)
	withSession, err := svc.GetChatContext(ctx, "alice")
	if err != nil {
		t.Fatalf("chat context: %v", err)
	}
	if len(withSession.ActiveSessions) != 1 || withSession.ActiveSessions[0].CounterpartName != "Sam" {
		t.Fatalf("expected Sam's session listed, got %+v", withSession.ActiveSessions)
	}
}
