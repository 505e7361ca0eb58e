// Package turn advances one participant's guided conversation by a single
// exchange: it resolves the participant's stage, persists the user message,
// elicits and persists the assistant reply, and kicks off best-effort
// background work.
package turn

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/halcyonlabs/accord/backend/internal/model/conversation"
	"github.com/halcyonlabs/accord/backend/internal/service/guide"
	"github.com/halcyonlabs/accord/backend/internal/store"
)

// ErrSessionNotFound is returned when the referenced session does not exist.
var ErrSessionNotFound = errors.New("session not found")

// historyWindow bounds how many visible messages feed a turn.
const historyWindow = 30

// Embedder is the best-effort embedding collaborator.
type Embedder interface {
	EmbedMessages(ctx context.Context, sessionID, userID string, messages []conversation.Message) error
}

// Summarizer is the best-effort summarization collaborator.
type Summarizer interface {
	SummarizeSession(ctx context.Context, sessionID, userID string) error
}

// Result is the outcome of one processed turn.
type Result struct {
	UserMessage     conversation.Message `json:"userMessage"`
	AIResponse      conversation.Message `json:"aiResponse"`
	Stage           conversation.Stage   `json:"stage"`
	StageAdvanced   bool                 `json:"stageAdvanced"`
	StageTransition bool                 `json:"stageTransition"`
	PreviousStage   conversation.Stage   `json:"previousStage"`
	Signals         guide.Signals        `json:"signals"`
}

// Processor orchestrates session turns.
type Processor struct {
	store      store.Store
	guide      guide.Responder
	embedder   Embedder
	summarizer Summarizer
}

// NewProcessor wires a turn processor. embedder and summarizer may be nil.
func NewProcessor(st store.Store, g guide.Responder, embedder Embedder, summarizer Summarizer) *Processor {
	return &Processor{store: st, guide: g, embedder: embedder, summarizer: summarizer}
}

// ProcessTurn runs one full exchange for the acting participant.
func (p *Processor) ProcessTurn(ctx context.Context, sessionID, userID, userName, content string) (Result, error) {
	session, err := p.store.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Result{}, ErrSessionNotFound
		}
		return Result{}, fmt.Errorf("load session: %w", err)
	}

	stage, advanced, err := p.resolveStage(ctx, sessionID, userID)
	if err != nil {
		return Result{}, fmt.Errorf("resolve stage: %w", err)
	}

	userMsg := conversation.Message{
		SessionID: sessionID,
		SenderID:  userID,
		Role:      conversation.RoleUser,
		Content:   content,
		Stage:     stage,
	}
	if err := p.store.SaveMessage(ctx, &userMsg); err != nil {
		return Result{}, fmt.Errorf("save user message: %w", err)
	}

	history, err := p.store.VisibleMessages(ctx, sessionID, userID, historyWindow)
	if err != nil {
		return Result{}, fmt.Errorf("load history: %w", err)
	}

	// Everything before the message just written.
	prior := make([]conversation.Message, 0, len(history))
	for _, m := range history {
		if m.ID != userMsg.ID {
			prior = append(prior, m)
		}
	}

	turnCount := 1
	for _, m := range prior {
		if m.Role == conversation.RoleUser {
			turnCount++
		}
	}

	transition, previousStage := detectStageTransition(prior, userID, stage)

	tctx := guide.TurnContext{
		SessionID:         sessionID,
		UserID:            userID,
		UserName:          userName,
		CounterpartName:   p.counterpartName(ctx, session),
		Stage:             stage,
		TurnCount:         turnCount,
		SessionAgeMinutes: int(time.Since(session.CreatedAt).Minutes()),
		FirstTurn:         len(prior) == 0,
		InvitationPhase:   p.invitationPhase(ctx, session),
		StageTransition:   transition,
		PreviousStage:     previousStage,
	}

	reply, err := p.guide.Respond(ctx, tctx, history, content)
	if err != nil {
		return Result{}, fmt.Errorf("generate reply: %w", err)
	}

	aiMsg := conversation.Message{
		SessionID: sessionID,
		Role:      conversation.RoleAI,
		Content:   reply.Content,
		Stage:     stage,
		ForUserID: userID,
	}
	if err := p.store.SaveMessage(ctx, &aiMsg); err != nil {
		return Result{}, fmt.Errorf("save assistant message: %w", err)
	}

	if reply.Signals.OfferShareEmpathy && stage == conversation.StagePerspectiveStretch {
		draft := conversation.EmpathyDraft{
			SessionID: sessionID,
			UserID:    userID,
			Content:   reply.Signals.ProposedEmpathy,
		}
		if err := p.store.UpsertEmpathyDraft(ctx, draft); err != nil {
			log.Printf("[turn] upsert empathy draft failed for session=%s: %v", sessionID, err)
		}
	}

	p.kickOffBackground(sessionID, userID, []conversation.Message{userMsg, aiMsg})

	return Result{
		UserMessage:     userMsg,
		AIResponse:      aiMsg,
		Stage:           stage,
		StageAdvanced:   advanced,
		StageTransition: transition,
		PreviousStage:   previousStage,
		Signals:         reply.Signals,
	}, nil
}

// resolveStage finds the participant's current stage, auto-advancing a
// stage-0 record whose gate is satisfied. Re-derivation is idempotent:
// recomputing from persisted records is safe even if run twice.
func (p *Processor) resolveStage(ctx context.Context, sessionID, userID string) (conversation.Stage, bool, error) {
	records, err := p.store.StageProgressFor(ctx, sessionID, userID)
	if err != nil {
		return 0, false, err
	}

	// Brand-new participation: the conversation proceeds at stage 1 and the
	// onboarding gate can be satisfied retroactively.
	if len(records) == 0 {
		return conversation.StageWitness, false, nil
	}

	current := records[len(records)-1]
	if current.Stage != conversation.StageOnboarding {
		return current.Stage, false, nil
	}

	if !current.GateSatisfied(conversation.GateCompactSigned) {
		return conversation.StageOnboarding, false, nil
	}

	now := time.Now().UTC()
	completed := current
	completed.Status = conversation.ProgressCompleted
	completed.CompletedAt = &now

	next := conversation.StageProgress{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		UserID:    userID,
		Stage:     conversation.StageWitness,
		Status:    conversation.ProgressInProgress,
		CreatedAt: now,
	}

	if err := p.store.AdvanceStage(ctx, completed, next); err != nil {
		return 0, false, err
	}
	return conversation.StageWitness, true, nil
}

// detectStageTransition reports whether this is the participant's first turn
// since reaching the given stage, and the highest stage seen before it.
func detectStageTransition(prior []conversation.Message, userID string, stage conversation.Stage) (bool, conversation.Stage) {
	if len(prior) == 0 {
		return false, 0
	}

	var previous conversation.Stage
	for _, m := range prior {
		if m.SenderID == userID && m.Stage == stage {
			return false, 0
		}
		if m.Stage > previous {
			previous = m.Stage
		}
	}
	return true, previous
}

// invitationPhase is true only while the session was never sent and its
// latest invitation remains unconfirmed by the sender.
func (p *Processor) invitationPhase(ctx context.Context, session conversation.Session) bool {
	if session.Status != conversation.StatusCreated {
		return false
	}
	inv, err := p.store.LatestInvitation(ctx, session.ID)
	if err != nil {
		return true
	}
	return !inv.Confirmed
}

func (p *Processor) counterpartName(ctx context.Context, session conversation.Session) string {
	rel, err := p.store.GetRelationship(ctx, session.RelationshipID)
	if err != nil {
		return conversation.Relationship{}.DisplayName()
	}
	return rel.DisplayName()
}

// kickOffBackground fires the embedding and summarization tasks without
// waiting. Their failures are logged and never surfaced to the turn.
func (p *Processor) kickOffBackground(sessionID, userID string, messages []conversation.Message) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if p.embedder != nil {
			if err := p.embedder.EmbedMessages(ctx, sessionID, userID, messages); err != nil {
				log.Printf("[turn] background embedding failed for session=%s: %v", sessionID, err)
			}
		}
		if p.summarizer != nil {
			if err := p.summarizer.SummarizeSession(ctx, sessionID, userID); err != nil {
				log.Printf("[turn] background summarization failed for session=%s: %v", sessionID, err)
			}
		}
	}()
}
