package router

import (
	"context"

	modelintent "github.com/halcyonlabs/accord/backend/internal/model/intent"
	"github.com/halcyonlabs/accord/backend/internal/service/turn"
)

// ContinueHandler feeds the turn into the active session's turn processor.
// Lowest built-in priority: anything more specific interrupts continuation.
type ContinueHandler struct {
	processor *turn.Processor
}

// NewContinueHandler wires the continuation handler.
func NewContinueHandler(processor *turn.Processor) *ContinueHandler {
	return &ContinueHandler{processor: processor}
}

func (h *ContinueHandler) ID() string    { return "conversation-continue" }
func (h *ContinueHandler) Priority() int { return 50 }

func (h *ContinueHandler) Intents() []modelintent.Intent {
	return []modelintent.Intent{
		modelintent.ContinueConversation,
		modelintent.CheckStatus,
		modelintent.Unknown,
	}
}

// Accepts claims the turn only when a session is currently active.
func (h *ContinueHandler) Accepts(_ context.Context, t *Turn) bool {
	return t.CurrentSessionID != ""
}

func (h *ContinueHandler) Cleanup(string) {}

// Handle advances the active session by one exchange.
func (h *ContinueHandler) Handle(ctx context.Context, t *Turn) (HandlerResult, error) {
	result, err := h.processor.ProcessTurn(ctx, t.CurrentSessionID, t.UserID, t.UserName, t.Content)
	if err != nil {
		return HandlerResult{}, err
	}

	var actions []Action
	if result.Signals.OfferConfirmHeard {
		actions = append(actions, Action{
			Type:  "confirm_heard",
			Label: "I feel heard",
		})
	}
	if result.Signals.OfferShareEmpathy {
		actions = append(actions, Action{
			Type:  "share_empathy",
			Label: "Share my empathy statement",
			Data:  map[string]any{"proposed": result.Signals.ProposedEmpathy},
		})
	}

	return HandlerResult{
		ActionType:  "conversation_turn",
		Message:     result.AIResponse.Content,
		Actions:     actions,
		PassThrough: &result,
	}, nil
}
