package router

import (
	"context"
	"fmt"
	"strings"

	modelintent "github.com/halcyonlabs/accord/backend/internal/model/intent"
	"github.com/halcyonlabs/accord/backend/internal/service/creation"
	"github.com/halcyonlabs/accord/backend/internal/store"
)

// SwitchHandler redirects the user to another of their sessions when the
// classifier extracted an explicit target or a person's name. It out-ranks
// plain continuation so a reference to another person interrupts the
// current session.
type SwitchHandler struct {
	store  store.Store
	states creation.StateStore
}

// NewSwitchHandler wires the switch handler. The creation state store is
// used to seed a creation flow when no matching session exists.
func NewSwitchHandler(st store.Store, states creation.StateStore) *SwitchHandler {
	return &SwitchHandler{store: st, states: states}
}

func (h *SwitchHandler) ID() string    { return "session-switch" }
func (h *SwitchHandler) Priority() int { return 90 }

func (h *SwitchHandler) Intents() []modelintent.Intent {
	return []modelintent.Intent{
		modelintent.SwitchSession,
		modelintent.CreateSession,
		modelintent.ContinueConversation,
		modelintent.Unknown,
	}
}

// Accepts claims the turn when a target session id or a first name was
// extracted.
func (h *SwitchHandler) Accepts(_ context.Context, t *Turn) bool {
	if t.Detection.SessionID != "" {
		return true
	}
	return t.Detection.Person != nil && t.Detection.Person.FirstName != ""
}

func (h *SwitchHandler) Cleanup(string) {}

// Handle resolves the switch target among the user's sessions, seeding a
// creation flow when nothing matches.
func (h *SwitchHandler) Handle(_ context.Context, t *Turn) (HandlerResult, error) {
	if target, ok := h.resolveTarget(t); ok {
		name := target.Relationship.DisplayName()
		return HandlerResult{
			ActionType: "session_switched",
			Message:    fmt.Sprintf("Picking your conversation with %s back up. Where would you like to continue?", name),
			SessionChange: &SessionChange{
				Type:            SessionChangeSwitched,
				SessionID:       target.Session.ID,
				CounterpartName: name,
			},
		}, nil
	}

	// No match: hand the name over to a fresh creation flow so the next
	// turn lands in the creation handler.
	state := &creation.State{UserID: t.UserID}
	state.MergePerson(t.Detection.Person)
	state.AppendTurn("user", t.Content)

	name := "them"
	if t.Detection.Person != nil && t.Detection.Person.FirstName != "" {
		name = t.Detection.Person.FirstName
	}
	question := fmt.Sprintf("You don't have a conversation with %s yet. Would you like to start one?", name)
	state.AppendTurn("assistant", question)
	h.states.Set(t.UserID, state)

	return HandlerResult{
		ActionType: "switch_no_match",
		Message:    question,
	}, nil
}

func (h *SwitchHandler) resolveTarget(t *Turn) (store.SessionSummary, bool) {
	if t.Detection.SessionID != "" {
		for _, sum := range t.Sessions {
			if sum.Session.ID == t.Detection.SessionID {
				return sum, true
			}
		}
	}

	if t.Detection.Person == nil || t.Detection.Person.FirstName == "" {
		return store.SessionSummary{}, false
	}

	name := strings.ToLower(t.Detection.Person.FirstName)
	for _, sum := range t.Sessions {
		if strings.Contains(strings.ToLower(sum.Relationship.DisplayName()), name) {
			return sum, true
		}
	}
	return store.SessionSummary{}, false
}
