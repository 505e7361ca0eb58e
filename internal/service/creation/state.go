// Package creation holds the per-user multi-turn state gathered before a
// new session can be created. State lives in process memory only and is
// discarded on completion, cancellation, or unrecoverable failure.
package creation

import (
	"strings"
	"sync"
	"time"

	"github.com/halcyonlabs/accord/backend/internal/model/intent"
)

// Step names the information the flow is currently gathering. Transitions
// are driven by field completeness rather than an explicit transition table.
type Step string

const (
	StepGatheringPerson  Step = "GATHERING_PERSON"
	StepGatheringContact Step = "GATHERING_CONTACT"
	StepComplete         Step = "COMPLETE"
)

// HistoryEntry is one turn accumulated during the creation flow, replayed
// into the session transcript once creation succeeds.
type HistoryEntry struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// State is the information gathered so far for one user's pending creation.
type State struct {
	UserID          string         `json:"userId"`
	Person          intent.Person  `json:"person"`
	Topic           string         `json:"topic,omitempty"`
	History         []HistoryEntry `json:"conversationHistory"`
	AskedContact    bool           `json:"askedContact"`
	ConfirmedByUser bool           `json:"confirmedByUser"`
	UpdatedAt       time.Time      `json:"updatedAt"`
}

// MergePerson fills in newly extracted identity fields without overwriting
// fields already known.
func (s *State) MergePerson(p *intent.Person) {
	if p == nil {
		return
	}
	if s.Person.FirstName == "" {
		s.Person.FirstName = strings.TrimSpace(p.FirstName)
	}
	if s.Person.LastName == "" {
		s.Person.LastName = strings.TrimSpace(p.LastName)
	}
	if s.Person.ContactInfo == "" {
		s.Person.ContactInfo = strings.TrimSpace(p.ContactInfo)
	}
}

// MergeTopic records the conversation topic if one was newly extracted.
func (s *State) MergeTopic(topic string) {
	if s.Topic == "" {
		s.Topic = strings.TrimSpace(topic)
	}
}

// AppendTurn adds one turn to the accumulated transcript.
func (s *State) AppendTurn(role, content string) {
	s.History = append(s.History, HistoryEntry{
		Role:      role,
		Content:   content,
		Timestamp: time.Now().UTC(),
	})
	s.UpdatedAt = time.Now().UTC()
}

// Completable reports whether enough is known to create the session. A name
// alone suffices: contact information is desirable but a session may be
// created invitation-pending with contact gathered later.
func (s *State) Completable() bool {
	return s.Person.FirstName != ""
}

// Step derives the current gathering step from field completeness.
func (s *State) Step() Step {
	if s.Person.FirstName == "" {
		return StepGatheringPerson
	}
	if s.Person.ContactInfo == "" {
		return StepGatheringContact
	}
	return StepComplete
}

// StateStore is a keyed store for pending creation state, one entry per
// user. Backed by an in-process map today; the interface leaves room for a
// shared external cache without changing call sites.
type StateStore interface {
	Get(userID string) (*State, bool)
	Set(userID string, state *State)
	Delete(userID string)
	Has(userID string) bool
}

// MemoryStateStore implements StateStore with a mutex-guarded map. Entries
// have no expiry: state persists until completed or cancelled.
type MemoryStateStore struct {
	mu     sync.RWMutex
	states map[string]*State
}

// NewMemoryStateStore bootstraps an empty state store.
func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{states: make(map[string]*State)}
}

// Get returns the user's pending state, if any.
func (s *MemoryStateStore) Get(userID string) (*State, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.states[userID]
	return state, ok
}

// Set stores the user's pending state, replacing any stale entry.
func (s *MemoryStateStore) Set(userID string, state *State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[userID] = state
}

// Delete removes the user's pending state. Deleting absent state is a no-op.
func (s *MemoryStateStore) Delete(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, userID)
}

// Has reports whether the user has pending state.
func (s *MemoryStateStore) Has(userID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.states[userID]
	return ok
}
