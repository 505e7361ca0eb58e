package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/halcyonlabs/accord/backend/internal/model/conversation"
)

// MemoryStore implements Store with mutex-guarded maps, suitable for tests
// and single-process deployments.
type MemoryStore struct {
	mu            sync.RWMutex
	sessions      map[string]conversation.Session
	relationships map[string]conversation.Relationship
	progress      map[string][]conversation.StageProgress // keyed by session id
	messages      map[string][]conversation.Message       // keyed by session id
	invitations   map[string][]conversation.Invitation    // keyed by session id
	drafts        map[string]conversation.EmpathyDraft    // keyed by session id + user id
	pending       map[string][]conversation.Message       // keyed by user id
	topics        map[string]string                       // keyed by session id
	terms         map[string]map[string]float64           // keyed by session id
	termOwners    map[string]string                       // session id -> user id
}

// NewMemoryStore bootstraps an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions:      make(map[string]conversation.Session),
		relationships: make(map[string]conversation.Relationship),
		progress:      make(map[string][]conversation.StageProgress),
		messages:      make(map[string][]conversation.Message),
		invitations:   make(map[string][]conversation.Invitation),
		drafts:        make(map[string]conversation.EmpathyDraft),
		pending:       make(map[string][]conversation.Message),
		topics:        make(map[string]string),
		terms:         make(map[string]map[string]float64),
		termOwners:    make(map[string]string),
	}
}

func draftKey(sessionID, userID string) string {
	return sessionID + "/" + userID
}

// CreateSessionGraph atomically persists the records of a new session.
func (s *MemoryStore) CreateSessionGraph(_ context.Context, graph SessionGraph) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.relationships[graph.Relationship.ID] = graph.Relationship
	s.sessions[graph.Session.ID] = graph.Session
	for _, p := range graph.Progress {
		s.progress[p.SessionID] = append(s.progress[p.SessionID], p)
	}
	s.invitations[graph.Invitation.SessionID] = append(s.invitations[graph.Invitation.SessionID], graph.Invitation)
	if graph.Topic != "" {
		s.topics[graph.Session.ID] = graph.Topic
	}
	if _, ok := s.messages[graph.Session.ID]; !ok {
		s.messages[graph.Session.ID] = make([]conversation.Message, 0, 16)
	}
	return nil
}

// GetSession retrieves a session by identifier.
func (s *MemoryStore) GetSession(_ context.Context, sessionID string) (conversation.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return conversation.Session{}, ErrNotFound
	}
	return session, nil
}

// UpdateSessionStatus moves a session to a new lifecycle status.
func (s *MemoryStore) UpdateSessionStatus(_ context.Context, sessionID string, status conversation.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}
	session.Status = status
	session.UpdatedAt = time.Now().UTC()
	s.sessions[sessionID] = session
	return nil
}

// ListSessionsForUser returns the user's sessions not in the exclusion list,
// most recently active first.
func (s *MemoryStore) ListSessionsForUser(_ context.Context, userID string, exclude []conversation.Status) ([]SessionSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	excluded := make(map[conversation.Status]bool, len(exclude))
	for _, st := range exclude {
		excluded[st] = true
	}

	var out []SessionSummary
	for _, session := range s.sessions {
		if excluded[session.Status] {
			continue
		}
		rel, ok := s.relationships[session.RelationshipID]
		if !ok || (rel.UserID != userID && rel.CounterpartID != userID) {
			continue
		}
		last := session.UpdatedAt
		if msgs := s.messages[session.ID]; len(msgs) > 0 {
			if t := msgs[len(msgs)-1].CreatedAt; t.After(last) {
				last = t
			}
		}
		out = append(out, SessionSummary{
			Session:      session,
			Relationship: rel,
			Topic:        s.topics[session.ID],
			LastActivity: last,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].LastActivity.After(out[j].LastActivity)
	})
	return out, nil
}

// GetRelationship retrieves a relationship by identifier.
func (s *MemoryStore) GetRelationship(_ context.Context, relationshipID string) (conversation.Relationship, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rel, ok := s.relationships[relationshipID]
	if !ok {
		return conversation.Relationship{}, ErrNotFound
	}
	return rel, nil
}

// StageProgressFor returns the participant's progress records ordered by
// ascending stage.
func (s *MemoryStore) StageProgressFor(_ context.Context, sessionID, userID string) ([]conversation.StageProgress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []conversation.StageProgress
	for _, p := range s.progress[sessionID] {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Stage < out[j].Stage })
	return out, nil
}

// SaveStageProgress inserts or replaces a progress record.
func (s *MemoryStore) SaveStageProgress(_ context.Context, progress conversation.StageProgress) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upsertProgressLocked(progress)
	return nil
}

// AdvanceStage atomically completes one record and inserts its successor.
func (s *MemoryStore) AdvanceStage(_ context.Context, completed, next conversation.StageProgress) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upsertProgressLocked(completed)
	s.upsertProgressLocked(next)
	return nil
}

func (s *MemoryStore) upsertProgressLocked(progress conversation.StageProgress) {
	records := s.progress[progress.SessionID]
	for i, p := range records {
		if p.ID == progress.ID || (p.UserID == progress.UserID && p.Stage == progress.Stage) {
			records[i] = progress
			return
		}
	}
	s.progress[progress.SessionID] = append(records, progress)
}

// SaveMessage appends a message, assigning id and timestamp when absent.
func (s *MemoryStore) SaveMessage(_ context.Context, message *conversation.Message) error {
	if message.SessionID == "" {
		return ErrNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[message.SessionID]; !ok {
		return ErrNotFound
	}

	if message.ID == "" {
		message.ID = uuid.NewString()
	}
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now().UTC()
	}

	s.messages[message.SessionID] = append(s.messages[message.SessionID], *message)
	return nil
}

// VisibleMessages returns the most recent messages the participant may read,
// ordered oldest first.
func (s *MemoryStore) VisibleMessages(_ context.Context, sessionID, userID string, limit int) ([]conversation.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.sessions[sessionID]; !ok {
		return nil, ErrNotFound
	}

	var visible []conversation.Message
	for _, m := range s.messages[sessionID] {
		if m.VisibleTo(userID) {
			visible = append(visible, m)
		}
	}
	// Merged pre-session messages can carry older timestamps than the
	// records appended before them.
	sort.SliceStable(visible, func(i, j int) bool {
		return visible[i].CreatedAt.Before(visible[j].CreatedAt)
	})
	if limit > 0 && len(visible) > limit {
		visible = visible[len(visible)-limit:]
	}

	out := make([]conversation.Message, len(visible))
	copy(out, visible)
	return out, nil
}

// LatestInvitation returns the newest invitation for the session.
func (s *MemoryStore) LatestInvitation(_ context.Context, sessionID string) (conversation.Invitation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	invites := s.invitations[sessionID]
	if len(invites) == 0 {
		return conversation.Invitation{}, ErrNotFound
	}
	return invites[len(invites)-1], nil
}

// ConfirmInvitation marks the invitation's message as confirmed by the
// sender.
func (s *MemoryStore) ConfirmInvitation(_ context.Context, invitationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for sessionID, invites := range s.invitations {
		for i, inv := range invites {
			if inv.ID == invitationID {
				inv.Confirmed = true
				s.invitations[sessionID][i] = inv
				return nil
			}
		}
	}
	return ErrNotFound
}

// GetEmpathyDraft retrieves the participant's draft for a session.
func (s *MemoryStore) GetEmpathyDraft(_ context.Context, sessionID, userID string) (conversation.EmpathyDraft, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	draft, ok := s.drafts[draftKey(sessionID, userID)]
	if !ok {
		return conversation.EmpathyDraft{}, ErrNotFound
	}
	return draft, nil
}

// UpsertEmpathyDraft writes the draft, never resetting an existing
// ReadyToShare flag.
func (s *MemoryStore) UpsertEmpathyDraft(_ context.Context, draft conversation.EmpathyDraft) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := draftKey(draft.SessionID, draft.UserID)
	if existing, ok := s.drafts[key]; ok && existing.ReadyToShare {
		draft.ReadyToShare = true
	}
	if draft.UpdatedAt.IsZero() {
		draft.UpdatedAt = time.Now().UTC()
	}
	s.drafts[key] = draft
	return nil
}

// SavePendingMessage buckets a message sent before any session existed.
func (s *MemoryStore) SavePendingMessage(_ context.Context, userID string, message conversation.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if message.ID == "" {
		message.ID = uuid.NewString()
	}
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now().UTC()
	}
	s.pending[userID] = append(s.pending[userID], message)
	return nil
}

// DrainPendingMessages removes and returns the user's pre-session bucket.
func (s *MemoryStore) DrainPendingMessages(_ context.Context, userID string) ([]conversation.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := s.pending[userID]
	delete(s.pending, userID)
	return msgs, nil
}

// SaveSessionTerms stores the lexical term vector for a session.
func (s *MemoryStore) SaveSessionTerms(_ context.Context, sessionID, userID string, terms map[string]float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := make(map[string]float64, len(terms))
	for k, v := range terms {
		copied[k] = v
	}
	s.terms[sessionID] = copied
	s.termOwners[sessionID] = userID
	return nil
}

// SessionTermsForUser returns the stored term vectors for the user's
// sessions.
func (s *MemoryStore) SessionTermsForUser(_ context.Context, userID string) (map[string]map[string]float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]map[string]float64)
	for sessionID, owner := range s.termOwners {
		if owner != userID {
			continue
		}
		copied := make(map[string]float64, len(s.terms[sessionID]))
		for k, v := range s.terms[sessionID] {
			copied[k] = v
		}
		out[sessionID] = copied
	}
	return out, nil
}
