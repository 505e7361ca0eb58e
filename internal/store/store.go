// Package store persists conversation domain records. Two implementations
// are provided: an in-memory store for tests and early iterations, and a
// SQLite-backed store for real deployments.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/halcyonlabs/accord/backend/internal/model/conversation"
)

var (
	// ErrNotFound is returned when a referenced record does not exist.
	ErrNotFound = errors.New("record not found")
)

// SessionGraph bundles the records created together when a new session is
// provisioned. Creation is all-or-nothing: either every record lands or
// none do.
type SessionGraph struct {
	Relationship conversation.Relationship
	Session      conversation.Session
	Progress     []conversation.StageProgress
	Invitation   conversation.Invitation
	Topic        string
}

// SessionSummary is a session joined with its relationship for listing.
type SessionSummary struct {
	Session      conversation.Session
	Relationship conversation.Relationship
	Topic        string
	LastActivity time.Time
}

// Store is the persistence surface consumed by the router and the turn
// processor.
type Store interface {
	// CreateSessionGraph atomically persists a relationship, session,
	// initial stage progress, and invitation.
	CreateSessionGraph(ctx context.Context, graph SessionGraph) error

	GetSession(ctx context.Context, sessionID string) (conversation.Session, error)
	UpdateSessionStatus(ctx context.Context, sessionID string, status conversation.Status) error
	// ListSessionsForUser returns the user's sessions whose status is not in
	// the exclusion list, most recently active first.
	ListSessionsForUser(ctx context.Context, userID string, exclude []conversation.Status) ([]SessionSummary, error)
	GetRelationship(ctx context.Context, relationshipID string) (conversation.Relationship, error)

	// StageProgressFor returns all progress records for the participant in
	// the session, ordered by ascending stage.
	StageProgressFor(ctx context.Context, sessionID, userID string) ([]conversation.StageProgress, error)
	SaveStageProgress(ctx context.Context, progress conversation.StageProgress) error
	// AdvanceStage atomically marks the completed record and inserts its
	// successor.
	AdvanceStage(ctx context.Context, completed, next conversation.StageProgress) error

	// SaveMessage persists a message, assigning an id when absent and a
	// timestamp when zero. The assigned fields are written back.
	SaveMessage(ctx context.Context, message *conversation.Message) error
	// VisibleMessages returns the most recent messages the participant may
	// read, capped at limit, ordered oldest first.
	VisibleMessages(ctx context.Context, sessionID, userID string, limit int) ([]conversation.Message, error)

	LatestInvitation(ctx context.Context, sessionID string) (conversation.Invitation, error)
	ConfirmInvitation(ctx context.Context, invitationID string) error

	GetEmpathyDraft(ctx context.Context, sessionID, userID string) (conversation.EmpathyDraft, error)
	// UpsertEmpathyDraft writes the draft content; an existing record's
	// ReadyToShare flag is preserved unless the incoming draft sets it.
	UpsertEmpathyDraft(ctx context.Context, draft conversation.EmpathyDraft) error

	// SavePendingMessage buckets a message sent before any session existed.
	SavePendingMessage(ctx context.Context, userID string, message conversation.Message) error
	// DrainPendingMessages removes and returns the user's pre-session bucket.
	DrainPendingMessages(ctx context.Context, userID string) ([]conversation.Message, error)

	// SaveSessionTerms stores the lexical term vector backing semantic
	// lookup for a session.
	SaveSessionTerms(ctx context.Context, sessionID, userID string, terms map[string]float64) error
	// SessionTermsForUser returns every stored term vector for the user's
	// sessions.
	SessionTermsForUser(ctx context.Context, userID string) (map[string]map[string]float64, error)
}
