package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/halcyonlabs/accord/backend/internal/model/conversation"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens (creating if needed) a SQLite-backed store at dbPath.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return store, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS relationships (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		counterpart_id TEXT,
		nickname TEXT,
		first_name TEXT,
		last_name TEXT,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_relationships_user ON relationships(user_id);

	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		relationship_id TEXT NOT NULL,
		topic TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_relationship ON sessions(relationship_id);

	CREATE TABLE IF NOT EXISTS stage_progress (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		stage INTEGER NOT NULL,
		status TEXT NOT NULL,
		gates_json TEXT,
		created_at INTEGER NOT NULL,
		completed_at INTEGER,
		UNIQUE(session_id, user_id, stage)
	);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		sender_id TEXT,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		stage INTEGER NOT NULL,
		for_user_id TEXT,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, created_at);

	CREATE TABLE IF NOT EXISTS invitations (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		invitee_name TEXT NOT NULL,
		contact TEXT,
		confirmed INTEGER DEFAULT 0,
		created_at INTEGER NOT NULL,
		expires_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_invitations_session ON invitations(session_id, created_at);

	CREATE TABLE IF NOT EXISTS empathy_drafts (
		session_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		content TEXT NOT NULL,
		ready_to_share INTEGER DEFAULT 0,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY(session_id, user_id)
	);

	CREATE TABLE IF NOT EXISTS pending_messages (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		content TEXT NOT NULL,
		role TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_pending_user ON pending_messages(user_id);

	CREATE TABLE IF NOT EXISTS session_terms (
		session_id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		terms_json TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_session_terms_user ON session_terms(user_id);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// CreateSessionGraph persists the new-session records in one transaction.
func (s *SQLiteStore) CreateSessionGraph(ctx context.Context, graph SessionGraph) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	rel := graph.Relationship
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO relationships (id, user_id, counterpart_id, nickname, first_name, last_name, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rel.ID, rel.UserID, nullable(rel.CounterpartID), nullable(rel.Nickname),
		nullable(rel.FirstName), nullable(rel.LastName), rel.CreatedAt.Unix(),
	); err != nil {
		return fmt.Errorf("insert relationship: %w", err)
	}

	session := graph.Session
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO sessions (id, status, relationship_id, topic, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		session.ID, string(session.Status), session.RelationshipID, nullable(graph.Topic),
		session.CreatedAt.Unix(), session.UpdatedAt.Unix(),
	); err != nil {
		return fmt.Errorf("insert session: %w", err)
	}

	for _, p := range graph.Progress {
		if err := insertProgress(ctx, tx, p); err != nil {
			return err
		}
	}

	inv := graph.Invitation
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO invitations (id, session_id, invitee_name, contact, confirmed, created_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		inv.ID, inv.SessionID, inv.InviteeName, nullable(inv.Contact),
		boolToInt(inv.Confirmed), inv.CreatedAt.Unix(), inv.ExpiresAt.Unix(),
	); err != nil {
		return fmt.Errorf("insert invitation: %w", err)
	}

	return tx.Commit()
}

// GetSession retrieves a session by identifier.
func (s *SQLiteStore) GetSession(ctx context.Context, sessionID string) (conversation.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, status, relationship_id, created_at, updated_at FROM sessions WHERE id = ?`, sessionID)

	var session conversation.Session
	var status string
	var createdAt, updatedAt int64
	err := row.Scan(&session.ID, &status, &session.RelationshipID, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return conversation.Session{}, ErrNotFound
	}
	if err != nil {
		return conversation.Session{}, fmt.Errorf("scan session row: %w", err)
	}

	session.Status = conversation.Status(status)
	session.CreatedAt = time.Unix(createdAt, 0).UTC()
	session.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return session, nil
}

// UpdateSessionStatus moves a session to a new lifecycle status.
func (s *SQLiteStore) UpdateSessionStatus(ctx context.Context, sessionID string, status conversation.Status) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC().Unix(), sessionID)
	if err != nil {
		return fmt.Errorf("update session status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListSessionsForUser returns the user's sessions outside the exclusion
// list, most recently active first.
func (s *SQLiteStore) ListSessionsForUser(ctx context.Context, userID string, exclude []conversation.Status) ([]SessionSummary, error) {
	query := `
		SELECT s.id, s.status, s.relationship_id, COALESCE(s.topic, ''), s.created_at, s.updated_at,
		       r.id, r.user_id, COALESCE(r.counterpart_id, ''), COALESCE(r.nickname, ''),
		       COALESCE(r.first_name, ''), COALESCE(r.last_name, ''), r.created_at,
		       COALESCE((SELECT MAX(created_at) / 1000000000 FROM messages m WHERE m.session_id = s.id), s.updated_at)
		FROM sessions s
		JOIN relationships r ON r.id = s.relationship_id
		WHERE (r.user_id = ? OR r.counterpart_id = ?)`
	args := []any{userID, userID}
	for _, st := range exclude {
		query += ` AND s.status != ?`
		args = append(args, string(st))
	}
	query += ` ORDER BY 14 DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionSummary
	for rows.Next() {
		var sum SessionSummary
		var status string
		var sCreated, sUpdated, rCreated, last int64
		if err := rows.Scan(
			&sum.Session.ID, &status, &sum.Session.RelationshipID, &sum.Topic, &sCreated, &sUpdated,
			&sum.Relationship.ID, &sum.Relationship.UserID, &sum.Relationship.CounterpartID,
			&sum.Relationship.Nickname, &sum.Relationship.FirstName, &sum.Relationship.LastName,
			&rCreated, &last,
		); err != nil {
			return nil, fmt.Errorf("scan session summary: %w", err)
		}
		sum.Session.Status = conversation.Status(status)
		sum.Session.CreatedAt = time.Unix(sCreated, 0).UTC()
		sum.Session.UpdatedAt = time.Unix(sUpdated, 0).UTC()
		sum.Relationship.CreatedAt = time.Unix(rCreated, 0).UTC()
		sum.LastActivity = time.Unix(last, 0).UTC()
		out = append(out, sum)
	}
	return out, rows.Err()
}

// GetRelationship retrieves a relationship by identifier.
func (s *SQLiteStore) GetRelationship(ctx context.Context, relationshipID string) (conversation.Relationship, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, COALESCE(counterpart_id, ''), COALESCE(nickname, ''),
		        COALESCE(first_name, ''), COALESCE(last_name, ''), created_at
		 FROM relationships WHERE id = ?`, relationshipID)

	var rel conversation.Relationship
	var createdAt int64
	err := row.Scan(&rel.ID, &rel.UserID, &rel.CounterpartID, &rel.Nickname, &rel.FirstName, &rel.LastName, &createdAt)
	if err == sql.ErrNoRows {
		return conversation.Relationship{}, ErrNotFound
	}
	if err != nil {
		return conversation.Relationship{}, fmt.Errorf("scan relationship row: %w", err)
	}
	rel.CreatedAt = time.Unix(createdAt, 0).UTC()
	return rel, nil
}

// StageProgressFor returns the participant's progress records ordered by
// ascending stage.
func (s *SQLiteStore) StageProgressFor(ctx context.Context, sessionID, userID string) ([]conversation.StageProgress, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, user_id, stage, status, COALESCE(gates_json, ''), created_at, completed_at
		 FROM stage_progress WHERE session_id = ? AND user_id = ? ORDER BY stage ASC`,
		sessionID, userID)
	if err != nil {
		return nil, fmt.Errorf("query stage progress: %w", err)
	}
	defer rows.Close()

	var out []conversation.StageProgress
	for rows.Next() {
		p, err := scanProgress(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// SaveStageProgress inserts or replaces a progress record.
func (s *SQLiteStore) SaveStageProgress(ctx context.Context, progress conversation.StageProgress) error {
	return execProgress(ctx, s.db, progress)
}

// AdvanceStage atomically completes one record and inserts its successor.
func (s *SQLiteStore) AdvanceStage(ctx context.Context, completed, next conversation.StageProgress) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := insertProgress(ctx, tx, completed); err != nil {
		return err
	}
	if err := insertProgress(ctx, tx, next); err != nil {
		return err
	}
	return tx.Commit()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func execProgress(ctx context.Context, db execer, p conversation.StageProgress) error {
	gates := ""
	if len(p.Gates) > 0 {
		raw, err := json.Marshal(p.Gates)
		if err != nil {
			return fmt.Errorf("marshal gates: %w", err)
		}
		gates = string(raw)
	}

	var completedAt any
	if p.CompletedAt != nil {
		completedAt = p.CompletedAt.Unix()
	}

	_, err := db.ExecContext(ctx,
		`INSERT INTO stage_progress (id, session_id, user_id, stage, status, gates_json, created_at, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(session_id, user_id, stage) DO UPDATE SET
			status = excluded.status,
			gates_json = excluded.gates_json,
			completed_at = excluded.completed_at
		 ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			gates_json = excluded.gates_json,
			completed_at = excluded.completed_at`,
		p.ID, p.SessionID, p.UserID, int(p.Stage), string(p.Status), nullable(gates),
		p.CreatedAt.Unix(), completedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert stage progress: %w", err)
	}
	return nil
}

func insertProgress(ctx context.Context, tx *sql.Tx, p conversation.StageProgress) error {
	return execProgress(ctx, tx, p)
}

func scanProgress(rows *sql.Rows) (conversation.StageProgress, error) {
	var p conversation.StageProgress
	var stage int
	var status, gates string
	var createdAt int64
	var completedAt sql.NullInt64

	if err := rows.Scan(&p.ID, &p.SessionID, &p.UserID, &stage, &status, &gates, &createdAt, &completedAt); err != nil {
		return conversation.StageProgress{}, fmt.Errorf("scan stage progress row: %w", err)
	}

	p.Stage = conversation.Stage(stage)
	p.Status = conversation.ProgressStatus(status)
	p.CreatedAt = time.Unix(createdAt, 0).UTC()
	if completedAt.Valid {
		t := time.Unix(completedAt.Int64, 0).UTC()
		p.CompletedAt = &t
	}
	if gates != "" {
		if err := json.Unmarshal([]byte(gates), &p.Gates); err != nil {
			return conversation.StageProgress{}, fmt.Errorf("unmarshal gates: %w", err)
		}
	}
	return p, nil
}

// SaveMessage persists a message, assigning id and timestamp when absent.
func (s *SQLiteStore) SaveMessage(ctx context.Context, message *conversation.Message) error {
	if message.SessionID == "" {
		return ErrNotFound
	}
	if _, err := s.GetSession(ctx, message.SessionID); err != nil {
		return err
	}

	if message.ID == "" {
		message.ID = uuid.NewString()
	}
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (id, session_id, sender_id, role, content, stage, for_user_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		message.ID, message.SessionID, nullable(message.SenderID), string(message.Role),
		message.Content, int(message.Stage), nullable(message.ForUserID), message.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// VisibleMessages returns the most recent messages the participant may read,
// ordered oldest first.
func (s *SQLiteStore) VisibleMessages(ctx context.Context, sessionID, userID string, limit int) ([]conversation.Message, error) {
	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}

	query := `
		SELECT id, session_id, COALESCE(sender_id, ''), role, content, stage, COALESCE(for_user_id, ''), created_at
		FROM messages
		WHERE session_id = ?
		  AND (for_user_id IS NULL OR for_user_id = ?)
		  AND (role != 'USER' OR sender_id IS NULL OR sender_id = ?)
		ORDER BY created_at DESC`
	args := []any{sessionID, userID, userID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var reversed []conversation.Message
	for rows.Next() {
		var m conversation.Message
		var role string
		var stage int
		var createdAt int64
		if err := rows.Scan(&m.ID, &m.SessionID, &m.SenderID, &role, &m.Content, &stage, &m.ForUserID, &createdAt); err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		m.Role = conversation.Role(role)
		m.Stage = conversation.Stage(stage)
		m.CreatedAt = time.Unix(0, createdAt).UTC()
		reversed = append(reversed, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]conversation.Message, len(reversed))
	for i, m := range reversed {
		out[len(reversed)-1-i] = m
	}
	return out, nil
}

// LatestInvitation returns the newest invitation for the session.
func (s *SQLiteStore) LatestInvitation(ctx context.Context, sessionID string) (conversation.Invitation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, session_id, invitee_name, COALESCE(contact, ''), confirmed, created_at, expires_at
		 FROM invitations WHERE session_id = ? ORDER BY created_at DESC LIMIT 1`, sessionID)

	var inv conversation.Invitation
	var confirmed int
	var createdAt, expiresAt int64
	err := row.Scan(&inv.ID, &inv.SessionID, &inv.InviteeName, &inv.Contact, &confirmed, &createdAt, &expiresAt)
	if err == sql.ErrNoRows {
		return conversation.Invitation{}, ErrNotFound
	}
	if err != nil {
		return conversation.Invitation{}, fmt.Errorf("scan invitation row: %w", err)
	}
	inv.Confirmed = confirmed != 0
	inv.CreatedAt = time.Unix(createdAt, 0).UTC()
	inv.ExpiresAt = time.Unix(expiresAt, 0).UTC()
	return inv, nil
}

// ConfirmInvitation marks the invitation as confirmed by the sender.
func (s *SQLiteStore) ConfirmInvitation(ctx context.Context, invitationID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE invitations SET confirmed = 1 WHERE id = ?`, invitationID)
	if err != nil {
		return fmt.Errorf("confirm invitation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetEmpathyDraft retrieves the participant's draft for a session.
func (s *SQLiteStore) GetEmpathyDraft(ctx context.Context, sessionID, userID string) (conversation.EmpathyDraft, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT session_id, user_id, content, ready_to_share, updated_at
		 FROM empathy_drafts WHERE session_id = ? AND user_id = ?`, sessionID, userID)

	var draft conversation.EmpathyDraft
	var ready int
	var updatedAt int64
	err := row.Scan(&draft.SessionID, &draft.UserID, &draft.Content, &ready, &updatedAt)
	if err == sql.ErrNoRows {
		return conversation.EmpathyDraft{}, ErrNotFound
	}
	if err != nil {
		return conversation.EmpathyDraft{}, fmt.Errorf("scan empathy draft row: %w", err)
	}
	draft.ReadyToShare = ready != 0
	draft.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return draft, nil
}

// UpsertEmpathyDraft writes the draft, never resetting an existing
// ReadyToShare flag.
func (s *SQLiteStore) UpsertEmpathyDraft(ctx context.Context, draft conversation.EmpathyDraft) error {
	if draft.UpdatedAt.IsZero() {
		draft.UpdatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO empathy_drafts (session_id, user_id, content, ready_to_share, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(session_id, user_id) DO UPDATE SET
			content = excluded.content,
			ready_to_share = MAX(empathy_drafts.ready_to_share, excluded.ready_to_share),
			updated_at = excluded.updated_at`,
		draft.SessionID, draft.UserID, draft.Content, boolToInt(draft.ReadyToShare), draft.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("upsert empathy draft: %w", err)
	}
	return nil
}

// SavePendingMessage buckets a message sent before any session existed.
func (s *SQLiteStore) SavePendingMessage(ctx context.Context, userID string, message conversation.Message) error {
	if message.ID == "" {
		message.ID = uuid.NewString()
	}
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO pending_messages (id, user_id, content, role, created_at) VALUES (?, ?, ?, ?, ?)`,
		message.ID, userID, message.Content, string(message.Role), message.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert pending message: %w", err)
	}
	return nil
}

// DrainPendingMessages removes and returns the user's pre-session bucket.
func (s *SQLiteStore) DrainPendingMessages(ctx context.Context, userID string) ([]conversation.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, content, role, created_at FROM pending_messages WHERE user_id = ? ORDER BY created_at ASC`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("query pending messages: %w", err)
	}
	defer rows.Close()

	var out []conversation.Message
	for rows.Next() {
		var m conversation.Message
		var role string
		var createdAt int64
		if err := rows.Scan(&m.ID, &m.Content, &role, &createdAt); err != nil {
			return nil, fmt.Errorf("scan pending message row: %w", err)
		}
		m.SenderID = userID
		m.Role = conversation.Role(role)
		m.CreatedAt = time.Unix(0, createdAt).UTC()
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM pending_messages WHERE user_id = ?`, userID); err != nil {
		return nil, fmt.Errorf("drain pending messages: %w", err)
	}
	return out, nil
}

// SaveSessionTerms stores the lexical term vector for a session.
func (s *SQLiteStore) SaveSessionTerms(ctx context.Context, sessionID, userID string, terms map[string]float64) error {
	raw, err := json.Marshal(terms)
	if err != nil {
		return fmt.Errorf("marshal terms: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO session_terms (session_id, user_id, terms_json) VALUES (?, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET user_id = excluded.user_id, terms_json = excluded.terms_json`,
		sessionID, userID, string(raw),
	)
	if err != nil {
		return fmt.Errorf("upsert session terms: %w", err)
	}
	return nil
}

// SessionTermsForUser returns the stored term vectors for the user's
// sessions.
func (s *SQLiteStore) SessionTermsForUser(ctx context.Context, userID string) (map[string]map[string]float64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, terms_json FROM session_terms WHERE user_id = ?`, userID)
	if err != nil {
		return nil, fmt.Errorf("query session terms: %w", err)
	}
	defer rows.Close()

	out := make(map[string]map[string]float64)
	for rows.Next() {
		var sessionID, raw string
		if err := rows.Scan(&sessionID, &raw); err != nil {
			return nil, fmt.Errorf("scan session terms row: %w", err)
		}
		terms := make(map[string]float64)
		if err := json.Unmarshal([]byte(raw), &terms); err != nil {
			return nil, fmt.Errorf("unmarshal terms: %w", err)
		}
		out[sessionID] = terms
	}
	return out, rows.Err()
}

func nullable(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
