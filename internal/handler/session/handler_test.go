package session

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/halcyonlabs/accord/backend/internal/analysis/projection"
	"github.com/halcyonlabs/accord/backend/internal/model/conversation"
	"github.com/halcyonlabs/accord/backend/internal/service/guide"
	"github.com/halcyonlabs/accord/backend/internal/service/turn"
	"github.com/halcyonlabs/accord/backend/internal/store"
)

func setupRouter() (*chi.Mux, *store.MemoryStore) {
	st := store.NewMemoryStore()
	r := chi.NewRouter()
	New(st).RegisterRoutes(r)
	return r, st
}

func seedSession(t *testing.T, st store.Store, sessionID, userID, name string, invExpiresAt time.Time) {
	t.Helper()
	now := time.Now().UTC()
	err := st.CreateSessionGraph(context.Background(), store.SessionGraph{
		Relationship: conversation.Relationship{
			ID: "rel-" + sessionID, UserID: userID, Nickname: name, CreatedAt: now,
		},
		Session: conversation.Session{
			ID: sessionID, Status: conversation.StatusCreated, RelationshipID: "rel-" + sessionID,
			CreatedAt: now, UpdatedAt: now,
		},
		Progress: []conversation.StageProgress{{
			ID: "prog-" + sessionID, SessionID: sessionID, UserID: userID,
			Stage: conversation.StageOnboarding, Status: conversation.ProgressNotStarted, CreatedAt: now,
		}},
		Invitation: conversation.Invitation{
			ID: "inv-" + sessionID, SessionID: sessionID, InviteeName: name,
			CreatedAt: now, ExpiresAt: invExpiresAt,
		},
	})
	if err != nil {
		t.Fatalf("seed session: %v", err)
	}
}

func postJSON(t *testing.T, r http.Handler, path string, body map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	payload, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func TestSignCompactEnablesStageAdvance(t *testing.T) {
	r, st := setupRouter()
	ctx := context.Background()
	seedSession(t, st, "s1", "alice", "Sam", time.Now().Add(time.Hour))

	resp := postJSON(t, r, "/sessions/s1/compact", map[string]string{"userId": "alice"})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}

	records, err := st.StageProgressFor(ctx, "s1", "alice")
	if err != nil || len(records) != 1 {
		t.Fatalf("expected one progress record, got %d (err=%v)", len(records), err)
	}
	if !records[0].GateSatisfied(conversation.GateCompactSigned) {
		t.Fatalf("expected the compact gate recorded, got %+v", records[0])
	}

	// The signed gate moves the next turn into the witness stage.
	processor := turn.NewProcessor(st, guide.NewService(nil), nil, nil)
	result, err := processor.ProcessTurn(ctx, "s1", "alice", "Alice", "here is what happened")
	if err != nil {
		t.Fatalf("process turn: %v", err)
	}
	if result.Stage != conversation.StageWitness || !result.StageAdvanced {
		t.Fatalf("expected advance to witness, got stage=%d advanced=%v", result.Stage, result.StageAdvanced)
	}

	// Re-signing after the advance stays a no-op.
	again := postJSON(t, r, "/sessions/s1/compact", map[string]string{"userId": "alice"})
	if again.Code != http.StatusOK {
		t.Fatalf("expected repeat signing to stay 200, got %d", again.Code)
	}
}

func TestSignCompactValidation(t *testing.T) {
	r, st := setupRouter()
	seedSession(t, st, "s1", "alice", "Sam", time.Now().Add(time.Hour))

	resp := postJSON(t, r, "/sessions/s1/compact", map[string]string{})
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without userId, got %d", resp.Code)
	}

	missing := postJSON(t, r, "/sessions/missing/compact", map[string]string{"userId": "alice"})
	if missing.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown session, got %d", missing.Code)
	}
}

func TestConfirmInvitationMovesSessionToInvited(t *testing.T) {
	r, st := setupRouter()
	ctx := context.Background()
	seedSession(t, st, "s1", "alice", "Sam", time.Now().Add(time.Hour))

	resp := postJSON(t, r, "/sessions/s1/invitation/confirm", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}

	inv, err := st.LatestInvitation(ctx, "s1")
	if err != nil {
		t.Fatalf("latest invitation: %v", err)
	}
	if !inv.Confirmed {
		t.Fatalf("expected invitation confirmed")
	}

	sess, err := st.GetSession(ctx, "s1")
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if sess.Status != conversation.StatusInvited {
		t.Fatalf("expected INVITED status, got %s", sess.Status)
	}

	// Confirming again never regresses a session that moved on.
	if err := st.UpdateSessionStatus(ctx, "s1", conversation.StatusActive); err != nil {
		t.Fatalf("update status: %v", err)
	}
	again := postJSON(t, r, "/sessions/s1/invitation/confirm", nil)
	if again.Code != http.StatusOK {
		t.Fatalf("expected repeat confirm to stay 200, got %d", again.Code)
	}
	sess, _ = st.GetSession(ctx, "s1")
	if sess.Status != conversation.StatusActive {
		t.Fatalf("expected status untouched, got %s", sess.Status)
	}
}

func TestConfirmInvitationRejectsExpired(t *testing.T) {
	r, st := setupRouter()
	ctx := context.Background()
	seedSession(t, st, "s1", "alice", "Sam", time.Now().Add(-time.Hour))

	resp := postJSON(t, r, "/sessions/s1/invitation/confirm", nil)
	if resp.Code != http.StatusGone {
		t.Fatalf("expected 410 for an expired invitation, got %d", resp.Code)
	}

	inv, err := st.LatestInvitation(ctx, "s1")
	if err != nil {
		t.Fatalf("latest invitation: %v", err)
	}
	if inv.Confirmed {
		t.Fatalf("expected expired invitation left unconfirmed")
	}

	sess, _ := st.GetSession(ctx, "s1")
	if sess.Status != conversation.StatusCreated {
		t.Fatalf("expected status unchanged, got %s", sess.Status)
	}
}

func TestSessionStatusProjection(t *testing.T) {
	r, st := setupRouter()
	seedSession(t, st, "s1", "alice", "Sam", time.Now().Add(time.Hour))

	req := httptest.NewRequest(http.MethodGet, "/sessions/s1/status?userId=alice", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var decoded struct {
		SessionID string          `json:"sessionId"`
		View      projection.View `json:"view"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &decoded); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if decoded.SessionID != "s1" {
		t.Fatalf("expected session s1, got %q", decoded.SessionID)
	}
	if decoded.View.MyStatus != "finishing your invitation" || !decoded.View.ActionNeeded {
		t.Fatalf("expected the created-session view, got %+v", decoded.View)
	}
}
