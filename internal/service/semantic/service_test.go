package semantic

import (
	"context"
	"testing"
	"time"

	"github.com/halcyonlabs/accord/backend/internal/model/conversation"
	"github.com/halcyonlabs/accord/backend/internal/store"
)

func TestTokenizeDropsNoise(t *testing.T) {
	terms := Tokenize("The rent, the rent! We argued about splitting the RENT again.")

	if terms["rent"] != 3 {
		t.Fatalf("expected rent counted three times, got %v", terms["rent"])
	}
	if _, ok := terms["the"]; ok {
		t.Fatalf("expected stopword dropped")
	}
	if _, ok := terms["we"]; ok {
		t.Fatalf("expected short token dropped")
	}
}

func seedSession(t *testing.T, st store.Store, userID, sessionID, name string) {
	t.Helper()
	now := time.Now().UTC()
	err := st.CreateSessionGraph(context.Background(), store.SessionGraph{
		Relationship: conversation.Relationship{ID: "rel-" + sessionID, UserID: userID, Nickname: name, CreatedAt: now},
		Session: conversation.Session{
			ID: sessionID, Status: conversation.StatusActive,
			RelationshipID: "rel-" + sessionID, CreatedAt: now, UpdatedAt: now,
		},
		Invitation: conversation.Invitation{ID: "inv-" + sessionID, SessionID: sessionID, CreatedAt: now, ExpiresAt: now.Add(time.Hour)},
	})
	if err != nil {
		t.Fatalf("seed session: %v", err)
	}
}

func TestFindSimilarRanksByOverlap(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()
	index := NewIndex(st)

	seedSession(t, st, "alice", "s-rent", "Sam")
	seedSession(t, st, "alice", "s-dog", "Jordan")

	if err := index.EmbedSession(ctx, "s-rent", "alice", "argument about splitting rent money apartment"); err != nil {
		t.Fatalf("embed rent session: %v", err)
	}
	if err := index.EmbedSession(ctx, "s-dog", "alice", "walking feeding vet visits dog"); err != nil {
		t.Fatalf("embed dog session: %v", err)
	}

	matches, err := index.FindSimilar(ctx, "alice", "rent money came up again")
	if err != nil {
		t.Fatalf("find similar: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("expected at least one match")
	}
	if matches[0].SessionID != "s-rent" {
		t.Fatalf("expected rent session ranked first, got %s", matches[0].SessionID)
	}
	if matches[0].CounterpartName != "Sam" {
		t.Fatalf("expected counterpart name resolved, got %q", matches[0].CounterpartName)
	}
	for i := 1; i < len(matches); i++ {
		if matches[i].Similarity > matches[i-1].Similarity {
			t.Fatalf("expected descending similarity order")
		}
	}
}

func TestFindSimilarEmptyIndex(t *testing.T) {
	index := NewIndex(store.NewMemoryStore())

	matches, err := index.FindSimilar(context.Background(), "alice", "anything at all")
	if err != nil {
		t.Fatalf("find similar: %v", err)
	}
	if len(matches) != 0 {
		t.Fatalf("expected no matches without vectors, got %d", len(matches))
	}
}

func TestEmbedSessionAccumulates(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()
	index := NewIndex(st)
	seedSession(t, st, "alice", "s1", "Sam")

	if err := index.EmbedSession(ctx, "s1", "alice", "rent rent"); err != nil {
		t.Fatalf("first embed: %v", err)
	}
	if err := index.EmbedSession(ctx, "s1", "alice", "rent kitchen"); err != nil {
		t.Fatalf("second embed: %v", err)
	}

	vectors, err := st.SessionTermsForUser(ctx, "alice")
	if err != nil {
		t.Fatalf("terms for user: %v", err)
	}
	if vectors["s1"]["rent"] != 3 {
		t.Fatalf("expected accumulated weight 3, got %v", vectors["s1"]["rent"])
	}
}
