package intent

import "testing"

func TestParseIntentClampsUnknownValues(t *testing.T) {
	if got := ParseIntent(" create_session "); got != CreateSession {
		t.Fatalf("expected CREATE_SESSION, got %s", got)
	}
	if got := ParseIntent("DELETE_EVERYTHING"); got != Unknown {
		t.Fatalf("expected unrecognized intent to clamp to UNKNOWN, got %s", got)
	}
	if got := ParseIntent(""); got != Unknown {
		t.Fatalf("expected empty intent to clamp to UNKNOWN, got %s", got)
	}
}

func TestParseConfidenceClampsToLow(t *testing.T) {
	if got := ParseConfidence("HIGH"); got != High {
		t.Fatalf("expected high, got %s", got)
	}
	if got := ParseConfidence("absolutely certain"); got != Low {
		t.Fatalf("expected unrecognized confidence to clamp to low, got %s", got)
	}
}

func TestParseToneClampsToNeutral(t *testing.T) {
	if got := ParseTone("Frustrated"); got != ToneFrustrated {
		t.Fatalf("expected frustrated, got %s", got)
	}
	if got := ParseTone("furious"); got != ToneNeutral {
		t.Fatalf("expected unrecognized tone to clamp to neutral, got %s", got)
	}
}

func TestBestSemanticMatch(t *testing.T) {
	ctx := Context{SemanticMatches: []SemanticMatch{
		{SessionID: "a", Similarity: 0.42},
		{SessionID: "b", Similarity: 0.91},
		{SessionID: "c", Similarity: 0.63},
	}}

	best, ok := ctx.BestSemanticMatch()
	if !ok || best.SessionID != "b" {
		t.Fatalf("expected highest-similarity match b, got %+v ok=%v", best, ok)
	}

	if _, ok := (Context{}).BestSemanticMatch(); ok {
		t.Fatalf("expected no match for empty context")
	}
}
