package intent

import (
	"context"
	"testing"

	modelintent "github.com/halcyonlabs/accord/backend/internal/model/intent"
	"github.com/halcyonlabs/accord/backend/internal/service/completion"
)

type stubCompleter struct {
	content string
	fail    bool
}

func (s *stubCompleter) Complete(context.Context, completion.Request) (string, error) {
	return s.content, nil
}

func (s *stubCompleter) CompleteJSON(_ context.Context, _ completion.Request, out any) bool {
	if s.fail {
		return false
	}
	return completion.DecodeJSONBlock(s.content, out)
}

func TestClassifyDecodesModelOutput(t *testing.T) {
	c := NewClassifier(&stubCompleter{
		content: `Sure, here is the classification: {"intent": "create_session", "confidence": "HIGH", "tone": "hopeful", "person": {"firstName": "Sam"}, "sessionContext": "the rent"}`,
	}, nil)

	result := c.Classify(context.Background(), "I want to talk things out with Sam", modelintent.Context{})

	if result.Intent != modelintent.CreateSession {
		t.Fatalf("expected CREATE_SESSION, got %s", result.Intent)
	}
	if result.Confidence != modelintent.High {
		t.Fatalf("expected high confidence, got %s", result.Confidence)
	}
	if result.Tone != modelintent.ToneHopeful {
		t.Fatalf("expected hopeful tone, got %s", result.Tone)
	}
	if result.Person == nil || result.Person.FirstName != "Sam" {
		t.Fatalf("expected Sam extracted, got %+v", result.Person)
	}
	if result.SessionContext != "the rent" {
		t.Fatalf("expected session context, got %q", result.SessionContext)
	}
}

func TestClassifyClampsModelValues(t *testing.T) {
	c := NewClassifier(&stubCompleter{
		content: `{"intent": "DO_SOMETHING_ELSE", "confidence": "certain", "tone": "elated", "person": {}}`,
	}, nil)

	result := c.Classify(context.Background(), "whatever", modelintent.Context{})

	if result.Intent != modelintent.Unknown {
		t.Fatalf("expected unrecognized intent clamped to UNKNOWN, got %s", result.Intent)
	}
	if result.Confidence != modelintent.Low {
		t.Fatalf("expected confidence clamped to low, got %s", result.Confidence)
	}
	if result.Tone != modelintent.ToneNeutral {
		t.Fatalf("expected tone clamped to neutral, got %s", result.Tone)
	}
	if result.Person != nil {
		t.Fatalf("expected empty person dropped, got %+v", result.Person)
	}
}

func TestClassifyFallsBackOnUnusableModelOutput(t *testing.T) {
	c := NewClassifier(&stubCompleter{fail: true}, nil)

	result := c.Classify(context.Background(), "show me my sessions", modelintent.Context{})

	if result.Intent != modelintent.ListSessions {
		t.Fatalf("expected fallback rules to answer LIST_SESSIONS, got %s", result.Intent)
	}
	if result.Confidence != modelintent.Low {
		t.Fatalf("expected low fallback confidence, got %s", result.Confidence)
	}
}

func TestClassifyWithoutCompleterUsesRules(t *testing.T) {
	c := NewClassifier(nil, nil)

	result := c.Classify(context.Background(), "how does this work?", modelintent.Context{})

	if result.Intent != modelintent.Help {
		t.Fatalf("expected HELP from fallback rules, got %s", result.Intent)
	}
}

type rewritingPlugin struct{}

func (rewritingPlugin) DetectableIntents() []modelintent.Intent {
	return []modelintent.Intent{modelintent.Intent("ESCALATE")}
}

func (rewritingPlugin) DetectionHints() []string { return []string{"escalation phrasing"} }

func (rewritingPlugin) PostProcess(_ context.Context, message string, _ modelintent.Context, result *modelintent.DetectionResult) {
	if message == "escalate this" {
		result.Intent = modelintent.Intent("ESCALATE")
	}
}

type staticPluginSource struct{ plugins []Plugin }

func (s staticPluginSource) DetectionPlugins() []Plugin { return s.plugins }

func TestClassifyRunsPluginPostProcess(t *testing.T) {
	c := NewClassifier(nil, staticPluginSource{plugins: []Plugin{rewritingPlugin{}}})

	result := c.Classify(context.Background(), "escalate this", modelintent.Context{})

	if result.Intent != modelintent.Intent("ESCALATE") {
		t.Fatalf("expected plugin rewrite, got %s", result.Intent)
	}
}
