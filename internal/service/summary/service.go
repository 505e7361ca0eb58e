// Package summary condenses session transcripts in the background. The
// distilled text is folded into the semantic index so later messages about
// the same conflict surface the session as a switch candidate.
package summary

import (
	"context"
	"fmt"
	"strings"

	"github.com/halcyonlabs/accord/backend/internal/model/conversation"
	"github.com/halcyonlabs/accord/backend/internal/service/completion"
	"github.com/halcyonlabs/accord/backend/internal/service/semantic"
	"github.com/halcyonlabs/accord/backend/internal/store"
)

const summaryWindow = 40

// Service summarizes sessions through the completion service.
type Service struct {
	completer completion.Completer
	store     store.Store
	index     *semantic.Index
}

// NewService builds a summarizer. completer may be nil, in which case raw
// transcript text is indexed instead of a distilled summary.
func NewService(completer completion.Completer, st store.Store, index *semantic.Index) *Service {
	return &Service{completer: completer, store: st, index: index}
}

// SummarizeSession distills the participant's visible transcript and folds
// the result into the semantic index.
func (s *Service) SummarizeSession(ctx context.Context, sessionID, userID string) error {
	messages, err := s.store.VisibleMessages(ctx, sessionID, userID, summaryWindow)
	if err != nil {
		return fmt.Errorf("load transcript: %w", err)
	}
	if len(messages) == 0 {
		return nil
	}

	text := s.summarize(ctx, messages)
	if strings.TrimSpace(text) == "" {
		return nil
	}
	return s.index.EmbedSession(ctx, sessionID, userID, text)
}

func (s *Service) summarize(ctx context.Context, messages []conversation.Message) string {
	transcript := formatTranscript(messages)
	if s.completer == nil {
		return transcript
	}

	req := completion.Request{
		System: "Summarize this guided conflict-resolution conversation in 3-4 sentences. Name the people involved, the subject of the conflict, and where the conversation stands. Plain text only.",
		Query:  transcript,
	}
	summary, err := s.completer.Complete(ctx, req)
	if err != nil || strings.TrimSpace(summary) == "" {
		// Index the raw transcript rather than losing the signal.
		return transcript
	}
	return summary
}

func formatTranscript(messages []conversation.Message) string {
	var b strings.Builder
	for _, m := range messages {
		role := "User"
		if m.Role == conversation.RoleAI {
			role = "Guide"
		}
		content := strings.TrimSpace(m.Content)
		if content == "" {
			continue
		}
		b.WriteString(role)
		b.WriteString(": ")
		b.WriteString(content)
		b.WriteString("\n")
	}
	return b.String()
}
