// Package completion wraps the language-model collaborator behind a small
// request/response surface. The JSON variant never returns an error: any
// failure (timeout, malformed output) yields ok=false so callers fall back
// to deterministic behavior.
package completion

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
)

// Turn is one prior exchange supplied as model context.
type Turn struct {
	Role    string
	Content string
}

// Request carries one completion call.
type Request struct {
	System  string
	History []Turn
	Query   string
}

// Completer is the surface consumed by the classifier and the stage guide.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
	CompleteJSON(ctx context.Context, req Request, out any) bool
}

// Service runs completions through a compiled eino chain.
type Service struct {
	chain compose.Runnable[map[string]any, *schema.Message]
}

// NewService compiles the completion chain over the supplied chat model.
func NewService(ctx context.Context, chatModel model.ChatModel) (*Service, error) {
	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile completion chain: %w", err)
	}

	return &Service{chain: runnable}, nil
}

// Complete runs one completion and returns the model's text.
func (s *Service) Complete(ctx context.Context, req Request) (string, error) {
	msg, err := s.chain.Invoke(ctx, chainInput(req))
	if err != nil {
		return "", fmt.Errorf("failed to run completion chain: %w", err)
	}
	if msg == nil {
		return "", fmt.Errorf("completion returned no message")
	}
	return msg.Content, nil
}

// CompleteJSON runs one completion expecting a JSON object and decodes it
// into out. It reports false on any failure rather than returning an error.
func (s *Service) CompleteJSON(ctx context.Context, req Request, out any) bool {
	msg, err := s.chain.Invoke(ctx, chainInput(req))
	if err != nil || msg == nil || strings.TrimSpace(msg.Content) == "" {
		return false
	}
	return DecodeJSONBlock(msg.Content, out)
}

// DecodeJSONBlock extracts the outermost JSON object from model output and
// decodes it into out. Models wrap JSON in prose often enough that decoding
// the raw content directly is not reliable.
func DecodeJSONBlock(content string, out any) bool {
	trimmed := strings.TrimSpace(content)
	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start == -1 || end == -1 || end <= start {
		return false
	}
	return json.Unmarshal([]byte(trimmed[start:end+1]), out) == nil
}

func chainInput(req Request) map[string]any {
	history := make([]*schema.Message, 0, len(req.History))
	for _, turn := range req.History {
		switch strings.ToLower(turn.Role) {
		case "assistant", "ai":
			history = append(history, schema.AssistantMessage(turn.Content, nil))
		default:
			history = append(history, schema.UserMessage(turn.Content))
		}
	}

	return map[string]any{
		"system":  req.System,
		"history": history,
		"query":   req.Query,
	}
}
