package llm

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicBackend backs the LLMClient capability with a hosted model,
// grounded on Sergey-Bar-Alfred's multi-provider gateway abstraction (this
// project wraps a single provider SDK behind the same Backend interface the
// Ollama backend satisfies, rather than reimplementing a gateway of its
// own).
type AnthropicBackend struct {
	client *anthropic.Client
}

func NewAnthropicBackend(apiKey string) *AnthropicBackend {
	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &AnthropicBackend{client: &client}
}

func (b *AnthropicBackend) Complete(ctx context.Context, model, system, user string, jsonMode bool) (string, error) {
	req := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: 4096,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(user)),
		},
	}
	if system != "" {
		req.System = []anthropic.TextBlockParam{{Text: system}}
	}

	msg, err := b.client.Messages.New(ctx, req)
	if err != nil {
		return "", fmt.Errorf("anthropic: completion request: %w", err)
	}

	var out string
	for _, block := range msg.Content {
		if block.Type == "text" {
			out += block.Text
		}
	}
	return out, nil
}
