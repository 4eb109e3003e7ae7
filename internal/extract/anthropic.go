package extract

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/cad-ingest/pkg/anthropic"
)

// AnthropicCompleter runs prompts through the Messages API.
type AnthropicCompleter struct {
	client anthropic.Client
	model  string
}

// NewAnthropic creates a completer for model using apiKey.
func NewAnthropic(apiKey, model string) *AnthropicCompleter {
	return NewAnthropicWithClient(anthropic.NewClient(apiKey), model)
}

// NewAnthropicWithClient wraps an existing client.
func NewAnthropicWithClient(client anthropic.Client, model string) *AnthropicCompleter {
	return &AnthropicCompleter{client: client, model: model}
}

func (a *AnthropicCompleter) Provider() string { return "anthropic" }

// Complete sends the prompt with the system block cached between calls.
func (a *AnthropicCompleter) Complete(ctx context.Context, system, prompt string, maxTokens int64) (string, error) {
	zero := 0.0
	resp, err := a.client.Complete(ctx, anthropic.Request{
		Model:       a.model,
		MaxTokens:   maxTokens,
		System:      system,
		CacheSystem: true,
		Prompt:      prompt,
		Temperature: &zero,
	})
	if err != nil {
		return "", err
	}
	resp.Usage.Log(a.model, "extract")
	if resp.Truncated() {
		return "", eris.Errorf("anthropic: reply truncated at %d tokens", maxTokens)
	}
	return resp.Text, nil
}
