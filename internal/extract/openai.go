package extract

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/sashabaranov/go-openai"
)

// OpenAICompleter runs prompts through an OpenAI-compatible chat endpoint
// in JSON response mode.
type OpenAICompleter struct {
	client *openai.Client
	model  string
}

// NewOpenAI creates a completer. An empty baseURL uses the public API.
func NewOpenAI(apiKey, baseURL, model string) *OpenAICompleter {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAICompleter{client: openai.NewClientWithConfig(cfg), model: model}
}

func (o *OpenAICompleter) Provider() string { return "openai" }

// Complete sends the system and user messages and returns the first choice.
func (o *OpenAICompleter) Complete(ctx context.Context, system, prompt string, maxTokens int64) (string, error) {
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens:      int(maxTokens),
		Temperature:    0,
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	})
	if err != nil {
		return "", eris.Wrap(err, "openai: create chat completion")
	}
	if len(resp.Choices) == 0 {
		return "", eris.New("openai: no choices in response")
	}
	choice := resp.Choices[0]
	if choice.FinishReason == openai.FinishReasonLength {
		return "", eris.Errorf("openai: reply truncated at %d tokens", maxTokens)
	}
	return strings.TrimSpace(choice.Message.Content), nil
}
