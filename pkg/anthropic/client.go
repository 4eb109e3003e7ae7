// Package anthropic wraps the Anthropic Messages API for single-turn
// structured-text prompts.
package anthropic

import (
	"context"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Client is the subset of the Messages API the pipeline uses.
type Client interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}

// Request is a single-turn prompt.
type Request struct {
	Model     string
	MaxTokens int64
	// System is sent as one system block. When CacheSystem is set the block
	// carries an ephemeral cache breakpoint so repeated runs reuse it.
	System      string
	CacheSystem bool
	Prompt      string
	Temperature *float64
}

// Response is the flattened reply.
type Response struct {
	ID         string
	Model      string
	Text       string
	StopReason string
	Usage      TokenUsage
}

// Truncated reports whether the reply stopped at the token limit.
func (r *Response) Truncated() bool {
	return r.StopReason == string(sdk.StopReasonMaxTokens)
}

// TokenUsage tracks token consumption for one call.
type TokenUsage struct {
	InputTokens      int64
	OutputTokens     int64
	CacheWriteTokens int64
	CacheReadTokens  int64
}

// per-million-token pricing {input, output} in USD.
var modelPricing = map[string][2]float64{
	"claude-haiku-4-5-20251001":  {1.00, 5.00},
	"claude-sonnet-4-5-20250929": {3.00, 15.00},
}

// EstimateCost returns the approximate USD cost, or 0 for unknown models.
func (u TokenUsage) EstimateCost(model string) float64 {
	p, ok := modelPricing[model]
	if !ok {
		return 0
	}
	return float64(u.InputTokens)/1e6*p[0] +
		float64(u.OutputTokens)/1e6*p[1] +
		float64(u.CacheWriteTokens)/1e6*p[0]*1.25 +
		float64(u.CacheReadTokens)/1e6*p[0]*0.1
}

// Log writes usage at debug level.
func (u TokenUsage) Log(model, purpose string) {
	zap.L().Debug("anthropic usage",
		zap.String("model", model),
		zap.String("purpose", purpose),
		zap.Int64("input_tokens", u.InputTokens),
		zap.Int64("output_tokens", u.OutputTokens),
		zap.Int64("cache_read_tokens", u.CacheReadTokens),
		zap.Float64("estimated_cost_usd", u.EstimateCost(model)),
	)
}

type sdkClient struct {
	client sdk.Client
}

// NewClient builds a Client backed by anthropic-sdk-go. Extra request
// options (base URL, HTTP client) are passed through to the SDK.
func NewClient(apiKey string, opts ...option.RequestOption) Client {
	all := append([]option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(2),
	}, opts...)
	return &sdkClient{client: sdk.NewClient(all...)}
}

func (c *sdkClient) Complete(ctx context.Context, req Request) (*Response, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, eris.New("anthropic: empty prompt")
	}
	params := sdk.MessageNewParams{
		Model:     sdk.Model(req.Model),
		MaxTokens: req.MaxTokens,
		Messages:  []sdk.MessageParam{sdk.NewUserMessage(sdk.NewTextBlock(req.Prompt))},
	}
	if req.System != "" {
		block := sdk.TextBlockParam{Text: req.System}
		if req.CacheSystem {
			block.CacheControl = sdk.NewCacheControlEphemeralParam()
		}
		params.System = []sdk.TextBlockParam{block}
	}
	if req.Temperature != nil {
		params.Temperature = sdk.Float(*req.Temperature)
	}

	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, eris.Wrap(err, "anthropic: create message")
	}
	return fromSDKMessage(msg), nil
}

func fromSDKMessage(msg *sdk.Message) *Response {
	var text strings.Builder
	for _, b := range msg.Content {
		if b.Type == "text" {
			text.WriteString(b.Text)
		}
	}
	return &Response{
		ID:         msg.ID,
		Model:      string(msg.Model),
		Text:       text.String(),
		StopReason: string(msg.StopReason),
		Usage: TokenUsage{
			InputTokens:      msg.Usage.InputTokens,
			OutputTokens:     msg.Usage.OutputTokens,
			CacheWriteTokens: msg.Usage.CacheCreationInputTokens,
			CacheReadTokens:  msg.Usage.CacheReadInputTokens,
		},
	}
}
