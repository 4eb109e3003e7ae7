// Package extract turns unstructured page text into call rows, and messy
// addresses into geocodable ones, with an LLM.
package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/cad-ingest/internal/config"
)

// Completer sends one system+user prompt pair and returns the reply text.
type Completer interface {
	Provider() string
	Complete(ctx context.Context, system, prompt string, maxTokens int64) (string, error)
}

// Call is one active call as reported by the model.
type Call struct {
	Time     string `json:"time"`
	Incident string `json:"incident"`
	Location string `json:"location"`
	Agency   string `json:"agency"`
	Status   string `json:"status"`
}

// ErrNoJSON is returned when a reply holds no JSON object.
var ErrNoJSON = eris.New("extract: reply contains no json object")

const extractSystem = `You read public-safety "active calls" web pages and return the calls as JSON.
Reply with a single JSON object and nothing else, shaped exactly as:
{"calls":[{"time":"","incident":"","location":"","agency":"","status":""}]}
Copy values verbatim from the page. Use "" for anything the page does not show.
Return {"calls":[]} when the page lists no calls.`

// Extractor pulls calls out of page text.
type Extractor struct {
	llm       Completer
	maxInput  int
	maxTokens int64
}

// NewExtractor wraps llm. maxInput caps the characters of page text sent.
func NewExtractor(llm Completer, maxInput int, maxTokens int64) *Extractor {
	if maxInput <= 0 {
		maxInput = 60000
	}
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &Extractor{llm: llm, maxInput: maxInput, maxTokens: maxTokens}
}

// ExtractCalls asks the model for the calls on a page. Entries without an
// incident or location are dropped.
func (e *Extractor) ExtractCalls(ctx context.Context, source, text string) ([]Call, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}
	text = truncateUTF8(text, e.maxInput)

	prompt := fmt.Sprintf("Source: %s\n\nPage text:\n%s", source, text)
	reply, err := e.llm.Complete(ctx, extractSystem, prompt, e.maxTokens)
	if err != nil {
		return nil, eris.Wrapf(err, "extract: %s completion", e.llm.Provider())
	}

	calls, err := parseCalls(reply)
	if err != nil {
		return nil, err
	}

	kept := calls[:0]
	for _, c := range calls {
		c.Incident = strings.TrimSpace(c.Incident)
		c.Location = strings.TrimSpace(c.Location)
		if c.Incident == "" || c.Location == "" {
			continue
		}
		kept = append(kept, c)
	}
	if dropped := len(calls) - len(kept); dropped > 0 {
		zap.L().Debug("extract: dropped incomplete calls",
			zap.String("source", source),
			zap.Int("dropped", dropped),
		)
	}
	return kept, nil
}

func parseCalls(reply string) ([]Call, error) {
	raw, err := jsonObject(reply)
	if err != nil {
		return nil, err
	}
	var out struct {
		Calls []Call `json:"calls"`
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, eris.Wrap(err, "extract: decode calls")
	}
	return out.Calls, nil
}

// jsonObject trims prose and code fences around the outermost JSON object.
func jsonObject(reply string) (string, error) {
	start := strings.IndexByte(reply, '{')
	end := strings.LastIndexByte(reply, '}')
	if start < 0 || end <= start {
		return "", ErrNoJSON
	}
	return reply[start : end+1], nil
}

// New builds the completer named by cfg.Extract.Provider. It returns nil
// with no error when extraction is disabled.
func New(cfg *config.Config) (Completer, error) {
	switch cfg.Extract.Provider {
	case "", "none":
		return nil, nil
	case "anthropic":
		if cfg.Anthropic.Key == "" {
			return nil, eris.New("extract: anthropic.key is not set")
		}
		return NewAnthropic(cfg.Anthropic.Key, cfg.Anthropic.Model), nil
	case "openai":
		if cfg.OpenAI.Key == "" {
			return nil, eris.New("extract: openai.key is not set")
		}
		return NewOpenAI(cfg.OpenAI.Key, cfg.OpenAI.BaseURL, cfg.OpenAI.Model), nil
	default:
		return nil, eris.Errorf("extract: unknown provider %q", cfg.Extract.Provider)
	}
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
