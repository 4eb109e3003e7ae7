package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

const rewriteSystem = `You clean up street addresses from police and fire dispatch logs so a geocoder can find them.
Expand abbreviations, fix obvious typos, and drop unit numbers and landmark notes.
Keep intersections as "X AND Y". Do not invent house numbers.
Reply with a single JSON object: {"address":"..."}`

// Rewriter asks the model for a geocoder-friendly form of an address.
type Rewriter struct {
	llm Completer
}

// NewRewriter wraps llm.
func NewRewriter(llm Completer) *Rewriter {
	return &Rewriter{llm: llm}
}

// Rewrite returns the cleaned address. An empty reply yields the input.
func (r *Rewriter) Rewrite(ctx context.Context, location, jurisdiction string) (string, error) {
	prompt := fmt.Sprintf("Address: %s\nJurisdiction: %s", location, jurisdiction)
	reply, err := r.llm.Complete(ctx, rewriteSystem, prompt, 128)
	if err != nil {
		return "", eris.Wrapf(err, "extract: %s rewrite", r.llm.Provider())
	}
	raw, err := jsonObject(reply)
	if err != nil {
		return "", err
	}
	var out struct {
		Address string `json:"address"`
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return "", eris.Wrap(err, "extract: decode rewrite")
	}
	if addr := strings.TrimSpace(out.Address); addr != "" {
		return addr, nil
	}
	return location, nil
}
