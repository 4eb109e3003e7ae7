package fetcher

import (
	"context"
	"encoding/json"

	"github.com/rotisserie/eris"
)

// GetJSON fetches rawURL through f and decodes the body into a T.
func GetJSON[T any](ctx context.Context, f Fetcher, rawURL string) (*T, error) {
	doc, err := f.Get(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	var out T
	if err := json.Unmarshal(doc.Body, &out); err != nil {
		return nil, eris.Wrapf(err, "fetcher: decode json from %s", rawURL)
	}
	return &out, nil
}
