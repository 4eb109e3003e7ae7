// Package fetcher retrieves source pages over HTTP and hands back UTF-8 bodies.
package fetcher

import (
	"context"
)

// Document is a fetched response body decoded to UTF-8.
type Document struct {
	URL         string
	StatusCode  int
	ContentType string
	Charset     string
	Body        []byte
}

// Text returns the body as a string.
func (d *Document) Text() string {
	return string(d.Body)
}

// Fetcher retrieves a URL. Implementations return an error for non-2xx
// responses and for bodies over their size cap.
type Fetcher interface {
	Get(ctx context.Context, rawURL string) (*Document, error)
}
