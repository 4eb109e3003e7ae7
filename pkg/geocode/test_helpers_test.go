package geocode

import (
	"context"
	"sync"
)

// fakeClient answers from a fixed table and records every query it sees.
type fakeClient struct {
	mu      sync.Mutex
	answers map[string]*Point
	errs    map[string]error
	queries []string
}

func newFakeClient(answers map[string]*Point) *fakeClient {
	return &fakeClient{answers: answers, errs: map[string]error{}}
}

func (f *fakeClient) Search(_ context.Context, query string) (*Point, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, query)
	if err, ok := f.errs[query]; ok {
		return nil, err
	}
	return f.answers[query], nil
}

func (f *fakeClient) seen() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.queries...)
}
