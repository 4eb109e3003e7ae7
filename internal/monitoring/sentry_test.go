package monitoring

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/cad-ingest/internal/config"
	"github.com/sells-group/cad-ingest/internal/model"
)

// memTransport records events instead of sending them.
type memTransport struct {
	mu     sync.Mutex
	events []*sentry.Event
}

func (t *memTransport) Configure(sentry.ClientOptions) {}

func (t *memTransport) SendEvent(e *sentry.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = append(t.events, e)
}

func (t *memTransport) Flush(time.Duration) bool { return true }

func (t *memTransport) FlushWithContext(context.Context) bool { return true }

func (t *memTransport) Close() {}

func (t *memTransport) Events() []*sentry.Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*sentry.Event(nil), t.events...)
}

func newTestReporter(t *testing.T) (*Reporter, *memTransport) {
	t.Helper()
	transport := &memTransport{}
	client, err := sentry.NewClient(sentry.ClientOptions{
		Dsn:       "",
		Transport: transport,
	})
	require.NoError(t, err)
	return NewReporter(sentry.NewHub(client, sentry.NewScope())), transport
}

func TestReporter_CaptureRun(t *testing.T) {
	r, transport := newTestReporter(t)

	r.CaptureRun(&model.Report{RunID: "ok", Success: true})
	assert.Empty(t, transport.Events())

	r.CaptureRun(&model.Report{RunID: "run-7", Success: false, Error: "ingest: fetch: context deadline exceeded"})
	events := transport.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "run-7", events[0].Tags["run_id"])
	require.NotEmpty(t, events[0].Exception)
	assert.Equal(t, "ingest: fetch: context deadline exceeded", events[0].Exception[0].Value)
}

func TestReporter_NilIsNoop(t *testing.T) {
	var r *Reporter
	r.CaptureRun(&model.Report{})
	r.CaptureAlert(Alert{})
	r.CaptureError(assert.AnError)
	r.Flush(time.Millisecond)
}

func TestInitSentry_NoDSN(t *testing.T) {
	r, err := InitSentry(config.SentryConfig{}, "test")
	require.NoError(t, err)
	assert.Nil(t, r)
}
