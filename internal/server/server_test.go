package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/cad-ingest/internal/ingest"
	"github.com/sells-group/cad-ingest/internal/metrics"
	"github.com/sells-group/cad-ingest/internal/model"
	"github.com/sells-group/cad-ingest/internal/store"
)

type fakeRunner struct {
	mu      sync.Mutex
	calls   []ingest.RunOptions
	report  *model.Report
	err     error
	release chan struct{}
	started chan struct{}
}

func (f *fakeRunner) Run(_ context.Context, opts ingest.RunOptions) (*model.Report, error) {
	f.mu.Lock()
	f.calls = append(f.calls, opts)
	f.mu.Unlock()
	if f.started != nil {
		close(f.started)
	}
	if f.release != nil {
		<-f.release
	}
	return f.report, f.err
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.Open(context.Background(), store.Options{
		Driver:      "sqlite",
		DatabaseURL: filepath.Join(t.TempDir(), "api.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func seedCall(t *testing.T, st store.Store, callID string, src model.Source, received time.Time) *model.Call {
	t.Helper()
	c := &model.Call{
		CallID:      callID,
		Incident:    "Disturbance",
		Location:    "100 Main St AND Oak Ave",
		Agency:      "Chesterfield Police",
		Status:      "Dispatched",
		Source:      src,
		Description: "Disturbance at 100 Main St AND Oak Ave",
	}
	c.SetTimeReceived(received)
	_, err := st.UpsertCall(context.Background(), c)
	require.NoError(t, err)
	return c
}

func do(t *testing.T, h http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		r = httptest.NewRequest(method, target, bytes.NewReader(data))
		r.Header.Set("Content-Type", "application/json")
	} else {
		r = httptest.NewRequest(method, target, nil)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, r)
	return rr
}

func TestHealth(t *testing.T) {
	st := newTestStore(t)
	h := New(st, nil).Handler()

	rr := do(t, h, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())

	require.NoError(t, st.Close())
	rr = do(t, h, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestListCalls(t *testing.T) {
	st := newTestStore(t)
	now := time.Now().UTC()
	seedCall(t, st, "chesterfield_a", model.SourceChesterfield, now.Add(-time.Hour))
	seedCall(t, st, "chesterfield_b", model.SourceChesterfield, now.Add(-10*time.Hour))
	seedCall(t, st, "richmond_a", model.SourceRichmond, now.Add(-time.Hour))
	h := New(st, nil).Handler()

	rr := do(t, h, http.MethodGet, "/calls?source=chesterfield&since=6h", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var calls []map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &calls))
	require.Len(t, calls, 1)
	assert.Equal(t, "chesterfield_a", calls[0]["call_id"])
	assert.NotEmpty(t, calls[0]["time_received"])

	rr = do(t, h, http.MethodGet, "/calls?limit=2", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &calls))
	assert.Len(t, calls, 2)
}

func TestListCalls_Empty(t *testing.T) {
	h := New(newTestStore(t), nil).Handler()

	rr := do(t, h, http.MethodGet, "/calls", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `[]`, rr.Body.String())
}

func TestListCalls_BadParams(t *testing.T) {
	h := New(newTestStore(t), nil).Handler()

	for _, target := range []string{
		"/calls?source=atlantis",
		"/calls?since=yesterday",
		"/calls?limit=-1",
		"/calls?offset=x",
	} {
		rr := do(t, h, http.MethodGet, target, nil)
		assert.Equal(t, http.StatusBadRequest, rr.Code, target)
	}
}

func TestGetCall(t *testing.T) {
	st := newTestStore(t)
	c := seedCall(t, st, "chesterfield_a", model.SourceChesterfield, time.Now())
	h := New(st, nil).Handler()

	rr := do(t, h, http.MethodGet, "/calls/"+c.ID, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"call_id":"chesterfield_a"`)

	rr = do(t, h, http.MethodGet, "/calls/missing", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestPatchCall(t *testing.T) {
	st := newTestStore(t)
	c := seedCall(t, st, "chesterfield_a", model.SourceChesterfield, time.Now())
	h := New(st, nil).Handler()

	rr := do(t, h, http.MethodPatch, "/calls/"+c.ID, map[string]string{"status": "Cleared", "priority": "high"})
	require.Equal(t, http.StatusOK, rr.Code)

	var got model.Call
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Equal(t, "Cleared", got.Status)
	assert.Equal(t, model.PriorityHigh, got.Priority)

	tests := []struct {
		name   string
		target string
		body   any
		want   int
	}{
		{"unknown priority", "/calls/" + c.ID, map[string]string{"priority": "urgent"}, http.StatusBadRequest},
		{"blank status", "/calls/" + c.ID, map[string]string{"status": " "}, http.StatusBadRequest},
		{"empty patch", "/calls/" + c.ID, map[string]string{}, http.StatusBadRequest},
		{"unknown id", "/calls/missing", map[string]string{"status": "Cleared"}, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, h, http.MethodPatch, tt.target, tt.body)
			assert.Equal(t, tt.want, rr.Code)
		})
	}
}

func TestDeleteCall(t *testing.T) {
	st := newTestStore(t)
	c := seedCall(t, st, "chesterfield_a", model.SourceChesterfield, time.Now())
	h := New(st, nil).Handler()

	rr := do(t, h, http.MethodDelete, "/calls/"+c.ID, nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = do(t, h, http.MethodDelete, "/calls/"+c.ID, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestIngest(t *testing.T) {
	runner := &fakeRunner{report: &model.Report{RunID: "run-1", Success: true, Scraped: 3, Saved: 2, Skipped: 1}}
	h := New(newTestStore(t), runner).Handler()

	rr := do(t, h, http.MethodPost, "/ingest", map[string]any{"sources": []string{"chesterfield"}, "dry_run": true})
	require.Equal(t, http.StatusOK, rr.Code)

	var report model.Report
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &report))
	assert.Equal(t, "run-1", report.RunID)
	assert.Equal(t, 2, report.Saved)

	require.Len(t, runner.calls, 1)
	assert.Equal(t, ingest.RunOptions{Sources: []string{"chesterfield"}, DryRun: true}, runner.calls[0])
}

func TestIngest_NoBody(t *testing.T) {
	runner := &fakeRunner{report: &model.Report{Success: true}}
	h := New(newTestStore(t), runner).Handler()

	rr := do(t, h, http.MethodPost, "/ingest", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	require.Len(t, runner.calls, 1)
	assert.Empty(t, runner.calls[0].Sources)
}

func TestIngest_Failures(t *testing.T) {
	st := newTestStore(t)

	rr := do(t, New(st, nil).Handler(), http.MethodPost, "/ingest", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)

	failed := &fakeRunner{report: &model.Report{Success: false, Error: "ingest: all sources failed"}, err: ingest.ErrAllSourcesFailed}
	rr = do(t, New(st, failed).Handler(), http.MethodPost, "/ingest", nil)
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Contains(t, rr.Body.String(), `"success":false`)

	badSelection := &fakeRunner{err: errors.New(`unknown source: "atlantis"`)}
	rr = do(t, New(st, badSelection).Handler(), http.MethodPost, "/ingest", map[string]any{"sources": []string{"atlantis"}})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "atlantis")

	req := httptest.NewRequest(http.MethodPost, "/ingest", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	New(st, failed).Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIngest_RejectsConcurrentRun(t *testing.T) {
	runner := &fakeRunner{
		report:  &model.Report{Success: true},
		release: make(chan struct{}),
		started: make(chan struct{}),
	}
	h := New(newTestStore(t), runner).Handler()

	done := make(chan int)
	go func() {
		done <- do(t, h, http.MethodPost, "/ingest", nil).Code
	}()
	<-runner.started

	rr := do(t, h, http.MethodPost, "/ingest", nil)
	assert.Equal(t, http.StatusConflict, rr.Code)

	close(runner.release)
	assert.Equal(t, http.StatusOK, <-done)
}

func TestListRuns(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour)
	_, err := st.RecordRun(ctx, &model.Report{RunID: "ok", Success: true, Timestamp: base})
	require.NoError(t, err)
	_, err = st.RecordRun(ctx, &model.Report{RunID: "bad", Success: false, Error: "boom", Timestamp: base.Add(time.Minute)})
	require.NoError(t, err)
	h := New(st, nil).Handler()

	rr := do(t, h, http.MethodGet, "/runs", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var runs []model.Run
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &runs))
	require.Len(t, runs, 2)
	assert.Equal(t, "bad", runs[0].ID)

	rr = do(t, h, http.MethodGet, "/runs?status=complete", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, "ok", runs[0].ID)
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	require.NoError(t, err)
	m.ObserveRun(&model.Report{Success: true, Saved: 4, DurationMS: 1200, Timestamp: time.Now()})

	h := New(newTestStore(t), nil, WithGatherer(reg)).Handler()
	rr := do(t, h, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `cad_ingest_runs_total{status="complete"} 1`)
}

func TestCORS(t *testing.T) {
	h := New(newTestStore(t), nil, WithAllowedOrigins([]string{"https://dispatch.example.com"})).Handler()

	req := httptest.NewRequest(http.MethodOptions, "/calls", nil)
	req.Header.Set("Origin", "https://dispatch.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, "https://dispatch.example.com", rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestParseSince(t *testing.T) {
	now := time.Date(2026, 3, 10, 18, 0, 0, 0, time.UTC)

	got, err := parseSince("2026-03-10T12:00:00Z", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC), got)

	got, err = parseSince("90m", now)
	require.NoError(t, err)
	assert.Equal(t, now.Add(-90*time.Minute), got)

	_, err = parseSince("-1h", now)
	assert.Error(t, err)
}
