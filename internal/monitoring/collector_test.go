package monitoring

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/cad-ingest/internal/model"
	"github.com/sells-group/cad-ingest/internal/store"
)

// mockRuns implements RunLister for testing.
type mockRuns struct {
	runs    []model.Run
	listErr error
	filters []store.RunFilter
}

func (m *mockRuns) ListRuns(_ context.Context, filter store.RunFilter) ([]model.Run, error) {
	m.filters = append(m.filters, filter)
	if m.listErr != nil {
		return nil, m.listErr
	}
	var filtered []model.Run
	for _, r := range m.runs {
		if !filter.CreatedAfter.IsZero() && r.CreatedAt.Before(filter.CreatedAfter) {
			continue
		}
		if filter.Status != "" && r.Status != filter.Status {
			continue
		}
		filtered = append(filtered, r)
	}
	return filtered, nil
}

var collectNow = time.Date(2026, 3, 10, 18, 0, 0, 0, time.UTC)

func run(age time.Duration, success bool, saved, failed int, sources ...model.SourceReport) model.Run {
	rep := &model.Report{Success: success, Saved: saved, Failed: failed, Scraped: saved + failed, Sources: sources}
	if !success {
		rep.Error = "ingest: all sources failed"
	}
	return model.Run{
		ID:        age.String(),
		Status:    rep.Status(),
		Report:    rep,
		CreatedAt: collectNow.Add(-age),
	}
}

func rows(src model.Source, n int) model.SourceReport {
	return model.SourceReport{Source: src, Rows: n}
}

func newTestCollector(runs *mockRuns, emptyRuns int) *Collector {
	c := NewCollector(runs, emptyRuns)
	c.now = func() time.Time { return collectNow }
	return c
}

func TestCollector_Collect(t *testing.T) {
	runs := &mockRuns{runs: []model.Run{
		run(10*time.Minute, true, 8, 2, rows(model.SourceChesterfield, 5), rows(model.SourceRichmond, 0)),
		run(20*time.Minute, false, 0, 0, rows(model.SourceChesterfield, 0), rows(model.SourceRichmond, 0)),
		run(30*time.Minute, true, 10, 0, rows(model.SourceChesterfield, 3), rows(model.SourceRichmond, 0)),
		run(48*time.Hour, false, 0, 0),
	}}

	snap, err := newTestCollector(runs, 3).Collect(context.Background(), 6)
	require.NoError(t, err)

	assert.Equal(t, 3, snap.RunsTotal)
	assert.Equal(t, 2, snap.RunsComplete)
	assert.Equal(t, 1, snap.RunsFailed)
	assert.InDelta(t, 1.0/3.0, snap.RunFailRate, 1e-9)
	assert.Equal(t, 18, snap.RecordsSaved)
	assert.Equal(t, 2, snap.RecordsFailed)
	assert.InDelta(t, 0.1, snap.RecordFailRate, 1e-9)
	assert.Equal(t, collectNow.Add(-10*time.Minute), snap.LastSuccessAt)
	assert.Equal(t, "ingest: all sources failed", snap.LastError)
	assert.Equal(t, map[model.Source]int{model.SourceRichmond: 3}, snap.EmptySources)
	assert.Equal(t, 6, snap.LookbackHours)

	require.Len(t, runs.filters, 1)
	assert.Equal(t, collectNow.Add(-6*time.Hour), runs.filters[0].CreatedAfter)
}

func TestCollector_EmptyRunLog(t *testing.T) {
	snap, err := newTestCollector(&mockRuns{}, 3).Collect(context.Background(), 6)
	require.NoError(t, err)
	assert.Zero(t, snap.RunsTotal)
	assert.Zero(t, snap.RunFailRate)
	assert.Zero(t, snap.RecordFailRate)
	assert.Nil(t, snap.EmptySources)
}

func TestCollector_ListError(t *testing.T) {
	_, err := newTestCollector(&mockRuns{listErr: errors.New("db down")}, 3).Collect(context.Background(), 6)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db down")
}

func TestEmptyStreaks(t *testing.T) {
	runs := []model.Run{
		run(time.Minute, true, 0, 0, rows(model.SourceHenrico, 0), rows(model.SourceHanover, 0)),
		run(2*time.Minute, true, 0, 0, rows(model.SourceHenrico, 0), rows(model.SourceHanover, 4)),
		run(3*time.Minute, true, 0, 0, rows(model.SourceHenrico, 0), rows(model.SourceHanover, 0)),
		{ID: "no-report", Status: model.RunStatusFailed},
	}

	assert.Equal(t, map[model.Source]int{model.SourceHenrico: 3}, emptyStreaks(runs, 2))
	assert.Equal(t, map[model.Source]int{model.SourceHenrico: 3, model.SourceHanover: 1}, emptyStreaks(runs, 1))
	assert.Nil(t, emptyStreaks(runs, 0))
	assert.Nil(t, emptyStreaks(runs, 4))
}
