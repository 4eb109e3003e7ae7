package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/cad-ingest/internal/model"
)

func newTestMetrics(t *testing.T) *IngestMetrics {
	t.Helper()
	m, err := New(prometheus.NewRegistry())
	require.NoError(t, err)
	return m
}

func TestObserveRun(t *testing.T) {
	m := newTestMetrics(t)
	ts := time.Unix(1700000000, 0)

	m.ObserveRun(&model.Report{
		Success:     true,
		Scraped:     10,
		Saved:       6,
		Skipped:     3,
		Failed:      1,
		Timestamp:   ts,
		DurationMS:  2500,
		SkipReasons: map[string]int{model.SkipDuplicate: 2, model.SkipOutsideWindow: 1},
	})

	assert.Equal(t, float64(1), testutil.ToFloat64(m.runsTotal.WithLabelValues("complete")))
	assert.Equal(t, float64(6), testutil.ToFloat64(m.recordsTotal.WithLabelValues("saved")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.recordsTotal.WithLabelValues("failed")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.skipsTotal.WithLabelValues(model.SkipDuplicate)))
	assert.Equal(t, float64(1700000000), testutil.ToFloat64(m.lastSuccess))
}

func TestObserveRun_FailedLeavesLastSuccess(t *testing.T) {
	m := newTestMetrics(t)
	m.ObserveRun(&model.Report{Success: false, Timestamp: time.Now()})

	assert.Equal(t, float64(1), testutil.ToFloat64(m.runsTotal.WithLabelValues("failed")))
	assert.Equal(t, float64(0), testutil.ToFloat64(m.lastSuccess))
}

func TestObserveSource(t *testing.T) {
	m := newTestMetrics(t)
	m.ObserveSource(model.SourceReport{Source: model.SourceHenrico, Rows: 42, DurationMS: 800})
	m.ObserveSource(model.SourceReport{Source: model.SourceRichmond, Error: "timeout"})

	assert.Equal(t, float64(1), testutil.ToFloat64(m.sourceFetches.WithLabelValues("henrico", "success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.sourceFetches.WithLabelValues("richmond", "error")))
	assert.Equal(t, float64(42), testutil.ToFloat64(m.sourceRows.WithLabelValues("henrico")))
}

func TestObserveGeocodeAndExpired(t *testing.T) {
	m := newTestMetrics(t)
	m.ObserveGeocode("raw")
	m.ObserveGeocode("")
	m.ObserveExpired(model.SourceChesterfield, 7)
	m.ObserveExpired(model.SourceChesterfield, 0)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.geocodesTotal.WithLabelValues("raw")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.geocodesTotal.WithLabelValues("unresolved")))
	assert.Equal(t, float64(7), testutil.ToFloat64(m.expiredTotal.WithLabelValues("chesterfield")))
}

func TestSetBreakerOpen(t *testing.T) {
	m := newTestMetrics(t)
	m.SetBreakerOpen("geocode", true)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.breakerOpen.WithLabelValues("geocode")))
	m.SetBreakerOpen("geocode", false)
	assert.Equal(t, float64(0), testutil.ToFloat64(m.breakerOpen.WithLabelValues("geocode")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *IngestMetrics
	assert.NotPanics(t, func() {
		m.ObserveRun(&model.Report{})
		m.ObserveSource(model.SourceReport{})
		m.ObserveGeocode("raw")
		m.ObserveExpired(model.SourceHenrico, 1)
		m.SetBreakerOpen("x", true)
	})
}

func TestNew_DoubleRegisterFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := New(reg)
	require.NoError(t, err)
	_, err = New(reg)
	assert.Error(t, err)
}
