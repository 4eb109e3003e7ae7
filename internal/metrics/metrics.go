// Package metrics exposes Prometheus metrics for ingestion runs.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sells-group/cad-ingest/internal/model"
)

const namespace = "cad_ingest"

// IngestMetrics holds the collectors for ingestion runs. A nil
// *IngestMetrics is valid and records nothing.
type IngestMetrics struct {
	runsTotal      *prometheus.CounterVec
	runDuration    prometheus.Histogram
	lastSuccess    prometheus.Gauge
	recordsTotal   *prometheus.CounterVec
	skipsTotal     *prometheus.CounterVec
	sourceFetches  *prometheus.CounterVec
	sourceRows     *prometheus.GaugeVec
	sourceDuration *prometheus.HistogramVec
	geocodesTotal  *prometheus.CounterVec
	expiredTotal   *prometheus.CounterVec
	breakerOpen    *prometheus.GaugeVec
}

// New creates the collectors and registers them with registry.
func New(registry prometheus.Registerer) (*IngestMetrics, error) {
	m := &IngestMetrics{
		runsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Ingestion runs by terminal status",
			},
			[]string{"status"},
		),
		runDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Wall time of an ingestion run",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 10), // 1s to ~8.5m
			},
		),
		lastSuccess: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_success_timestamp_seconds",
				Help:      "Unix time of the last successful run",
			},
		),
		recordsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "records_total",
				Help:      "Records processed by outcome",
			},
			[]string{"outcome"}, // scraped, saved, skipped, failed
		),
		skipsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "skips_total",
				Help:      "Skipped records by reason",
			},
			[]string{"reason"},
		),
		sourceFetches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "source_fetches_total",
				Help:      "Source adapter fetches by result",
			},
			[]string{"source", "status"}, // status: success, error
		),
		sourceRows: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "source_rows",
				Help:      "Rows returned by the last fetch of each source",
			},
			[]string{"source"},
		),
		sourceDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "source_fetch_duration_seconds",
				Help:      "Time taken to fetch and parse one source",
				Buckets:   prometheus.ExponentialBuckets(0.1, 2, 9), // 100ms to ~25s
			},
			[]string{"source"},
		),
		geocodesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "geocodes_total",
				Help:      "Geocode resolutions by winning strategy",
			},
			[]string{"strategy"}, // normalized, raw, number_street, street, source, unresolved
		),
		expiredTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "expired_total",
				Help:      "Calls removed by the expiry pass",
			},
			[]string{"source"},
		),
		breakerOpen: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "breaker_open",
				Help:      "1 while the named circuit breaker is open",
			},
			[]string{"name"},
		),
	}
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

// Describe implements prometheus.Collector.
func (m *IngestMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.runsTotal.Describe(ch)
	m.runDuration.Describe(ch)
	m.lastSuccess.Describe(ch)
	m.recordsTotal.Describe(ch)
	m.skipsTotal.Describe(ch)
	m.sourceFetches.Describe(ch)
	m.sourceRows.Describe(ch)
	m.sourceDuration.Describe(ch)
	m.geocodesTotal.Describe(ch)
	m.expiredTotal.Describe(ch)
	m.breakerOpen.Describe(ch)
}

// Collect implements prometheus.Collector.
func (m *IngestMetrics) Collect(ch chan<- prometheus.Metric) {
	m.runsTotal.Collect(ch)
	m.runDuration.Collect(ch)
	m.lastSuccess.Collect(ch)
	m.recordsTotal.Collect(ch)
	m.skipsTotal.Collect(ch)
	m.sourceFetches.Collect(ch)
	m.sourceRows.Collect(ch)
	m.sourceDuration.Collect(ch)
	m.geocodesTotal.Collect(ch)
	m.expiredTotal.Collect(ch)
	m.breakerOpen.Collect(ch)
}

// ObserveRun records a finished run's report.
func (m *IngestMetrics) ObserveRun(r *model.Report) {
	if m == nil || r == nil {
		return
	}
	m.runsTotal.WithLabelValues(string(r.Status())).Inc()
	m.runDuration.Observe(time.Duration(r.DurationMS * int64(time.Millisecond)).Seconds())
	if r.Success {
		m.lastSuccess.Set(float64(r.Timestamp.Unix()))
	}

	m.recordsTotal.WithLabelValues("scraped").Add(float64(r.Scraped))
	m.recordsTotal.WithLabelValues("saved").Add(float64(r.Saved))
	m.recordsTotal.WithLabelValues("skipped").Add(float64(r.Skipped))
	m.recordsTotal.WithLabelValues("failed").Add(float64(r.Failed))
	for reason, n := range r.SkipReasons {
		m.skipsTotal.WithLabelValues(reason).Add(float64(n))
	}
}

// ObserveSource records one adapter fetch.
func (m *IngestMetrics) ObserveSource(sr model.SourceReport) {
	if m == nil {
		return
	}
	src := string(sr.Source)
	status := "success"
	if !sr.OK() {
		status = "error"
	}
	m.sourceFetches.WithLabelValues(src, status).Inc()
	m.sourceRows.WithLabelValues(src).Set(float64(sr.Rows))
	m.sourceDuration.WithLabelValues(src).Observe(float64(sr.DurationMS) / 1000)
}

// ObserveGeocode records which strategy resolved a call. An empty strategy
// means the call stayed unresolved.
func (m *IngestMetrics) ObserveGeocode(strategy string) {
	if m == nil {
		return
	}
	if strategy == "" {
		strategy = "unresolved"
	}
	m.geocodesTotal.WithLabelValues(strategy).Inc()
}

// ObserveExpired records calls removed for a source.
func (m *IngestMetrics) ObserveExpired(source model.Source, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.expiredTotal.WithLabelValues(string(source)).Add(float64(n))
}

// SetBreakerOpen tracks breaker transitions.
func (m *IngestMetrics) SetBreakerOpen(name string, open bool) {
	if m == nil {
		return
	}
	v := 0.0
	if open {
		v = 1
	}
	m.breakerOpen.WithLabelValues(name).Set(v)
}
