package monitoring

import (
	"context"
	"sort"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/cad-ingest/internal/model"
	"github.com/sells-group/cad-ingest/internal/store"
)

// maxLookbackRuns caps how many run log entries one snapshot reads.
const maxLookbackRuns = 1000

// MetricsSnapshot holds a point-in-time view of ingestion health.
type MetricsSnapshot struct {
	// Runs within the lookback window.
	RunsTotal    int     `json:"runs_total"`
	RunsComplete int     `json:"runs_complete"`
	RunsFailed   int     `json:"runs_failed"`
	RunFailRate  float64 `json:"run_fail_rate"`

	// Record counters summed over those runs.
	RecordsScraped int     `json:"records_scraped"`
	RecordsSaved   int     `json:"records_saved"`
	RecordsSkipped int     `json:"records_skipped"`
	RecordsFailed  int     `json:"records_failed"`
	RecordFailRate float64 `json:"record_fail_rate"`

	// EmptySources maps a source to its current streak of runs that
	// returned no rows, for streaks at or above the configured threshold.
	EmptySources map[model.Source]int `json:"empty_sources,omitempty"`

	LastSuccessAt time.Time `json:"last_success_at,omitzero"`
	LastError     string    `json:"last_error,omitempty"`

	// Metadata.
	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// RunLister is the part of the store the collector reads.
type RunLister interface {
	ListRuns(ctx context.Context, filter store.RunFilter) ([]model.Run, error)
}

// Collector summarizes the run log.
type Collector struct {
	runs            RunLister
	emptySourceRuns int
	now             func() time.Time
}

// NewCollector creates a collector. emptySourceRuns is the streak of
// zero-row runs after which a source is reported as empty; zero disables
// the check.
func NewCollector(runs RunLister, emptySourceRuns int) *Collector {
	return &Collector{runs: runs, emptySourceRuns: emptySourceRuns, now: time.Now}
}

// Collect gathers a snapshot over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	now := c.now().UTC()
	snap := &MetricsSnapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}

	runs, err := c.runs.ListRuns(ctx, store.RunFilter{
		CreatedAfter: now.Add(-time.Duration(lookbackHours) * time.Hour),
		Limit:        maxLookbackRuns,
	})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list runs")
	}

	// Newest first, regardless of backend ordering.
	sort.SliceStable(runs, func(i, j int) bool { return runs[i].CreatedAt.After(runs[j].CreatedAt) })

	snap.RunsTotal = len(runs)
	for _, r := range runs {
		switch r.Status {
		case model.RunStatusComplete:
			snap.RunsComplete++
			if r.CreatedAt.After(snap.LastSuccessAt) {
				snap.LastSuccessAt = r.CreatedAt
			}
		case model.RunStatusFailed:
			snap.RunsFailed++
			if snap.LastError == "" && r.Report != nil {
				snap.LastError = r.Report.Error
			}
		}
		if r.Report != nil {
			snap.RecordsScraped += r.Report.Scraped
			snap.RecordsSaved += r.Report.Saved
			snap.RecordsSkipped += r.Report.Skipped
			snap.RecordsFailed += r.Report.Failed
		}
	}

	if finished := snap.RunsComplete + snap.RunsFailed; finished > 0 {
		snap.RunFailRate = float64(snap.RunsFailed) / float64(finished)
	}
	if attempted := snap.RecordsSaved + snap.RecordsFailed; attempted > 0 {
		snap.RecordFailRate = float64(snap.RecordsFailed) / float64(attempted)
	}

	snap.EmptySources = emptyStreaks(runs, c.emptySourceRuns)
	return snap, nil
}

// emptyStreaks counts, per source, the consecutive most recent runs in
// which the source returned no rows. Runs are newest first. Only streaks of
// at least threshold are returned.
func emptyStreaks(runs []model.Run, threshold int) map[model.Source]int {
	if threshold <= 0 {
		return nil
	}
	streak := make(map[model.Source]int)
	done := make(map[model.Source]bool)
	for _, r := range runs {
		if r.Report == nil {
			continue
		}
		for _, sr := range r.Report.Sources {
			if done[sr.Source] {
				continue
			}
			if sr.Rows > 0 {
				done[sr.Source] = true
				continue
			}
			streak[sr.Source]++
		}
	}

	var out map[model.Source]int
	for src, n := range streak {
		if n < threshold {
			continue
		}
		if out == nil {
			out = make(map[model.Source]int)
		}
		out[src] = n
	}
	return out
}
