package model

import "time"

// RunStatus is the terminal state of an ingestion run.
type RunStatus string

const (
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Skip reasons recorded in Report.SkipReasons.
const (
	SkipOutsideWindow  = "outside_window"
	SkipDuplicate      = "duplicate"
	SkipDuplicateInRun = "duplicate_in_run"
	SkipHighway        = "highway_segment"
	SkipMissingField   = "missing_field"
	SkipBadTime        = "bad_time"
)

// SourceReport summarizes one adapter's fetch within a run.
type SourceReport struct {
	Source     Source `json:"source"`
	Rows       int    `json:"rows"`
	Error      string `json:"error,omitempty"`
	DurationMS int64  `json:"duration_ms"`
}

// OK reports whether the adapter fetched without error.
func (s SourceReport) OK() bool { return s.Error == "" }

// Report is the structured outcome of one ingestion run.
type Report struct {
	RunID       string         `json:"run_id"`
	Success     bool           `json:"success"`
	Scraped     int            `json:"scraped"`
	Saved       int            `json:"saved"`
	Skipped     int            `json:"skipped"`
	Failed      int            `json:"failed"`
	Geocoded    int            `json:"geocoded"`
	Expired     int            `json:"expired"`
	Timestamp   time.Time      `json:"timestamp"`
	DurationMS  int64          `json:"duration_ms"`
	Error       string         `json:"error,omitempty"`
	DryRun      bool           `json:"dry_run,omitempty"`
	Sources     []SourceReport `json:"sources"`
	SkipReasons map[string]int `json:"skip_reasons,omitempty"`

	// Calls holds the normalized calls of a dry run, which are not persisted.
	Calls []Call `json:"calls,omitempty"`
}

// Status maps the report onto a run status.
func (r *Report) Status() RunStatus {
	if r.Success {
		return RunStatusComplete
	}
	return RunStatusFailed
}

// Run is a persisted ingestion run log entry.
type Run struct {
	ID        string    `json:"id"`
	Status    RunStatus `json:"status"`
	Report    *Report   `json:"report,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
