// Package store persists canonical calls and the ingestion run log.
package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/cad-ingest/internal/db"
	"github.com/sells-group/cad-ingest/internal/model"
)

var (
	// ErrNotFound is returned when a call or run does not exist.
	ErrNotFound = eris.New("store: not found")
	// ErrDuplicate is returned by CreateCall when the call_id is already stored.
	ErrDuplicate = eris.New("store: duplicate call_id")
	// ErrInvalidPatch is returned when a call patch carries a bad value.
	ErrInvalidPatch = eris.New("store: invalid patch")
)

// CallFilter specifies criteria for finding calls. Empty fields match everything.
type CallFilter struct {
	ID     string       `json:"id,omitempty"`
	CallID string       `json:"call_id,omitempty"`
	Source model.Source `json:"source,omitempty"`
	Status string       `json:"status,omitempty"`
	Since  time.Time    `json:"since,omitzero"`
	Limit  int          `json:"limit,omitempty"`
	Offset int          `json:"offset,omitempty"`
}

// CallPatch holds the fields a UI may edit on a stored call.
type CallPatch struct {
	Status   *string         `json:"status,omitempty"`
	Priority *model.Priority `json:"priority,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p CallPatch) Empty() bool {
	return p.Status == nil && p.Priority == nil
}

// Validate rejects blank statuses and unknown priorities.
func (p CallPatch) Validate() error {
	if p.Status != nil && strings.TrimSpace(*p.Status) == "" {
		return eris.Wrap(ErrInvalidPatch, "status must not be blank")
	}
	if p.Priority != nil && !p.Priority.Valid() {
		return eris.Wrapf(ErrInvalidPatch, "unknown priority %q", *p.Priority)
	}
	return nil
}

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status       model.RunStatus `json:"status,omitempty"`
	CreatedAfter time.Time       `json:"created_after,omitzero"`
	Limit        int             `json:"limit,omitempty"`
	Offset       int             `json:"offset,omitempty"`
}

// Store defines the persistence interface for the ingestion pipeline.
type Store interface {
	// Calls
	FindCalls(ctx context.Context, filter CallFilter) ([]model.Call, error)
	CreateCall(ctx context.Context, call *model.Call) error
	UpsertCall(ctx context.Context, call *model.Call) (bool, error)
	UpdateCall(ctx context.Context, id string, patch CallPatch) (*model.Call, error)
	DeleteCall(ctx context.Context, id string) error
	DeleteStaleCalls(ctx context.Context, source model.Source, before time.Time) (int64, error)

	// Run log
	RecordRun(ctx context.Context, report *model.Report) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

// Options selects and tunes a backend.
type Options struct {
	Driver      string
	DatabaseURL string
	Pool        *PoolConfig
}

// Open connects to the backend named by opts.Driver ("sqlite" or "postgres").
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Driver {
	case "", "sqlite":
		return NewSQLite(opts.DatabaseURL)
	case "postgres":
		return NewPostgres(ctx, opts.DatabaseURL, opts.Pool)
	default:
		return nil, eris.Errorf("store: unsupported driver %q", opts.Driver)
	}
}

const (
	defaultCallLimit = 100
	maxCallLimit     = 1000
	defaultRunLimit  = 50
)

// callColumns is the column order shared by inserts and selects.
var callColumns = []string{
	"id", "call_id", "incident", "location", "raw_location", "agency", "status",
	"priority", "latitude", "longitude", "time_received", "source", "description",
	"geocode_strategy", "created_at", "updated_at",
}

// callArgs returns c's values in callColumns order.
func callArgs(c *model.Call) []any {
	return []any{
		c.ID, c.CallID, c.Incident, c.Location, c.RawLocation, c.Agency, c.Status,
		string(c.Priority), c.Latitude, c.Longitude, c.TimeReceivedMS, string(c.Source), c.Description,
		c.GeocodeStrategy, c.CreatedAt, c.UpdatedAt,
	}
}

// prepareInsert fills the bookkeeping fields of a call about to be written.
func prepareInsert(c *model.Call, newID func() string) error {
	if c.CallID == "" {
		return eris.New("store: call_id is required")
	}
	if (c.Latitude == nil) != (c.Longitude == nil) {
		return eris.Errorf("store: call %s has only one coordinate", c.CallID)
	}
	if c.ID == "" {
		c.ID = newID()
	}
	if c.Priority == "" {
		c.Priority = model.PriorityMedium
	}
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	return nil
}

// buildFindCalls renders the SELECT for f.
func buildFindCalls(f CallFilter, ph db.Placeholder) (string, []any) {
	var (
		where []string
		args  []any
	)
	add := func(clause string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(clause, ph(len(args))))
	}

	if f.ID != "" {
		add("id = %s", f.ID)
	}
	if f.CallID != "" {
		add("call_id = %s", f.CallID)
	}
	if f.Source != "" {
		add("source = %s", string(f.Source))
	}
	if f.Status != "" {
		add("status = %s", f.Status)
	}
	if !f.Since.IsZero() {
		add("time_received >= %s", f.Since.UnixMilli())
	}

	query := "SELECT " + strings.Join(callColumns, ", ") + " FROM calls"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY time_received DESC, call_id"

	limit := f.Limit
	if limit <= 0 {
		limit = defaultCallLimit
	}
	if limit > maxCallLimit {
		limit = maxCallLimit
	}
	args = append(args, limit)
	query += " LIMIT " + ph(len(args))
	if f.Offset > 0 {
		args = append(args, f.Offset)
		query += " OFFSET " + ph(len(args))
	}
	return query, args
}

// buildPatch renders the UPDATE for p. The id is the last argument.
func buildPatch(id string, p CallPatch, ph db.Placeholder) (string, []any) {
	var (
		sets []string
		args []any
	)
	if p.Status != nil {
		args = append(args, strings.TrimSpace(*p.Status))
		sets = append(sets, "status = "+ph(len(args)))
	}
	if p.Priority != nil {
		args = append(args, string(*p.Priority))
		sets = append(sets, "priority = "+ph(len(args)))
	}
	args = append(args, time.Now().UTC())
	sets = append(sets, "updated_at = "+ph(len(args)))
	args = append(args, id)
	return "UPDATE calls SET " + strings.Join(sets, ", ") + " WHERE id = " + ph(len(args)), args
}

// buildListRuns renders the SELECT for f.
func buildListRuns(f RunFilter, ph db.Placeholder) (string, []any) {
	query := "SELECT id, status, report, created_at FROM ingest_runs"
	var (
		where []string
		args  []any
	)
	if f.Status != "" {
		args = append(args, string(f.Status))
		where = append(where, "status = "+ph(len(args)))
	}
	if !f.CreatedAfter.IsZero() {
		args = append(args, f.CreatedAfter.UTC())
		where = append(where, "created_at >= "+ph(len(args)))
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC"

	limit := f.Limit
	if limit <= 0 {
		limit = defaultRunLimit
	}
	args = append(args, limit)
	query += " LIMIT " + ph(len(args))
	if f.Offset > 0 {
		args = append(args, f.Offset)
		query += " OFFSET " + ph(len(args))
	}
	return query, args
}

// runFromReport builds the run log entry for a finished report.
func runFromReport(r *model.Report, newID func() string) *model.Run {
	id := r.RunID
	if id == "" {
		id = newID()
		r.RunID = id
	}
	created := r.Timestamp
	if created.IsZero() {
		created = time.Now()
	}
	return &model.Run{ID: id, Status: r.Status(), Report: r, CreatedAt: created.UTC()}
}
