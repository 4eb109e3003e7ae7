package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/cad-ingest/internal/db"
	"github.com/sells-group/cad-ingest/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db         *sql.DB
	insertCall string
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	insertCall, err := db.UpsertSQL(db.UpsertConfig{
		Table:        "calls",
		Columns:      callColumns,
		ConflictKeys: []string{"call_id"},
		DoNothing:    true,
	}, db.Question)
	if err != nil {
		return nil, err
	}

	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: conn, insertCall: insertCall}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS calls (
	id               TEXT PRIMARY KEY,
	call_id          TEXT NOT NULL UNIQUE,
	incident         TEXT NOT NULL,
	location         TEXT NOT NULL,
	raw_location     TEXT NOT NULL DEFAULT '',
	agency           TEXT NOT NULL DEFAULT '',
	status           TEXT NOT NULL DEFAULT '',
	priority         TEXT NOT NULL DEFAULT 'medium',
	latitude         REAL,
	longitude        REAL,
	time_received    INTEGER NOT NULL,
	source           TEXT NOT NULL,
	description      TEXT NOT NULL DEFAULT '',
	geocode_strategy TEXT NOT NULL DEFAULT '',
	created_at       DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at       DATETIME NOT NULL DEFAULT (datetime('now')),
	CHECK ((latitude IS NULL) = (longitude IS NULL))
);

CREATE INDEX IF NOT EXISTS idx_calls_source_time ON calls(source, time_received);
CREATE INDEX IF NOT EXISTS idx_calls_time ON calls(time_received);

CREATE TABLE IF NOT EXISTS ingest_runs (
	id         TEXT PRIMARY KEY,
	status     TEXT NOT NULL,
	report     TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_ingest_runs_created ON ingest_runs(created_at);
`

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) FindCalls(ctx context.Context, filter CallFilter) ([]model.Call, error) {
	query, args := buildFindCalls(filter, db.Question)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: find calls")
	}
	defer rows.Close() //nolint:errcheck

	var calls []model.Call
	for rows.Next() {
		c, err := scanSQLiteCall(rows)
		if err != nil {
			return nil, err
		}
		calls = append(calls, *c)
	}
	return calls, eris.Wrap(rows.Err(), "sqlite: find calls iterate")
}

func (s *SQLiteStore) UpsertCall(ctx context.Context, call *model.Call) (bool, error) {
	if err := prepareInsert(call, uuid.NewString); err != nil {
		return false, err
	}
	res, err := s.db.ExecContext(ctx, s.insertCall, callArgs(call)...)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: upsert call %s", call.CallID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: rows affected")
	}
	return n > 0, nil
}

func (s *SQLiteStore) CreateCall(ctx context.Context, call *model.Call) error {
	inserted, err := s.UpsertCall(ctx, call)
	if err != nil {
		return err
	}
	if !inserted {
		return eris.Wrapf(ErrDuplicate, "call %s", call.CallID)
	}
	return nil
}

func (s *SQLiteStore) UpdateCall(ctx context.Context, id string, patch CallPatch) (*model.Call, error) {
	if err := patch.Validate(); err != nil {
		return nil, err
	}
	if !patch.Empty() {
		query, args := buildPatch(id, patch, db.Question)
		res, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			return nil, eris.Wrapf(err, "sqlite: update call %s", id)
		}
		if err := checkRowsAffected(res, "call", id); err != nil {
			return nil, err
		}
	}
	calls, err := s.FindCalls(ctx, CallFilter{ID: id, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(calls) == 0 {
		return nil, eris.Wrapf(ErrNotFound, "call %s", id)
	}
	return &calls[0], nil
}

func (s *SQLiteStore) DeleteCall(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM calls WHERE id = ?`, id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete call %s", id)
	}
	return checkRowsAffected(res, "call", id)
}

func (s *SQLiteStore) DeleteStaleCalls(ctx context.Context, source model.Source, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM calls WHERE source = ? AND time_received < ?`,
		string(source), before.UnixMilli(),
	)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: delete stale calls for %s", source)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: rows affected")
	}
	return n, nil
}

func (s *SQLiteStore) RecordRun(ctx context.Context, report *model.Report) (*model.Run, error) {
	run := runFromReport(report, uuid.NewString)
	reportJSON, err := json.Marshal(report)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal report")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO ingest_runs (id, status, report, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET status = excluded.status, report = excluded.report`,
		run.ID, string(run.Status), string(reportJSON), run.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: record run %s", run.ID)
	}
	return run, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query, args := buildListRuns(filter, db.Question)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close() //nolint:errcheck

	var runs []model.Run
	for rows.Next() {
		var r model.Run
		var reportJSON string
		if err := rows.Scan(&r.ID, &r.Status, &reportJSON, &r.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		r.Report = &model.Report{}
		if err := json.Unmarshal([]byte(reportJSON), r.Report); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal report")
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSQLiteCall(row scannable) (*model.Call, error) {
	var (
		c        model.Call
		lat, lon sql.NullFloat64
		priority string
		source   string
	)
	err := row.Scan(
		&c.ID, &c.CallID, &c.Incident, &c.Location, &c.RawLocation, &c.Agency, &c.Status,
		&priority, &lat, &lon, &c.TimeReceivedMS, &source, &c.Description,
		&c.GeocodeStrategy, &c.CreatedAt, &c.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan call")
	}
	c.Priority = model.Priority(priority)
	c.Source = model.Source(source)
	if lat.Valid && lon.Valid {
		c.SetCoordinates(lat.Float64, lon.Float64)
	}
	return &c, nil
}
