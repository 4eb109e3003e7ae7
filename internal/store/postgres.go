package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/cad-ingest/internal/db"
	"github.com/sells-group/cad-ingest/internal/model"
)

// PostgresStore implements Store using pgxpool. Calls also carry a PostGIS
// point so map consumers can run spatial queries.
type PostgresStore struct {
	pool       db.Pool
	closeFn    func()
	insertCall string
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// pgCallColumns adds the geometry column to the shared call columns.
var pgCallColumns = append(append([]string(nil), callColumns...), "geom")

func postgresInsertCall() (string, error) {
	return db.UpsertSQL(db.UpsertConfig{
		Table:        "calls",
		Columns:      pgCallColumns,
		ConflictKeys: []string{"call_id"},
		DoNothing:    true,
	}, db.Dollar)
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	insertCall, err := postgresInsertCall()
	if err != nil {
		return nil, err
	}

	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close, insertCall: insertCall}, nil
}

// newPostgresWithPool wraps an existing pool.
func newPostgresWithPool(pool db.Pool) *PostgresStore {
	insertCall, _ := postgresInsertCall()
	return &PostgresStore{pool: pool, insertCall: insertCall}
}

// Pool returns the underlying database pool.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE EXTENSION IF NOT EXISTS postgis;

CREATE TABLE IF NOT EXISTS calls (
	id               TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	call_id          TEXT NOT NULL UNIQUE,
	incident         TEXT NOT NULL,
	location         TEXT NOT NULL,
	raw_location     TEXT NOT NULL DEFAULT '',
	agency           TEXT NOT NULL DEFAULT '',
	status           TEXT NOT NULL DEFAULT '',
	priority         TEXT NOT NULL DEFAULT 'medium',
	latitude         DOUBLE PRECISION,
	longitude        DOUBLE PRECISION,
	geom             geometry(Point, 4326),
	time_received    BIGINT NOT NULL,
	source           TEXT NOT NULL,
	description      TEXT NOT NULL DEFAULT '',
	geocode_strategy TEXT NOT NULL DEFAULT '',
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	CHECK ((latitude IS NULL) = (longitude IS NULL))
);

CREATE INDEX IF NOT EXISTS idx_calls_source_time ON calls(source, time_received);
CREATE INDEX IF NOT EXISTS idx_calls_time ON calls(time_received DESC);
CREATE INDEX IF NOT EXISTS idx_calls_geom ON calls USING GIST (geom);

CREATE TABLE IF NOT EXISTS ingest_runs (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	status     TEXT NOT NULL,
	report     JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_ingest_runs_created ON ingest_runs(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_ingest_runs_status ON ingest_runs(status);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) FindCalls(ctx context.Context, filter CallFilter) ([]model.Call, error) {
	query, args := buildFindCalls(filter, db.Dollar)
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: find calls")
	}
	defer rows.Close()

	var calls []model.Call
	for rows.Next() {
		var (
			c                model.Call
			lat, lon         *float64
			priority, source string
		)
		if err := rows.Scan(
			&c.ID, &c.CallID, &c.Incident, &c.Location, &c.RawLocation, &c.Agency, &c.Status,
			&priority, &lat, &lon, &c.TimeReceivedMS, &source, &c.Description,
			&c.GeocodeStrategy, &c.CreatedAt, &c.UpdatedAt,
		); err != nil {
			return nil, eris.Wrap(err, "postgres: scan call")
		}
		c.Priority = model.Priority(priority)
		c.Source = model.Source(source)
		if lat != nil && lon != nil {
			c.SetCoordinates(*lat, *lon)
		}
		calls = append(calls, c)
	}
	return calls, eris.Wrap(rows.Err(), "postgres: find calls iterate")
}

func (s *PostgresStore) UpsertCall(ctx context.Context, call *model.Call) (bool, error) {
	if err := prepareInsert(call, uuid.NewString); err != nil {
		return false, err
	}
	point, err := db.PointEWKB(call.Latitude, call.Longitude)
	if err != nil {
		return false, err
	}
	args := append(callArgs(call), point)

	tag, err := s.pool.Exec(ctx, s.insertCall, args...)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: upsert call %s", call.CallID)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) CreateCall(ctx context.Context, call *model.Call) error {
	inserted, err := s.UpsertCall(ctx, call)
	if err != nil {
		return err
	}
	if !inserted {
		return eris.Wrapf(ErrDuplicate, "call %s", call.CallID)
	}
	return nil
}

func (s *PostgresStore) UpdateCall(ctx context.Context, id string, patch CallPatch) (*model.Call, error) {
	if err := patch.Validate(); err != nil {
		return nil, err
	}
	if !patch.Empty() {
		query, args := buildPatch(id, patch, db.Dollar)
		tag, err := s.pool.Exec(ctx, query, args...)
		if err != nil {
			return nil, eris.Wrapf(err, "postgres: update call %s", id)
		}
		if tag.RowsAffected() == 0 {
			return nil, eris.Wrapf(ErrNotFound, "call %s", id)
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

func (s *PostgresStore) DeleteCall(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM calls WHERE id = $1`, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete call %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "call %s", id)
	}
	return nil
}

func (s *PostgresStore) DeleteStaleCalls(ctx context.Context, source model.Source, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM calls WHERE source = $1 AND time_received < $2`,
		string(source), before.UnixMilli(),
	)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: delete stale calls for %s", source)
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) RecordRun(ctx context.Context, report *model.Report) (*model.Run, error) {
	run := runFromReport(report, uuid.NewString)
	reportJSON, err := json.Marshal(report)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal report")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO ingest_runs (id, status, report, created_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status, report = EXCLUDED.report`,
		run.ID, string(run.Status), reportJSON, run.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: record run %s", run.ID)
	}
	return run, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query, args := buildListRuns(filter, db.Dollar)
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		var r model.Run
		var status string
		var reportJSON []byte
		if err := rows.Scan(&r.ID, &status, &reportJSON, &r.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		r.Status = model.RunStatus(status)
		r.Report = &model.Report{}
		if err := json.Unmarshal(reportJSON, r.Report); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal report")
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}
