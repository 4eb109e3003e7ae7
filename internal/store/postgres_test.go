package store

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/cad-ingest/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	return newPostgresWithPool(mock), mock
}

func callArgMatchers(callID string, extra int) []any {
	args := make([]any, len(pgCallColumns)+extra)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	args[1] = callID
	return args
}

func TestPostgresStore_UpsertCall_Inserted(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO "calls" .* ON CONFLICT \("call_id"\) DO NOTHING`).
		WithArgs(callArgMatchers("chesterfield_1402", 0)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	c := testCall("chesterfield_1402", model.SourceChesterfield, time.Now())
	c.SetCoordinates(37.41, -77.59)
	inserted, err := s.UpsertCall(context.Background(), c)
	require.NoError(t, err)
	assert.True(t, inserted)
	assert.NotEmpty(t, c.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertCall_Conflict(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO "calls"`).
		WithArgs(callArgMatchers("dup", 0)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	inserted, err := s.UpsertCall(context.Background(), testCall("dup", model.SourceRichmond, time.Now()))
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateCall_Duplicate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO "calls"`).
		WithArgs(callArgMatchers("dup", 0)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	err := s.CreateCall(context.Background(), testCall("dup", model.SourceRichmond, time.Now()))
	assert.ErrorIs(t, err, ErrDuplicate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertCall_Error(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO "calls"`).
		WithArgs(callArgMatchers("boom", 0)...).
		WillReturnError(errors.New("connection reset"))

	_, err := s.UpsertCall(context.Background(), testCall("boom", model.SourceRichmond, time.Now()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upsert call boom")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FindCalls_ByCallID(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()
	lat, lon := 37.41, -77.59

	rows := pgxmock.NewRows(callColumns).AddRow(
		"uuid-1", "henrico_1", "Crash", "Broad St", "BROAD ST", "Henrico Police", "Active",
		"medium", &lat, &lon, int64(1700000000000), "henrico", "Crash at Broad St",
		"source", now, now,
	)
	mock.ExpectQuery(`SELECT id, call_id, .* FROM calls WHERE call_id = \$1 ORDER BY time_received DESC, call_id LIMIT \$2`).
		WithArgs("henrico_1", 100).
		WillReturnRows(rows)

	calls, err := s.FindCalls(context.Background(), CallFilter{CallID: "henrico_1"})
	require.NoError(t, err)
	require.Len(t, calls, 1)
	assert.Equal(t, model.SourceHenrico, calls[0].Source)
	assert.Equal(t, model.PriorityMedium, calls[0].Priority)
	require.True(t, calls[0].HasCoordinates())
	assert.InDelta(t, 37.41, *calls[0].Latitude, 1e-9)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DeleteStaleCalls(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	before := time.Now().Add(-24 * time.Hour)

	mock.ExpectExec(`DELETE FROM calls WHERE source = \$1 AND time_received < \$2`).
		WithArgs("chesterfield", before.UnixMilli()).
		WillReturnResult(pgxmock.NewResult("DELETE", 4))

	n, err := s.DeleteStaleCalls(context.Background(), model.SourceChesterfield, before)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DeleteCall_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`DELETE FROM calls WHERE id = \$1`).
		WithArgs("missing").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	err := s.DeleteCall(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateCall_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	status := "Cleared"

	mock.ExpectExec(`UPDATE calls SET status = \$1, updated_at = \$2 WHERE id = \$3`).
		WithArgs("Cleared", pgxmock.AnyArg(), "missing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	_, err := s.UpdateCall(context.Background(), "missing", CallPatch{Status: &status})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_RecordRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO ingest_runs`).
		WithArgs("run-1", "complete", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	run, err := s.RecordRun(context.Background(), &model.Report{RunID: "run-1", Success: true, Timestamp: time.Now()})
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, run.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListRuns(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	report, err := json.Marshal(model.Report{RunID: "run-1", Success: false, Error: "boom"})
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT id, status, report, created_at FROM ingest_runs WHERE status = \$1 ORDER BY created_at DESC LIMIT \$2`).
		WithArgs("failed", 10).
		WillReturnRows(pgxmock.NewRows([]string{"id", "status", "report", "created_at"}).
			AddRow("run-1", "failed", report, time.Now()))

	runs, err := s.ListRuns(context.Background(), RunFilter{Status: model.RunStatusFailed, Limit: 10})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, model.RunStatusFailed, runs[0].Status)
	assert.Equal(t, "boom", runs[0].Report.Error)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS calls`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
