package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/cad-ingest/internal/db"
	"github.com/sells-group/cad-ingest/internal/model"
)

func TestBuildFindCalls(t *testing.T) {
	since := time.UnixMilli(1700000000000)
	query, args := buildFindCalls(CallFilter{
		Source: model.SourceRichmond,
		Status: "Active",
		Since:  since,
		Limit:  5000,
		Offset: 20,
	}, db.Dollar)

	assert.Contains(t, query, "WHERE source = $1 AND status = $2 AND time_received >= $3")
	assert.Contains(t, query, "LIMIT $4 OFFSET $5")
	assert.Equal(t, []any{"richmond", "Active", int64(1700000000000), maxCallLimit, 20}, args)
}

func TestBuildFindCalls_NoFilter(t *testing.T) {
	query, args := buildFindCalls(CallFilter{}, db.Question)
	assert.NotContains(t, query, "WHERE")
	assert.Contains(t, query, "LIMIT ?")
	assert.Equal(t, []any{defaultCallLimit}, args)
}

func TestBuildListRuns(t *testing.T) {
	after := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	query, args := buildListRuns(RunFilter{Status: model.RunStatusFailed, CreatedAfter: after, Offset: 5}, db.Dollar)

	assert.Contains(t, query, "WHERE status = $1 AND created_at >= $2 ORDER BY created_at DESC")
	assert.Contains(t, query, "LIMIT $3 OFFSET $4")
	assert.Equal(t, []any{"failed", after, defaultRunLimit, 5}, args)

	query, args = buildListRuns(RunFilter{}, db.Question)
	assert.NotContains(t, query, "WHERE")
	assert.Equal(t, []any{defaultRunLimit}, args)
}

func TestBuildPatch(t *testing.T) {
	status := " Cleared "
	prio := model.PriorityLow
	query, args := buildPatch("id-1", CallPatch{Status: &status, Priority: &prio}, db.Dollar)
	assert.Equal(t, "UPDATE calls SET status = $1, priority = $2, updated_at = $3 WHERE id = $4", query)
	require.Len(t, args, 4)
	assert.Equal(t, "Cleared", args[0])
	assert.Equal(t, "low", args[1])
	assert.Equal(t, "id-1", args[3])
}

func TestCallPatch_Validate(t *testing.T) {
	blank := "  "
	assert.ErrorIs(t, CallPatch{Status: &blank}.Validate(), ErrInvalidPatch)

	bad := model.Priority("urgent")
	assert.ErrorIs(t, CallPatch{Priority: &bad}.Validate(), ErrInvalidPatch)

	assert.NoError(t, CallPatch{}.Validate())
	assert.True(t, CallPatch{}.Empty())
}

func TestPrepareInsert(t *testing.T) {
	c := &model.Call{CallID: "x"}
	require.NoError(t, prepareInsert(c, func() string { return "fixed" }))
	assert.Equal(t, "fixed", c.ID)
	assert.Equal(t, model.PriorityMedium, c.Priority)
	assert.False(t, c.CreatedAt.IsZero())

	assert.Error(t, prepareInsert(&model.Call{}, func() string { return "" }))
}

func TestRunFromReport(t *testing.T) {
	r := &model.Report{Success: false}
	run := runFromReport(r, func() string { return "gen" })
	assert.Equal(t, "gen", run.ID)
	assert.Equal(t, "gen", r.RunID)
	assert.Equal(t, model.RunStatusFailed, run.Status)
}
