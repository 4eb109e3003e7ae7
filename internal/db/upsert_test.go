package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpsertSQL_DoNothing(t *testing.T) {
	got, err := UpsertSQL(UpsertConfig{
		Table:        "calls",
		Columns:      []string{"id", "call_id", "incident"},
		ConflictKeys: []string{"call_id"},
		DoNothing:    true,
	}, Dollar)
	require.NoError(t, err)
	assert.Equal(t,
		`INSERT INTO "calls" ("id", "call_id", "incident") VALUES ($1, $2, $3) ON CONFLICT ("call_id") DO NOTHING`,
		got)
}

func TestUpsertSQL_UpdateDefaultsToNonKeyColumns(t *testing.T) {
	got, err := UpsertSQL(UpsertConfig{
		Table:        "public.calls",
		Columns:      []string{"call_id", "status"},
		ConflictKeys: []string{"call_id"},
	}, Question)
	require.NoError(t, err)
	assert.Equal(t,
		`INSERT INTO "public"."calls" ("call_id", "status") VALUES (?, ?) ON CONFLICT ("call_id") DO UPDATE SET "status" = EXCLUDED."status"`,
		got)
}

func TestUpsertSQL_OnlyKeysFallsBackToDoNothing(t *testing.T) {
	got, err := UpsertSQL(UpsertConfig{
		Table:        "calls",
		Columns:      []string{"call_id"},
		ConflictKeys: []string{"call_id"},
	}, nil)
	require.NoError(t, err)
	assert.Contains(t, got, "VALUES ($1)")
	assert.Contains(t, got, "DO NOTHING")
}

func TestUpsertSQL_Errors(t *testing.T) {
	_, err := UpsertSQL(UpsertConfig{Columns: []string{"id"}, ConflictKeys: []string{"id"}}, Dollar)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no table specified")

	_, err = UpsertSQL(UpsertConfig{Table: "calls", ConflictKeys: []string{"id"}}, Dollar)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no columns specified")

	_, err = UpsertSQL(UpsertConfig{Table: "calls", Columns: []string{"id"}}, Dollar)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no conflict keys specified")
}

func TestSanitizeTable(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"calls", `"calls"`},
		{"public.ingest_runs", `"public"."ingest_runs"`},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, sanitizeTable(tt.input))
		})
	}
}

func TestQuoteAndJoin(t *testing.T) {
	assert.Equal(t, `"id", "name", "value"`, quoteAndJoin([]string{"id", "name", "value"}))
}
