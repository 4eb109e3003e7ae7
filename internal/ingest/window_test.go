package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWindow_Contains(t *testing.T) {
	start := time.Date(2026, 3, 10, 18, 0, 0, 0, time.UTC)
	w := Window{Start: start, Horizon: 6 * time.Hour}

	tests := []struct {
		name string
		at   time.Time
		want bool
	}{
		{"at boundary", start.Add(-6 * time.Hour), true},
		{"just before boundary", start.Add(-6*time.Hour - time.Millisecond), false},
		{"inside", start.Add(-time.Hour), true},
		{"at start", start, true},
		{"after start", start.Add(5 * time.Minute), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, w.Contains(tt.at))
		})
	}
	assert.Equal(t, start.Add(-6*time.Hour), w.Cutoff())
}

func TestSleep(t *testing.T) {
	require.NoError(t, sleep(context.Background(), 0))
	require.NoError(t, sleep(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleep(ctx, time.Hour), context.Canceled)
	assert.ErrorIs(t, sleep(ctx, 0), context.Canceled)
}

func TestRunState_MarkSeen(t *testing.T) {
	st := newRunState()
	assert.True(t, st.markSeen("a"))
	assert.False(t, st.markSeen("a"))
	assert.True(t, st.markSeen("b"))

	st.skip("x")
	st.skip("x")
	assert.Equal(t, int64(2), st.skipped.Load())
	assert.Equal(t, 2, st.reasons["x"])
}
