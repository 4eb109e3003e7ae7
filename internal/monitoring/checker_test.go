package monitoring

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/cad-ingest/internal/config"
	"github.com/sells-group/cad-ingest/internal/model"
)

func TestChecker_RunStopsOnCancel(t *testing.T) {
	cfg := config.MonitoringConfig{CheckIntervalSecs: 1, LookbackWindowHours: 6}
	checker := NewChecker(newTestCollector(&mockRuns{}, 3), NewAlerter(cfg), cfg)

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		checker.Run(ctx)
		close(done)
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Checker.Run did not stop after context cancellation")
	}
}

func TestChecker_DefaultInterval(t *testing.T) {
	checker := NewChecker(newTestCollector(&mockRuns{}, 3), NewAlerter(config.MonitoringConfig{}), config.MonitoringConfig{})
	assert.Equal(t, 5*time.Minute, checker.Interval())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	checker.Run(ctx)
}

func TestChecker_Check(t *testing.T) {
	runs := &mockRuns{runs: []model.Run{
		run(time.Minute, false, 0, 0, rows(model.SourceRichmond, 0)),
		run(2*time.Minute, false, 0, 0, rows(model.SourceRichmond, 0)),
		run(3*time.Minute, false, 0, 0, rows(model.SourceRichmond, 0)),
	}}
	cfg := testMonitoringConfig()
	cfg.LookbackWindowHours = 6
	reporter, transport := newTestReporter(t)

	checker := NewChecker(newTestCollector(runs, cfg.EmptySourceRuns), NewAlerter(cfg, WithReporter(reporter)), cfg)
	alerts := checker.Check(context.Background())

	require.Len(t, alerts, 2)
	assert.Equal(t, AlertRunFailureRate, alerts[0].Type)
	assert.Equal(t, AlertEmptySource, alerts[1].Type)
	assert.Len(t, transport.Events(), 2)
}

func TestChecker_CheckCollectError(t *testing.T) {
	cfg := testMonitoringConfig()
	checker := NewChecker(newTestCollector(&mockRuns{listErr: assert.AnError}, 3), NewAlerter(cfg), cfg)
	assert.Nil(t, checker.Check(context.Background()))
}
