package schedule

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/worker"
	"go.uber.org/zap"

	"github.com/sells-group/cad-ingest/internal/config"
)

// ScheduleCreator is the part of client.ScheduleClient used here.
type ScheduleCreator interface {
	Create(ctx context.Context, options client.ScheduleOptions) (client.ScheduleHandle, error)
}

// Options builds the periodic schedule for cfg. Overlapping runs are
// skipped rather than queued.
func Options(cfg config.TemporalConfig) client.ScheduleOptions {
	every := time.Duration(cfg.IntervalMins) * time.Minute
	if every <= 0 {
		every = 5 * time.Minute
	}
	return client.ScheduleOptions{
		ID: cfg.ScheduleID,
		Spec: client.ScheduleSpec{
			Intervals: []client.ScheduleIntervalSpec{{Every: every}},
		},
		Action: &client.ScheduleWorkflowAction{
			ID:        cfg.ScheduleID + "-run",
			Workflow:  IngestWorkflow,
			Args:      []any{WorkflowInput{}},
			TaskQueue: cfg.TaskQueue,
		},
		Overlap: enumspb.SCHEDULE_OVERLAP_POLICY_SKIP,
	}
}

// EnsureSchedule creates the periodic schedule. An existing schedule with
// the same ID is left as it is.
func EnsureSchedule(ctx context.Context, sc ScheduleCreator, cfg config.TemporalConfig) error {
	_, err := sc.Create(ctx, Options(cfg))
	if errors.Is(err, temporal.ErrScheduleAlreadyRunning) {
		zap.L().Info("schedule: already registered", zap.String("schedule_id", cfg.ScheduleID))
		return nil
	}
	if err != nil {
		return eris.Wrapf(err, "schedule: create %s", cfg.ScheduleID)
	}
	zap.L().Info("schedule: created",
		zap.String("schedule_id", cfg.ScheduleID),
		zap.Int("interval_mins", cfg.IntervalMins),
	)
	return nil
}

// NewWorker registers the workflow and activities on the task queue.
func NewWorker(c client.Client, taskQueue string, acts *Activities) worker.Worker {
	w := worker.New(c, taskQueue, worker.Options{MaxConcurrentActivityExecutionSize: 1})
	w.RegisterWorkflow(IngestWorkflow)
	w.RegisterActivity(acts)
	return w
}
