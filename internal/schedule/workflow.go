// Package schedule runs ingestion periodically as a Temporal workflow.
package schedule

import (
	"context"
	"time"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
	"go.uber.org/zap"

	"github.com/sells-group/cad-ingest/internal/ingest"
	"github.com/sells-group/cad-ingest/internal/model"
	"github.com/sells-group/cad-ingest/internal/monitoring"
)

// activityTimeout bounds one ingestion activity. It sits above the engine's
// own run timeout so the engine reports the deadline itself.
const activityTimeout = 15 * time.Minute

// WorkflowInput selects what a scheduled run does.
type WorkflowInput struct {
	Sources []string `json:"sources,omitempty"`
	DryRun  bool     `json:"dry_run,omitempty"`
}

// Runner executes one ingestion run.
type Runner interface {
	Run(ctx context.Context, opts ingest.RunOptions) (*model.Report, error)
}

// Activities hosts the ingestion activity.
type Activities struct {
	Runner   Runner
	Reporter *monitoring.Reporter
}

// RunIngest runs the engine once. A run that fails after starting still
// returns its report without error: it has been recorded, and the next
// scheduled run retries it idempotently. Only a run that could not start
// fails the activity.
func (a *Activities) RunIngest(ctx context.Context, in WorkflowInput) (*model.Report, error) {
	info := activity.GetInfo(ctx)
	log := zap.L().With(
		zap.String("workflow_id", info.WorkflowExecution.ID),
		zap.Int32("attempt", info.Attempt),
	)

	report, err := a.Runner.Run(ctx, ingest.RunOptions{Sources: in.Sources, DryRun: in.DryRun})
	if report == nil {
		return nil, temporal.NewNonRetryableApplicationError("ingest run could not start", "IngestSetupError", err)
	}
	if err != nil {
		a.Reporter.CaptureRun(report)
		log.Warn("schedule: ingest run failed", zap.String("run_id", report.RunID), zap.Error(err))
	}
	return report, nil
}

// IngestWorkflow runs one ingestion activity and returns its report.
func IngestWorkflow(ctx workflow.Context, in WorkflowInput) (*model.Report, error) {
	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: activityTimeout,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    30 * time.Second,
			BackoffCoefficient: 2,
			MaximumAttempts:    3,
		},
	})

	var a *Activities
	var report model.Report
	if err := workflow.ExecuteActivity(ctx, a.RunIngest, in).Get(ctx, &report); err != nil {
		return nil, err
	}
	workflow.GetLogger(ctx).Info("ingest workflow complete",
		"run_id", report.RunID,
		"success", report.Success,
		"saved", report.Saved,
	)
	return &report, nil
}
