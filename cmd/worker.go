package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.uber.org/zap"

	"github.com/sells-group/cad-ingest/internal/schedule"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the Temporal worker that ingests on a schedule",
	Long:  "Registers the periodic ingestion schedule (if missing) and runs the worker that executes it until interrupted.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("temporal"); err != nil {
			return err
		}
		ctx := cmd.Context()

		env, err := initIngest(ctx, prometheus.DefaultRegisterer)
		if err != nil {
			return err
		}
		defer env.Close()

		c, err := client.Dial(client.Options{
			HostPort:  cfg.Temporal.HostPort,
			Namespace: cfg.Temporal.Namespace,
		})
		if err != nil {
			return eris.Wrap(err, "temporal dial")
		}
		defer c.Close()

		if err := schedule.EnsureSchedule(ctx, c.ScheduleClient(), cfg.Temporal); err != nil {
			return err
		}

		w := schedule.NewWorker(c, cfg.Temporal.TaskQueue, &schedule.Activities{
			Runner:   env.Engine,
			Reporter: env.Reporter,
		})

		zap.L().Info("starting worker",
			zap.String("host_port", cfg.Temporal.HostPort),
			zap.String("task_queue", cfg.Temporal.TaskQueue),
		)
		if err := w.Run(worker.InterruptCh()); err != nil {
			return eris.Wrap(err, "worker run")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
}
