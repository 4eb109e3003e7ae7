package main

import (
	"encoding/json"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/cad-ingest/internal/ingest"
	"github.com/sells-group/cad-ingest/internal/model"
)

var (
	ingestSources []string
	ingestDryRun  bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Run one ingestion pass over the configured sources",
	Long:  "Fetches every selected source, normalizes, deduplicates, geocodes and classifies the calls, stores the new ones, expires stale calls, and prints the run report as JSON.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initIngest(ctx, prometheus.DefaultRegisterer)
		if err != nil {
			return err
		}
		defer env.Close()

		report, runErr := env.Engine.Run(ctx, ingest.RunOptions{Sources: ingestSources, DryRun: ingestDryRun})
		if report == nil {
			return runErr
		}
		env.Reporter.CaptureRun(report)

		if err := writeReport(os.Stdout, report); err != nil {
			return err
		}
		if runErr != nil {
			return eris.Wrap(runErr, "ingest run")
		}
		return nil
	},
}

func writeReport(w io.Writer, report *model.Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return eris.Wrap(err, "encode report")
	}
	return nil
}

func init() {
	ingestCmd.Flags().StringSliceVar(&ingestSources, "sources", nil, "comma-separated sources to run (default: all enabled)")
	ingestCmd.Flags().BoolVar(&ingestDryRun, "dry-run", false, "normalize and print calls without storing them")
	rootCmd.AddCommand(ingestCmd)
}
