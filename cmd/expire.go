package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/cad-ingest/internal/ingest"
	"github.com/sells-group/cad-ingest/internal/model"
)

var expireCmd = &cobra.Command{
	Use:   "expire",
	Short: "Delete stored calls older than the retention horizon",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		names, _ := cmd.Flags().GetStringSlice("sources")
		olderThan, _ := cmd.Flags().GetDuration("older-than")
		if olderThan <= 0 {
			olderThan = cfg.Ingest.Retention()
		}
		if olderThan <= 0 {
			return eris.New("expire: retention must be positive (--older-than or ingest.retention_hours)")
		}

		sources, err := parseSources(names)
		if err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		deleted, err := ingest.Expire(ctx, st, sources, time.Now().Add(-olderThan))
		if err != nil {
			return eris.Wrap(err, "expire")
		}
		for _, src := range sources {
			fmt.Fprintf(os.Stdout, "%s\t%d\n", src, deleted[src])
		}
		return nil
	},
}

// parseSources maps names onto sources, or every known source when names is empty.
func parseSources(names []string) ([]model.Source, error) {
	if len(names) == 0 {
		return model.AllSources(), nil
	}
	out := make([]model.Source, 0, len(names))
	for _, n := range names {
		src, err := model.ParseSource(n)
		if err != nil {
			return nil, err
		}
		out = append(out, src)
	}
	return out, nil
}

func init() {
	expireCmd.Flags().StringSlice("sources", nil, "comma-separated sources to expire (default: all)")
	expireCmd.Flags().Duration("older-than", 0, "age cutoff (default: ingest.retention_hours)")
	rootCmd.AddCommand(expireCmd)
}
