package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/cad-ingest/internal/model"
	"github.com/sells-group/cad-ingest/internal/store"
)

var callsCmd = &cobra.Command{
	Use:   "calls",
	Short: "List stored active calls",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		src, _ := cmd.Flags().GetString("source")
		status, _ := cmd.Flags().GetString("status")
		since, _ := cmd.Flags().GetDuration("since")
		limit, _ := cmd.Flags().GetInt("limit")

		filter := store.CallFilter{Status: status, Limit: limit}
		if src != "" {
			s, err := model.ParseSource(src)
			if err != nil {
				return err
			}
			filter.Source = s
		}
		if since > 0 {
			filter.Since = time.Now().Add(-since)
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		calls, err := st.FindCalls(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "calls list")
		}
		if len(calls) == 0 {
			fmt.Fprintln(os.Stderr, "No calls found.")
			return nil
		}
		formatCalls(os.Stdout, calls)
		return nil
	},
}

func formatCalls(out io.Writer, calls []model.Call) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "RECEIVED\tSOURCE\tPRIORITY\tINCIDENT\tLOCATION\tAGENCY\tCOORDS")
	_, _ = fmt.Fprintln(w, "--------\t------\t--------\t--------\t--------\t------\t------")
	for i := range calls {
		c := &calls[i]
		coords := "-"
		if c.HasCoordinates() {
			coords = fmt.Sprintf("%.5f,%.5f", *c.Latitude, *c.Longitude)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			c.TimeReceived().Local().Format("2006-01-02 15:04"),
			c.Source,
			c.Priority,
			truncate(c.Incident, 30),
			truncate(c.Location, 40),
			c.Agency,
			coords,
		)
	}
	_ = w.Flush()
}

// truncate shortens s to n runes for compact display.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

func init() {
	callsCmd.Flags().String("source", "", "filter by source")
	callsCmd.Flags().String("status", "", "filter by call status")
	callsCmd.Flags().Duration("since", 0, "only calls received within this window (e.g. 6h)")
	callsCmd.Flags().Int("limit", 100, "max number of calls to display")
	rootCmd.AddCommand(callsCmd)
}
