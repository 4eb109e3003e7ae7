package ingest

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/cad-ingest/internal/model"
	"github.com/sells-group/cad-ingest/internal/store"
)

// writer persists enriched calls and tallies the outcome.
type writer struct {
	store  store.Store
	dryRun bool
}

// write stores c. A store error counts the record as failed and is not
// returned; a row that lost the insert race to another run counts as a
// duplicate.
func (w writer) write(ctx context.Context, st *runState, c *model.Call) {
	if w.dryRun {
		st.saved.Add(1)
		st.addPreview(*c)
		return
	}

	inserted, err := w.store.UpsertCall(ctx, c)
	if err != nil {
		st.failed.Add(1)
		zap.L().Warn("ingest: persist call failed",
			zap.String("call_id", c.CallID),
			zap.String("source", string(c.Source)),
			zap.Error(err),
		)
		return
	}
	if !inserted {
		st.skip(model.SkipDuplicate)
		return
	}
	st.saved.Add(1)
}
