package ingest

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/cad-ingest/internal/model"
	"github.com/sells-group/cad-ingest/internal/store"
)

// dedupGate drops calls already stored or already claimed earlier in the run.
type dedupGate struct {
	store store.Store
}

// check returns the skip reason for c, or "" when c should proceed. The
// in-run claim is taken before the store lookup so that two records with the
// same call_id in one batch cannot both pass.
func (g dedupGate) check(ctx context.Context, st *runState, c *model.Call) (string, error) {
	if !st.markSeen(c.CallID) {
		return model.SkipDuplicateInRun, nil
	}
	existing, err := g.store.FindCalls(ctx, store.CallFilter{CallID: c.CallID, Limit: 1})
	if err != nil {
		return "", eris.Wrapf(err, "ingest: dedup lookup %s", c.CallID)
	}
	if len(existing) > 0 {
		return model.SkipDuplicate, nil
	}
	return "", nil
}
