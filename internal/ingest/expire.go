package ingest

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/cad-ingest/internal/model"
	"github.com/sells-group/cad-ingest/internal/store"
)

// Expire deletes calls of each source received before the cutoff and
// returns the per-source counts. It stops at the first store error.
func Expire(ctx context.Context, st store.Store, sources []model.Source, before time.Time) (map[model.Source]int64, error) {
	out := make(map[model.Source]int64, len(sources))
	for _, src := range sources {
		n, err := st.DeleteStaleCalls(ctx, src, before)
		if err != nil {
			return out, eris.Wrapf(err, "ingest: expire %s", src)
		}
		out[src] = n
		zap.L().Info("ingest: expired stale calls",
			zap.String("source", string(src)),
			zap.Time("before", before),
			zap.Int64("deleted", n),
		)
	}
	return out, nil
}

// expireAfterRun prunes sources marked expire_stale whose fetch succeeded in
// this run. It runs after all inserts so a failed run never loses data.
func (e *Engine) expireAfterRun(ctx context.Context, st *runState, runStart time.Time) {
	if e.opts.Retention <= 0 {
		return
	}
	cutoff := runStart.Add(-e.opts.Retention)

	st.mu.Lock()
	var eligible []model.Source
	for _, sr := range st.sources {
		cfg, ok := e.registry.Config(sr.Source)
		if ok && cfg.ExpireStale && sr.OK() {
			eligible = append(eligible, sr.Source)
		}
	}
	st.mu.Unlock()

	for _, src := range eligible {
		counts, err := Expire(ctx, e.store, []model.Source{src}, cutoff)
		if err != nil {
			zap.L().Warn("ingest: expiry failed", zap.String("source", string(src)), zap.Error(err))
			continue
		}
		st.expired.Add(counts[src])
		e.metrics.ObserveExpired(src, counts[src])
	}
}
