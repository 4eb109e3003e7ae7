package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/cad-ingest/internal/store"
)

func initStore(ctx context.Context) (store.Store, error) {
	if err := cfg.Validate("store"); err != nil {
		return nil, err
	}
	opts := store.Options{
		Driver:      cfg.Store.Driver,
		DatabaseURL: cfg.Store.DatabaseURL,
	}
	if cfg.Store.MaxConns > 0 || cfg.Store.MinConns > 0 {
		opts.Pool = &store.PoolConfig{MaxConns: cfg.Store.MaxConns, MinConns: cfg.Store.MinConns}
	}
	return store.Open(ctx, opts)
}

// openStore connects and applies the schema. Callers close the store.
func openStore(ctx context.Context) (store.Store, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}
