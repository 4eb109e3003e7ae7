package main

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/cad-ingest/internal/extract"
	"github.com/sells-group/cad-ingest/internal/fetcher"
	"github.com/sells-group/cad-ingest/internal/ingest"
	"github.com/sells-group/cad-ingest/internal/metrics"
	"github.com/sells-group/cad-ingest/internal/monitoring"
	"github.com/sells-group/cad-ingest/internal/normalize"
	"github.com/sells-group/cad-ingest/internal/resilience"
	"github.com/sells-group/cad-ingest/internal/source"
	"github.com/sells-group/cad-ingest/internal/store"
	"github.com/sells-group/cad-ingest/pkg/geocode"
)

// jurisdictionCenters anchors the geocode confidence gate.
var jurisdictionCenters = map[string]geocode.Point{
	"Chesterfield County, Virginia": {Lat: 37.3771, Lon: -77.5050},
	"Richmond City, Virginia":       {Lat: 37.5407, Lon: -77.4360},
	"Henrico County, Virginia":      {Lat: 37.5500, Lon: -77.4100},
	"Hanover County, Virginia":      {Lat: 37.7600, Lon: -77.4900},
}

// ingestEnv holds everything the ingest, serve and worker commands share.
type ingestEnv struct {
	Store    store.Store
	Catalog  *source.Catalog
	Registry *source.Registry
	Engine   *ingest.Engine
	Metrics  *metrics.IngestMetrics
	Reporter *monitoring.Reporter
}

// Close flushes error reports and releases the store.
func (ie *ingestEnv) Close() {
	ie.Reporter.Flush(2 * time.Second)
	if ie.Store != nil {
		_ = ie.Store.Close()
	}
}

// initIngest opens the store and builds the engine with every collaborator.
// Metrics register on registerer. Callers should defer env.Close().
func initIngest(ctx context.Context, registerer prometheus.Registerer) (*ingestEnv, error) {
	if err := cfg.Validate("ingest"); err != nil {
		return nil, err
	}
	loc, err := cfg.Ingest.Location()
	if err != nil {
		return nil, err
	}
	cat, err := source.LoadCatalog(cfg.SourcesFile)
	if err != nil {
		return nil, err
	}

	if budget := cfg.UncachedCallBudget(); budget > 0 {
		zap.L().Info("geocode budget per run",
			zap.Int("uncached_calls", budget),
			zap.Duration("run_timeout", cfg.Ingest.RunTimeout()),
		)
	}

	m, err := metrics.New(registerer)
	if err != nil {
		return nil, err
	}

	reporter, err := monitoring.InitSentry(cfg.Sentry, "cad-ingest@"+version)
	if err != nil {
		zap.L().Warn("sentry disabled", zap.Error(err))
		reporter = nil
	}

	llm := initCompleter()
	registry, err := initRegistry(cat, llm, m)
	if err != nil {
		return nil, err
	}

	resolver, err := initGeocoder(llm, m)
	if err != nil {
		return nil, err
	}

	st, err := openStore(ctx)
	if err != nil {
		return nil, err
	}

	engine := ingest.New(registry, normalize.New(cat, loc), st, resolver, m, ingest.OptionsFromConfig(cfg.Ingest))

	zap.L().Info("ingest engine ready",
		zap.Int("sources", len(registry.Names())),
		zap.String("store", cfg.Store.Driver),
		zap.Bool("ai_extract", llm != nil),
	)

	return &ingestEnv{
		Store:    st,
		Catalog:  cat,
		Registry: registry,
		Engine:   engine,
		Metrics:  m,
		Reporter: reporter,
	}, nil
}

// initCompleter returns the configured LLM, or nil when extraction is off
// or its key is missing. Sources that need it then fail on their own.
func initCompleter() extract.Completer {
	if err := cfg.Validate("extract"); err != nil {
		zap.L().Warn("ai extraction disabled", zap.Error(err))
		return nil
	}
	llm, err := extract.New(cfg)
	if err != nil {
		zap.L().Warn("ai extraction disabled", zap.Error(err))
		return nil
	}
	return llm
}

func breakerHook(m *metrics.IngestMetrics) func(string, resilience.State, resilience.State) {
	return func(name string, from, to resilience.State) {
		zap.L().Info("circuit breaker state change",
			zap.String("breaker", name),
			zap.String("from", from.String()),
			zap.String("to", to.String()),
		)
		m.SetBreakerOpen(name, to == resilience.Open)
	}
}

func initRegistry(cat *source.Catalog, llm extract.Completer, m *metrics.IngestMetrics) (*source.Registry, error) {
	f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgent:   cfg.Fetch.UserAgent,
		Timeout:     time.Duration(cfg.Fetch.TimeoutSecs) * time.Second,
		MaxRetries:  cfg.Fetch.MaxRetries,
		MaxBodySize: int64(cfg.Fetch.MaxBodyMB) << 20,
		Breakers: resilience.NewBreakerSet(resilience.BreakerConfig{
			Failures: 5,
			Cooldown: time.Minute,
			Counts:   resilience.IsTransient,
			OnChange: breakerHook(m),
		}),
	})

	deps := source.Deps{Fetcher: f, UserAgent: cfg.Fetch.UserAgent}
	if llm != nil {
		deps.Extractor = extract.NewExtractor(llm, cfg.Extract.MaxInputChars, cfg.Extract.MaxOutputTokens)
	}
	reg, err := source.Build(cat, deps)
	if err != nil {
		return nil, eris.Wrap(err, "build source registry")
	}
	return reg, nil
}

func initGeocoder(llm extract.Completer, m *metrics.IngestMetrics) (*geocode.Resolver, error) {
	opts := []geocode.Option{
		geocode.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.Geocode.TimeoutSecs) * time.Second}),
		geocode.WithMinDelay(cfg.Geocode.MinDelay()),
		geocode.WithBreaker(resilience.NewBreaker("geocode", resilience.BreakerConfig{
			Failures: cfg.Geocode.BreakerFailures,
			Cooldown: time.Minute,
			OnChange: breakerHook(m),
		})),
	}
	if cfg.Geocode.BaseURL != "" {
		opts = append(opts, geocode.WithBaseURL(cfg.Geocode.BaseURL))
	}
	if cfg.Geocode.CountryCodes != "" {
		opts = append(opts, geocode.WithCountryCodes(cfg.Geocode.CountryCodes))
	}
	if cfg.Geocode.Email != "" {
		opts = append(opts, geocode.WithEmail(cfg.Geocode.Email))
	}

	client, err := geocode.NewClient(cfg.Geocode.UserAgent, opts...)
	if err != nil {
		return nil, err
	}
	if ttl := time.Duration(cfg.Geocode.CacheTTLMinutes) * time.Minute; ttl > 0 {
		client = geocode.NewCachedClient(client, ttl)
	}

	var ropts []geocode.ResolverOption
	if cfg.Geocode.AIRewrite && llm != nil {
		ropts = append(ropts, geocode.WithRewriter(extract.NewRewriter(llm)))
	}
	if gate := geocode.NewConfidenceGate(cfg.Geocode.MaxDistanceKM, jurisdictionCenters); gate != nil {
		ropts = append(ropts, geocode.WithConfidenceGate(gate))
	}
	return geocode.NewResolver(client, ropts...), nil
}
