// Package ingest runs the call ingestion pipeline: fetch every source,
// normalize and filter the rows, then dedup, geocode, classify and persist
// each call in small concurrent batches.
package ingest

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/cad-ingest/internal/config"
	"github.com/sells-group/cad-ingest/internal/metrics"
	"github.com/sells-group/cad-ingest/internal/model"
	"github.com/sells-group/cad-ingest/internal/normalize"
	"github.com/sells-group/cad-ingest/internal/priority"
	"github.com/sells-group/cad-ingest/internal/source"
	"github.com/sells-group/cad-ingest/internal/store"
	"github.com/sells-group/cad-ingest/pkg/geocode"
)

// StrategySource marks calls whose coordinates came from the feed itself.
const StrategySource = "source"

// ErrAllSourcesFailed is reported when no selected adapter fetched successfully.
var ErrAllSourcesFailed = eris.New("ingest: all sources failed")

// Geocoder resolves a call location to coordinates. A nil result means the
// location could not be resolved.
type Geocoder interface {
	Resolve(ctx context.Context, q geocode.Query) (*geocode.Result, error)
}

// Options tunes an Engine.
type Options struct {
	Window            time.Duration
	BatchSize         int
	BatchDelay        time.Duration
	SourceConcurrency int
	RunTimeout        time.Duration
	Retention         time.Duration

	// Now is the run clock. Default: time.Now.
	Now func() time.Time
}

// OptionsFromConfig maps the ingest settings onto engine options.
func OptionsFromConfig(cfg config.IngestConfig) Options {
	return Options{
		Window:            cfg.Window(),
		BatchSize:         cfg.BatchSize,
		BatchDelay:        cfg.BatchDelay(),
		SourceConcurrency: cfg.SourceConcurrency,
		RunTimeout:        cfg.RunTimeout(),
		Retention:         cfg.Retention(),
	}
}

func (o *Options) defaults() {
	if o.Window <= 0 {
		o.Window = 6 * time.Hour
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 10
	}
	if o.BatchDelay < 0 {
		o.BatchDelay = 0
	}
	if o.SourceConcurrency <= 0 {
		o.SourceConcurrency = 4
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// RunOptions selects what a single run does.
type RunOptions struct {
	// Sources limits the run to the named sources. Empty runs every source.
	Sources []string
	// DryRun skips persistence and expiry and returns the calls in the report.
	DryRun bool
}

// Engine orchestrates ingestion runs. It is safe to run concurrently; each
// run owns its state.
type Engine struct {
	registry   *source.Registry
	normalizer *normalize.Normalizer
	store      store.Store
	geocoder   Geocoder
	metrics    *metrics.IngestMetrics
	dedup      dedupGate
	opts       Options
}

// New creates an Engine. geocoder and m may be nil.
func New(reg *source.Registry, norm *normalize.Normalizer, st store.Store, geocoder Geocoder, m *metrics.IngestMetrics, opts Options) *Engine {
	opts.defaults()
	return &Engine{
		registry:   reg,
		normalizer: norm,
		store:      st,
		geocoder:   geocoder,
		metrics:    m,
		dedup:      dedupGate{store: st},
		opts:       opts,
	}
}

// Run executes one ingestion run and returns its report. Per-source and
// per-record failures are counted in the report; the error is non-nil only
// when the run itself failed, in which case the report carries
// Success=false and is still recorded.
func (e *Engine) Run(ctx context.Context, ro RunOptions) (*model.Report, error) {
	adapters, err := e.registry.Select(ro.Sources)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: select sources")
	}

	began := time.Now()
	runStart := e.opts.Now().UTC()
	report := &model.Report{
		RunID:     uuid.NewString(),
		Timestamp: runStart,
		DryRun:    ro.DryRun,
	}
	log := zap.L().With(
		zap.String("run_id", report.RunID),
		zap.Int("sources", len(adapters)),
		zap.Bool("dry_run", ro.DryRun),
	)
	log.Info("ingest: starting run")

	if e.opts.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.RunTimeout)
		defer cancel()
	}

	st := newRunState()
	runErr := e.run(ctx, st, adapters, runStart, ro.DryRun)

	st.fill(report)
	report.DurationMS = time.Since(began).Milliseconds()
	report.Success = runErr == nil
	if runErr != nil {
		report.Error = runErr.Error()
	}

	if !ro.DryRun {
		e.record(ctx, report)
		e.metrics.ObserveRun(report)
	}

	fields := []zap.Field{
		zap.Bool("success", report.Success),
		zap.Int("scraped", report.Scraped),
		zap.Int("saved", report.Saved),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed),
		zap.Int("geocoded", report.Geocoded),
		zap.Int("expired", report.Expired),
		zap.Int64("duration_ms", report.DurationMS),
	}
	if runErr != nil {
		log.Error("ingest: run failed", append(fields, zap.Error(runErr))...)
		return report, runErr
	}
	log.Info("ingest: run complete", fields...)
	return report, nil
}

func (e *Engine) run(ctx context.Context, st *runState, adapters []source.Adapter, runStart time.Time, dryRun bool) error {
	rows := e.fetchAll(ctx, st, adapters)
	if err := ctx.Err(); err != nil {
		return eris.Wrap(err, "ingest: fetch")
	}

	calls := e.prepare(st, rows, runStart)
	if err := e.processAll(ctx, st, calls, writer{store: e.store, dryRun: dryRun}); err != nil {
		return err
	}

	if !dryRun {
		e.expireAfterRun(ctx, st, runStart)
	}

	if len(adapters) > 0 && allFailed(st) {
		return ErrAllSourcesFailed
	}
	return nil
}

// fetchAll runs the adapters concurrently. A failing adapter contributes no
// rows and an error entry in its source report; it never cancels the others.
// Rows are returned in adapter order.
func (e *Engine) fetchAll(ctx context.Context, st *runState, adapters []source.Adapter) [][]source.RawRow {
	results := make([][]source.RawRow, len(adapters))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.SourceConcurrency)
	for i, a := range adapters {
		g.Go(func() error {
			results[i] = e.fetchOne(gctx, st, a)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (e *Engine) fetchOne(ctx context.Context, st *runState, a source.Adapter) []source.RawRow {
	timeout := source.SourceConfig{}.Timeout()
	if cfg, ok := e.registry.Config(a.Name()); ok {
		timeout = cfg.Timeout()
	}
	fctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	rows, err := a.Fetch(fctx)
	sr := model.SourceReport{
		Source:     a.Name(),
		Rows:       len(rows),
		DurationMS: time.Since(start).Milliseconds(),
	}
	if err != nil {
		rows = nil
		sr.Rows = 0
		sr.Error = err.Error()
		zap.L().Warn("ingest: source fetch failed",
			zap.String("source", string(a.Name())),
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
	} else {
		zap.L().Debug("ingest: source fetched",
			zap.String("source", string(a.Name())),
			zap.Int("rows", len(rows)),
		)
	}
	st.addSource(sr)
	e.metrics.ObserveSource(sr)
	return rows
}

// prepare normalizes every row and drops those outside the window.
func (e *Engine) prepare(st *runState, rows [][]source.RawRow, runStart time.Time) []*model.Call {
	win := Window{Start: runStart, Horizon: e.opts.Window}

	var calls []*model.Call
	for _, batch := range rows {
		st.scraped.Add(int64(len(batch)))
		for _, row := range batch {
			c, err := e.normalizer.Normalize(row, runStart)
			if err != nil {
				if reason := normalize.SkipReason(err); reason != "" {
					st.skip(reason)
					continue
				}
				st.failed.Add(1)
				zap.L().Warn("ingest: normalize failed",
					zap.String("source", string(row.Source)),
					zap.Error(err),
				)
				continue
			}
			if !win.Contains(c.TimeReceived()) {
				st.skip(model.SkipOutsideWindow)
				continue
			}
			calls = append(calls, c)
		}
	}
	return calls
}

// processAll runs calls in fixed-size batches. Records within a batch run
// concurrently; the engine pauses between batches to stay polite to the
// geocoder.
func (e *Engine) processAll(ctx context.Context, st *runState, calls []*model.Call, w writer) error {
	size := e.opts.BatchSize
	for start := 0; start < len(calls); start += size {
		if start > 0 {
			if err := sleep(ctx, e.opts.BatchDelay); err != nil {
				return eris.Wrap(err, "ingest: batch delay")
			}
		}
		end := min(start+size, len(calls))

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(size)
		for _, c := range calls[start:end] {
			g.Go(func() error {
				return e.process(gctx, st, w, c)
			})
		}
		if err := g.Wait(); err != nil {
			return eris.Wrapf(err, "ingest: batch at %d", start)
		}
	}
	return nil
}

// process takes one call through dedup, geocoding, classification and
// persistence. Only cancellation is returned; every other failure is
// counted and the call is dropped or persisted as far as it got.
func (e *Engine) process(ctx context.Context, st *runState, w writer, c *model.Call) error {
	reason, err := e.dedup.check(ctx, st, c)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		st.failed.Add(1)
		zap.L().Warn("ingest: dedup failed", zap.String("call_id", c.CallID), zap.Error(err))
		return nil
	}
	if reason != "" {
		st.skip(reason)
		return nil
	}

	if err := e.locate(ctx, st, c); err != nil {
		return err
	}
	c.Priority = priority.Classify(c.Incident, c.Description)

	w.write(ctx, st, c)
	return nil
}

// locate fills in coordinates. Feed-supplied coordinates are kept as-is; an
// unresolved location leaves the call without coordinates.
func (e *Engine) locate(ctx context.Context, st *runState, c *model.Call) error {
	if c.HasCoordinates() {
		c.GeocodeStrategy = StrategySource
		e.metrics.ObserveGeocode(StrategySource)
		return nil
	}
	if e.geocoder == nil {
		return nil
	}

	res, err := e.geocoder.Resolve(ctx, geocode.Query{
		Location:     c.Location,
		RawLocation:  c.RawLocation,
		Jurisdiction: c.Jurisdiction,
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		zap.L().Warn("ingest: geocode failed", zap.String("call_id", c.CallID), zap.Error(err))
		res = nil
	}
	if res == nil {
		e.metrics.ObserveGeocode("")
		return nil
	}

	c.SetCoordinates(res.Point.Lat, res.Point.Lon)
	c.GeocodeStrategy = string(res.Strategy)
	st.geocoded.Add(1)
	e.metrics.ObserveGeocode(c.GeocodeStrategy)
	return nil
}

// record appends the report to the run log. A cancelled run is still
// recorded, so the write detaches from ctx's cancellation.
func (e *Engine) record(ctx context.Context, report *model.Report) {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if _, err := e.store.RecordRun(rctx, report); err != nil {
		zap.L().Error("ingest: record run failed", zap.String("run_id", report.RunID), zap.Error(err))
	}
}

func allFailed(st *runState) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	if len(st.sources) == 0 {
		return false
	}
	for _, sr := range st.sources {
		if sr.OK() {
			return false
		}
	}
	return true
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
