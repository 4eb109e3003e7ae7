// Package server exposes the call store and the ingestion engine over HTTP.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/sells-group/cad-ingest/internal/ingest"
	"github.com/sells-group/cad-ingest/internal/model"
	"github.com/sells-group/cad-ingest/internal/monitoring"
	"github.com/sells-group/cad-ingest/internal/store"
)

// Runner executes one ingestion run.
type Runner interface {
	Run(ctx context.Context, opts ingest.RunOptions) (*model.Report, error)
}

// Option configures a Server.
type Option func(*Server)

// WithGatherer serves gatherer on /metrics. Default: the global registry.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// WithAllowedOrigins sets the CORS origins. Default: any.
func WithAllowedOrigins(origins []string) Option {
	return func(s *Server) { s.origins = origins }
}

// WithReporter sends failed runs to Sentry.
func WithReporter(r *monitoring.Reporter) Option {
	return func(s *Server) { s.reporter = r }
}

// Server routes the HTTP API.
type Server struct {
	store    store.Store
	runner   Runner
	gatherer prometheus.Gatherer
	origins  []string
	reporter *monitoring.Reporter

	// running serializes POST /ingest.
	running sync.Mutex
}

// New creates a Server. runner may be nil, in which case POST /ingest
// answers 503.
func New(st store.Store, runner Runner, opts ...Option) *Server {
	s := &Server{
		store:    st,
		runner:   runner,
		gatherer: prometheus.DefaultGatherer,
		origins:  []string{"*"},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	r.Post("/ingest", s.handleIngest)

	r.Route("/calls", func(r chi.Router) {
		r.Get("/", s.handleListCalls)
		r.Get("/{id}", s.handleGetCall)
		r.Patch("/{id}", s.handlePatchCall)
		r.Delete("/{id}", s.handleDeleteCall)
	})
	r.Get("/runs", s.handleListRuns)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.store.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type ingestRequest struct {
	Sources []string `json:"sources"`
	DryRun  bool     `json:"dry_run"`
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	if s.runner == nil {
		writeError(w, http.StatusServiceUnavailable, "ingestion is not configured")
		return
	}

	var req ingestRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	if !s.running.TryLock() {
		writeError(w, http.StatusConflict, "an ingestion run is already in progress")
		return
	}
	defer s.running.Unlock()

	report, err := s.runner.Run(r.Context(), ingest.RunOptions{Sources: req.Sources, DryRun: req.DryRun})
	if report == nil {
		writeError(w, http.StatusBadRequest, errMessage(err))
		return
	}
	if err != nil {
		s.reporter.CaptureRun(report)
		writeJSON(w, http.StatusInternalServerError, report)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, offset, err := pagination(q)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	runs, err := s.store.ListRuns(r.Context(), store.RunFilter{
		Status: model.RunStatus(q.Get("status")),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	if runs == nil {
		runs = []model.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, err error) {
	zap.L().Error("server: request failed",
		zap.String("path", r.URL.Path),
		zap.String("request_id", middleware.GetReqID(r.Context())),
		zap.Error(err),
	)
	writeError(w, http.StatusInternalServerError, "internal error")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Debug("server: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func errMessage(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}

// requestLogger logs each request through zap.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Debug("server: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
