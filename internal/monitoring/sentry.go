package monitoring

import (
	"errors"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/rotisserie/eris"

	"github.com/sells-group/cad-ingest/internal/config"
	"github.com/sells-group/cad-ingest/internal/model"
)

// InitSentry configures the global Sentry client. It returns a nil
// reporter when no DSN is configured.
func InitSentry(cfg config.SentryConfig, release string) (*Reporter, error) {
	if cfg.DSN == "" {
		return nil, nil
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:         cfg.DSN,
		Environment: cfg.Environment,
		Release:     release,
	})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: init sentry")
	}
	return NewReporter(sentry.CurrentHub()), nil
}

// Reporter sends failed runs and alerts to Sentry. A nil Reporter drops
// everything.
type Reporter struct {
	hub *sentry.Hub
}

// NewReporter wraps hub.
func NewReporter(hub *sentry.Hub) *Reporter {
	return &Reporter{hub: hub}
}

// CaptureRun reports a failed run. Successful runs are ignored.
func (r *Reporter) CaptureRun(report *model.Report) {
	if r == nil || report == nil || report.Success {
		return
	}
	r.hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("run_id", report.RunID)
		scope.SetTag("component", "ingest")
		scope.SetContext("report", map[string]any{
			"scraped":  report.Scraped,
			"saved":    report.Saved,
			"skipped":  report.Skipped,
			"failed":   report.Failed,
			"geocoded": report.Geocoded,
			"sources":  report.Sources,
		})
		msg := report.Error
		if msg == "" {
			msg = "ingest run failed"
		}
		r.hub.CaptureException(errors.New(msg))
	})
}

// CaptureError reports a fatal error outside a run.
func (r *Reporter) CaptureError(err error) {
	if r == nil || err == nil {
		return
	}
	r.hub.CaptureException(err)
}

// CaptureAlert reports a threshold alert as a warning message.
func (r *Reporter) CaptureAlert(alert Alert) {
	if r == nil {
		return
	}
	r.hub.WithScope(func(scope *sentry.Scope) {
		scope.SetLevel(sentry.LevelWarning)
		scope.SetTag("alert_type", string(alert.Type))
		scope.SetTag("severity", alert.Severity)
		scope.SetFingerprint([]string{"alert", string(alert.Type)})
		if len(alert.Details) > 0 {
			scope.SetContext("details", alert.Details)
		}
		r.hub.CaptureMessage(alert.Message)
	})
}

// Flush waits for queued events.
func (r *Reporter) Flush(timeout time.Duration) {
	if r == nil {
		return
	}
	r.hub.Flush(timeout)
}
