package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/cad-ingest/internal/config"
	"github.com/sells-group/cad-ingest/internal/model"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertRunFailureRate    AlertType = "run_failure_rate"
	AlertRecordFailureRate AlertType = "record_failure_rate"
	AlertEmptySource       AlertType = "empty_source"
)

// minRunsForRate is the number of finished runs needed before failure rates
// are trusted.
const minRunsForRate = 3

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// AlerterOption configures an Alerter.
type AlerterOption func(*Alerter)

// WithReporter also sends alerts to Sentry.
func WithReporter(r *Reporter) AlerterOption {
	return func(a *Alerter) { a.reporter = r }
}

// WithHTTPClient replaces the webhook client.
func WithHTTPClient(c *http.Client) AlerterOption {
	return func(a *Alerter) { a.client = c }
}

// Alerter evaluates a MetricsSnapshot against configured thresholds
// and sends alerts via webhook when thresholds are breached.
type Alerter struct {
	cfg      config.MonitoringConfig
	client   *http.Client
	reporter *Reporter
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig, opts ...AlerterOption) *Alerter {
	a := &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Evaluate checks the snapshot against thresholds and returns any alerts.
func (a *Alerter) Evaluate(snap *MetricsSnapshot) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	finished := snap.RunsComplete + snap.RunsFailed
	if a.cfg.RunFailureThreshold > 0 && finished >= minRunsForRate && snap.RunFailRate > a.cfg.RunFailureThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertRunFailureRate,
			Severity: "high",
			Message: fmt.Sprintf(
				"Ingest run failure rate %.1f%% exceeds threshold %.1f%% (%d failed / %d finished in last %dh)",
				snap.RunFailRate*100, a.cfg.RunFailureThreshold*100,
				snap.RunsFailed, finished, snap.LookbackHours,
			),
			Details: map[string]any{
				"failure_rate": snap.RunFailRate,
				"threshold":    a.cfg.RunFailureThreshold,
				"failed":       snap.RunsFailed,
				"finished":     finished,
				"last_error":   snap.LastError,
			},
			Timestamp: now,
		})
	}

	attempted := snap.RecordsSaved + snap.RecordsFailed
	if a.cfg.RecordFailureThreshold > 0 && attempted > 0 && snap.RecordFailRate > a.cfg.RecordFailureThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertRecordFailureRate,
			Severity: "medium",
			Message: fmt.Sprintf(
				"Record failure rate %.1f%% exceeds threshold %.1f%% (%d failed / %d attempted in last %dh)",
				snap.RecordFailRate*100, a.cfg.RecordFailureThreshold*100,
				snap.RecordsFailed, attempted, snap.LookbackHours,
			),
			Details: map[string]any{
				"failure_rate": snap.RecordFailRate,
				"threshold":    a.cfg.RecordFailureThreshold,
				"failed":       snap.RecordsFailed,
				"attempted":    attempted,
			},
			Timestamp: now,
		})
	}

	sources := make([]model.Source, 0, len(snap.EmptySources))
	for src := range snap.EmptySources {
		sources = append(sources, src)
	}
	sort.Slice(sources, func(i, j int) bool { return sources[i] < sources[j] })
	for _, src := range sources {
		n := snap.EmptySources[src]
		alerts = append(alerts, Alert{
			Type:     AlertEmptySource,
			Severity: "medium",
			Message:  fmt.Sprintf("Source %s returned no rows for %d consecutive runs", src, n),
			Details: map[string]any{
				"source": string(src),
				"runs":   n,
			},
			Timestamp: now,
		})
	}

	return alerts
}

// SendAlerts delivers alerts to the configured webhook URL and, when
// configured, to Sentry. Returns the number of alerts the webhook accepted.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	for _, alert := range alerts {
		a.reporter.CaptureAlert(alert)
	}
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		if err := a.sendWebhook(ctx, alert); err != nil {
			zap.L().Error("monitoring: failed to send alert",
				zap.String("type", string(alert.Type)),
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("monitoring: alert sent",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
		)
		sent++
	}
	return sent
}

// sendWebhook posts a single alert to the webhook URL.
func (a *Alerter) sendWebhook(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
