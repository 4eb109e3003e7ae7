// Package monitoring watches the ingest run log and raises alerts when runs
// or sources degrade.
package monitoring

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/cad-ingest/internal/config"
)

const defaultCheckInterval = 5 * time.Minute

// Checker evaluates the run log on a fixed cadence.
type Checker struct {
	collector *Collector
	alerter   *Alerter
	cfg       config.MonitoringConfig
	log       *zap.Logger
}

// NewChecker creates a background alert checker.
func NewChecker(collector *Collector, alerter *Alerter, cfg config.MonitoringConfig) *Checker {
	return &Checker{
		collector: collector,
		alerter:   alerter,
		cfg:       cfg,
		log:       zap.L().Named("monitoring"),
	}
}

// Interval is the time between checks.
func (c *Checker) Interval() time.Duration {
	if c.cfg.CheckIntervalSecs <= 0 {
		return defaultCheckInterval
	}
	return time.Duration(c.cfg.CheckIntervalSecs) * time.Second
}

// Run checks once immediately and then on every tick until ctx is done, so
// a scheduler that is already failing alerts right after a deploy.
func (c *Checker) Run(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	every := c.Interval()
	c.log.Info("alert checker started",
		zap.Duration("every", every),
		zap.Int("lookback_hours", c.cfg.LookbackWindowHours),
	)
	c.Check(ctx)

	tick := time.NewTicker(every)
	defer tick.Stop()
	for {
		select {
		case <-tick.C:
			c.Check(ctx)
		case <-ctx.Done():
			c.log.Info("alert checker stopped")
			return
		}
	}
}

// Check collects a snapshot, evaluates it and dispatches any alerts. The
// raised alerts are returned whether or not delivery succeeded.
func (c *Checker) Check(ctx context.Context) []Alert {
	snap, err := c.collector.Collect(ctx, c.cfg.LookbackWindowHours)
	if err != nil {
		c.log.Error("collect run snapshot", zap.Error(err))
		return nil
	}

	raised := c.alerter.Evaluate(snap)
	if len(raised) == 0 {
		return nil
	}
	for _, a := range raised {
		c.log.Warn("alert raised",
			zap.String("type", string(a.Type)),
			zap.String("severity", a.Severity),
			zap.String("message", a.Message),
		)
	}

	delivered := c.alerter.SendAlerts(ctx, raised)
	c.log.Info("alert check finished",
		zap.Int("raised", len(raised)),
		zap.Int("delivered", delivered),
	)
	return raised
}
