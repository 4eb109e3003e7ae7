package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// Policy describes how a failed call is retried.
type Policy struct {
	// Attempts is the total number of calls, the first included. Default: 3.
	Attempts int

	// Base is the delay before the first retry. Default: 500ms.
	Base time.Duration

	// Cap bounds any single delay. Default: 10s.
	Cap time.Duration

	// Factor multiplies the delay after each retry. Default: 2.
	Factor float64

	// Jitter spreads each delay by up to ±Jitter of its value. Default: 0.2.
	Jitter float64

	// Retryable overrides IsTransient when set.
	Retryable func(err error) bool

	// OnRetry runs before each backoff sleep.
	OnRetry func(attempt int, err error)
}

// DefaultPolicy is used for outbound HTTP calls.
func DefaultPolicy() Policy {
	return Policy{
		Attempts: 3,
		Base:     500 * time.Millisecond,
		Cap:      10 * time.Second,
		Factor:   2,
		Jitter:   0.2,
	}
}

// WithRetries returns the default policy allowing n retries after the first
// attempt. Negative n is treated as zero.
func WithRetries(n int) Policy {
	p := DefaultPolicy()
	if n < 0 {
		n = 0
	}
	p.Attempts = n + 1
	return p
}

// Do runs fn until it succeeds, returns a non-retryable error, exhausts the
// policy, or ctx is done. The last error is returned.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	_, err := DoVal(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// DoVal is Do for calls that produce a value.
func DoVal[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	p = p.normalized()
	retryable := p.Retryable
	if retryable == nil {
		retryable = IsTransient
	}

	var zero T
	var err error
	for attempt := 0; attempt < p.Attempts; attempt++ {
		var val T
		val, err = fn(ctx)
		if err == nil {
			return val, nil
		}
		if ctx.Err() != nil || !retryable(err) || attempt == p.Attempts-1 {
			return zero, err
		}

		if p.OnRetry != nil {
			p.OnRetry(attempt+1, err)
		}

		timer := time.NewTimer(p.delay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, err
		case <-timer.C:
		}
	}
	return zero, err
}

func (p Policy) normalized() Policy {
	def := DefaultPolicy()
	if p.Attempts <= 0 {
		p.Attempts = def.Attempts
	}
	if p.Base <= 0 {
		p.Base = def.Base
	}
	if p.Cap <= 0 {
		p.Cap = def.Cap
	}
	if p.Factor <= 0 {
		p.Factor = def.Factor
	}
	if p.Jitter < 0 {
		p.Jitter = 0
	}
	return p
}

func (p Policy) delay(attempt int) time.Duration {
	d := float64(p.Base) * math.Pow(p.Factor, float64(attempt))
	d = math.Min(d, float64(p.Cap))
	if p.Jitter > 0 {
		d += (rand.Float64()*2 - 1) * d * p.Jitter
	}
	return time.Duration(math.Max(d, 0))
}

// LogRetries returns an OnRetry hook that logs through zap.
func LogRetries(component, target string) func(int, error) {
	return func(attempt int, err error) {
		zap.L().Warn("retrying request",
			zap.String("component", component),
			zap.String("target", target),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}
}
