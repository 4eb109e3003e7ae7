// Package resilience holds the retry and circuit breaker plumbing shared by
// the source fetchers and the geocoder.
package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
)

// State is a breaker position.
type State int

const (
	// Closed lets every call through.
	Closed State = iota
	// Open rejects calls until the cooldown passes.
	Open
	// HalfOpen admits probe calls after the cooldown.
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned without calling through while a breaker is open.
var ErrCircuitOpen = eris.New("circuit breaker is open")

// BreakerConfig tunes a Breaker. Zero fields take the defaults.
type BreakerConfig struct {
	// Failures is the run of consecutive failures that opens the breaker. Default: 5.
	Failures int

	// Cooldown is how long the breaker stays open. Default: 30s.
	Cooldown time.Duration

	// Probes is the number of successful half-open calls needed to close. Default: 1.
	Probes int

	// Counts decides whether an error counts as a failure. Default: any non-nil error.
	Counts func(err error) bool

	// OnChange observes transitions.
	OnChange func(name string, from, to State)
}

// Breaker trips after a run of failures against one upstream.
type Breaker struct {
	name string
	cfg  BreakerConfig

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	probes   int

	now func() time.Time
}

// NewBreaker builds a closed breaker.
func NewBreaker(name string, cfg BreakerConfig) *Breaker {
	if cfg.Failures <= 0 {
		cfg.Failures = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.Probes <= 0 {
		cfg.Probes = 1
	}
	if cfg.Counts == nil {
		cfg.Counts = func(err error) bool { return err != nil }
	}
	return &Breaker{name: name, cfg: cfg, now: time.Now}
}

// Call runs fn unless the breaker is open.
func (b *Breaker) Call(ctx context.Context, fn func(ctx context.Context) error) error {
	_, err := Guard(ctx, b, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// Guard runs fn through b and returns its value.
func Guard[T any](ctx context.Context, b *Breaker, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if !b.admit() {
		return zero, eris.Wrap(ErrCircuitOpen, b.name)
	}
	val, err := fn(ctx)
	b.record(err)
	return val, err
}

// State reports the current position, treating an expired cooldown as half-open.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == Open && b.now().Sub(b.openedAt) >= b.cfg.Cooldown {
		return HalfOpen
	}
	return b.state
}

// Failures returns the current run of consecutive failures.
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

// Reset closes the breaker.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.probes = 0
	b.moveTo(Closed)
}

func (b *Breaker) admit() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != Open {
		return true
	}
	if b.now().Sub(b.openedAt) < b.cfg.Cooldown {
		return false
	}
	b.moveTo(HalfOpen)
	return true
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.cfg.Counts(err) {
		b.failures = 0
		if b.state == HalfOpen {
			b.probes++
			if b.probes >= b.cfg.Probes {
				b.probes = 0
				b.moveTo(Closed)
			}
		}
		return
	}

	b.failures++
	if b.state == HalfOpen || b.failures >= b.cfg.Failures {
		b.probes = 0
		b.openedAt = b.now()
		b.moveTo(Open)
	}
}

func (b *Breaker) moveTo(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	if b.cfg.OnChange != nil {
		b.cfg.OnChange(b.name, from, to)
	}
}

// BreakerSet hands out one breaker per upstream name.
type BreakerSet struct {
	cfg BreakerConfig

	mu       sync.Mutex
	breakers map[string]*Breaker
}

// NewBreakerSet returns an empty set that builds breakers from cfg.
func NewBreakerSet(cfg BreakerConfig) *BreakerSet {
	return &BreakerSet{cfg: cfg, breakers: make(map[string]*Breaker)}
}

// For returns the breaker for name, creating it on first use.
func (s *BreakerSet) For(name string) *Breaker {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.breakers[name]
	if !ok {
		b = NewBreaker(name, s.cfg)
		s.breakers[name] = b
	}
	return b
}

// States snapshots every breaker's position.
func (s *BreakerSet) States() map[string]State {
	s.mu.Lock()
	names := make(map[string]*Breaker, len(s.breakers))
	for k, v := range s.breakers {
		names[k] = v
	}
	s.mu.Unlock()

	out := make(map[string]State, len(names))
	for k, b := range names {
		out[k] = b.State()
	}
	return out
}
