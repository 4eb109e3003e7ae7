package fetcher

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/cad-ingest/internal/resilience"
)

// HTTPOptions configures the HTTP fetcher.
type HTTPOptions struct {
	UserAgent   string
	Timeout     time.Duration
	MaxRetries  int
	MaxBodySize int64
	// HostRate is the steady request rate allowed per host. Default: 2/s.
	HostRate rate.Limit
	Breakers *resilience.BreakerSet
	Client   *http.Client
}

// AdaptiveLimiter paces requests to one host. A 429 halves the rate down to
// a quarter of the initial rate and each success raises it by 20% up to the
// initial rate.
type AdaptiveLimiter struct {
	mu      sync.Mutex
	limiter *rate.Limiter
	initial rate.Limit
	current rate.Limit
}

// NewAdaptiveLimiter creates a limiter starting at r with the given burst.
func NewAdaptiveLimiter(r rate.Limit, burst int) *AdaptiveLimiter {
	return &AdaptiveLimiter{limiter: rate.NewLimiter(r, burst), initial: r, current: r}
}

// Wait blocks until a request may be sent.
func (a *AdaptiveLimiter) Wait(ctx context.Context) error {
	return a.limiter.Wait(ctx)
}

// OnSuccess eases the rate back toward the initial value.
func (a *AdaptiveLimiter) OnSuccess() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.current >= a.initial {
		return
	}
	a.current = min(a.current*1.2, a.initial)
	a.limiter.SetLimit(a.current)
}

// OnThrottled halves the rate.
func (a *AdaptiveLimiter) OnThrottled() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.current = max(a.current*0.5, a.initial/4)
	a.limiter.SetLimit(a.current)
}

// Limit returns the current rate.
func (a *AdaptiveLimiter) Limit() rate.Limit {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current
}

// HTTPFetcher implements Fetcher with per-host pacing, retries and a
// per-host circuit breaker.
type HTTPFetcher struct {
	client   *http.Client
	opts     HTTPOptions
	breakers *resilience.BreakerSet

	mu       sync.Mutex
	limiters map[string]*AdaptiveLimiter
}

// NewHTTPFetcher creates an HTTPFetcher, filling unset options with defaults.
func NewHTTPFetcher(opts HTTPOptions) *HTTPFetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.MaxBodySize <= 0 {
		opts.MaxBodySize = 8 << 20
	}
	if opts.HostRate <= 0 {
		opts.HostRate = 2
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "cad-ingest/1.0"
	}
	if opts.Breakers == nil {
		opts.Breakers = resilience.NewBreakerSet(resilience.BreakerConfig{
			Failures: 5,
			Cooldown: time.Minute,
			Counts:   resilience.IsTransient,
		})
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}
	return &HTTPFetcher{
		client:   client,
		opts:     opts,
		breakers: opts.Breakers,
		limiters: make(map[string]*AdaptiveLimiter),
	}
}

func (f *HTTPFetcher) limiterFor(host string) *AdaptiveLimiter {
	f.mu.Lock()
	defer f.mu.Unlock()
	lim, ok := f.limiters[host]
	if !ok {
		lim = NewAdaptiveLimiter(f.opts.HostRate, 1)
		f.limiters[host] = lim
	}
	return lim
}

// Get fetches rawURL and decodes the body to UTF-8.
func (f *HTTPFetcher) Get(ctx context.Context, rawURL string) (*Document, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: parse url %q", rawURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, eris.Errorf("fetcher: unsupported scheme %q", u.Scheme)
	}

	lim := f.limiterFor(u.Host)
	breaker := f.breakers.For(u.Host)

	policy := resilience.WithRetries(f.opts.MaxRetries)
	policy.OnRetry = resilience.LogRetries("fetcher", u.Host)

	return resilience.DoVal(ctx, policy, func(ctx context.Context) (*Document, error) {
		return resilience.Guard(ctx, breaker, func(ctx context.Context) (*Document, error) {
			if err := lim.Wait(ctx); err != nil {
				return nil, eris.Wrap(err, "fetcher: rate limiter wait")
			}
			doc, err := f.do(ctx, rawURL)
			var te *resilience.TransientError
			if errors.As(err, &te) && te.StatusCode == http.StatusTooManyRequests {
				lim.OnThrottled()
				zap.L().Warn("fetcher: throttled, slowing host",
					zap.String("host", u.Host),
					zap.Float64("rate", float64(lim.Limit())),
				)
			} else if err == nil {
				lim.OnSuccess()
			}
			return doc, err
		})
	})
}

func (f *HTTPFetcher) do(ctx context.Context, rawURL string) (*Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "fetcher: create request")
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)
	req.Header.Set("Accept", "text/html,application/json;q=0.9,*/*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		if ctx.Err() == nil {
			return nil, resilience.NewTransientError(eris.Wrapf(err, "fetcher: get %s", rawURL), 0)
		}
		return nil, eris.Wrapf(err, "fetcher: get %s", rawURL)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, resilience.StatusError(resp.StatusCode, rawURL)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.opts.MaxBodySize+1))
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "fetcher: read body"), 0)
	}
	if int64(len(body)) > f.opts.MaxBodySize {
		return nil, eris.Errorf("fetcher: body from %s exceeds %d bytes", rawURL, f.opts.MaxBodySize)
	}

	contentType := resp.Header.Get("Content-Type")
	charset := sniffCharset(contentType, body)
	decoded, err := decodeBody(charset, body)
	if err != nil {
		return nil, err
	}

	return &Document{
		URL:         rawURL,
		StatusCode:  resp.StatusCode,
		ContentType: contentType,
		Charset:     charset,
		Body:        decoded,
	}, nil
}
