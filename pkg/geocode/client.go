// Package geocode resolves free-text dispatch locations to coordinates
// against a Nominatim-compatible search endpoint.
package geocode

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/cad-ingest/internal/resilience"
)

// DefaultBaseURL is the public OpenStreetMap Nominatim search endpoint.
const DefaultBaseURL = "https://nominatim.openstreetmap.org/search"

// Point is a WGS84 coordinate pair.
type Point struct {
	Lat float64
	Lon float64
}

// Client runs one free-text search and returns the first hit, or nil when
// the endpoint found nothing.
type Client interface {
	Search(ctx context.Context, query string) (*Point, error)
}

// Option configures the Nominatim client.
type Option func(*nominatim)

// WithBaseURL points the client at a different search endpoint.
func WithBaseURL(u string) Option {
	return func(n *nominatim) {
		if u != "" {
			n.baseURL = u
		}
	}
}

// WithHTTPClient sets the HTTP client used for searches.
func WithHTTPClient(hc *http.Client) Option {
	return func(n *nominatim) {
		n.httpClient = hc
	}
}

// WithMinDelay sets the minimum spacing between requests. Zero disables
// spacing, which is only appropriate against a private instance.
func WithMinDelay(d time.Duration) Option {
	return func(n *nominatim) {
		if d <= 0 {
			n.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		n.limiter = rate.NewLimiter(rate.Every(d), 1)
	}
}

// WithCountryCodes restricts results to a comma-separated list of ISO codes.
func WithCountryCodes(codes string) Option {
	return func(n *nominatim) {
		n.countryCodes = codes
	}
}

// WithEmail adds the contact address the usage policy asks heavy users for.
func WithEmail(email string) Option {
	return func(n *nominatim) {
		n.email = email
	}
}

// WithBreaker guards the endpoint with b.
func WithBreaker(b *resilience.Breaker) Option {
	return func(n *nominatim) {
		n.breaker = b
	}
}

type nominatim struct {
	baseURL      string
	userAgent    string
	email        string
	countryCodes string
	httpClient   *http.Client
	limiter      *rate.Limiter
	breaker      *resilience.Breaker
}

// NewClient creates a Nominatim client. userAgent is required by the
// endpoint's usage policy.
func NewClient(userAgent string, opts ...Option) (Client, error) {
	if strings.TrimSpace(userAgent) == "" {
		return nil, eris.New("geocode: user agent is required")
	}
	n := &nominatim{
		baseURL:      DefaultBaseURL,
		userAgent:    userAgent,
		countryCodes: "us",
		httpClient:   &http.Client{Timeout: 10 * time.Second},
		limiter:      rate.NewLimiter(rate.Every(1100*time.Millisecond), 1),
	}
	for _, opt := range opts {
		opt(n)
	}
	if n.breaker == nil {
		n.breaker = resilience.NewBreaker("geocode", resilience.BreakerConfig{
			Failures: 5,
			Cooldown: time.Minute,
		})
	}
	return n, nil
}

type searchHit struct {
	Lat string `json:"lat"`
	Lon string `json:"lon"`
}

// Search implements Client.
func (n *nominatim) Search(ctx context.Context, query string) (*Point, error) {
	return resilience.Guard(ctx, n.breaker, func(ctx context.Context) (*Point, error) {
		if err := n.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "geocode: rate limit")
		}
		return n.search(ctx, query)
	})
}

func (n *nominatim) search(ctx context.Context, query string) (*Point, error) {
	params := url.Values{
		"q":      {query},
		"format": {"json"},
		"limit":  {"1"},
	}
	if n.countryCodes != "" {
		params.Set("countrycodes", n.countryCodes)
	}
	if n.email != "" {
		params.Set("email", n.email)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: build request")
	}
	req.Header.Set("User-Agent", n.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, resilience.StatusError(resp.StatusCode, "geocode")
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, eris.Wrap(err, "geocode: read body")
	}

	var hits []searchHit
	if err := json.Unmarshal(body, &hits); err != nil {
		return nil, eris.Wrap(err, "geocode: parse response")
	}
	if len(hits) == 0 {
		return nil, nil
	}

	lat, err := strconv.ParseFloat(hits[0].Lat, 64)
	if err != nil {
		return nil, eris.Wrapf(err, "geocode: parse lat %q", hits[0].Lat)
	}
	lon, err := strconv.ParseFloat(hits[0].Lon, 64)
	if err != nil {
		return nil, eris.Wrapf(err, "geocode: parse lon %q", hits[0].Lon)
	}

	zap.L().Debug("geocode: hit", zap.String("query", query), zap.Float64("lat", lat), zap.Float64("lon", lon))
	return &Point{Lat: lat, Lon: lon}, nil
}
