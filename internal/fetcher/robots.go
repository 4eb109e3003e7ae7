package fetcher

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"github.com/temoto/robotstxt"
	"go.uber.org/zap"
)

// ErrDisallowed is returned when robots.txt forbids fetching a URL.
var ErrDisallowed = eris.New("fetcher: disallowed by robots.txt")

// RobotsGuard wraps a Fetcher and refuses URLs that the host's robots.txt
// disallows for the configured agent. robots.txt bodies are cached per host.
type RobotsGuard struct {
	next   Fetcher
	client *http.Client
	agent  string

	mu    sync.RWMutex
	rules map[string]*robotstxt.RobotsData
}

// WithRobots returns a Fetcher that consults robots.txt before delegating to next.
func WithRobots(next Fetcher, userAgent string, timeout time.Duration) *RobotsGuard {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &RobotsGuard{
		next:   next,
		client: &http.Client{Timeout: timeout},
		agent:  productToken(userAgent),
		rules:  make(map[string]*robotstxt.RobotsData),
	}
}

// Get fetches rawURL if robots.txt allows it.
func (g *RobotsGuard) Get(ctx context.Context, rawURL string) (*Document, error) {
	ok, err := g.Allowed(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, eris.Wrapf(ErrDisallowed, "%s", rawURL)
	}
	return g.next.Get(ctx, rawURL)
}

// Allowed reports whether rawURL may be fetched. An unreachable robots.txt
// allows everything.
func (g *RobotsGuard) Allowed(ctx context.Context, rawURL string) (bool, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false, eris.Wrapf(err, "fetcher: parse url %q", rawURL)
	}
	data := g.rulesFor(ctx, u)
	if data == nil {
		return true, nil
	}
	path := u.EscapedPath()
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	return data.TestAgent(path, g.agent), nil
}

func (g *RobotsGuard) rulesFor(ctx context.Context, u *url.URL) *robotstxt.RobotsData {
	g.mu.RLock()
	data, ok := g.rules[u.Host]
	g.mu.RUnlock()
	if ok {
		return data
	}

	robotsURL := u.Scheme + "://" + u.Host + "/robots.txt"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return nil
	}
	req.Header.Set("User-Agent", g.agent)
	resp, err := g.client.Do(req)
	if err != nil {
		zap.L().Debug("fetcher: robots.txt unreachable", zap.String("host", u.Host), zap.Error(err))
		return nil
	}
	defer resp.Body.Close() //nolint:errcheck

	data, err = robotstxt.FromResponse(resp)
	if err != nil {
		zap.L().Debug("fetcher: robots.txt unparseable", zap.String("host", u.Host), zap.Error(err))
		return nil
	}

	g.mu.Lock()
	g.rules[u.Host] = data
	g.mu.Unlock()
	return data
}

// productToken reduces "Name/1.0 (comment)" to "Name" for group matching.
func productToken(ua string) string {
	fields := strings.Fields(ua)
	if len(fields) == 0 {
		return "*"
	}
	return strings.SplitN(fields[0], "/", 2)[0]
}
