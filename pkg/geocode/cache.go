package geocode

import (
	"context"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

// miss is stored for queries the endpoint had no answer for, so repeats
// are not re-issued within the TTL.
type miss struct{}

// CachedClient memoizes search results, hits and misses alike. Errors are
// never cached.
type CachedClient struct {
	next  Client
	cache *gocache.Cache
}

// NewCachedClient wraps next with an in-memory cache. A zero ttl disables
// expiry.
func NewCachedClient(next Client, ttl time.Duration) *CachedClient {
	exp := ttl
	if exp <= 0 {
		exp = gocache.NoExpiration
	}
	return &CachedClient{
		next:  next,
		cache: gocache.New(exp, 2*exp),
	}
}

// cacheKey folds case and whitespace so trivially different queries share
// an entry.
func cacheKey(query string) string {
	return strings.ToLower(strings.Join(strings.Fields(query), " "))
}

// Search implements Client.
func (c *CachedClient) Search(ctx context.Context, query string) (*Point, error) {
	key := cacheKey(query)
	if v, ok := c.cache.Get(key); ok {
		zap.L().Debug("geocode cache hit", zap.String("query", key))
		if p, ok := v.(Point); ok {
			return &p, nil
		}
		return nil, nil
	}

	p, err := c.next.Search(ctx, query)
	if err != nil {
		return nil, err
	}
	if p == nil {
		c.cache.SetDefault(key, miss{})
		return nil, nil
	}
	c.cache.SetDefault(key, *p)
	return p, nil
}

// Len returns the number of cached queries.
func (c *CachedClient) Len() int {
	return c.cache.ItemCount()
}
