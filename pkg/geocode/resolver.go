package geocode

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/cad-ingest/internal/resilience"
)

// Strategy names the query form that resolved a location.
type Strategy string

const (
	StrategyNormalized   Strategy = "normalized"
	StrategyRaw          Strategy = "raw"
	StrategyNumberStreet Strategy = "number_street"
	StrategyStreet       Strategy = "street"
)

// Query is one location to resolve.
type Query struct {
	// Location is the cleaned address.
	Location string
	// RawLocation is the address exactly as the source published it.
	RawLocation string
	// Jurisdiction is the "County/City, State" suffix that scopes the search.
	Jurisdiction string
}

// Result is a resolved coordinate and the strategy that produced it.
type Result struct {
	Point
	Strategy Strategy
	Query    string
}

// AddressRewriter turns a messy dispatch location into a geocoder-friendly
// address. Implementations may call out to an LLM.
type AddressRewriter interface {
	Rewrite(ctx context.Context, location, jurisdiction string) (string, error)
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithRewriter enables rewriting the normalized strategy's address.
func WithRewriter(rw AddressRewriter) ResolverOption {
	return func(r *Resolver) {
		r.rewriter = rw
	}
}

// WithConfidenceGate rejects hits that land implausibly far from the
// jurisdiction.
func WithConfidenceGate(g *ConfidenceGate) ResolverOption {
	return func(r *Resolver) {
		r.gate = g
	}
}

// Resolver walks the fallback strategies in order and accepts the first hit.
type Resolver struct {
	client   Client
	rewriter AddressRewriter
	gate     *ConfidenceGate
}

// NewResolver creates a Resolver over client.
func NewResolver(client Client, opts ...ResolverOption) *Resolver {
	r := &Resolver{client: client}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

var (
	leadingNumberRe = regexp.MustCompile(`^(\d+[A-Za-z]?)\s+(.+)$`)
	crossStreetRe   = regexp.MustCompile(`(?i)\s+(?:AND|&|@|AT)\s+|,`)
)

type attempt struct {
	strategy Strategy
	address  string
}

// Resolve returns the first strategy's first hit, or nil when every
// strategy comes up empty. Endpoint errors and an open circuit count as a
// miss. Only context cancellation is returned as an error.
func (r *Resolver) Resolve(ctx context.Context, q Query) (*Result, error) {
	log := zap.L().With(zap.String("component", "geocode"), zap.String("location", q.Location))

	seen := make(map[string]bool, 4)
	for _, a := range r.attempts(ctx, q) {
		query := withJurisdiction(a.address, q.Jurisdiction)
		key := cacheKey(query)
		if a.address == "" || seen[key] {
			continue
		}
		seen[key] = true

		p, err := r.client.Search(ctx, query)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			if errors.Is(err, resilience.ErrCircuitOpen) {
				log.Warn("geocode: circuit open, leaving call unresolved")
				return nil, nil
			}
			log.Debug("geocode: strategy failed", zap.String("strategy", string(a.strategy)), zap.Error(err))
			continue
		}
		if p == nil {
			continue
		}
		if r.gate != nil && !r.gate.Accept(q.Jurisdiction, *p) {
			log.Debug("geocode: hit rejected by confidence gate",
				zap.String("strategy", string(a.strategy)),
				zap.Float64("lat", p.Lat), zap.Float64("lon", p.Lon))
			continue
		}
		return &Result{Point: *p, Strategy: a.strategy, Query: query}, nil
	}
	return nil, nil
}

// attempts lists the strategies in order.
func (r *Resolver) attempts(ctx context.Context, q Query) []attempt {
	normalized := q.Location
	if r.rewriter != nil && normalized != "" {
		rewritten, err := r.rewriter.Rewrite(ctx, normalized, q.Jurisdiction)
		switch {
		case err != nil:
			zap.L().Debug("geocode: address rewrite failed", zap.Error(err))
		case strings.TrimSpace(rewritten) != "":
			normalized = strings.TrimSpace(rewritten)
		}
	}

	number, street := SplitAddress(q.Location)
	out := []attempt{
		{StrategyNormalized, normalized},
		{StrategyRaw, q.RawLocation},
	}
	if number != "" {
		out = append(out, attempt{StrategyNumberStreet, number + " " + street})
	}
	out = append(out, attempt{StrategyStreet, street})
	return out
}

// SplitAddress returns the house number (if any) and the first street name
// of a location. Intersections keep only the first street.
func SplitAddress(location string) (number, street string) {
	s := strings.Join(strings.Fields(location), " ")
	if loc := crossStreetRe.FindStringIndex(s); loc != nil {
		s = strings.TrimSpace(s[:loc[0]])
	}
	if m := leadingNumberRe.FindStringSubmatch(s); m != nil {
		return m[1], m[2]
	}
	return "", s
}

func withJurisdiction(address, jurisdiction string) string {
	address = strings.TrimSpace(address)
	if address == "" || jurisdiction == "" {
		return address
	}
	return address + ", " + jurisdiction
}
