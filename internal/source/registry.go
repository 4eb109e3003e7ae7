package source

import (
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/cad-ingest/internal/fetcher"
	"github.com/sells-group/cad-ingest/internal/model"
)

// Deps are the shared collaborators adapters are built with.
type Deps struct {
	Fetcher   fetcher.Fetcher
	Extractor CallExtractor
	// UserAgent is matched against robots.txt groups.
	UserAgent string
}

// NewFromConfig builds the adapter for one catalog entry.
func NewFromConfig(cfg SourceConfig, deps Deps) (Adapter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Fetcher == nil {
		return nil, eris.New("source: fetcher is required")
	}
	f := deps.Fetcher
	if cfg.RespectRobots {
		f = fetcher.WithRobots(f, deps.UserAgent, 5*time.Second)
	}

	switch cfg.Kind {
	case KindTable:
		return NewTableAdapter(cfg, f), nil
	case KindFeatureServer:
		return NewFeatureServerAdapter(cfg, f), nil
	case KindExtract:
		return NewExtractAdapter(cfg, f, deps.Extractor), nil
	default:
		return nil, eris.Errorf("source %s: unknown kind %q", cfg.Name, cfg.Kind)
	}
}

// Registry holds adapters in catalog order.
type Registry struct {
	adapters map[model.Source]Adapter
	configs  map[model.Source]SourceConfig
	order    []model.Source
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		adapters: make(map[model.Source]Adapter),
		configs:  make(map[model.Source]SourceConfig),
	}
}

// Build creates a registry holding an adapter for every enabled catalog source.
func Build(cat *Catalog, deps Deps) (*Registry, error) {
	r := NewRegistry()
	for _, sc := range cat.Sources {
		if !sc.IsEnabled() {
			continue
		}
		a, err := NewFromConfig(sc, deps)
		if err != nil {
			return nil, err
		}
		r.Register(a, sc)
	}
	return r, nil
}

// Register adds an adapter and its config. Re-registering a name replaces
// the adapter but keeps its original position.
func (r *Registry) Register(a Adapter, cfg SourceConfig) {
	name := a.Name()
	if _, ok := r.adapters[name]; !ok {
		r.order = append(r.order, name)
	}
	r.adapters[name] = a
	r.configs[name] = cfg
}

// Get returns the adapter for name.
func (r *Registry) Get(name model.Source) (Adapter, error) {
	a, ok := r.adapters[name]
	if !ok {
		return nil, eris.Errorf("source: unknown source %q", name)
	}
	return a, nil
}

// Config returns the catalog entry an adapter was built from.
func (r *Registry) Config(name model.Source) (SourceConfig, bool) {
	c, ok := r.configs[name]
	return c, ok
}

// Select returns the named adapters in the order given, or every adapter
// when names is empty.
func (r *Registry) Select(names []string) ([]Adapter, error) {
	if len(names) == 0 {
		return r.All(), nil
	}
	out := make([]Adapter, 0, len(names))
	for _, n := range names {
		src, err := model.ParseSource(n)
		if err != nil {
			return nil, err
		}
		a, err := r.Get(src)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

// All returns every adapter in registration order.
func (r *Registry) All() []Adapter {
	out := make([]Adapter, 0, len(r.order))
	for _, n := range r.order {
		out = append(out, r.adapters[n])
	}
	return out
}

// Names returns registered source names in order.
func (r *Registry) Names() []model.Source {
	out := make([]model.Source, len(r.order))
	copy(out, r.order)
	return out
}
