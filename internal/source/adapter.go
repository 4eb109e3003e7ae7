// Package source fetches active-call feeds and turns them into raw rows.
//
// Each upstream is described by a SourceConfig in the catalog and served by
// one of three adapter kinds: an HTML table scrape, an ArcGIS FeatureServer
// query, or an LLM-assisted extraction of free-form pages.
package source

import (
	"context"

	"github.com/sells-group/cad-ingest/internal/model"
)

// Kind selects the adapter implementation for a source.
type Kind string

const (
	// KindTable scrapes the first HTML table on a page.
	KindTable Kind = "table"
	// KindFeatureServer pages through an ArcGIS FeatureServer query endpoint.
	KindFeatureServer Kind = "featureserver"
	// KindExtract hands page text to an LLM extractor.
	KindExtract Kind = "extract"
)

// Valid reports whether k names a known adapter kind.
func (k Kind) Valid() bool {
	switch k {
	case KindTable, KindFeatureServer, KindExtract:
		return true
	}
	return false
}

// RawRow is one call as the source presented it, before normalization.
type RawRow struct {
	Source   model.Source
	Time     string
	Incident string
	Location string
	Agency   string
	Status   string

	// Attributes carries the untouched FeatureServer attribute bag.
	Attributes map[string]any

	Latitude  *float64
	Longitude *float64
}

// Adapter fetches and parses one upstream.
type Adapter interface {
	Name() model.Source
	Kind() Kind
	Fetch(ctx context.Context) ([]RawRow, error)
}
