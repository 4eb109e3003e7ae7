package source

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/cad-ingest/internal/extract"
	"github.com/sells-group/cad-ingest/internal/fetcher"
	"github.com/sells-group/cad-ingest/internal/model"
)

// CallExtractor reads calls out of page text.
type CallExtractor interface {
	ExtractCalls(ctx context.Context, source, text string) ([]extract.Call, error)
}

// ExtractAdapter converts a page to text and has an LLM list its calls.
type ExtractAdapter struct {
	cfg       SourceConfig
	fetcher   fetcher.Fetcher
	extractor CallExtractor
}

// NewExtractAdapter builds the adapter. cfg must already be validated.
func NewExtractAdapter(cfg SourceConfig, f fetcher.Fetcher, ex CallExtractor) *ExtractAdapter {
	return &ExtractAdapter{cfg: cfg, fetcher: f, extractor: ex}
}

func (a *ExtractAdapter) Name() model.Source { return a.cfg.Name }
func (a *ExtractAdapter) Kind() Kind         { return KindExtract }

// Fetch downloads the page and returns the calls the extractor found.
func (a *ExtractAdapter) Fetch(ctx context.Context) ([]RawRow, error) {
	if a.extractor == nil {
		return nil, eris.Errorf("source %s: no extractor configured", a.cfg.Name)
	}
	doc, err := a.fetcher.Get(ctx, a.cfg.URL)
	if err != nil {
		return nil, eris.Wrapf(err, "source %s: fetch", a.cfg.Name)
	}

	calls, err := a.extractor.ExtractCalls(ctx, string(a.cfg.Name), pageText(doc.Text()))
	if err != nil {
		return nil, eris.Wrapf(err, "source %s", a.cfg.Name)
	}

	rows := make([]RawRow, 0, len(calls))
	for _, c := range calls {
		rows = append(rows, RawRow{
			Source:   a.cfg.Name,
			Time:     c.Time,
			Incident: c.Incident,
			Location: c.Location,
			Agency:   c.Agency,
			Status:   c.Status,
		})
	}
	return rows, nil
}
