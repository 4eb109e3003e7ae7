package model

import (
	"strings"

	"github.com/rotisserie/eris"
)

// Source identifies the adapter that produced a call.
type Source string

const (
	SourceChesterfield Source = "chesterfield"
	SourceRichmond     Source = "richmond"
	SourceHenrico      Source = "henrico"
	SourceHanover      Source = "hanover"
)

// AllSources returns every known source in catalog order.
func AllSources() []Source {
	return []Source{SourceChesterfield, SourceRichmond, SourceHenrico, SourceHanover}
}

// ParseSource converts a string into a known Source.
func ParseSource(s string) (Source, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, src := range AllSources() {
		if string(src) == s {
			return src, nil
		}
	}
	return "", eris.Errorf("unknown source: %q", s)
}
