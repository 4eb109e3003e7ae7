package normalize

import (
	"regexp"

	"github.com/sells-group/cad-ingest/internal/source"
)

var fireKeywordsRe = regexp.MustCompile(`(?i)\b(?:fire|medical|rescue|ems|ambulance|cardiac|overdose|smoke|hazmat)\b`)

// ResolveAgency maps a row's agency code through the source's code table.
// Rows without an agency are assigned the source's fire or police agency
// based on the incident text.
func ResolveAgency(cfg source.SourceConfig, code, incident string) string {
	if code != "" {
		return cfg.LookupAgency(code)
	}
	if fireKeywordsRe.MatchString(incident) && cfg.FireAgency != "" {
		return cfg.FireAgency
	}
	return cfg.PoliceAgency
}
