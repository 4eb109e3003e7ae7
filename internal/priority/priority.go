// Package priority assigns a severity bucket to a call from its incident text.
package priority

import (
	"regexp"
	"strings"

	"github.com/sells-group/cad-ingest/internal/model"
)

// rule binds a bucket to the keywords that select it.
type rule struct {
	priority model.Priority
	re       *regexp.Regexp
}

// Rules are checked in order; the first match wins.
var rules = []rule{
	{model.PriorityCritical, wordSet(
		"shooting", "shots fired", "shot", "stabbing", "stabbed", "gunshot", "weapon", "armed",
		"homicide", "murder", "hostage", "barricade", "barricaded", "active shooter",
		"cardiac arrest", "not breathing", "unconscious", "structure fire", "working fire",
		"explosion", "officer down", "kidnapping", "abduction", "rape",
	)},
	{model.PriorityHigh, wordSet(
		"robbery", "burglary", "breaking and entering", "assault", "fight", "domestic",
		"carjacking", "pursuit", "accident with injuries", "crash with injuries", "mva injury",
		"overdose", "fire", "smoke", "hazmat", "gas leak", "rescue", "entrapment", "drowning",
		"missing child", "dui", "reckless",
	)},
	{model.PriorityLow, wordSet(
		"noise", "parking", "animal", "lost property", "found property", "welfare check",
		"assist", "escort", "information", "lockout", "littering", "loitering",
		"public service", "alarm test", "directed patrol", "follow up", "follow-up",
	)},
	{model.PriorityMedium, wordSet(
		"disturbance", "larceny", "theft", "shoplifting", "vandalism", "trespass", "suspicious",
		"accident", "crash", "traffic", "hit and run", "alarm", "medical", "fall", "sick",
	)},
}

// wordSet compiles keywords into one whole-word, case-insensitive pattern.
func wordSet(words ...string) *regexp.Regexp {
	quoted := make([]string, len(words))
	for i, w := range words {
		quoted[i] = strings.ReplaceAll(regexp.QuoteMeta(w), " ", `\s+`)
	}
	return regexp.MustCompile(`(?i)\b(?:` + strings.Join(quoted, "|") + `)\b`)
}

// Classify returns the bucket for a call. The incident is checked first. A
// description is only consulted when it carries text beyond the derived
// "{incident} at {location}" form, so a street name ("Shot Tower Rd") never
// picks the bucket. Calls matching nothing are medium.
func Classify(incident, description string) model.Priority {
	for _, text := range []string{incident, extraText(incident, description)} {
		if text == "" {
			continue
		}
		for _, r := range rules {
			if r.re.MatchString(text) {
				return r.priority
			}
		}
	}
	return model.PriorityMedium
}

// extraText drops a description that is just the incident plus a location.
func extraText(incident, description string) string {
	prefix := strings.TrimSpace(incident) + " at "
	if incident != "" && len(description) >= len(prefix) && strings.EqualFold(description[:len(prefix)], prefix) {
		return ""
	}
	return description
}
