package normalize

import (
	"strings"

	"github.com/sells-group/cad-ingest/internal/model"
)

// MaxCallIDLen caps generated call ids.
const MaxCallIDLen = 120

// BuildCallID derives the natural key for a call from its source, the raw
// time token, the incident and the cleaned location. The result is
// lowercased and reduced to [a-z0-9_].
//
// Two distinct calls with the same time token, incident and location on
// one source collide. Feeds publish no stable upstream id, so this is
// accepted.
func BuildCallID(src model.Source, rawTime, incident, location string) string {
	joined := strings.ToLower(strings.Join([]string{string(src), rawTime, incident, location}, "_"))

	var b strings.Builder
	b.Grow(len(joined))
	for _, r := range joined {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
			if b.Len() == MaxCallIDLen {
				break
			}
		}
	}
	return b.String()
}
