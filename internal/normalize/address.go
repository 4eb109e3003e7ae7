package normalize

import (
	"regexp"
	"strings"
)

var (
	// "100 Block of Main St", "100 BLK Main St", "100 blk of Main St".
	blockOfRe = regexp.MustCompile(`(?i)^(\d+)\s+(?:block|blk)\.?(?:\s+of)?\s+`)
	slashRe   = regexp.MustCompile(`\s*/\s*`)

	// Interstate shields and the internal EN segment codes some CAD feeds
	// emit for highway mile markers.
	highwayRe = regexp.MustCompile(`(?i)\b(?:I-\s?\d{1,3}|IS\s+\d{1,3}|INTERSTATE\s+\d{1,3}|EN\s+\d{1,4})\b`)

	// "I95" and "I 95" only count as a shield when they open the location
	// or follow a separator; "APT I2" is a unit number.
	bareShieldRe = regexp.MustCompile(`(?i)(?:^|[/@&,;(]\s*|\b(?:AND|AT|TO|ON|ONTO|FROM|NEAR)\s+)I\s?\d{1,3}\b`)
)

// CleanAddress collapses block-of prefixes, turns cross-street slashes
// into AND and squeezes whitespace.
func CleanAddress(raw string) string {
	s := collapseSpace(raw)
	s = blockOfRe.ReplaceAllString(s, "$1 ")
	s = slashRe.ReplaceAllString(s, " AND ")
	return collapseSpace(s)
}

// IsHighwaySegment reports whether a location names an interstate or an
// EN segment code. Those records have no geocodable street address.
func IsHighwaySegment(location string) bool {
	location = strings.TrimSpace(location)
	return highwayRe.MatchString(location) || bareShieldRe.MatchString(location)
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
