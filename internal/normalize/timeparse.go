package normalize

import (
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// epochSecondsCutoff separates second-resolution epochs from millisecond
// ones. 1e10 seconds is the year 2286.
const epochSecondsCutoff = 1e10

// NormalizeEpoch converts an epoch in seconds or milliseconds to milliseconds.
func NormalizeEpoch(n int64) int64 {
	if n > -epochSecondsCutoff && n < epochSecondsCutoff {
		return n * 1000
	}
	return n
}

var dateLayouts = []string{
	"01/02/2006 15:04:05",
	"01/02/2006 15:04",
	"1/2/2006 15:04:05",
	"1/2/2006 15:04",
	"1/2/2006 3:04:05 PM",
	"1/2/2006 3:04 PM",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04:05",
}

var clockLayouts = []string{
	"15:04",
	"15:04:05",
	"3:04 PM",
	"3:04PM",
	"3:04:05 PM",
	"3:04:05PM",
}

// ParseTime interprets a source time token. Wall-clock forms are read in
// loc. Bare clock times take the date of runStart in loc, and move back a
// day when that would put them more than an hour after runStart.
func ParseTime(raw string, runStart time.Time, loc *time.Location) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, eris.New("empty time")
	}
	if loc == nil {
		loc = time.UTC
	}

	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(NormalizeEpoch(n)).UTC(), nil
	}
	if isNumeric(s) {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return time.Time{}, eris.Wrapf(err, "parse epoch %q", raw)
		}
		return time.UnixMilli(NormalizeEpoch(int64(f))).UTC(), nil
	}

	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}

	upper := strings.ToUpper(s)
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, upper, loc); err == nil {
			return t.UTC(), nil
		}
	}

	for _, layout := range clockLayouts {
		c, err := time.Parse(layout, upper)
		if err != nil {
			continue
		}
		day := runStart.In(loc)
		t := time.Date(day.Year(), day.Month(), day.Day(), c.Hour(), c.Minute(), c.Second(), 0, loc)
		if t.Sub(runStart) > time.Hour {
			t = t.AddDate(0, 0, -1)
		}
		return t.UTC(), nil
	}

	return time.Time{}, eris.Errorf("unrecognized time %q", raw)
}

// isNumeric matches decimal epoch tokens such as "1700000000.5".
func isNumeric(s string) bool {
	dot := false
	for i, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r == '.' && !dot:
			dot = true
		case r == '-' && i == 0 && len(s) > 1:
		default:
			return false
		}
	}
	return true
}
