package normalize

import (
	"strconv"
	"strings"
	"time"
)

const (
	// DateTimeLayout is the canonical DD/MM/YY HH:MM:SS form.
	DateTimeLayout = "02/01/06 15:04:05"
	// DateLayout is the canonical DD/MM/YY form.
	DateLayout = "02/01/06"
)

// Input layouts also accept single-digit day, month and hour.
const (
	looseDateTimeLayout = "2/1/06 15:04:05"
	looseDateLayout     = "2/1/06"
)

var errorMarkers = []string{"erro", "error"}

// Date converts a UNIX timestamp or a DD/MM/YY [HH:MM:SS] string into its
// canonical display form, rendering timestamps in UTC. See DateIn.
func Date(s string) string {
	return DateIn(s, time.UTC)
}

// DateIn converts a UNIX timestamp or a D/M/YY [H:MM:SS] string into its
// canonical display form. The time component is kept when the input had one;
// timestamps always render with time, in loc. Empty, error-flagged and
// unparseable input yields "".
func DateIn(s string, loc *time.Location) string {
	s = strings.Trim(strings.TrimSpace(s), "'\"`")
	if s == "" || hasErrorMarker(s) {
		return ""
	}
	if loc == nil {
		loc = time.UTC
	}

	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(secs, 0).In(loc).Format(DateTimeLayout)
	}
	if t, err := time.Parse(looseDateTimeLayout, s); err == nil {
		return t.Format(DateTimeLayout)
	}
	if t, err := time.Parse(looseDateLayout, s); err == nil {
		return t.Format(DateLayout)
	}
	return ""
}

// ParseCanonical parses a canonical date string in loc. It accepts both the
// date-time and the date-only layout.
func ParseCanonical(s string, loc *time.Location) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if loc == nil {
		loc = time.UTC
	}
	if t, err := time.ParseInLocation(looseDateTimeLayout, s, loc); err == nil {
		return t, true
	}
	if t, err := time.ParseInLocation(looseDateLayout, s, loc); err == nil {
		return t, true
	}
	return time.Time{}, false
}

func hasErrorMarker(s string) bool {
	lower := strings.ToLower(s)
	for _, m := range errorMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}
