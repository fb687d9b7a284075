// Package normalize unifies the value encodings found in flow tables:
// timestamps, protocol spellings, service names and numbers.
package normalize

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// timestampLayouts are tried in order after the epoch parse fails. A "T"
// separator has already been replaced by a space. Naive timestamps are read
// as UTC.
var timestampLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.999999999",
	"1/2/2006 15:04:05",
	"1/2/2006 15:04",
	"1/2/2006 3:04:05 PM",
	"2/1/2006 15:04:05",
	"2/1/2006 15:04",
	"2/1/2006 3:04:05 PM",
}

// permissiveLayouts cover ISO variants with offsets or a bare date.
var permissiveLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04Z07:00",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseTimestamp reads s as a Unix epoch in seconds or as one of the known
// date/time layouts. ok is false when nothing matches.
func ParseTimestamp(s string) (t time.Time, ok bool) {
	candidate := strings.TrimSpace(strings.ReplaceAll(s, "T", " "))
	if candidate == "" {
		return time.Time{}, false
	}

	if secs, err := strconv.ParseFloat(candidate, 64); err == nil {
		if math.IsNaN(secs) || math.IsInf(secs, 0) {
			return time.Time{}, false
		}
		whole, frac := math.Modf(secs)
		return time.Unix(int64(whole), int64(math.Round(frac*1e9))).UTC(), true
	}

	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, candidate); err == nil {
			return t.UTC(), true
		}
	}

	iso := strings.ReplaceAll(candidate, "/", "-")
	for _, layout := range permissiveLayouts {
		if t, err := time.Parse(layout, iso); err == nil {
			return t.UTC(), true
		}
		if t, err := time.Parse(layout, strings.Replace(iso, " ", "T", 1)); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// FormatEpoch renders t as fractional Unix seconds with microsecond
// precision, the connection-log "ts" encoding.
func FormatEpoch(t time.Time) string {
	return fmt.Sprintf("%d.%06d", t.Unix(), t.Nanosecond()/1000)
}
