package normalize

import (
	"math"
	"strconv"
	"strings"
)

// ParseFloat parses s leniently: empty, "-", NaN and infinities yield def,
// and a value that fails to parse is retried with thousands separators
// removed before falling back to def.
func ParseFloat(s string, def float64) float64 {
	s = strings.TrimSpace(s)
	if s == "" || s == "-" {
		return def
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		v, err = strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
		if err != nil {
			return def
		}
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return def
	}
	return v
}

// ParseInt truncates the lenient float parse of s.
func ParseInt(s string, def int) int {
	return int(ParseFloat(s, float64(def)))
}

// ParsePort parses a port written as an integer or a float ("80.0").
func ParsePort(s string) (int, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return int(v), true
}
