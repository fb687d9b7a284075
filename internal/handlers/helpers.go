package handlers

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/telhawk-systems/flowhawk/internal/models"
)

// parseInt returns def for empty or invalid values.
func parseInt(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

// parseTime accepts RFC3339 timestamps and plain dates.
func parseTime(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, fmt.Errorf("invalid time %q", s)
}

// listParam collects repeated and comma separated values of key.
func listParam(q url.Values, key string) []string {
	var out []string
	for _, raw := range q[key] {
		for _, v := range strings.Split(raw, ",") {
			if v = strings.TrimSpace(v); v != "" {
				out = append(out, v)
			}
		}
	}
	return out
}

func parseBool(s string) bool {
	b, _ := strconv.ParseBool(s)
	return b
}

// parseAlertFilter reads the listing query string. Unknown severities and
// attack types are rejected; protocols are matched as given.
func parseAlertFilter(q url.Values) (models.AlertFilter, error) {
	f := models.AlertFilter{
		Query:    strings.TrimSpace(q.Get("q")),
		Sort:     q.Get("sort"),
		Page:     parseInt(q.Get("page"), 1),
		PageSize: parseInt(q.Get("page_size"), models.DefaultPageSize),
	}

	var err error
	if f.From, err = parseTime(q.Get("from")); err != nil {
		return f, err
	}
	if f.To, err = parseTime(q.Get("to")); err != nil {
		return f, err
	}

	for _, v := range listParam(q, "severity") {
		sev, ok := models.ParseSeverity(v)
		if !ok {
			return f, fmt.Errorf("invalid severity %q", v)
		}
		f.Severities = append(f.Severities, sev)
	}
	for _, v := range listParam(q, "attack_type") {
		a, ok := models.ParseAttackType(v)
		if !ok {
			return f, fmt.Errorf("invalid attack_type %q", v)
		}
		f.AttackTypes = append(f.AttackTypes, a)
	}
	for _, v := range listParam(q, "protocol") {
		f.Protocols = append(f.Protocols, models.ProtocolFromValue(v))
	}

	f.Normalize()
	return f, nil
}
