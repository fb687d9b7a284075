package tabular

import "strings"

// RawRow is one source line keyed by the normalized header. It is never
// mutated after creation.
type RawRow struct {
	header *Header
	values []string
}

// NewRow pairs values with header. Values beyond the header width are
// discarded; callers must not pass fewer values than the header has columns.
func NewRow(header *Header, values []string) RawRow {
	if len(values) > header.Len() {
		values = values[:header.Len()]
	}
	return RawRow{header: header, values: values}
}

// RowFromMap builds a row with the given column order.
func RowFromMap(columns []string, m map[string]string) RawRow {
	values := make([]string, len(columns))
	for i, c := range columns {
		values[i] = m[c]
	}
	return RawRow{header: NewHeader(columns), values: values}
}

// Get returns the value of column name, or "" when absent.
func (r RawRow) Get(name string) string {
	if r.header == nil {
		return ""
	}
	i, ok := r.header.index[name]
	if !ok {
		return ""
	}
	return r.values[i]
}

// Lookup returns the value of column name and whether the column exists.
func (r RawRow) Lookup(name string) (string, bool) {
	if r.header == nil {
		return "", false
	}
	i, ok := r.header.index[name]
	if !ok {
		return "", false
	}
	return r.values[i], true
}

// LookupFold is Lookup ignoring case; an exact match wins.
func (r RawRow) LookupFold(name string) (string, bool) {
	if v, ok := r.Lookup(name); ok {
		return v, true
	}
	for i, n := range r.Columns() {
		if strings.EqualFold(n, name) {
			return r.values[i], true
		}
	}
	return "", false
}

func (r RawRow) Has(name string) bool {
	return r.header != nil && r.header.Has(name)
}

// Columns returns the header names.
func (r RawRow) Columns() []string {
	if r.header == nil {
		return nil
	}
	return r.header.names
}

// Header returns the shared header of the row.
func (r RawRow) Header() *Header {
	return r.header
}

// Map copies the row into a plain map.
func (r RawRow) Map() map[string]string {
	m := make(map[string]string, len(r.values))
	for i, name := range r.Columns() {
		if _, dup := m[name]; !dup {
			m[name] = r.values[i]
		}
	}
	return m
}

// Len returns the number of columns.
func (r RawRow) Len() int {
	return len(r.values)
}
