// Package features builds the ordered numeric vectors a classifier consumes.
package features

import "strings"

// Vector is an ordered list of named values. Its names are fixed by the
// classifier that consumes it, whatever the source row provided.
type Vector struct {
	names  []string
	values []float64
}

// Align orders values by names; names absent from values are 0.
func Align(names []string, values map[string]float64) Vector {
	v := Vector{names: names, values: make([]float64, len(names))}
	for i, n := range names {
		v.values[i] = values[n]
	}
	return v
}

func (v Vector) Names() []string {
	return v.names
}

// Values returns the values in name order. The slice must not be modified.
func (v Vector) Values() []float64 {
	return v.values
}

func (v Vector) Len() int {
	return len(v.names)
}

// Get returns the value of name.
func (v Vector) Get(name string) (float64, bool) {
	for i, n := range v.names {
		if n == name {
			return v.values[i], true
		}
	}
	return 0, false
}

// Map copies the vector into a map, as stored in alert metadata.
func (v Vector) Map() map[string]float64 {
	m := make(map[string]float64, len(v.names))
	for i, n := range v.names {
		m[n] = v.values[i]
	}
	return m
}

// foldIndex resolves column names ignoring case, preferring exact matches.
type foldIndex map[string]string

func newFoldIndex(columns []string) foldIndex {
	idx := make(foldIndex, len(columns))
	for _, c := range columns {
		key := strings.ToLower(c)
		if _, ok := idx[key]; !ok {
			idx[key] = c
		}
	}
	return idx
}

func (f foldIndex) column(name string) (string, bool) {
	c, ok := f[strings.ToLower(name)]
	return c, ok
}
