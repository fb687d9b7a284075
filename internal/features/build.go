package features

import (
	"fmt"
	"sync/atomic"

	"github.com/telhawk-systems/flowhawk/internal/models"
	"github.com/telhawk-systems/flowhawk/internal/normalize"
	"github.com/telhawk-systems/flowhawk/internal/tabular"
)

// Builder computes every feature it knows from a connection record.
type Builder func(models.ConnRecord) map[string]float64

// BuilderFor returns the builder of a feature set.
func BuilderFor(set Set) (Builder, error) {
	switch set {
	case SetLean:
		return Lean, nil
	case SetCICIDS:
		return Rich, nil
	}
	return nil, fmt.Errorf("unknown feature set %q", set)
}

// BuildLean aligns the lean features of rec to names.
func BuildLean(rec models.ConnRecord, names []string) Vector {
	return Align(names, Lean(rec))
}

// BuildRich aligns the CICIDS approximation of rec to names.
func BuildRich(rec models.ConnRecord, names []string) Vector {
	return Align(names, Rich(rec))
}

// FeatureRow reads precomputed features from feature-table rows. Column
// names match case-insensitively. It is safe for concurrent use.
type FeatureRow struct {
	names []string
	// index of the most recent header; rows of one source share a header.
	bound atomic.Pointer[boundIndex]
}

type boundIndex struct {
	header *tabular.Header
	index  foldIndex
}

// NewFeatureRow returns a reader aligning rows to names.
func NewFeatureRow(names []string) *FeatureRow {
	return &FeatureRow{names: names}
}

// Vector reads names from row; missing or non-numeric values are 0.
func (f *FeatureRow) Vector(row tabular.RawRow) Vector {
	index := f.indexFor(row)
	values := make(map[string]float64, len(f.names))
	for _, name := range f.names {
		col, ok := index.column(name)
		if !ok {
			continue
		}
		values[name] = normalize.ParseFloat(row.Get(col), 0)
	}
	return Align(f.names, values)
}

func (f *FeatureRow) indexFor(row tabular.RawRow) foldIndex {
	h := row.Header()
	if b := f.bound.Load(); b != nil && b.header == h && h != nil {
		return b.index
	}
	b := &boundIndex{header: h, index: newFoldIndex(row.Columns())}
	f.bound.Store(b)
	return b.index
}
