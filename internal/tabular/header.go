// Package tabular reads loosely structured delimited text tables: flow
// exports, Zeek-style connection logs and feature tables.
package tabular

import "strings"

const (
	byteOrderMark = "\ufeff"
	fieldsMarker  = "#fields"
)

// DetectDelimiter picks the field separator from the first line of a table:
// tab if any tab is present, semicolon if semicolons outnumber commas,
// comma otherwise.
func DetectDelimiter(line string) rune {
	if strings.ContainsRune(line, '\t') {
		return '\t'
	}
	if strings.Count(line, ";") > strings.Count(line, ",") {
		return ';'
	}
	return ','
}

// NormalizeHeader cleans raw column names. A leading Zeek "#fields" token is
// dropped, byte-order marks are removed and whitespace runs collapse to a
// single space.
func NormalizeHeader(raw []string) []string {
	if len(raw) == 0 {
		return []string{}
	}

	start := 0
	if strings.HasPrefix(strings.TrimPrefix(raw[0], byteOrderMark), fieldsMarker) {
		start = 1
	}

	cleaned := make([]string, 0, len(raw)-start)
	for _, col := range raw[start:] {
		col = strings.ReplaceAll(col, byteOrderMark, "")
		cleaned = append(cleaned, strings.Join(strings.Fields(col), " "))
	}
	return cleaned
}

// Header is a normalized column list with a name index.
type Header struct {
	names []string
	index map[string]int
}

// NewHeader builds a Header from already normalized names. When a name
// repeats, lookups resolve to its first position.
func NewHeader(names []string) *Header {
	h := &Header{names: names, index: make(map[string]int, len(names))}
	for i, n := range names {
		if _, dup := h.index[n]; !dup {
			h.index[n] = i
		}
	}
	return h
}

// Names returns the column names in source order.
func (h *Header) Names() []string {
	return h.names
}

func (h *Header) Len() int {
	return len(h.names)
}

// Has reports whether the header contains name exactly.
func (h *Header) Has(name string) bool {
	_, ok := h.index[name]
	return ok
}

// HasFold reports whether the header contains name ignoring case.
func (h *Header) HasFold(name string) bool {
	if h.Has(name) {
		return true
	}
	for _, n := range h.names {
		if strings.EqualFold(n, name) {
			return true
		}
	}
	return false
}

// Missing returns the names from want that are absent from the header.
func (h *Header) Missing(want []string) []string {
	var missing []string
	for _, w := range want {
		if !h.Has(w) {
			missing = append(missing, w)
		}
	}
	return missing
}
