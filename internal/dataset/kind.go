package dataset

import (
	"fmt"
	"sort"
	"strings"

	"github.com/telhawk-systems/flowhawk/internal/tabular"
)

// Kind is the canonical shape of a flow table.
type Kind string

const (
	KindRawFlowExport Kind = "raw_flow_export"
	KindConnectionLog Kind = "conn_log"
	KindFeatureTable  Kind = "feature_table"
)

// ParseKind accepts the string form of a Kind.
func ParseKind(s string) (Kind, bool) {
	switch Kind(s) {
	case KindRawFlowExport, KindConnectionLog, KindFeatureTable:
		return Kind(s), true
	}
	return "", false
}

// MalformedSourceError rejects a whole source before any row is processed.
type MalformedSourceError struct {
	Reason  string
	Missing []string
}

func (e *MalformedSourceError) Error() string {
	if len(e.Missing) == 0 {
		return e.Reason
	}
	return fmt.Sprintf("%s: missing columns %s", e.Reason, strings.Join(e.Missing, ", "))
}

// Detector classifies headers against the feature names of a classifier.
type Detector struct {
	featureNames []string
}

// NewDetector returns a Detector for a classifier declaring featureNames.
func NewDetector(featureNames []string) *Detector {
	return &Detector{featureNames: featureNames}
}

// Detect decides the kind of a table from its header. Checks run in a fixed
// priority: connection log, then feature table, then raw flow export. A
// header matching none yields a *MalformedSourceError naming the columns a
// connection log would still need.
func (d *Detector) Detect(h *tabular.Header) (Kind, error) {
	if h == nil || h.Len() == 0 {
		return "", &MalformedSourceError{Reason: "source is empty or has no header"}
	}

	missingConn := h.Missing(ConnLogRequired)
	if len(missingConn) == 0 {
		return KindConnectionLog, nil
	}
	if d.IsFeatureTable(h) {
		return KindFeatureTable, nil
	}
	if len(MissingEssentials(h)) == 0 {
		return KindRawFlowExport, nil
	}

	sort.Strings(missingConn)
	return "", &MalformedSourceError{
		Reason:  "unrecognized dataset",
		Missing: missingConn,
	}
}

// IsFeatureTable reports whether h carries every declared feature, every
// endpoint column and at least one label column. Names compare
// case-insensitively.
func (d *Detector) IsFeatureTable(h *tabular.Header) bool {
	if len(d.featureNames) == 0 {
		return false
	}
	for _, name := range d.featureNames {
		if !h.HasFold(name) {
			return false
		}
	}
	for _, name := range FeatureMetaColumns {
		if !h.HasFold(name) {
			return false
		}
	}
	for _, name := range FeatureLabelColumns {
		if h.HasFold(name) {
			return true
		}
	}
	return false
}

// MissingForFeatureTable lists what h lacks to qualify as a feature table.
func (d *Detector) MissingForFeatureTable(h *tabular.Header) []string {
	var missing []string
	for _, name := range append(append([]string{}, d.featureNames...), FeatureMetaColumns...) {
		if !h.HasFold(name) {
			missing = append(missing, name)
		}
	}
	hasLabel := false
	for _, name := range FeatureLabelColumns {
		if h.HasFold(name) {
			hasLabel = true
			break
		}
	}
	if !hasLabel {
		missing = append(missing, strings.Join(FeatureLabelColumns, "|"))
	}
	return missing
}
