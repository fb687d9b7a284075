// Package dataset recognizes the shape of a flow table and resolves semantic
// fields through ordered column-name synonyms.
package dataset

import (
	"strings"

	"github.com/telhawk-systems/flowhawk/internal/tabular"
)

// Field is a semantic column independent of its spelling in a source.
type Field string

const (
	FieldTimestamp    Field = "timestamp"
	FieldSrcIP        Field = "src_ip"
	FieldSrcPort      Field = "src_port"
	FieldDstIP        Field = "dst_ip"
	FieldDstPort      Field = "dst_port"
	FieldProtocol     Field = "protocol"
	FieldFlowDuration Field = "flow_duration"
	FieldOrigPkts     Field = "orig_pkts"
	FieldRespPkts     Field = "resp_pkts"
	FieldOrigBytes    Field = "orig_bytes"
	FieldRespBytes    Field = "resp_bytes"
	FieldLabel        Field = "label"
	FieldFlowID       Field = "flow_id"
)

// Synonyms lists accepted column names per field, highest priority first.
var Synonyms = map[Field][]string{
	FieldTimestamp:    {"Timestamp", "timestamp", "Flow Timestamp"},
	FieldSrcIP:        {"Source IP", "Src IP", "src_ip"},
	FieldSrcPort:      {"Source Port", "Src Port", "src_port"},
	FieldDstIP:        {"Destination IP", "Dst IP", "DestinationIP", "dst_ip"},
	FieldDstPort:      {"Destination Port", "Dst Port", "Destination Port Number", "dst_port"},
	FieldProtocol:     {"Protocol", "Protocol Name", "protocol"},
	FieldFlowDuration: {"Flow Duration", "Flow_Duration"},
	FieldOrigPkts:     {"Total Fwd Packets", "Tot Fwd Pkts", "Fwd Packet Count"},
	FieldRespPkts:     {"Total Backward Packets", "Tot Bwd Pkts", "Bwd Packet Count"},
	FieldOrigBytes:    {"Total Length of Fwd Packets", "TotLen Fwd Pkts", "Fwd Packet Length Total"},
	FieldRespBytes:    {"Total Length of Bwd Packets", "TotLen Bwd Pkts", "Bwd Packet Length Total"},
	FieldLabel:        {"Label", "Attack", "Attack Label"},
	FieldFlowID:       {"Flow ID", "FlowID"},
}

// EssentialFields must all resolve for a table to be a raw flow export.
var EssentialFields = []Field{
	FieldTimestamp, FieldSrcIP, FieldSrcPort, FieldDstIP, FieldDstPort, FieldProtocol,
}

// ConnLogRequired are the columns a connection log must carry for the
// feature builders to work.
var ConnLogRequired = []string{
	"ts", "uid", "id.orig_h", "id.orig_p", "id.resp_h", "id.resp_p",
	"proto", "service", "duration", "orig_bytes", "resp_bytes", "conn_state",
}

// ConnLogColumns is the full canonical connection-log column order.
var ConnLogColumns = []string{
	"ts", "uid", "id.orig_h", "id.orig_p", "id.resp_h", "id.resp_p",
	"proto", "service", "duration", "orig_bytes", "resp_bytes", "conn_state",
	"local_orig", "local_resp", "missed_bytes", "history", "orig_pkts",
	"orig_ip_bytes", "resp_pkts", "resp_ip_bytes", "tunnel_parents", "ip_proto",
	"cicids_label", "cicids_attack", "flow_id", "source_file", "dataset_name",
}

// FeatureMetaColumns are the endpoint columns a feature table carries next
// to its feature values.
var FeatureMetaColumns = []string{
	"Flow ID", "Source IP", "Source Port", "Destination IP", "Destination Port", "Protocol", "Timestamp",
}

// FeatureLabelColumns are the accepted label columns of a feature table, in
// lookup order.
var FeatureLabelColumns = []string{"Label", "Attack", "cicids_attack", "cicids_label"}

// Resolve returns the value of the first synonym of f that is present in
// row with a non-empty value. BOMs and surrounding whitespace are stripped.
func Resolve(row tabular.RawRow, f Field) string {
	for _, name := range Synonyms[f] {
		v, ok := row.Lookup(name)
		if !ok {
			continue
		}
		if v = clean(v); v != "" {
			return v
		}
	}
	return ""
}

// ResolveColumn returns the first synonym of f present in header.
func ResolveColumn(h *tabular.Header, f Field) (string, bool) {
	for _, name := range Synonyms[f] {
		if h.Has(name) {
			return name, true
		}
	}
	return "", false
}

// MissingEssentials returns the essential fields with no synonym in h.
func MissingEssentials(h *tabular.Header) []string {
	var missing []string
	for _, f := range EssentialFields {
		if _, ok := ResolveColumn(h, f); !ok {
			missing = append(missing, string(f))
		}
	}
	return missing
}

// FeatureLabel returns the original label of a feature-table row.
func FeatureLabel(row tabular.RawRow) (string, bool) {
	for _, name := range FeatureLabelColumns {
		if v, ok := row.LookupFold(name); ok {
			return v, true
		}
	}
	return "", false
}

func clean(v string) string {
	return strings.TrimSpace(strings.ReplaceAll(v, "\ufeff", ""))
}
