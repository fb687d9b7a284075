package features

// Set names the feature space a classifier was trained on.
type Set string

const (
	// SetLean is the compact space computed straight from connection-log
	// fields.
	SetLean Set = "lean"
	// SetCICIDS approximates the CICIDS2017 flow-meter feature space.
	SetCICIDS Set = "cicids"
)

// ParseSet accepts the string form of a Set; empty means SetLean.
func ParseSet(s string) (Set, bool) {
	switch Set(s) {
	case "", SetLean:
		return SetLean, true
	case SetCICIDS:
		return SetCICIDS, true
	}
	return "", false
}

// LeanFeatureNames is the lean feature order.
var LeanFeatureNames = []string{
	"duration",
	"orig_bytes",
	"resp_bytes",
	"orig_pkts",
	"resp_pkts",
	"bytes_total",
	"bytes_ratio",
	"pkts_total",
	"pkts_ratio",
	"proto_tcp",
	"proto_udp",
	"proto_icmp",
	"is_http",
	"is_ssh",
}

// CICIDSFeatureNames are the CICIDS2017 flow-meter columns, label excluded,
// in dataset order.
var CICIDSFeatureNames = []string{
	"Destination Port",
	"Flow Duration",
	"Total Fwd Packets",
	"Total Backward Packets",
	"Total Length of Fwd Packets",
	"Total Length of Bwd Packets",
	"Fwd Packet Length Max",
	"Fwd Packet Length Min",
	"Fwd Packet Length Mean",
	"Fwd Packet Length Std",
	"Bwd Packet Length Max",
	"Bwd Packet Length Min",
	"Bwd Packet Length Mean",
	"Bwd Packet Length Std",
	"Flow Bytes/s",
	"Flow Packets/s",
	"Flow IAT Mean",
	"Flow IAT Std",
	"Flow IAT Max",
	"Flow IAT Min",
	"Fwd IAT Total",
	"Fwd IAT Mean",
	"Fwd IAT Std",
	"Fwd IAT Max",
	"Fwd IAT Min",
	"Bwd IAT Total",
	"Bwd IAT Mean",
	"Bwd IAT Std",
	"Bwd IAT Max",
	"Bwd IAT Min",
	"Fwd PSH Flags",
	"Bwd PSH Flags",
	"Fwd URG Flags",
	"Bwd URG Flags",
	"Fwd Header Length",
	"Bwd Header Length",
	"Fwd Packets/s",
	"Bwd Packets/s",
	"Min Packet Length",
	"Max Packet Length",
	"Packet Length Mean",
	"Packet Length Std",
	"Packet Length Variance",
	"FIN Flag Count",
	"SYN Flag Count",
	"RST Flag Count",
	"PSH Flag Count",
	"ACK Flag Count",
	"URG Flag Count",
	"CWE Flag Count",
	"ECE Flag Count",
	"Down/Up Ratio",
	"Average Packet Size",
	"Avg Fwd Segment Size",
	"Avg Bwd Segment Size",
	"Fwd Header Length.1",
	"Fwd Avg Bytes/Bulk",
	"Fwd Avg Packets/Bulk",
	"Fwd Avg Bulk Rate",
	"Bwd Avg Bytes/Bulk",
	"Bwd Avg Packets/Bulk",
	"Bwd Avg Bulk Rate",
	"Subflow Fwd Packets",
	"Subflow Fwd Bytes",
	"Subflow Bwd Packets",
	"Subflow Bwd Bytes",
	"Init_Win_bytes_forward",
	"Init_Win_bytes_backward",
	"act_data_pkt_fwd",
	"min_seg_size_forward",
	"Active Mean",
	"Active Std",
	"Active Max",
	"Active Min",
	"Idle Mean",
	"Idle Std",
	"Idle Max",
	"Idle Min",
}

// TopFeatures are the twenty most important CICIDS features, the input of
// the reduced forest classifier.
var TopFeatures = []string{
	"Bwd Packet Length Max",
	"Avg Fwd Segment Size",
	"Fwd Packet Length Mean",
	"Bwd Packet Length Min",
	"PSH Flag Count",
	"Subflow Fwd Packets",
	"Total Length of Bwd Packets",
	"Total Fwd Packets",
	"act_data_pkt_fwd",
	"Fwd Packet Length Min",
	"Idle Min",
	"Bwd Packets/s",
	"Destination Port",
	"min_seg_size_forward",
	"Init_Win_bytes_backward",
	"Bwd Packet Length Std",
	"Avg Bwd Segment Size",
	"Packet Length Mean",
	"Min Packet Length",
	"Bwd Packet Length Mean",
}
