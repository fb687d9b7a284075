package models

import "time"

// Connection states written for converted flows.
const (
	ConnStateNoResponse  = "S0"
	ConnStateEstablished = "SF"
)

// ConnRecord is one connection in canonical connection-log shape. It lives
// only while a single source row is processed.
type ConnRecord struct {
	Time        time.Time
	UID         string
	FlowID      string
	SrcHost     string
	SrcPort     int
	DstHost     string
	DstPort     int
	Proto       string
	ProtoNum    int
	Service     string
	Duration    float64
	OrigBytes   int64
	RespBytes   int64
	OrigPkts    int64
	RespPkts    int64
	OrigIPBytes int64
	RespIPBytes int64
	ConnState   string
	History     string
	// Label is the normalized original dataset label and Class its
	// canonical attack class.
	Label      string
	Class      string
	SourceFile string
	Dataset    string
}
