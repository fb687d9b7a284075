package convert

import (
	"strings"

	"github.com/telhawk-systems/flowhawk/internal/models"
	"github.com/telhawk-systems/flowhawk/internal/normalize"
	"github.com/telhawk-systems/flowhawk/internal/tabular"
)

// ParseConnLog reads a connection-log row into a record. Zeek writes "-" for
// unset values; those and any unparseable number read as zero. Byte counts
// fall back to their IP-level counterparts when unset. An unparseable "ts"
// leaves Time zero for the caller to resolve.
func ParseConnLog(row tabular.RawRow) models.ConnRecord {
	get := func(name string) string {
		v := strings.TrimSpace(row.Get(name))
		if v == "-" {
			return ""
		}
		return v
	}

	rec := models.ConnRecord{
		UID:        get("uid"),
		FlowID:     get("flow_id"),
		SrcHost:    get("id.orig_h"),
		SrcPort:    normalize.ParseInt(get("id.orig_p"), 0),
		DstHost:    get("id.resp_h"),
		DstPort:    normalize.ParseInt(firstSet(get("id.resp_p"), get("resp_p")), 0),
		Service:    strings.ToLower(get("service")),
		Duration:   normalize.ParseFloat(get("duration"), 0),
		OrigPkts:   int64(normalize.ParseFloat(get("orig_pkts"), 0)),
		RespPkts:   int64(normalize.ParseFloat(get("resp_pkts"), 0)),
		ConnState:  get("conn_state"),
		History:    get("history"),
		Class:      get("cicids_attack"),
		Label:      get("cicids_label"),
		SourceFile: get("source_file"),
		Dataset:    get("dataset_name"),
	}
	if ts, ok := normalize.ParseTimestamp(get("ts")); ok {
		rec.Time = ts
	}

	rec.Proto = strings.ToLower(get("proto"))
	if rec.Proto != "" {
		_, rec.ProtoNum = normalize.NormalizeProtocol(rec.Proto)
	}
	if n := normalize.ParseInt(get("ip_proto"), 0); n > 0 {
		rec.ProtoNum = n
	}

	origBytes, origIP := get("orig_bytes"), get("orig_ip_bytes")
	respBytes, respIP := get("resp_bytes"), get("resp_ip_bytes")
	rec.OrigBytes = int64(normalize.ParseFloat(firstSet(origBytes, origIP), 0))
	rec.RespBytes = int64(normalize.ParseFloat(firstSet(respBytes, respIP), 0))
	rec.OrigIPBytes = int64(normalize.ParseFloat(origIP, float64(rec.OrigBytes)))
	rec.RespIPBytes = int64(normalize.ParseFloat(respIP, float64(rec.RespBytes)))

	if rec.FlowID == "" {
		rec.FlowID = rec.UID
	}
	return rec
}

func firstSet(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
