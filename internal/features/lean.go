package features

import (
	"math"
	"strings"

	"github.com/telhawk-systems/flowhawk/internal/models"
)

const epsilon = 1e-6

var (
	webServices = map[string]bool{"http": true, "http-alt": true, "https": true}
	webPorts    = map[int]bool{80: true, 8080: true, 8000: true, 443: true}
)

// Lean computes the lean feature set from a connection record.
func Lean(rec models.ConnRecord) map[string]float64 {
	duration := math.Max(rec.Duration, 0)
	origBytes := math.Max(float64(rec.OrigBytes), 0)
	respBytes := math.Max(float64(rec.RespBytes), 0)
	origPkts := math.Max(float64(rec.OrigPkts), 0)
	respPkts := math.Max(float64(rec.RespPkts), 0)

	proto := strings.ToUpper(rec.Proto)
	service := strings.ToLower(rec.Service)

	return map[string]float64{
		"duration":    duration,
		"orig_bytes":  origBytes,
		"resp_bytes":  respBytes,
		"orig_pkts":   origPkts,
		"resp_pkts":   respPkts,
		"bytes_total": origBytes + respBytes,
		"bytes_ratio": origBytes / math.Max(respBytes, epsilon),
		"pkts_total":  origPkts + respPkts,
		"pkts_ratio":  origPkts / math.Max(respPkts, epsilon),
		"proto_tcp":   flag(proto == "TCP"),
		"proto_udp":   flag(proto == "UDP"),
		"proto_icmp":  flag(proto == "ICMP"),
		"is_http":     flag(webServices[service] || webPorts[rec.DstPort]),
		"is_ssh":      flag(service == "ssh" || rec.DstPort == 22),
	}
}

func flag(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
