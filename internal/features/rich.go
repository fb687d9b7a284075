package features

import (
	"math"
	"strings"

	"github.com/telhawk-systems/flowhawk/internal/models"
)

const (
	minDuration = 1e-6
	// headerBytes is the assumed per-packet header size.
	headerBytes = 20.0
	// stdFraction stands in for a standard deviation that a connection log
	// cannot provide.
	stdFraction = 0.1
	// packetGap is the assumed active time per packet, in seconds.
	packetGap = 0.001
)

// Rich approximates the CICIDS flow-meter features from a connection
// record. Per-packet distributions are unknown, so means stand in for
// minimum and maximum and standard deviations are a fixed fraction of the
// mean.
func Rich(rec models.ConnRecord) map[string]float64 {
	duration := math.Max(rec.Duration, minDuration)
	origPkts := math.Max(float64(rec.OrigPkts), 0)
	respPkts := math.Max(float64(rec.RespPkts), 0)
	origBytes := math.Max(float64(rec.OrigBytes), 0)
	respBytes := math.Max(float64(rec.RespBytes), 0)
	origIP := math.Max(float64(rec.OrigIPBytes), origBytes)
	respIP := math.Max(float64(rec.RespIPBytes), respBytes)

	totalPkts := origPkts + respPkts
	totalBytes := origIP + respIP

	fwdMean := perPacket(origIP, origPkts)
	bwdMean := perPacket(respIP, respPkts)
	avgLen := perPacket(totalBytes, totalPkts)

	flowIAT := duration / math.Max(totalPkts, 1)
	fwdIAT := duration / math.Max(origPkts, 1)
	bwdIAT := duration / math.Max(respPkts, 1)

	h := rec.History
	count := func(c string) float64 { return float64(strings.Count(h, c)) }
	both := func(c string) float64 { return count(c) + count(strings.ToLower(c)) }
	syn := both("S")

	downUp := respIP
	if origIP > 0 {
		downUp = respIP / origIP
	}
	idle := math.Max(duration-math.Min(duration, totalPkts*packetGap), 0)
	active := duration - idle

	f := make(map[string]float64, len(CICIDSFeatureNames))
	for _, name := range CICIDSFeatureNames {
		f[name] = 0
	}

	f["Destination Port"] = float64(rec.DstPort)
	f["Flow Duration"] = duration
	f["Total Fwd Packets"] = origPkts
	f["Total Backward Packets"] = respPkts
	f["Total Length of Fwd Packets"] = origIP
	f["Total Length of Bwd Packets"] = respIP

	f["Fwd Packet Length Max"] = math.Max(fwdMean, avgLen)
	f["Fwd Packet Length Min"] = nonZeroOr(fwdMean, avgLen)
	f["Fwd Packet Length Mean"] = fwdMean
	f["Fwd Packet Length Std"] = approxStd(fwdMean)
	f["Bwd Packet Length Max"] = math.Max(bwdMean, respIP/math.Max(respPkts, 1))
	f["Bwd Packet Length Min"] = nonZeroOr(bwdMean, avgLen)
	f["Bwd Packet Length Mean"] = bwdMean
	f["Bwd Packet Length Std"] = approxStd(bwdMean)
	f["Avg Fwd Segment Size"] = fwdMean
	f["Avg Bwd Segment Size"] = bwdMean
	f["min_seg_size_forward"] = fwdMean

	f["Packet Length Mean"] = avgLen
	f["Average Packet Size"] = avgLen
	f["Packet Length Std"] = approxStd(avgLen)
	f["Packet Length Variance"] = approxStd(avgLen) * approxStd(avgLen)
	f["Max Packet Length"] = math.Max(fwdMean, math.Max(bwdMean, avgLen))
	f["Min Packet Length"] = minPositive(fwdMean, bwdMean, avgLen)

	f["Flow Bytes/s"] = totalBytes / duration
	f["Flow Packets/s"] = totalPkts / duration
	f["Fwd Packets/s"] = origPkts / duration
	f["Bwd Packets/s"] = respPkts / duration

	f["Flow IAT Mean"] = flowIAT
	f["Flow IAT Max"] = flowIAT
	f["Flow IAT Min"] = flowIAT
	f["Flow IAT Std"] = approxStd(flowIAT)
	f["Fwd IAT Total"] = duration
	f["Fwd IAT Mean"] = fwdIAT
	f["Fwd IAT Max"] = fwdIAT
	f["Fwd IAT Min"] = fwdIAT
	f["Fwd IAT Std"] = approxStd(fwdIAT)
	f["Bwd IAT Total"] = duration
	f["Bwd IAT Mean"] = bwdIAT
	f["Bwd IAT Max"] = bwdIAT
	f["Bwd IAT Min"] = bwdIAT
	f["Bwd IAT Std"] = approxStd(bwdIAT)

	f["Fwd PSH Flags"] = count("P")
	f["Bwd PSH Flags"] = count("p")
	f["Fwd URG Flags"] = count("U")
	f["Bwd URG Flags"] = count("u")
	f["FIN Flag Count"] = both("F")
	f["SYN Flag Count"] = syn
	f["RST Flag Count"] = both("R")
	f["PSH Flag Count"] = both("P")
	f["ACK Flag Count"] = both("A")
	f["URG Flag Count"] = both("U")
	f["ECE Flag Count"] = both("E")

	f["Fwd Header Length"] = origPkts * headerBytes
	f["Fwd Header Length.1"] = origPkts * headerBytes
	f["Bwd Header Length"] = respPkts * headerBytes
	f["Down/Up Ratio"] = downUp

	f["Subflow Fwd Packets"] = origPkts
	f["Subflow Fwd Bytes"] = origIP
	f["Subflow Bwd Packets"] = respPkts
	f["Subflow Bwd Bytes"] = respIP
	f["Init_Win_bytes_forward"] = nonZeroOr(origBytes, origIP)
	f["Init_Win_bytes_backward"] = nonZeroOr(respBytes, respIP)
	f["act_data_pkt_fwd"] = math.Max(origPkts-count("P")-syn, 0)

	f["Idle Mean"] = idle
	f["Idle Min"] = idle * 0.8
	f["Idle Max"] = idle * 1.2
	f["Idle Std"] = approxStd(idle)
	f["Active Mean"] = active
	f["Active Min"] = active * 0.8
	f["Active Max"] = active * 1.2
	f["Active Std"] = approxStd(active)

	return f
}

func perPacket(bytes, pkts float64) float64 {
	if pkts <= 0 {
		return bytes
	}
	return bytes / pkts
}

func approxStd(v float64) float64 {
	if v <= 0 {
		return 0
	}
	return v * stdFraction
}

func nonZeroOr(v, fallback float64) float64 {
	if v != 0 {
		return v
	}
	return fallback
}

func minPositive(values ...float64) float64 {
	lowest := 0.0
	for _, v := range values {
		if v > 0 && (lowest == 0 || v < lowest) {
			lowest = v
		}
	}
	return lowest
}
