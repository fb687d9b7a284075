// Package convert rewrites raw flow-export rows into canonical
// connection-log rows.
package convert

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/telhawk-systems/flowhawk/internal/dataset"
	"github.com/telhawk-systems/flowhawk/internal/models"
	"github.com/telhawk-systems/flowhawk/internal/normalize"
	"github.com/telhawk-systems/flowhawk/internal/tabular"
)

// microsPerSecond scales the flow-export duration column.
const microsPerSecond = 1_000_000

// Stats summarizes one conversion.
type Stats struct {
	Written int            `json:"written"`
	Skipped int            `json:"skipped"`
	Reasons map[string]int `json:"reasons,omitempty"`
}

func (s *Stats) skip(reason string) {
	s.Skipped++
	if s.Reasons == nil {
		s.Reasons = make(map[string]int)
	}
	s.Reasons[reason]++
}

// Converter maps flow-export rows to connection records. It holds no
// mutable state and is safe for concurrent use.
type Converter struct {
	datasetName string
	sourceFile  string
	newUID      func() string
}

// NewConverter returns a Converter stamping rows with the given provenance.
func NewConverter(datasetName, sourceFile string) *Converter {
	return &Converter{
		datasetName: datasetName,
		sourceFile:  sourceFile,
		newUID:      ShortID,
	}
}

// ShortID returns 20 hex characters of a random UUID.
func ShortID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:20]
}

// CheckHeader reports a *dataset.MalformedSourceError when h cannot resolve
// every essential field.
func CheckHeader(h *tabular.Header) error {
	if h == nil || h.Len() == 0 {
		return &dataset.MalformedSourceError{Reason: "flow export is empty"}
	}
	if missing := dataset.MissingEssentials(h); len(missing) > 0 {
		return &dataset.MalformedSourceError{
			Reason:  "flow export lacks required fields",
			Missing: missing,
		}
	}
	return nil
}

// ConvertRow maps one flow-export row. Rows that cannot be converted yield a
// *SkippedRowError.
func (c *Converter) ConvertRow(row tabular.RawRow) (models.ConnRecord, error) {
	rawTS := dataset.Resolve(row, dataset.FieldTimestamp)
	ts, ok := normalize.ParseTimestamp(rawTS)
	if !ok {
		return models.ConnRecord{}, &SkippedRowError{Reason: ReasonTimestamp, Value: rawTS}
	}

	srcIP := dataset.Resolve(row, dataset.FieldSrcIP)
	dstIP := dataset.Resolve(row, dataset.FieldDstIP)
	srcPortRaw := dataset.Resolve(row, dataset.FieldSrcPort)
	dstPortRaw := dataset.Resolve(row, dataset.FieldDstPort)
	if srcIP == "" || dstIP == "" || srcPortRaw == "" || dstPortRaw == "" {
		return models.ConnRecord{}, &SkippedRowError{Reason: ReasonEndpoint}
	}
	srcPort, ok := normalize.ParsePort(srcPortRaw)
	if !ok {
		return models.ConnRecord{}, &SkippedRowError{Reason: ReasonPort, Value: srcPortRaw}
	}
	dstPort, ok := normalize.ParsePort(dstPortRaw)
	if !ok {
		return models.ConnRecord{}, &SkippedRowError{Reason: ReasonPort, Value: dstPortRaw}
	}

	proto, protoNum := normalize.NormalizeProtocol(dataset.Resolve(row, dataset.FieldProtocol))

	duration := normalize.ParseFloat(dataset.Resolve(row, dataset.FieldFlowDuration), 0) / microsPerSecond
	origPkts := int64(normalize.ParseInt(dataset.Resolve(row, dataset.FieldOrigPkts), 0))
	respPkts := int64(normalize.ParseInt(dataset.Resolve(row, dataset.FieldRespPkts), 0))
	origBytes := int64(normalize.ParseFloat(dataset.Resolve(row, dataset.FieldOrigBytes), 0))
	respBytes := int64(normalize.ParseFloat(dataset.Resolve(row, dataset.FieldRespBytes), 0))

	state := models.ConnStateEstablished
	if respPkts == 0 && respBytes == 0 {
		state = models.ConnStateNoResponse
	}
	history := "-"
	if proto == normalize.ProtoTCP {
		history = "S"
	}

	label, class, _ := NormalizeLabel(dataset.Resolve(row, dataset.FieldLabel))

	flowID := dataset.Resolve(row, dataset.FieldFlowID)
	uid := c.newUID()
	if flowID == "" {
		flowID = uid
	}

	return models.ConnRecord{
		Time:        ts,
		UID:         uid,
		FlowID:      flowID,
		SrcHost:     srcIP,
		SrcPort:     srcPort,
		DstHost:     dstIP,
		DstPort:     dstPort,
		Proto:       proto,
		ProtoNum:    protoNum,
		Service:     normalize.ServiceForPort(dstPort),
		Duration:    duration,
		OrigBytes:   origBytes,
		RespBytes:   respBytes,
		OrigPkts:    origPkts,
		RespPkts:    respPkts,
		OrigIPBytes: origBytes,
		RespIPBytes: respBytes,
		ConnState:   state,
		History:     history,
		Label:       label,
		Class:       class,
		SourceFile:  c.sourceFile,
		Dataset:     c.datasetName,
	}, nil
}

// Convert streams a flow export from src to a connection-log CSV on dst.
// A header that cannot be converted fails before any row is written.
func (c *Converter) Convert(ctx context.Context, src io.Reader, dst io.Writer) (Stats, error) {
	var stats Stats

	r, err := tabular.NewReader(src)
	if err != nil {
		return stats, fmt.Errorf("failed to read flow export: %w", err)
	}
	if err := CheckHeader(r.Header()); err != nil {
		return stats, err
	}

	w := csv.NewWriter(dst)
	if err := w.Write(append([]string{"#fields"}, dataset.ConnLogColumns...)); err != nil {
		return stats, fmt.Errorf("failed to write header: %w", err)
	}

	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		row, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return stats, fmt.Errorf("failed to read flow export: %w", err)
		}

		rec, err := c.ConvertRow(row)
		var skipped *SkippedRowError
		if errors.As(err, &skipped) {
			stats.skip(skipped.Reason)
			continue
		}
		if err := w.Write(Fields(rec)); err != nil {
			return stats, fmt.Errorf("failed to write row: %w", err)
		}
		stats.Written++
	}

	for i := 0; i < r.Short(); i++ {
		stats.skip(ReasonShort)
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return stats, fmt.Errorf("failed to flush output: %w", err)
	}
	return stats, nil
}

// Fields renders rec in connection-log column order.
func Fields(rec models.ConnRecord) []string {
	return []string{
		normalize.FormatEpoch(rec.Time),
		rec.UID,
		rec.SrcHost,
		strconv.Itoa(rec.SrcPort),
		rec.DstHost,
		strconv.Itoa(rec.DstPort),
		rec.Proto,
		rec.Service,
		strconv.FormatFloat(rec.Duration, 'f', 6, 64),
		strconv.FormatInt(rec.OrigBytes, 10),
		strconv.FormatInt(rec.RespBytes, 10),
		rec.ConnState,
		"T",
		"T",
		"0",
		rec.History,
		strconv.FormatInt(rec.OrigPkts, 10),
		strconv.FormatInt(rec.OrigIPBytes, 10),
		strconv.FormatInt(rec.RespPkts, 10),
		strconv.FormatInt(rec.RespIPBytes, 10),
		"-",
		strconv.Itoa(rec.ProtoNum),
		rec.Label,
		rec.Class,
		rec.FlowID,
		rec.SourceFile,
		rec.Dataset,
	}
}

// Row renders rec as a connection-log RawRow.
func Row(rec models.ConnRecord) tabular.RawRow {
	return tabular.NewRow(connLogHeader, Fields(rec))
}

var connLogHeader = tabular.NewHeader(dataset.ConnLogColumns)
