// Package alert assembles classified flows into alerts. Assembly is pure:
// nothing is stored or published here.
package alert

import (
	"time"

	"github.com/telhawk-systems/flowhawk/internal/classifier"
	"github.com/telhawk-systems/flowhawk/internal/convert"
	"github.com/telhawk-systems/flowhawk/internal/dataset"
	"github.com/telhawk-systems/flowhawk/internal/features"
	"github.com/telhawk-systems/flowhawk/internal/models"
	"github.com/telhawk-systems/flowhawk/internal/normalize"
	"github.com/telhawk-systems/flowhawk/internal/severity"
	"github.com/telhawk-systems/flowhawk/internal/tabular"
)

// Rule prefixes per source kind.
const (
	FlowRulePrefix    = "FLOW-"
	FeatureRulePrefix = "FEATURE-"
)

const unknownHost = "0.0.0.0"

// Clock returns the time used when a row carries no usable timestamp.
type Clock func() time.Time

// Assembler builds alerts.
type Assembler struct {
	now Clock
}

// NewAssembler returns an Assembler; a nil clock means time.Now in UTC.
func NewAssembler(now Clock) *Assembler {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Assembler{now: now}
}

// Input carries everything an alert is built from. Zero timestamps fall back
// to the assembler clock and empty hosts to 0.0.0.0.
type Input struct {
	Timestamp  time.Time
	SrcIP      string
	SrcPort    int
	DstIP      string
	DstPort    int
	Protocol   models.Protocol
	RuleID     string
	RuleName   string
	Prediction classifier.Prediction
	Meta       map[string]any
}

// Assemble builds an alert. Severity is always derived from the prediction
// score and attack type.
func (a *Assembler) Assemble(in Input) models.Alert {
	ts := in.Timestamp
	if ts.IsZero() {
		ts = a.now()
	}
	proto := in.Protocol
	if proto == "" {
		proto = models.ProtocolOther
	}
	return models.Alert{
		Timestamp:  ts,
		Severity:   severity.Evaluate(in.Prediction.Score, in.Prediction.AttackType),
		AttackType: in.Prediction.AttackType,
		SrcIP:      orDefault(in.SrcIP, unknownHost),
		SrcPort:    in.SrcPort,
		DstIP:      orDefault(in.DstIP, unknownHost),
		DstPort:    in.DstPort,
		Protocol:   proto,
		RuleID:     in.RuleID,
		RuleName:   in.RuleName,
		ModelScore: in.Prediction.Score,
		ModelLabel: in.Prediction.Label,
		Meta:       in.Meta,
	}
}

// FromConnection builds the alert for a connection record. row is the source
// row as read, kept in metadata for audit.
func (a *Assembler) FromConnection(rec models.ConnRecord, row tabular.RawRow, vec features.Vector, pred classifier.Prediction) models.Alert {
	id := rec.FlowID
	if id == "" {
		id = rec.UID
	}
	if id == "" {
		id = convert.ShortID()
	}

	meta := baseMeta(row, vec, pred)
	if rec.Label != "" {
		meta[models.MetaOriginalLabel] = rec.Label
	}

	return a.Assemble(Input{
		Timestamp:  rec.Time,
		SrcIP:      rec.SrcHost,
		SrcPort:    rec.SrcPort,
		DstIP:      rec.DstHost,
		DstPort:    rec.DstPort,
		Protocol:   models.ProtocolFromValue(rec.Proto),
		RuleID:     FlowRulePrefix + id,
		RuleName:   "FlowClassifier " + pred.ClassName,
		Prediction: pred,
		Meta:       meta,
	})
}

// FromFeatureRow builds the alert for a feature-table row.
func (a *Assembler) FromFeatureRow(row tabular.RawRow, vec features.Vector, pred classifier.Prediction) models.Alert {
	ts, _ := normalize.ParseTimestamp(firstOf(row, "Timestamp", "timestamp"))
	id := firstOf(row, "Flow ID")
	if id == "" {
		id = convert.ShortID()
	}

	meta := baseMeta(row, vec, pred)
	if label, ok := dataset.FeatureLabel(row); ok {
		meta[models.MetaOriginalLabel] = label
	}

	return a.Assemble(Input{
		Timestamp:  ts,
		SrcIP:      firstOf(row, "Source IP"),
		SrcPort:    normalize.ParseInt(firstOf(row, "Source Port"), 0),
		DstIP:      firstOf(row, "Destination IP"),
		DstPort:    normalize.ParseInt(firstOf(row, "Destination Port"), 0),
		Protocol:   models.ProtocolFromValue(firstOf(row, "Protocol")),
		RuleID:     FeatureRulePrefix + id,
		RuleName:   "FeatureDataset " + pred.ClassName,
		Prediction: pred,
		Meta:       meta,
	})
}

func baseMeta(row tabular.RawRow, vec features.Vector, pred classifier.Prediction) map[string]any {
	return map[string]any{
		models.MetaFeatureRow: row.Map(),
		models.MetaFeatures:   vec.Map(),
		models.MetaModel: map[string]any{
			"class_name":    pred.ClassName,
			"class_index":   pred.ClassIndex,
			"probabilities": pred.Probabilities,
		},
	}
}

func firstOf(row tabular.RawRow, names ...string) string {
	for _, n := range names {
		if v, ok := row.LookupFold(n); ok && v != "" {
			return v
		}
	}
	return ""
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
