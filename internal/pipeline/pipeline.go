// Package pipeline turns source rows into alerts: conversion, feature
// building, classification and assembly, chosen by dataset kind.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/telhawk-systems/flowhawk/internal/alert"
	"github.com/telhawk-systems/flowhawk/internal/classifier"
	"github.com/telhawk-systems/flowhawk/internal/convert"
	"github.com/telhawk-systems/flowhawk/internal/dataset"
	"github.com/telhawk-systems/flowhawk/internal/dlq"
	"github.com/telhawk-systems/flowhawk/internal/features"
	"github.com/telhawk-systems/flowhawk/internal/metrics"
	"github.com/telhawk-systems/flowhawk/internal/models"
	"github.com/telhawk-systems/flowhawk/internal/tabular"
)

// ErrStop ends Run early without an error.
var ErrStop = errors.New("stop")

// Result is the outcome of one row.
type Result struct {
	Alert      models.Alert
	Prediction classifier.Prediction
	Vector     features.Vector
	// Record is nil for feature-table rows.
	Record *models.ConnRecord
}

// Pipeline is safe for concurrent use once built.
type Pipeline struct {
	adapter    *classifier.Adapter
	builder    features.Builder
	featureRow *features.FeatureRow
	assembler  *alert.Assembler
	converter  *convert.Converter
	detector   *dataset.Detector
	dlq        *dlq.Queue
	source     string
}

// New creates a pipeline around adapter. A nil assembler uses the wall clock.
func New(adapter *classifier.Adapter, assembler *alert.Assembler) (*Pipeline, error) {
	if adapter == nil {
		return nil, fmt.Errorf("pipeline: %w", classifier.ErrClassifierUnavailable)
	}
	builder, err := features.BuilderFor(adapter.FeatureSet())
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	if assembler == nil {
		assembler = alert.NewAssembler(nil)
	}
	return &Pipeline{
		adapter:    adapter,
		builder:    builder,
		featureRow: features.NewFeatureRow(adapter.FeatureNames()),
		assembler:  assembler,
		converter:  convert.NewConverter("", ""),
		detector:   dataset.NewDetector(adapter.FeatureNames()),
	}, nil
}

// ForSource returns a copy whose converted rows carry datasetName and
// sourceFile as provenance.
func (p *Pipeline) ForSource(datasetName, sourceFile string) *Pipeline {
	cp := *p
	cp.converter = convert.NewConverter(datasetName, sourceFile)
	cp.source = sourceFile
	return &cp
}

// WithDLQ returns a copy that records skipped rows in q.
func (p *Pipeline) WithDLQ(q *dlq.Queue) *Pipeline {
	cp := *p
	cp.dlq = q
	return &cp
}

// Detector classifies headers against the adapter's feature names.
func (p *Pipeline) Detector() *dataset.Detector {
	return p.detector
}

// Adapter returns the classifier the pipeline runs.
func (p *Pipeline) Adapter() *classifier.Adapter {
	return p.adapter
}

// Process classifies one row of a source of the given kind. Rows a flow
// export cannot convert return a *convert.SkippedRowError.
func (p *Pipeline) Process(ctx context.Context, kind dataset.Kind, row tabular.RawRow) (Result, error) {
	var (
		res Result
		err error
	)
	switch kind {
	case dataset.KindConnectionLog:
		res, err = p.processConnLog(ctx, row)
	case dataset.KindFeatureTable:
		res, err = p.processFeatureRow(ctx, row)
	case dataset.KindRawFlowExport:
		res, err = p.processFlowExport(ctx, row)
	default:
		err = fmt.Errorf("pipeline: unsupported dataset kind %q", kind)
	}

	status := "ok"
	if err != nil {
		status = "error"
		var skipped *convert.SkippedRowError
		if errors.As(err, &skipped) {
			status = "skipped"
		}
	}
	metrics.RowsTotal.WithLabelValues(string(kind), status).Inc()
	return res, err
}

func (p *Pipeline) processFlowExport(ctx context.Context, row tabular.RawRow) (Result, error) {
	rec, err := p.converter.ConvertRow(row)
	if err != nil {
		return Result{}, err
	}
	// The converted row is a connection-log row and takes that path.
	return p.processConnLog(ctx, convert.Row(rec))
}

func (p *Pipeline) processConnLog(ctx context.Context, row tabular.RawRow) (Result, error) {
	rec := convert.ParseConnLog(row)
	vec := features.Align(p.adapter.FeatureNames(), p.builder(rec))

	pred, err := p.predict(ctx, vec)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Alert:      p.assembler.FromConnection(rec, row, vec, pred),
		Prediction: pred,
		Vector:     vec,
		Record:     &rec,
	}, nil
}

func (p *Pipeline) processFeatureRow(ctx context.Context, row tabular.RawRow) (Result, error) {
	vec := p.featureRow.Vector(row)

	pred, err := p.predict(ctx, vec)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Alert:      p.assembler.FromFeatureRow(row, vec, pred),
		Prediction: pred,
		Vector:     vec,
	}, nil
}

func (p *Pipeline) predict(ctx context.Context, vec features.Vector) (classifier.Prediction, error) {
	start := time.Now()
	pred, err := p.adapter.Predict(ctx, vec)
	metrics.PredictionDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return classifier.Prediction{}, err
	}
	metrics.PredictionsTotal.WithLabelValues(string(pred.AttackType)).Inc()
	return pred, nil
}

// Source yields rows until io.EOF. Dropped counts the data lines the source
// discarded because they were narrower than the header.
type Source interface {
	Next(ctx context.Context) (tabular.RawRow, error)
	Dropped() int
}

type readerSource struct {
	r *tabular.Reader
}

func (s readerSource) Next(context.Context) (tabular.RawRow, error) { return s.r.Next() }

func (s readerSource) Dropped() int { return s.r.Short() }

// FromReader adapts a tabular.Reader.
func FromReader(r *tabular.Reader) Source {
	return readerSource{r: r}
}

// FromTail adapts a tabular.Tail.
func FromTail(t *tabular.Tail) Source {
	return t
}

// Stats summarizes a Run.
type Stats struct {
	Rows    int            `json:"rows"`
	Alerts  int            `json:"alerts"`
	Skipped int            `json:"skipped"`
	Reasons map[string]int `json:"reasons,omitempty"`
}

func (st *Stats) skip(reason string, n int) {
	if n <= 0 {
		return
	}
	st.Skipped += n
	if st.Reasons == nil {
		st.Reasons = make(map[string]int)
	}
	st.Reasons[reason] += n
	metrics.RowsSkipped.WithLabelValues(reason).Add(float64(n))
}

// Run processes every row of src and hands results to fn. Skipped rows are
// counted and sent to the dead-letter queue; lines src dropped as short are
// counted under convert.ReasonShort. Any other error stops the run.
// fn may return ErrStop to end the run early. An empty kind is detected
// from the header of the first row.
func (p *Pipeline) Run(ctx context.Context, kind dataset.Kind, src Source, fn func(Result) error) (st Stats, err error) {
	dropped := src.Dropped()
	defer func() {
		short := src.Dropped() - dropped
		st.Rows += max(short, 0)
		st.skip(convert.ReasonShort, short)
	}()

	for {
		if err := ctx.Err(); err != nil {
			return st, err
		}
		row, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			return st, nil
		}
		if err != nil {
			return st, fmt.Errorf("read row: %w", err)
		}
		if kind == "" {
			if kind, err = p.detector.Detect(row.Header()); err != nil {
				return st, err
			}
		}
		st.Rows++

		res, err := p.Process(ctx, kind, row)
		var skipped *convert.SkippedRowError
		if errors.As(err, &skipped) {
			st.skip(skipped.Reason, 1)
			p.deadLetter(ctx, kind, row, skipped)
			continue
		}
		if err != nil {
			return st, err
		}

		st.Alerts++
		if err := fn(res); err != nil {
			if errors.Is(err, ErrStop) {
				return st, nil
			}
			return st, err
		}
	}
}

func (p *Pipeline) deadLetter(ctx context.Context, kind dataset.Kind, row tabular.RawRow, skipped *convert.SkippedRowError) {
	if p.dlq == nil {
		return
	}
	_ = p.dlq.Write(ctx, dlq.SkippedRow{
		Source: p.source,
		Kind:   string(kind),
		Reason: skipped.Reason,
		Error:  skipped.Error(),
		Row:    row.Map(),
	})
}
