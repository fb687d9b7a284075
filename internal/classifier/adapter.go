// Package classifier wraps a trained multiclass probability model behind a
// fixed predict contract.
package classifier

import (
	"context"
	"fmt"

	"github.com/telhawk-systems/flowhawk/internal/features"
	"github.com/telhawk-systems/flowhawk/internal/models"
)

// maxScore caps the malicious score below certainty.
const maxScore = 0.999

// Prediction is the classifier verdict for one feature vector.
type Prediction struct {
	ClassName     string             `json:"class_name"`
	ClassIndex    int                `json:"class_index"`
	AttackType    models.AttackType  `json:"attack_type"`
	Score         float64            `json:"model_score"`
	Label         models.ModelLabel  `json:"model_label"`
	Probabilities map[string]float64 `json:"probabilities"`
}

// Adapter orders features, runs the model and interprets its output. An
// Adapter is built once per process and shared.
type Adapter struct {
	model   Model
	scaler  *Scaler
	classes []string
	names   []string
	set     features.Set
	version string
	pool    *Pool
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithPool runs inference on p instead of the calling goroutine.
func WithPool(p *Pool) Option {
	return func(a *Adapter) { a.pool = p }
}

// WithScaler standardizes vectors before inference.
func WithScaler(s *Scaler) Option {
	return func(a *Adapter) { a.scaler = s }
}

// WithFeatureSet records the feature space the model was trained on.
func WithFeatureSet(set features.Set) Option {
	return func(a *Adapter) { a.set = set }
}

// Load builds an Adapter from the artifact at path.
func Load(path string, opts ...Option) (*Adapter, error) {
	art, err := LoadArtifact(path)
	if err != nil {
		return nil, err
	}
	return FromArtifact(art, opts...)
}

// FromArtifact builds an Adapter from a decoded artifact.
func FromArtifact(art *Artifact, opts ...Option) (*Adapter, error) {
	m, err := art.Model()
	if err != nil {
		return nil, err
	}
	set, err := art.Set()
	if err != nil {
		return nil, err
	}
	base := []Option{WithScaler(art.Scaler), WithFeatureSet(set)}
	a, err := New(m, art.Classes, art.Features, append(base, opts...)...)
	if err != nil {
		return nil, err
	}
	a.version = art.Version
	return a, nil
}

// New wraps m, whose outputs are ordered like classes and whose inputs are
// ordered like names.
func New(m Model, classes, names []string, opts ...Option) (*Adapter, error) {
	if m == nil {
		return nil, fmt.Errorf("%w: no model", ErrClassifierUnavailable)
	}
	if len(classes) == 0 || len(names) == 0 {
		return nil, fmt.Errorf("%w: classes and feature names are required", ErrClassifierUnavailable)
	}
	if m.NumClasses() != len(classes) {
		return nil, fmt.Errorf("%w: model has %d outputs for %d classes", ErrClassifierUnavailable, m.NumClasses(), len(classes))
	}
	a := &Adapter{
		model:   m,
		classes: classes,
		names:   names,
		set:     features.SetLean,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// FeatureNames is the input order of the model.
func (a *Adapter) FeatureNames() []string {
	return a.names
}

// FeatureSet is the feature space the model expects.
func (a *Adapter) FeatureSet() features.Set {
	return a.set
}

// Classes is the output order of the model.
func (a *Adapter) Classes() []string {
	return a.classes
}

// Version is the artifact version, if any.
func (a *Adapter) Version() string {
	return a.version
}

// Predict scores vec. Features are reordered to the model's input order and
// missing names read as zero.
func (a *Adapter) Predict(ctx context.Context, vec features.Vector) (Prediction, error) {
	x := a.vectorize(vec)

	var (
		probs []float64
		err   error
	)
	run := func() {
		var scaled []float64
		scaled, err = a.scaler.Transform(x)
		if err != nil {
			return
		}
		probs, err = a.model.PredictProba(scaled)
	}

	if a.pool != nil {
		if perr := a.pool.Do(ctx, run); perr != nil {
			return Prediction{}, perr
		}
	} else {
		run()
	}
	if err != nil {
		return Prediction{}, fmt.Errorf("predict: %w", err)
	}
	if len(probs) != len(a.classes) {
		return Prediction{}, fmt.Errorf("predict: model returned %d probabilities for %d classes", len(probs), len(a.classes))
	}
	return a.interpret(probs), nil
}

func (a *Adapter) vectorize(vec features.Vector) []float64 {
	if sameNames(vec.Names(), a.names) {
		return vec.Values()
	}
	return features.Align(a.names, vec.Map()).Values()
}

func (a *Adapter) interpret(probs []float64) Prediction {
	best := 0
	for i, p := range probs {
		if p > probs[best] {
			best = i
		}
	}

	byClass := make(map[string]float64, len(probs))
	benign := 0.0
	for i, p := range probs {
		byClass[a.classes[i]] = p
		if IsBenignClass(a.classes[i]) {
			benign = p
		}
	}

	name := a.classes[best]
	label := models.LabelMalicious
	if IsBenignClass(name) {
		label = models.LabelBenign
	}

	return Prediction{
		ClassName:     name,
		ClassIndex:    best,
		AttackType:    AttackTypeForClass(name),
		Score:         clamp(1-benign, 0, maxScore),
		Label:         label,
		Probabilities: byClass,
	}
}

func sameNames(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
