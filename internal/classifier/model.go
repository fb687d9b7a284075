package classifier

import (
	"fmt"
	"math"
)

// Model produces one probability per class for a feature row.
type Model interface {
	PredictProba(x []float64) ([]float64, error)
	NumClasses() int
}

// Scaler standardizes features as (x - mean) / scale.
type Scaler struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

// Transform returns the standardized copy of x.
func (s *Scaler) Transform(x []float64) ([]float64, error) {
	if s == nil {
		return x, nil
	}
	if len(s.Mean) != len(x) || len(s.Scale) != len(x) {
		return nil, fmt.Errorf("scaler expects %d features, got %d", len(s.Mean), len(x))
	}
	out := make([]float64, len(x))
	for i, v := range x {
		scale := s.Scale[i]
		if scale == 0 {
			scale = 1
		}
		out[i] = (v - s.Mean[i]) / scale
	}
	return out, nil
}

// Softmax is a multinomial linear model: one weight row and bias per class.
type Softmax struct {
	Weights [][]float64 `json:"weights"`
	Bias    []float64   `json:"bias"`
}

func (m *Softmax) NumClasses() int {
	return len(m.Weights)
}

func (m *Softmax) PredictProba(x []float64) ([]float64, error) {
	logits := make([]float64, len(m.Weights))
	maxLogit := math.Inf(-1)
	for c, w := range m.Weights {
		if len(w) != len(x) {
			return nil, fmt.Errorf("class %d expects %d features, got %d", c, len(w), len(x))
		}
		z := m.Bias[c]
		for i, v := range x {
			z += w[i] * v
		}
		logits[c] = z
		maxLogit = math.Max(maxLogit, z)
	}

	var sum float64
	for c, z := range logits {
		logits[c] = math.Exp(z - maxLogit)
		sum += logits[c]
	}
	for c := range logits {
		logits[c] /= sum
	}
	return logits, nil
}

// Node is a decision tree node. Leaves carry Value, the class distribution;
// internal nodes send x[Feature] <= Threshold to Left, else Right.
type Node struct {
	Feature   int       `json:"feature"`
	Threshold float64   `json:"threshold"`
	Left      int       `json:"left"`
	Right     int       `json:"right"`
	Value     []float64 `json:"value,omitempty"`
}

// Tree is a flattened decision tree rooted at node 0.
type Tree struct {
	Nodes []Node `json:"nodes"`
}

func (t Tree) leaf(x []float64) ([]float64, error) {
	i := 0
	for steps := 0; steps <= len(t.Nodes); steps++ {
		if i < 0 || i >= len(t.Nodes) {
			return nil, fmt.Errorf("node index %d out of range", i)
		}
		n := t.Nodes[i]
		if len(n.Value) > 0 {
			return n.Value, nil
		}
		if n.Feature < 0 || n.Feature >= len(x) {
			return nil, fmt.Errorf("node %d splits on feature %d of %d", i, n.Feature, len(x))
		}
		if x[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
	return nil, fmt.Errorf("tree does not terminate")
}

// Forest averages the normalized leaf distributions of its trees.
type Forest struct {
	Trees   []Tree `json:"trees"`
	Classes int    `json:"-"`
}

func (f *Forest) NumClasses() int {
	return f.Classes
}

func (f *Forest) PredictProba(x []float64) ([]float64, error) {
	out := make([]float64, f.Classes)
	for ti, t := range f.Trees {
		value, err := t.leaf(x)
		if err != nil {
			return nil, fmt.Errorf("tree %d: %w", ti, err)
		}
		if len(value) != f.Classes {
			return nil, fmt.Errorf("tree %d: leaf has %d classes, want %d", ti, len(value), f.Classes)
		}
		var total float64
		for _, v := range value {
			total += v
		}
		if total <= 0 {
			continue
		}
		for c, v := range value {
			out[c] += v / total
		}
	}
	for c := range out {
		out[c] /= float64(len(f.Trees))
	}
	return out, nil
}
