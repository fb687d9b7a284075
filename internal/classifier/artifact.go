package classifier

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/telhawk-systems/flowhawk/internal/features"
)

// ErrClassifierUnavailable means no usable probability classifier could be
// built. It is fatal at startup.
var ErrClassifierUnavailable = errors.New("classifier unavailable")

// Model kinds an artifact may declare.
const (
	KindSoftmax = "softmax"
	KindForest  = "forest"
)

//go:embed artifact.schema.json
var artifactSchema []byte

// Artifact is a trained classifier serialized as JSON.
type Artifact struct {
	Kind       string   `json:"kind"`
	Version    string   `json:"version,omitempty"`
	FeatureSet string   `json:"feature_set,omitempty"`
	Classes    []string `json:"classes"`
	Features   []string `json:"features"`
	Scaler     *Scaler  `json:"scaler,omitempty"`
	Softmax    *Softmax `json:"softmax,omitempty"`
	Forest     *Forest  `json:"forest,omitempty"`
}

// LoadArtifact reads and validates the artifact at path.
func LoadArtifact(path string) (*Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read artifact: %v", ErrClassifierUnavailable, err)
	}
	return ParseArtifact(data)
}

// ParseArtifact validates data against the artifact schema and decodes it.
func ParseArtifact(data []byte) (*Artifact, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(artifactSchema))
	if err != nil {
		return nil, fmt.Errorf("failed to load artifact schema: %w", err)
	}
	result, err := schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrClassifierUnavailable, err)
	}
	if !result.Valid() {
		problems := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			problems = append(problems, desc.String())
		}
		return nil, fmt.Errorf("%w: invalid artifact: %s", ErrClassifierUnavailable, strings.Join(problems, "; "))
	}

	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("%w: decode artifact: %v", ErrClassifierUnavailable, err)
	}
	return &a, nil
}

// Model builds the probability model the artifact describes and checks its
// shape against the declared classes and features.
func (a *Artifact) Model() (Model, error) {
	nClasses, nFeatures := len(a.Classes), len(a.Features)

	if a.Scaler != nil && (len(a.Scaler.Mean) != nFeatures || len(a.Scaler.Scale) != nFeatures) {
		return nil, fmt.Errorf("%w: scaler does not match %d features", ErrClassifierUnavailable, nFeatures)
	}

	switch a.Kind {
	case KindSoftmax:
		m := a.Softmax
		if m == nil {
			return nil, fmt.Errorf("%w: softmax artifact has no parameters", ErrClassifierUnavailable)
		}
		if len(m.Weights) != nClasses || len(m.Bias) != nClasses {
			return nil, fmt.Errorf("%w: softmax parameters do not match %d classes", ErrClassifierUnavailable, nClasses)
		}
		for c, w := range m.Weights {
			if len(w) != nFeatures {
				return nil, fmt.Errorf("%w: class %d has %d weights, want %d", ErrClassifierUnavailable, c, len(w), nFeatures)
			}
		}
		return m, nil
	case KindForest:
		m := a.Forest
		if m == nil || len(m.Trees) == 0 {
			return nil, fmt.Errorf("%w: forest artifact has no trees", ErrClassifierUnavailable)
		}
		m.Classes = nClasses
		return m, nil
	default:
		return nil, fmt.Errorf("%w: model kind %q has no probability output", ErrClassifierUnavailable, a.Kind)
	}
}

// Set returns the feature set the model was trained on.
func (a *Artifact) Set() (features.Set, error) {
	set, ok := features.ParseSet(a.FeatureSet)
	if !ok {
		return "", fmt.Errorf("%w: unknown feature set %q", ErrClassifierUnavailable, a.FeatureSet)
	}
	return set, nil
}
