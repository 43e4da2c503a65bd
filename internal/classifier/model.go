// Package classifier loads the exported disease model and computes class
// probabilities for encoded feature vectors.
package classifier

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

const (
	TypeRandomForest       = "random_forest"
	TypeLogisticRegression = "logistic_regression"
)

// Multi-class strategies for logistic regression artifacts.
const (
	MultiClassMultinomial = "multinomial"
	MultiClassOvR         = "ovr"
)

// ErrFeatureMismatch is returned when a vector does not have the length the
// model was fit on.
var ErrFeatureMismatch = errors.New("feature count mismatch")

// Artifact is the on-disk model description.
type Artifact struct {
	ModelType      string                    `json:"model_type"`
	Classes        []string                  `json:"classes"`
	NFeaturesIn    int                       `json:"n_features_in"`
	FeatureNamesIn []string                  `json:"feature_names_in,omitempty"`
	Vocabulary     map[string]map[string]int `json:"categorical_vocabulary,omitempty"`
	Trees          []Tree                    `json:"trees,omitempty"`
	Coef           [][]float64               `json:"coef,omitempty"`
	Intercept      []float64                 `json:"intercept,omitempty"`
	MultiClass     string                    `json:"multi_class,omitempty"` // "multinomial" (default) or "ovr"
}

// Info describes a loaded model.
type Info struct {
	ModelType    string   `json:"model_type"`
	FeatureCount int      `json:"n_features_in"`
	FeatureNames []string `json:"feature_names_in,omitempty"`
	Classes      []string `json:"classes,omitempty"`
}

type estimator interface {
	proba(x []float64) ([]float64, error)
}

// Model is an immutable, loaded classifier. All methods are safe for
// concurrent use.
type Model struct {
	info  Info
	vocab map[string]map[string]int
	est   estimator
}

// Load reads the artifact at path and validates it.
func Load(path string) (*Model, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model: %w", err)
	}
	var art Artifact
	if err := json.Unmarshal(raw, &art); err != nil {
		return nil, fmt.Errorf("decode model %s: %w", path, err)
	}
	return New(art)
}

// New builds a model from an already decoded artifact.
func New(art Artifact) (*Model, error) {
	if art.NFeaturesIn <= 0 {
		return nil, fmt.Errorf("n_features_in must be positive, got %d", art.NFeaturesIn)
	}
	if len(art.FeatureNamesIn) > 0 && len(art.FeatureNamesIn) != art.NFeaturesIn {
		return nil, fmt.Errorf("feature_names_in has %d names, n_features_in is %d", len(art.FeatureNamesIn), art.NFeaturesIn)
	}

	var (
		est estimator
		err error
	)
	switch art.ModelType {
	case TypeRandomForest:
		est, err = newForest(art.Trees, art.NFeaturesIn)
	case TypeLogisticRegression:
		est, err = newLinear(art.Coef, art.Intercept, art.NFeaturesIn, art.MultiClass)
	default:
		return nil, fmt.Errorf("unsupported model_type %q", art.ModelType)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", art.ModelType, err)
	}

	return &Model{
		info: Info{
			ModelType:    art.ModelType,
			FeatureCount: art.NFeaturesIn,
			FeatureNames: append([]string(nil), art.FeatureNamesIn...),
			Classes:      append([]string(nil), art.Classes...),
		},
		vocab: art.Vocabulary,
		est:   est,
	}, nil
}

// PredictProba returns one probability per class for x.
func (m *Model) PredictProba(x []float64) ([]float64, error) {
	if len(x) != m.info.FeatureCount {
		return nil, fmt.Errorf("%w: model expects %d features, got %d", ErrFeatureMismatch, m.info.FeatureCount, len(x))
	}
	return m.est.proba(x)
}

// Info returns a copy of the model description.
func (m *Model) Info() Info {
	info := m.info
	info.FeatureNames = append([]string(nil), m.info.FeatureNames...)
	info.Classes = append([]string(nil), m.info.Classes...)
	return info
}

// Vocabulary returns the categorical encoding the model was trained with, or
// nil when the artifact carries none.
func (m *Model) Vocabulary() map[string]map[string]int {
	if len(m.vocab) == 0 {
		return nil
	}
	out := make(map[string]map[string]int, len(m.vocab))
	for field, table := range m.vocab {
		cp := make(map[string]int, len(table))
		for k, v := range table {
			cp[k] = v
		}
		out[field] = cp
	}
	return out
}
