package classifier

import (
	"errors"
	"fmt"
	"math"
)

type linear struct {
	coef      [][]float64
	intercept []float64
	ovr       bool
}

func newLinear(coef [][]float64, intercept []float64, nFeatures int, multiClass string) (*linear, error) {
	var ovr bool
	switch multiClass {
	case "", MultiClassMultinomial:
	case MultiClassOvR:
		ovr = true
	default:
		return nil, fmt.Errorf("unsupported multi_class %q", multiClass)
	}
	if len(coef) == 0 {
		return nil, errors.New("no coefficients")
	}
	if len(intercept) != len(coef) {
		return nil, fmt.Errorf("%d coefficient rows but %d intercepts", len(coef), len(intercept))
	}
	for i, row := range coef {
		if len(row) != nFeatures {
			return nil, fmt.Errorf("coefficient row %d has %d values, expected %d", i, len(row), nFeatures)
		}
	}
	return &linear{coef: coef, intercept: intercept, ovr: ovr}, nil
}

func (l *linear) proba(x []float64) ([]float64, error) {
	scores := make([]float64, len(l.coef))
	for k, row := range l.coef {
		s := l.intercept[k]
		for j, w := range row {
			s += w * x[j]
		}
		if math.IsNaN(s) || math.IsInf(s, 0) {
			return nil, fmt.Errorf("non-finite decision score for class %d", k)
		}
		scores[k] = s
	}

	// Binary models carry one row: the score of the positive class.
	if len(scores) == 1 {
		p := sigmoid(scores[0])
		return []float64{1 - p, p}, nil
	}
	if l.ovr {
		return normalisedSigmoids(scores), nil
	}
	return softmax(scores), nil
}

func sigmoid(s float64) float64 { return 1 / (1 + math.Exp(-s)) }

// normalisedSigmoids scores each class against the rest independently and
// rescales the results to sum to one.
func normalisedSigmoids(scores []float64) []float64 {
	out := make([]float64, len(scores))
	sum := 0.0
	for i, s := range scores {
		out[i] = sigmoid(s)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

func softmax(scores []float64) []float64 {
	top := scores[0]
	for _, s := range scores[1:] {
		if s > top {
			top = s
		}
	}
	out := make([]float64, len(scores))
	sum := 0.0
	for i, s := range scores {
		out[i] = math.Exp(s - top)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}
