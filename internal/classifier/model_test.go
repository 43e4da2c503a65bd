package classifier

import (
	"errors"
	"math"
	"path/filepath"
	"sync"
	"testing"
)

func vector(set map[int]float64) []float64 {
	x := make([]float64, 18)
	for i, v := range set {
		x[i] = v
	}
	return x
}

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestLoadForest(t *testing.T) {
	m, err := Load(filepath.Join("testdata", "forest.json"))
	if err != nil {
		t.Fatalf("unexpected load error: %v", err)
	}
	info := m.Info()
	if info.ModelType != TypeRandomForest || info.FeatureCount != 18 || len(info.FeatureNames) != 18 {
		t.Fatalf("unexpected info: %+v", info)
	}
	if got := m.Vocabulary()["ecg_rhythm_type"]["afib"]; got != 2 {
		t.Fatalf("expected vocabulary code 2 for afib, got %d", got)
	}

	// heart rate 72 goes left in tree one, spo2 98 goes right in tree two.
	probs, err := m.PredictProba(vector(map[int]float64{9: 72, 11: 98}))
	if err != nil {
		t.Fatalf("unexpected predict error: %v", err)
	}
	want := []float64{0.5, 0.3, 0.2}
	sum := 0.0
	for i := range want {
		if !approx(probs[i], want[i]) {
			t.Fatalf("class %d: expected %v, got %v", i, want[i], probs[i])
		}
		sum += probs[i]
	}
	if !approx(sum, 1) {
		t.Fatalf("expected probabilities to sum to 1, got %v", sum)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(filepath.Join("testdata", "missing.json")); err == nil {
		t.Fatal("expected error for missing artifact")
	}
	if _, err := Load(filepath.Join("testdata", "broken.json")); err == nil {
		t.Fatal("expected error for corrupt artifact")
	}
}

func TestPredictProbaFeatureMismatch(t *testing.T) {
	m, err := Load(filepath.Join("testdata", "forest.json"))
	if err != nil {
		t.Fatalf("unexpected load error: %v", err)
	}
	_, err = m.PredictProba(make([]float64, 17))
	if !errors.Is(err, ErrFeatureMismatch) {
		t.Fatalf("expected ErrFeatureMismatch, got %v", err)
	}
}

func TestNewValidatesArtifact(t *testing.T) {
	good := Tree{
		ChildrenLeft:  []int{1, -1, -1},
		ChildrenRight: []int{2, -1, -1},
		Feature:       []int{0, -2, -2},
		Threshold:     []float64{1, -2, -2},
		Value:         [][]float64{{2, 2}, {2, 0}, {0, 2}},
	}
	cycle := good
	cycle.ChildrenLeft = []int{0, -1, -1}
	badFeature := good
	badFeature.Feature = []int{18, -2, -2}

	cases := map[string]Artifact{
		"unknown type":      {ModelType: "svm", NFeaturesIn: 18},
		"no features":       {ModelType: TypeRandomForest, Trees: []Tree{good}},
		"no trees":          {ModelType: TypeRandomForest, NFeaturesIn: 18},
		"self loop":         {ModelType: TypeRandomForest, NFeaturesIn: 18, Trees: []Tree{cycle}},
		"feature range":     {ModelType: TypeRandomForest, NFeaturesIn: 18, Trees: []Tree{badFeature}},
		"names length":      {ModelType: TypeRandomForest, NFeaturesIn: 18, FeatureNamesIn: []string{"a"}, Trees: []Tree{good}},
		"coef width":        {ModelType: TypeLogisticRegression, NFeaturesIn: 18, Coef: [][]float64{{1}}, Intercept: []float64{0}},
		"intercept missing": {ModelType: TypeLogisticRegression, NFeaturesIn: 2, Coef: [][]float64{{1, 1}}},
		"multi_class":       {ModelType: TypeLogisticRegression, NFeaturesIn: 1, Coef: [][]float64{{1}, {2}}, Intercept: []float64{0, 0}, MultiClass: "crammer_singer"},
	}
	for name, art := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := New(art); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestForestComparesAtFloat32Precision(t *testing.T) {
	threshold := float64(float32(36.6))
	m, err := New(Artifact{
		ModelType:   TypeRandomForest,
		NFeaturesIn: 1,
		Trees: []Tree{{
			ChildrenLeft:  []int{1, -1, -1},
			ChildrenRight: []int{2, -1, -1},
			Feature:       []int{0, -2, -2},
			Threshold:     []float64{threshold, -2, -2},
			Value:         [][]float64{{1, 1}, {1, 0}, {0, 1}},
		}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if 36.6 <= threshold {
		t.Fatalf("fixture assumes float64 36.6 lies above its float32 threshold %v", threshold)
	}

	cases := map[float64][]float64{
		36.6:      {1, 0},
		threshold: {1, 0},
		36.7:      {0, 1},
	}
	for in, want := range cases {
		probs, err := m.PredictProba([]float64{in})
		if err != nil {
			t.Fatalf("input %v: unexpected error: %v", in, err)
		}
		if probs[0] != want[0] || probs[1] != want[1] {
			t.Fatalf("input %v: expected %v, got %v", in, want, probs)
		}
	}
}

func TestLogisticRegression(t *testing.T) {
	t.Run("multinomial", func(t *testing.T) {
		m, err := New(Artifact{
			ModelType:   TypeLogisticRegression,
			NFeaturesIn: 2,
			Coef:        [][]float64{{1, 0}, {0, 1}, {0, 0}},
			Intercept:   []float64{0, 0, 0},
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		probs, err := m.PredictProba([]float64{0, 0})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		for i, p := range probs {
			if !approx(p, 1.0/3) {
				t.Fatalf("class %d: expected uniform 1/3, got %v", i, p)
			}
		}
	})

	t.Run("binary", func(t *testing.T) {
		m, err := New(Artifact{
			ModelType:   TypeLogisticRegression,
			NFeaturesIn: 1,
			Coef:        [][]float64{{2}},
			Intercept:   []float64{0},
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		probs, err := m.PredictProba([]float64{0})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(probs) != 2 || !approx(probs[0], 0.5) || !approx(probs[1], 0.5) {
			t.Fatalf("expected [0.5 0.5], got %v", probs)
		}
	})
}

func TestLogisticRegressionOvR(t *testing.T) {
	art := Artifact{
		ModelType:   TypeLogisticRegression,
		NFeaturesIn: 1,
		Coef:        [][]float64{{1}, {0}, {-1}},
		Intercept:   []float64{0, 0, 0},
	}
	x := []float64{math.Log(3)}

	// Scores are ln3, 0 and -ln3, giving sigmoids 3/4, 1/2 and 1/4.
	art.MultiClass = MultiClassOvR
	ovr, err := New(art)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	probs, err := ovr.PredictProba(x)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []float64{0.5, 1.0 / 3, 1.0 / 6}
	for i := range want {
		if !approx(probs[i], want[i]) {
			t.Fatalf("ovr class %d: expected %v, got %v", i, want[i], probs[i])
		}
	}

	// Softmax of the same scores is 9/13, 3/13 and 1/13.
	art.MultiClass = MultiClassMultinomial
	multi, err := New(art)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	probs, err = multi.PredictProba(x)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want = []float64{9.0 / 13, 3.0 / 13, 1.0 / 13}
	for i := range want {
		if !approx(probs[i], want[i]) {
			t.Fatalf("multinomial class %d: expected %v, got %v", i, want[i], probs[i])
		}
	}
}

func TestPredictProbaConcurrent(t *testing.T) {
	m, err := Load(filepath.Join("testdata", "forest.json"))
	if err != nil {
		t.Fatalf("unexpected load error: %v", err)
	}
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(hr float64) {
			defer wg.Done()
			if _, err := m.PredictProba(vector(map[int]float64{9: hr})); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}(float64(60 + i*5))
	}
	wg.Wait()
}
