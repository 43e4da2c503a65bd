package classifier

import (
	"errors"
	"fmt"
)

// Tree is one fitted decision tree in the flat node-array layout scikit-learn
// exposes on tree_. A node is a leaf when ChildrenLeft[i] == -1.
type Tree struct {
	ChildrenLeft  []int       `json:"children_left"`
	ChildrenRight []int       `json:"children_right"`
	Feature       []int       `json:"feature"`
	Threshold     []float64   `json:"threshold"`
	Value         [][]float64 `json:"value"`
}

const leaf = -1

type forest struct {
	trees   []Tree
	classes int
}

func newForest(trees []Tree, nFeatures int) (*forest, error) {
	if len(trees) == 0 {
		return nil, errors.New("no trees")
	}
	classes := 0
	for ti, t := range trees {
		n := len(t.ChildrenLeft)
		if n == 0 {
			return nil, fmt.Errorf("tree %d: no nodes", ti)
		}
		if len(t.ChildrenRight) != n || len(t.Feature) != n || len(t.Threshold) != n || len(t.Value) != n {
			return nil, fmt.Errorf("tree %d: node arrays differ in length", ti)
		}
		for i := 0; i < n; i++ {
			if classes == 0 {
				classes = len(t.Value[i])
			}
			if len(t.Value[i]) != classes || classes == 0 {
				return nil, fmt.Errorf("tree %d node %d: expected %d class values, got %d", ti, i, classes, len(t.Value[i]))
			}
			if t.ChildrenLeft[i] == leaf {
				continue
			}
			// Children always come after their parent, which also rules out cycles.
			l, r := t.ChildrenLeft[i], t.ChildrenRight[i]
			if l <= i || l >= n || r <= i || r >= n {
				return nil, fmt.Errorf("tree %d node %d: child index out of range", ti, i)
			}
			if t.Feature[i] < 0 || t.Feature[i] >= nFeatures {
				return nil, fmt.Errorf("tree %d node %d: feature %d out of range", ti, i, t.Feature[i])
			}
		}
	}
	return &forest{trees: trees, classes: classes}, nil
}

// proba averages the normalised leaf distributions of every tree.
func (f *forest) proba(x []float64) ([]float64, error) {
	out := make([]float64, f.classes)
	for ti := range f.trees {
		t := &f.trees[ti]
		node := 0
		for t.ChildrenLeft[node] != leaf {
			// Trees are fit on float32 inputs; thresholds sit between float32
			// training values, so compare at that precision.
			if float64(float32(x[t.Feature[node]])) <= t.Threshold[node] {
				node = t.ChildrenLeft[node]
			} else {
				node = t.ChildrenRight[node]
			}
		}
		counts := t.Value[node]
		total := 0.0
		for _, c := range counts {
			total += c
		}
		if total <= 0 {
			return nil, fmt.Errorf("tree %d: empty leaf %d", ti, node)
		}
		for k, c := range counts {
			out[k] += c / total
		}
	}
	for k := range out {
		out[k] /= float64(len(f.trees))
	}
	return out, nil
}
