package features

import (
	"fmt"
	"hash/fnv"
	"strings"
)

// CodeSpace bounds every categorical code to [0, CodeSpace).
const CodeSpace = 1000

// Vocabulary maps a categorical field to the text → code table used when the
// model was trained.
type Vocabulary map[string]map[string]int

// Encoder turns a Record into the fixed-order feature vector. It holds no
// mutable state and is safe for concurrent use.
type Encoder struct {
	vocab Vocabulary
}

// NewEncoder validates vocab and returns an encoder. A nil vocabulary means
// every categorical value is hashed.
func NewEncoder(vocab Vocabulary) (*Encoder, error) {
	for name, table := range vocab {
		if !isCategorical(name) {
			return nil, fmt.Errorf("vocabulary for unknown categorical field %q", name)
		}
		for text, code := range table {
			if code < 0 || code >= CodeSpace {
				return nil, fmt.Errorf("vocabulary %s[%q]: code %d outside [0,%d)", name, text, code, CodeSpace)
			}
		}
	}
	return &Encoder{vocab: vocab}, nil
}

// Encode builds the feature vector in FieldOrder. Absent numeric readings are
// 0.0; absent or blank categorical readings are 0.
func (e *Encoder) Encode(r Record) []float64 {
	fields := r.fields()
	out := make([]float64, 0, FeatureCount)
	for _, f := range fields {
		switch {
		case f.num != nil:
			out = append(out, *f.num)
		case f.text != nil:
			out = append(out, float64(e.Code(f.name, *f.text)))
		default:
			out = append(out, 0)
		}
	}
	return out
}

// Code returns the categorical code for value in field. Values known to the
// training vocabulary use that code; anything else falls back to FNV-1a
// modulo CodeSpace.
func (e *Encoder) Code(field, value string) int {
	if strings.TrimSpace(value) == "" {
		return 0
	}
	if table, ok := e.vocab[field]; ok {
		if code, ok := table[value]; ok {
			return code
		}
	}
	return hashCode(value)
}

func hashCode(value string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(value))
	return int(h.Sum32() % CodeSpace)
}
