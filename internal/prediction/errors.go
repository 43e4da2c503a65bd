package prediction

import "fmt"

// Kind classifies a failed prediction.
type Kind int

const (
	// KindModelUnavailable means no model was loaded at startup.
	KindModelUnavailable Kind = iota + 1
	// KindInvalidInput means the record was rejected before inference.
	KindInvalidInput
	// KindInference means the classifier failed while computing probabilities.
	KindInference
)

func (k Kind) String() string {
	switch k {
	case KindModelUnavailable:
		return "model_unavailable"
	case KindInvalidInput:
		return "validation_failed"
	case KindInference:
		return "prediction_error"
	default:
		return "unknown"
	}
}

// Error is returned by Service.Predict for every failure.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindModelUnavailable:
		return "ML model not loaded"
	case KindInference:
		return fmt.Sprintf("Prediction error: %v", e.Err)
	default:
		if e.Err != nil {
			return e.Err.Error()
		}
		return e.Kind.String()
	}
}

func (e *Error) Unwrap() error { return e.Err }

// InvalidInput wraps a validation failure of the inbound record.
func InvalidInput(err error) *Error {
	return &Error{Kind: KindInvalidInput, Err: err}
}
