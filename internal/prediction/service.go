// Package prediction runs encoded sensor records through the loaded model and
// maps the output onto the disease labels.
package prediction

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/mdobak/go-xerrors"
	"go.uber.org/zap"

	"github.com/Skufu/healthml/internal/features"
	"github.com/Skufu/healthml/internal/store"
)

// Labels are the model's output columns, in column order.
var Labels = []string{"Lung Infection", "Hypotension", "Inflammation"}

// Classifier computes class probabilities for one feature vector.
type Classifier interface {
	PredictProba(x []float64) ([]float64, error)
}

// Recorder persists successful predictions.
type Recorder interface {
	Record(ctx context.Context, e store.Entry) error
}

type Result struct {
	Success       bool               `json:"success"`
	Probabilities map[string]float64 `json:"probabilities"`
	ModelInfo     ModelInfo          `json:"model_info"`
}

type ModelInfo struct {
	FeaturesUsed         int     `json:"features_used"`
	PredictionConfidence float64 `json:"prediction_confidence"`
}

func (r Result) clone() Result {
	probs := make(map[string]float64, len(r.Probabilities))
	for k, v := range r.Probabilities {
		probs[k] = v
	}
	r.Probabilities = probs
	return r
}

// Service is safe for concurrent use; the model it wraps is never mutated.
type Service struct {
	model     Classifier
	encoder   *features.Encoder
	cacheSize int
	cache     *lru.Cache[string, Result]
	recorder  Recorder
	logger    *zap.Logger
}

type Option func(*Service)

// WithCacheSize enables an LRU of results keyed by feature vector. Zero
// disables it.
func WithCacheSize(n int) Option {
	return func(s *Service) { s.cacheSize = n }
}

func WithRecorder(r Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// NewService wires the model and encoder. model may be nil, in which case
// every prediction fails with KindModelUnavailable.
func NewService(model Classifier, encoder *features.Encoder, opts ...Option) (*Service, error) {
	if encoder == nil {
		return nil, errors.New("encoder is required")
	}
	s := &Service{model: model, encoder: encoder, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	if s.cacheSize < 0 {
		return nil, fmt.Errorf("cache size must not be negative, got %d", s.cacheSize)
	}
	if s.cacheSize > 0 {
		cache, err := lru.New[string, Result](s.cacheSize)
		if err != nil {
			return nil, fmt.Errorf("create result cache: %w", err)
		}
		s.cache = cache
	}
	return s, nil
}

func (s *Service) ModelLoaded() bool {
	return s.model != nil
}

// Predict encodes rec, runs the model and labels the probabilities.
func (s *Service) Predict(ctx context.Context, rec features.Record) (*Result, error) {
	if s.model == nil {
		return nil, &Error{Kind: KindModelUnavailable}
	}

	vec := s.encoder.Encode(rec)
	key := cacheKey(vec)
	if s.cache != nil {
		if cached, ok := s.cache.Get(key); ok {
			res := cached.clone()
			s.record(ctx, rec, res, true)
			return &res, nil
		}
	}

	probs, err := s.infer(vec)
	if err == nil && len(probs) == 0 {
		err = errors.New("model returned no probabilities")
	}
	if err != nil {
		fields := []zap.Field{zap.Error(err), zap.Int("features", len(vec))}
		if len(xerrors.StackTrace(err)) > 0 {
			fields = append(fields, zap.String("details", xerrors.Sprint(err)))
		}
		s.logger.Warn("prediction failed", fields...)
		return nil, &Error{Kind: KindInference, Err: err}
	}

	res := buildResult(probs, len(vec))
	if s.cache != nil {
		s.cache.Add(key, res.clone())
	}
	s.record(ctx, rec, res, false)
	return &res, nil
}

func (s *Service) infer(vec []float64) (probs []float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = xerrors.FromRecover(r)
		}
	}()
	return s.model.PredictProba(vec)
}

func (s *Service) record(ctx context.Context, rec features.Record, res Result, cached bool) {
	if s.recorder == nil {
		return
	}
	entry := store.Entry{
		Input:         rec.Values(),
		Probabilities: res.Probabilities,
		Confidence:    res.ModelInfo.PredictionConfidence,
		Cached:        cached,
	}
	if err := s.recorder.Record(ctx, entry); err != nil {
		s.logger.Warn("record prediction", zap.Error(err))
	}
}

// buildResult zips probs onto Labels. Extra columns are ignored for labelling
// but still count towards the confidence figure.
func buildResult(probs []float64, featuresUsed int) Result {
	out := make(map[string]float64, len(Labels))
	for i, label := range Labels {
		if i >= len(probs) {
			break
		}
		out[label] = probs[i]
	}
	top := probs[0]
	for _, p := range probs[1:] {
		if p > top {
			top = p
		}
	}
	return Result{
		Success:       true,
		Probabilities: out,
		ModelInfo: ModelInfo{
			FeaturesUsed:         featuresUsed,
			PredictionConfidence: top,
		},
	}
}

func cacheKey(vec []float64) string {
	var b strings.Builder
	for i, v := range vec {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
	}
	return b.String()
}
