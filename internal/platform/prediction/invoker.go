// Package prediction validates feature vectors, runs them through the
// per-disease classifiers and maps the outcome to a diagnosis label.
package prediction

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"github.com/medpredict/clinic/internal/domain/disease"
	"github.com/medpredict/clinic/internal/platform/telemetry"
)

var ErrModelUnavailable = errors.New("model unavailable")

// PredictionError wraps any failure raised while a classifier runs.
type PredictionError struct {
	Disease disease.Disease
	Err     error
}

func (e *PredictionError) Error() string {
	return fmt.Sprintf("%s prediction failed: %v", e.Disease, e.Err)
}

func (e *PredictionError) Unwrap() error { return e.Err }

// ModelStatus reports whether a disease can currently be predicted.
type ModelStatus struct {
	Disease   disease.Disease `json:"disease"`
	Available bool            `json:"available"`
	Error     string          `json:"error,omitempty"`
	Features  []Feature       `json:"features"`
}

// Invoker holds one classifier per disease. A disease whose model failed to
// load stays unavailable without affecting the others.
type Invoker struct {
	classifiers map[disease.Disease]Classifier
	unavailable map[disease.Disease]error
	logger      zerolog.Logger
}

func NewInvoker(logger zerolog.Logger) *Invoker {
	return &Invoker{
		classifiers: make(map[disease.Disease]Classifier),
		unavailable: make(map[disease.Disease]error),
		logger:      logger.With().Str("component", "prediction").Logger(),
	}
}

// Register installs c for d. Not safe to call once requests are served.
func (inv *Invoker) Register(d disease.Disease, c Classifier) {
	inv.classifiers[d] = c
	delete(inv.unavailable, d)
}

func (inv *Invoker) markUnavailable(d disease.Disease, err error) {
	delete(inv.classifiers, d)
	inv.unavailable[d] = err
	inv.logger.Warn().Err(err).Str("disease", string(d)).Msg("model unavailable")
}

// ModelFile is the artifact name looked up under the model directory.
func ModelFile(d disease.Disease) string {
	switch d {
	case disease.Diabetes:
		return "diabetes_model.json"
	case disease.HeartDisease:
		return "heart_disease_model.json"
	case disease.Parkinsons:
		return "parkinsons_model.json"
	}
	return ""
}

// LoadDir loads every disease's linear model from dir.
func LoadDir(dir string, logger zerolog.Logger) *Invoker {
	inv := NewInvoker(logger)
	for _, d := range disease.All {
		m, err := LoadLinearModel(filepath.Join(dir, ModelFile(d)), d)
		if err != nil {
			inv.markUnavailable(d, err)
			continue
		}
		inv.Register(d, m)
		inv.logger.Info().Str("disease", string(d)).Str("kind", m.Kind).Msg("model loaded")
	}
	return inv
}

// NewRemote routes every disease to the model server behind client.
func NewRemote(client *resty.Client, logger zerolog.Logger) *Invoker {
	inv := NewInvoker(logger)
	for _, d := range disease.All {
		inv.Register(d, NewRemoteClassifier(client, d))
	}
	return inv
}

// Predict validates features and returns the diagnosis label for d.
func (inv *Invoker) Predict(ctx context.Context, d disease.Disease, features []float64) (string, error) {
	if err := Validate(d, features); err != nil {
		telemetry.ObservePrediction(string(d), "invalid", 0)
		return "", err
	}
	c, ok := inv.classifiers[d]
	if !ok {
		cause := inv.unavailable[d]
		if cause == nil {
			cause = errors.New("no classifier registered")
		}
		telemetry.ObservePrediction(string(d), "unavailable", 0)
		return "", fmt.Errorf("%w: %s: %v", ErrModelUnavailable, d, cause)
	}

	start := time.Now()
	outcome, err := inv.run(ctx, c, features)
	elapsed := time.Since(start)
	if err == nil && outcome != 0 && outcome != 1 {
		err = fmt.Errorf("classifier returned %d", outcome)
	}
	if err != nil {
		telemetry.ObservePrediction(string(d), "error", elapsed)
		inv.logger.Error().Err(err).Str("disease", string(d)).Msg("prediction failed")
		return "", &PredictionError{Disease: d, Err: err}
	}

	result := "negative"
	if outcome == 1 {
		result = "positive"
	}
	telemetry.ObservePrediction(string(d), result, elapsed)
	return d.Label(outcome == 1), nil
}

func (inv *Invoker) run(ctx context.Context, c Classifier, features []float64) (outcome int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("classifier panic: %v", r)
		}
	}()
	return c.Predict(ctx, features)
}

// Status lists availability for every disease in display order.
func (inv *Invoker) Status() []ModelStatus {
	out := make([]ModelStatus, 0, len(disease.All))
	for _, d := range disease.All {
		s := ModelStatus{Disease: d, Features: Schema(d)}
		if _, ok := inv.classifiers[d]; ok {
			s.Available = true
		} else if err := inv.unavailable[d]; err != nil {
			s.Error = err.Error()
		} else {
			s.Error = "no classifier registered"
		}
		out = append(out, s)
	}
	return out
}
