package prediction

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/medpredict/clinic/internal/domain/disease"
)

// Classifier maps a validated feature vector to 1 (disease present) or 0.
type Classifier interface {
	Predict(ctx context.Context, features []float64) (int, error)
}

// LinearModel is a linear decision function exported from a trained SVM or
// logistic regression: sign(w · standardize(x) + b).
type LinearModel struct {
	Disease disease.Disease `json:"disease,omitempty"`
	Kind    string          `json:"kind"`
	Weights []float64       `json:"weights"`
	Bias    float64         `json:"bias"`
	Mean    []float64       `json:"mean,omitempty"`
	Scale   []float64       `json:"scale,omitempty"`
}

// LoadLinearModel reads a model artifact and checks it against d's schema.
func LoadLinearModel(path string, d disease.Disease) (*LinearModel, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model %s: %w", path, err)
	}
	var m LinearModel
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("decode model %s: %w", path, err)
	}
	if m.Disease == "" {
		m.Disease = d
	}
	if err := m.check(d); err != nil {
		return nil, fmt.Errorf("model %s: %w", path, err)
	}
	return &m, nil
}

func (m *LinearModel) check(d disease.Disease) error {
	if m.Disease != d {
		return fmt.Errorf("artifact is for %s, expected %s", m.Disease, d)
	}
	n := len(Schema(d))
	if len(m.Weights) != n {
		return fmt.Errorf("expected %d weights, got %d", n, len(m.Weights))
	}
	if (len(m.Mean) != 0 || len(m.Scale) != 0) && (len(m.Mean) != n || len(m.Scale) != n) {
		return fmt.Errorf("standardization needs %d means and scales, got %d and %d", n, len(m.Mean), len(m.Scale))
	}
	for i, s := range m.Scale {
		if s == 0 {
			return fmt.Errorf("scale[%d] is zero", i)
		}
	}
	return nil
}

func (m *LinearModel) Predict(_ context.Context, features []float64) (int, error) {
	if len(features) != len(m.Weights) {
		return 0, fmt.Errorf("%w: model expects %d, got %d", ErrWrongArity, len(m.Weights), len(features))
	}
	z := m.Bias
	for i, x := range features {
		if len(m.Scale) > 0 {
			x = (x - m.Mean[i]) / m.Scale[i]
		}
		z += m.Weights[i] * x
	}
	if z > 0 {
		return 1, nil
	}
	return 0, nil
}
