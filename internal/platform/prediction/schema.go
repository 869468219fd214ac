package prediction

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/medpredict/clinic/internal/domain/disease"
)

var (
	ErrWrongArity        = errors.New("wrong number of features")
	ErrFeatureOutOfRange = errors.New("feature out of range")
	ErrUnknownFeature    = errors.New("unknown feature")
)

// Feature describes one classifier input. Integer features accept whole
// numbers only; categorical inputs are integers with a small range.
type Feature struct {
	Name    string  `json:"name"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Integer bool    `json:"integer,omitempty"`
}

func count(name string, min float64) Feature {
	return Feature{Name: name, Min: min, Max: math.Inf(1), Integer: true}
}

func category(name string, max float64) Feature {
	return Feature{Name: name, Min: 0, Max: max, Integer: true}
}

func bounded(name string, min, max float64) Feature {
	return Feature{Name: name, Min: min, Max: max}
}

var schemas = map[disease.Disease][]Feature{
	disease.Diabetes: {
		count("Pregnancies", 0),
		count("Glucose", 0),
		count("BloodPressure", 0),
		count("SkinThickness", 0),
		count("Insulin", 0),
		bounded("BMI", 0, math.Inf(1)),
		bounded("DiabetesPedigreeFunction", math.Inf(-1), math.Inf(1)),
		count("Age", 1),
	},
	disease.HeartDisease: {
		count("age", 1),
		category("sex", 1),
		category("cp", 3),
		count("trestbps", 0),
		count("chol", 0),
		category("fbs", 1),
		category("restecg", 2),
		count("thalach", 0),
		category("exang", 1),
		bounded("oldpeak", 0, math.Inf(1)),
		category("slope", 2),
		category("ca", 3),
		category("thal", 3),
	},
	disease.Parkinsons: {
		bounded("MDVP:Fo(Hz)", 88.333, 260.105),
		bounded("MDVP:Fhi(Hz)", 102.145, 592.03),
		bounded("MDVP:Flo(Hz)", 65.476, 239.17),
		bounded("MDVP:Jitter(%)", 0.00168, 0.03316),
		bounded("MDVP:Jitter(Abs)", 0.000007, 0.00026),
		bounded("MDVP:RAP", 0.00068, 0.02144),
		bounded("MDVP:PPQ", 0.00092, 0.01958),
		bounded("Jitter:DDP", 0.00204, 0.06433),
		bounded("MDVP:Shimmer", 0.00954, 0.11908),
		bounded("MDVP:Shimmer(dB)", 0.085, 1.302),
		bounded("Shimmer:APQ3", 0.00455, 0.05647),
		bounded("Shimmer:APQ5", 0.0057, 0.0794),
		bounded("MDVP:APQ", 0.00719, 0.13778),
		bounded("Shimmer:DDA", 0.01364, 0.16942),
		bounded("NHR", 0.00065, 0.31482),
		bounded("HNR", 8.441, 33.047),
		bounded("RPDE", 0.25657, 0.685151),
		bounded("DFA", 0.574282, 0.825288),
		bounded("spread1", -7.964984, -2.434031),
		bounded("spread2", 0.006274, 0.450493),
		bounded("D2", 1.423287, 3.671155),
		bounded("PPE", 0.044539, 0.527367),
	},
}

// Schema returns the ordered feature list for d.
func Schema(d disease.Disease) []Feature {
	return schemas[d]
}

// Validate checks arity, finiteness, integrality and bounds.
func Validate(d disease.Disease, features []float64) error {
	schema, ok := schemas[d]
	if !ok {
		return fmt.Errorf("no feature schema for %q", d)
	}
	if len(features) != len(schema) {
		return fmt.Errorf("%w: %s expects %d, got %d", ErrWrongArity, d, len(schema), len(features))
	}
	for i, f := range schema {
		v := features[i]
		switch {
		case math.IsNaN(v) || math.IsInf(v, 0):
			return fmt.Errorf("%w: %s must be a finite number", ErrFeatureOutOfRange, f.Name)
		case f.Integer && v != math.Trunc(v):
			return fmt.Errorf("%w: %s must be a whole number, got %v", ErrFeatureOutOfRange, f.Name, v)
		case v < f.Min || v > f.Max:
			return fmt.Errorf("%w: %s must be within [%v, %v], got %v", ErrFeatureOutOfRange, f.Name, f.Min, f.Max, v)
		}
	}
	return nil
}

// FromNamed orders a name-keyed feature map into the vector the classifier
// expects. The heart "sex" feature also accepts "Male" and "Female".
func FromNamed(d disease.Disease, named map[string]any) ([]float64, error) {
	schema, ok := schemas[d]
	if !ok {
		return nil, fmt.Errorf("no feature schema for %q", d)
	}
	if len(named) != len(schema) {
		for name := range named {
			if !hasFeature(schema, name) {
				return nil, fmt.Errorf("%w: %q", ErrUnknownFeature, name)
			}
		}
		return nil, fmt.Errorf("%w: %s expects %d, got %d", ErrWrongArity, d, len(schema), len(named))
	}

	out := make([]float64, len(schema))
	for i, f := range schema {
		raw, ok := named[f.Name]
		if !ok {
			return nil, fmt.Errorf("%w: missing %q", ErrWrongArity, f.Name)
		}
		v, err := toFloat(d, f.Name, raw)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func hasFeature(schema []Feature, name string) bool {
	for _, f := range schema {
		if f.Name == name {
			return true
		}
	}
	return false
}

func toFloat(d disease.Disease, name string, raw any) (float64, error) {
	switch v := raw.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case string:
		if d == disease.HeartDisease && name == "sex" {
			switch strings.ToLower(v) {
			case "male":
				return 1, nil
			case "female":
				return 0, nil
			}
		}
	}
	return 0, fmt.Errorf("%w: %s has unsupported value %v", ErrFeatureOutOfRange, name, raw)
}

// MarshalJSON omits unbounded limits, which JSON cannot represent.
func (f Feature) MarshalJSON() ([]byte, error) {
	type view struct {
		Name    string   `json:"name"`
		Min     *float64 `json:"min,omitempty"`
		Max     *float64 `json:"max,omitempty"`
		Integer bool     `json:"integer,omitempty"`
	}
	v := view{Name: f.Name, Integer: f.Integer}
	if !math.IsInf(f.Min, 0) {
		v.Min = &f.Min
	}
	if !math.IsInf(f.Max, 0) {
		v.Max = &f.Max
	}
	return json.Marshal(v)
}
