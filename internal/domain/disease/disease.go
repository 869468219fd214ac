// Package disease enumerates the conditions the clinic can screen for and the
// diagnosis labels attached to each outcome.
package disease

import (
	"encoding/json"
	"fmt"
	"strings"
)

type Disease string

const (
	Diabetes     Disease = "Diabetes"
	HeartDisease Disease = "Heart Disease"
	Parkinsons   Disease = "Parkinsons"
)

// All lists the diseases in display order.
var All = []Disease{Diabetes, HeartDisease, Parkinsons}

var labels = map[Disease][2]string{
	Diabetes:     {"The person is not diabetic", "The person is diabetic"},
	HeartDisease: {"The person does not have heart disease", "The person has heart disease"},
	Parkinsons:   {"The person does not have Parkinsons disease", "The person has Parkinsons disease"},
}

var slugs = map[Disease]string{
	Diabetes:     "diabetes",
	HeartDisease: "heart-disease",
	Parkinsons:   "parkinsons",
}

// Parse accepts the stored name, the slug, or the identifier form
// ("HeartDisease", "heart_disease"), case-insensitively.
func Parse(s string) (Disease, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.NewReplacer(" ", "", "-", "", "_", "").Replace(norm)
	for _, d := range All {
		if norm == strings.ReplaceAll(strings.ToLower(string(d)), " ", "") {
			return d, nil
		}
	}
	return "", fmt.Errorf("unknown disease %q", s)
}

func (d Disease) Valid() bool {
	_, ok := labels[d]
	return ok
}

func (d Disease) String() string { return string(d) }

// Slug is the URL path form, e.g. "heart-disease".
func (d Disease) Slug() string { return slugs[d] }

// Label returns the diagnosis text for a classifier outcome.
func (d Disease) Label(positive bool) string {
	pair := labels[d]
	if positive {
		return pair[1]
	}
	return pair[0]
}

// IsLabel reports whether text is one of the two diagnoses for d.
func (d Disease) IsLabel(text string) bool {
	pair, ok := labels[d]
	return ok && (text == pair[0] || text == pair[1])
}

// UnmarshalJSON accepts any form Parse does. An empty string leaves the zero
// value so callers can tell "not given" from "unknown".
func (d *Disease) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "" {
		*d = ""
		return nil
	}
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
