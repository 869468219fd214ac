package diagnosis

import (
	"time"

	"github.com/google/uuid"

	"github.com/medpredict/clinic/internal/domain/disease"
)

// Record is one submitted diagnosis. Only Recommendation changes after
// creation, and only through a doctor's update.
type Record struct {
	ID             uuid.UUID       `json:"id"`
	Seq            int64           `json:"-"`
	PatientName    string          `json:"patient_name"`
	Disease        disease.Disease `json:"disease"`
	Diagnosis      string          `json:"diagnosis"`
	Recommendation *string         `json:"recommendation"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// RecordKey identifies the records a doctor's recommendation applies to.
type RecordKey struct {
	PatientName string          `json:"patient_name"`
	Disease     disease.Disease `json:"disease"`
	Diagnosis   string          `json:"diagnosis"`
}

func (r *Record) Key() RecordKey {
	return RecordKey{PatientName: r.PatientName, Disease: r.Disease, Diagnosis: r.Diagnosis}
}

// RecommendationText returns the recommendation or "" when none was written.
func (r *Record) RecommendationText() string {
	if r.Recommendation == nil {
		return ""
	}
	return *r.Recommendation
}
