package diagnosis

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("diagnosis record not found")

type RecordRepository interface {
	Create(ctx context.Context, r *Record) error
	GetByID(ctx context.Context, id uuid.UUID) (*Record, error)
	// ListByPatient returns records in insertion order.
	ListByPatient(ctx context.Context, patientName string) ([]*Record, error)
	// UpdateRecommendation sets the recommendation on the most recently
	// created record matching key, or returns ErrNotFound.
	UpdateRecommendation(ctx context.Context, key RecordKey, text string) (*Record, error)
	// DistinctPatientNames returns every patient name with a record, sorted.
	DistinctPatientNames(ctx context.Context) ([]string, error)
}
