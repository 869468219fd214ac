package diagnosis

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medpredict/clinic/internal/domain/disease"
	"github.com/medpredict/clinic/internal/platform/apperror"
)

type Service struct {
	records RecordRepository
	logger  zerolog.Logger
}

func NewService(records RecordRepository, logger zerolog.Logger) *Service {
	return &Service{
		records: records,
		logger:  logger.With().Str("component", "diagnosis").Logger(),
	}
}

// Create stores a new record. Equal submissions are stored as separate rows.
func (s *Service) Create(ctx context.Context, patientName string, d disease.Disease, diagnosis string) (*Record, error) {
	patientName = strings.TrimSpace(patientName)
	if patientName == "" {
		return nil, apperror.Validation("patient_name is required")
	}
	if !d.Valid() {
		return nil, apperror.Validation(fmt.Sprintf("unknown disease %q", d))
	}
	if !d.IsLabel(diagnosis) {
		return nil, apperror.Validation(fmt.Sprintf("%q is not a %s diagnosis", diagnosis, d))
	}

	rec := &Record{PatientName: patientName, Disease: d, Diagnosis: diagnosis}
	if err := s.records.Create(ctx, rec); err != nil {
		return nil, apperror.Store(err)
	}
	s.logger.Info().Str("record_id", rec.ID.String()).Str("disease", string(d)).Msg("diagnosis record created")
	return rec, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Record, error) {
	rec, err := s.records.GetByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, apperror.NotFound("diagnosis record")
	}
	if err != nil {
		return nil, apperror.Store(err)
	}
	return rec, nil
}

func (s *Service) ListByPatient(ctx context.Context, patientName string) ([]*Record, error) {
	patientName = strings.TrimSpace(patientName)
	if patientName == "" {
		return nil, apperror.Validation("patient_name is required")
	}
	recs, err := s.records.ListByPatient(ctx, patientName)
	if err != nil {
		return nil, apperror.Store(err)
	}
	if recs == nil {
		recs = []*Record{}
	}
	return recs, nil
}

// UpdateRecommendation writes text onto the newest record matching key. It
// never creates a record.
func (s *Service) UpdateRecommendation(ctx context.Context, key RecordKey, text string) (*Record, error) {
	key.PatientName = strings.TrimSpace(key.PatientName)
	if key.PatientName == "" || key.Diagnosis == "" {
		return nil, apperror.Validation("patient_name, disease and diagnosis are required")
	}
	if !key.Disease.Valid() {
		return nil, apperror.Validation(fmt.Sprintf("unknown disease %q", key.Disease))
	}

	rec, err := s.records.UpdateRecommendation(ctx, key, text)
	if errors.Is(err, ErrNotFound) {
		return nil, apperror.NotFound("diagnosis record")
	}
	if err != nil {
		return nil, apperror.Store(err)
	}
	s.logger.Info().Str("record_id", rec.ID.String()).Msg("recommendation saved")
	return rec, nil
}

func (s *Service) DistinctPatientNames(ctx context.Context) ([]string, error) {
	names, err := s.records.DistinctPatientNames(ctx)
	if err != nil {
		return nil, apperror.Store(err)
	}
	if names == nil {
		names = []string{}
	}
	return names, nil
}
