package diagnosis

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medpredict/clinic/internal/domain/disease"
	"github.com/medpredict/clinic/internal/platform/apperror"
)

const notDiabetic = "The person is not diabetic"

func newTestService() *Service {
	return NewService(NewMemoryRecordRepo(), zerolog.Nop())
}

func kindOf(err error) apperror.Kind {
	var appErr *apperror.Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return ""
}

func TestCreate_EachSubmitIsARecord(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := svc.Create(ctx, "Alice", disease.Diabetes, notDiabetic); err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
	}

	recs, err := svc.ListByPatient(ctx, "Alice")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected 2 records, got %d", len(recs))
	}
	if recs[0].ID == recs[1].ID {
		t.Error("expected distinct ids")
	}
	if recs[0].Recommendation != nil {
		t.Error("new record must have no recommendation")
	}
}

func TestCreate_Validation(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	if _, err := svc.Create(ctx, "  ", disease.Diabetes, notDiabetic); kindOf(err) != apperror.KindValidation {
		t.Errorf("expected validation error for blank name, got %v", err)
	}
	if _, err := svc.Create(ctx, "Bob", disease.Diabetes, "The person has heart disease"); kindOf(err) != apperror.KindValidation {
		t.Errorf("expected validation error for mismatched label, got %v", err)
	}
	if _, err := svc.Create(ctx, "Bob", disease.Disease("Flu"), notDiabetic); kindOf(err) != apperror.KindValidation {
		t.Errorf("expected validation error for unknown disease, got %v", err)
	}
}

func TestListByPatient_InsertionOrder(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	svc.Create(ctx, "Carol", disease.Parkinsons, "The person has Parkinsons disease")
	svc.Create(ctx, "Dave", disease.Diabetes, notDiabetic)
	svc.Create(ctx, "Carol", disease.HeartDisease, "The person does not have heart disease")

	recs, err := svc.ListByPatient(ctx, "Carol")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected 2 records, got %d", len(recs))
	}
	if recs[0].Disease != disease.Parkinsons || recs[1].Disease != disease.HeartDisease {
		t.Errorf("expected insertion order, got %s then %s", recs[0].Disease, recs[1].Disease)
	}
}

func TestUpdateRecommendation_NewestMatchWins(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	first, _ := svc.Create(ctx, "Alice", disease.Diabetes, notDiabetic)
	second, _ := svc.Create(ctx, "Alice", disease.Diabetes, notDiabetic)

	rec, err := svc.UpdateRecommendation(ctx, second.Key(), "Monitor diet")
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if rec.ID != second.ID {
		t.Errorf("expected most recent record %s to be updated, got %s", second.ID, rec.ID)
	}

	got, _ := svc.Get(ctx, first.ID)
	if got.Recommendation != nil {
		t.Error("older record must be untouched")
	}
	got, _ = svc.Get(ctx, second.ID)
	if got.RecommendationText() != "Monitor diet" {
		t.Errorf("expected recommendation saved, got %q", got.RecommendationText())
	}
}

func TestUpdateRecommendation_NotFoundCreatesNothing(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	key := RecordKey{PatientName: "Ghost", Disease: disease.Diabetes, Diagnosis: notDiabetic}
	_, err := svc.UpdateRecommendation(ctx, key, "Rest")
	if kindOf(err) != apperror.KindNotFound {
		t.Fatalf("expected not found, got %v", err)
	}

	names, _ := svc.DistinctPatientNames(ctx)
	if len(names) != 0 {
		t.Errorf("expected no records, got %v", names)
	}
}

func TestDistinctPatientNames(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	names, err := svc.DistinctPatientNames(ctx)
	if err != nil {
		t.Fatalf("names: %v", err)
	}
	if len(names) != 0 {
		t.Errorf("expected empty list, got %v", names)
	}

	svc.Create(ctx, "Zoe", disease.Diabetes, notDiabetic)
	svc.Create(ctx, "Alice", disease.Diabetes, notDiabetic)
	svc.Create(ctx, "Zoe", disease.Parkinsons, "The person has Parkinsons disease")

	names, _ = svc.DistinctPatientNames(ctx)
	if len(names) != 2 || names[0] != "Alice" || names[1] != "Zoe" {
		t.Errorf("expected [Alice Zoe], got %v", names)
	}
}

func TestGet_NotFound(t *testing.T) {
	svc := newTestService()
	if _, err := svc.Get(context.Background(), uuid.New()); kindOf(err) != apperror.KindNotFound {
		t.Errorf("expected not found, got %v", err)
	}
}

type failingRepo struct{ RecordRepository }

func (failingRepo) Create(context.Context, *Record) error {
	return errors.New("connection reset")
}

func TestCreate_StoreFailure(t *testing.T) {
	svc := NewService(failingRepo{NewMemoryRecordRepo()}, zerolog.Nop())
	_, err := svc.Create(context.Background(), "Alice", disease.Diabetes, notDiabetic)
	if kindOf(err) != apperror.KindStore {
		t.Errorf("expected store error, got %v", err)
	}
}
