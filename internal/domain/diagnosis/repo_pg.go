package diagnosis

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medpredict/clinic/internal/platform/db"
)

type recordRepoPG struct {
	pool *pgxpool.Pool
}

func NewRecordRepo(pool *pgxpool.Pool) RecordRepository {
	return &recordRepoPG{pool: pool}
}

const recordCols = `id, seq, patient_name, disease, diagnosis, recommendation, created_at, updated_at`

func scanRecord(row pgx.Row) (*Record, error) {
	var r Record
	err := row.Scan(&r.ID, &r.Seq, &r.PatientName, &r.Disease, &r.Diagnosis,
		&r.Recommendation, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (r *recordRepoPG) Create(ctx context.Context, rec *Record) error {
	rec.ID = uuid.New()
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO diagnosis_record (id, patient_name, disease, diagnosis)
		VALUES ($1, $2, $3, $4)
		RETURNING seq, created_at, updated_at`,
		rec.ID, rec.PatientName, rec.Disease, rec.Diagnosis,
	).Scan(&rec.Seq, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert diagnosis record: %w", err)
	}
	return nil
}

func (r *recordRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Record, error) {
	rec, err := scanRecord(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+recordCols+` FROM diagnosis_record WHERE id = $1`, id))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("select diagnosis record: %w", err)
	}
	return rec, err
}

func (r *recordRepoPG) ListByPatient(ctx context.Context, patientName string) ([]*Record, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx,
		`SELECT `+recordCols+` FROM diagnosis_record WHERE patient_name = $1 ORDER BY seq`, patientName)
	if err != nil {
		return nil, fmt.Errorf("list diagnosis records: %w", err)
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan diagnosis record: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *recordRepoPG) UpdateRecommendation(ctx context.Context, key RecordKey, text string) (*Record, error) {
	rec, err := scanRecord(db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE diagnosis_record SET recommendation = $4, updated_at = NOW()
		WHERE id = (
			SELECT id FROM diagnosis_record
			WHERE patient_name = $1 AND disease = $2 AND diagnosis = $3
			ORDER BY seq DESC
			LIMIT 1
			FOR UPDATE
		)
		RETURNING `+recordCols,
		key.PatientName, key.Disease, key.Diagnosis, text,
	))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("update recommendation: %w", err)
	}
	return rec, err
}

func (r *recordRepoPG) DistinctPatientNames(ctx context.Context) ([]string, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx,
		`SELECT DISTINCT patient_name FROM diagnosis_record ORDER BY patient_name`)
	if err != nil {
		return nil, fmt.Errorf("list patient names: %w", err)
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan patient names: %w", err)
	}
	return names, nil
}
