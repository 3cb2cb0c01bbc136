package vitals

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carenet/clinic/internal/platform/apperr"
	"github.com/carenet/clinic/internal/platform/db"
)

type readingRepoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &readingRepoPG{pool: pool} }

func (r *readingRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const readingCols = `id, patient_id, date_releve, tension_systolique, tension_diastolique,
	glycemie, poids, notes_patient`

func scanReading(row pgx.Row) (*Reading, error) {
	var v Reading
	err := row.Scan(&v.ID, &v.PatientID, &v.RecordedAt, &v.Systolic, &v.Diastolic,
		&v.Glycemia, &v.Weight, &v.Note)
	return &v, err
}

func (r *readingRepoPG) Create(ctx context.Context, v *Reading) error {
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO vital_signs (patient_id, date_releve, tension_systolique, tension_diastolique,
			glycemie, poids, notes_patient)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING id`,
		v.PatientID, v.RecordedAt, v.Systolic, v.Diastolic, v.Glycemia, v.Weight, v.Note,
	).Scan(&v.ID)
	if db.IsForeignKeyViolation(err) {
		return apperr.NotFound("patient", v.PatientID)
	}
	return err
}

func (r *readingRepoPG) Latest(ctx context.Context, patientID int64) (*Reading, error) {
	v, err := scanReading(r.conn(ctx).QueryRow(ctx,
		`SELECT `+readingCols+` FROM vital_signs WHERE patient_id = $1 ORDER BY date_releve DESC, id DESC LIMIT 1`,
		patientID))
	if db.IsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest reading: %w", err)
	}
	return v, nil
}

func (r *readingRepoPG) Recent(ctx context.Context, patientID int64, limit int) ([]*Reading, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+readingCols+` FROM vital_signs WHERE patient_id = $1 ORDER BY date_releve DESC, id DESC LIMIT $2`,
		patientID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent readings: %w", err)
	}
	defer rows.Close()

	var items []*Reading
	for rows.Next() {
		v, err := scanReading(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, v)
	}
	return items, rows.Err()
}

func (r *readingRepoPG) CountActivePatientsSince(ctx context.Context, since time.Time) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(DISTINCT patient_id) FROM vital_signs WHERE date_releve >= $1`, since).Scan(&n)
	return n, err
}
