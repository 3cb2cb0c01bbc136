package followup

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carenet/clinic/internal/platform/apperr"
	"github.com/carenet/clinic/internal/platform/db"
)

type followUpRepoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &followUpRepoPG{pool: pool} }

func (r *followUpRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

func (r *followUpRepoPG) Create(ctx context.Context, f *FollowUp) error {
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO follow_ups (patient_id, date_suivi, motif, notes_medecin, prescriptions)
		VALUES ($1,$2,$3,$4,$5) RETURNING id`,
		f.PatientID, f.Date, f.Reason, f.Notes, f.Prescriptions,
	).Scan(&f.ID)
	if db.IsForeignKeyViolation(err) {
		return apperr.NotFound("patient", f.PatientID)
	}
	return err
}

func (r *followUpRepoPG) ListByPatient(ctx context.Context, patientID int64, limit int) ([]*FollowUp, error) {
	query := `SELECT id, patient_id, date_suivi, motif, notes_medecin, prescriptions
		FROM follow_ups WHERE patient_id = $1 ORDER BY date_suivi DESC, id DESC`
	args := []interface{}{patientID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*FollowUp
	for rows.Next() {
		var f FollowUp
		if err := rows.Scan(&f.ID, &f.PatientID, &f.Date, &f.Reason, &f.Notes, &f.Prescriptions); err != nil {
			return nil, err
		}
		items = append(items, &f)
	}
	return items, rows.Err()
}

func (r *followUpRepoPG) CountSince(ctx context.Context, since time.Time) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM follow_ups WHERE date_suivi >= $1`, since).Scan(&n)
	return n, err
}
