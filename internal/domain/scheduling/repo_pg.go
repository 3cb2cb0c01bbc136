package scheduling

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carenet/clinic/internal/platform/apperr"
	"github.com/carenet/clinic/internal/platform/db"
)

type appointmentRepoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &appointmentRepoPG{pool: pool} }

func (r *appointmentRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const apptCols = `id, patient_id, date_heure, motif, statut, notes_internes, version_id, created_at, updated_at`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(&a.ID, &a.PatientID, &a.ScheduledAt, &a.Reason, &a.Status,
		&a.InternalNotes, &a.VersionID, &a.CreatedAt, &a.UpdatedAt)
	return &a, err
}

func (r *appointmentRepoPG) Create(ctx context.Context, a *Appointment) error {
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO appointments (patient_id, date_heure, motif, statut, notes_internes)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING id, version_id, created_at, updated_at`,
		a.PatientID, a.ScheduledAt, a.Reason, a.Status, a.InternalNotes,
	).Scan(&a.ID, &a.VersionID, &a.CreatedAt, &a.UpdatedAt)
	if db.IsForeignKeyViolation(err) {
		return apperr.NotFound("patient", a.PatientID)
	}
	return err
}

func (r *appointmentRepoPG) get(ctx context.Context, id int64, suffix string) (*Appointment, error) {
	a, err := scanAppointment(r.conn(ctx).QueryRow(ctx,
		`SELECT `+apptCols+` FROM appointments WHERE id = $1`+suffix, id))
	if db.IsNoRows(err) {
		return nil, apperr.NotFound("appointment", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get appointment %d: %w", id, err)
	}
	return a, nil
}

func (r *appointmentRepoPG) GetByID(ctx context.Context, id int64) (*Appointment, error) {
	return r.get(ctx, id, "")
}

func (r *appointmentRepoPG) GetForUpdate(ctx context.Context, id int64) (*Appointment, error) {
	return r.get(ctx, id, " FOR UPDATE")
}

func (r *appointmentRepoPG) Update(ctx context.Context, a *Appointment) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE appointments SET date_heure=$2, motif=$3, statut=$4, notes_internes=$5,
			version_id = version_id + 1, updated_at = NOW()
		WHERE id = $1 AND version_id = $6
		RETURNING version_id, updated_at`,
		a.ID, a.ScheduledAt, a.Reason, a.Status, a.InternalNotes, a.VersionID,
	).Scan(&a.VersionID, &a.UpdatedAt)
	if db.IsNoRows(err) {
		return fmt.Errorf("appointment %d changed concurrently: %w", a.ID, apperr.ErrConflict)
	}
	return err
}

func (r *appointmentRepoPG) list(ctx context.Context, query string, args ...interface{}) ([]*Appointment, error) {
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, rows.Err()
}

func (r *appointmentRepoPG) ListByPatient(ctx context.Context, patientID int64) ([]*Appointment, error) {
	return r.list(ctx, `SELECT `+apptCols+` FROM appointments WHERE patient_id = $1
		ORDER BY date_heure DESC, id DESC`, patientID)
}

func (r *appointmentRepoPG) ListBetween(ctx context.Context, from, to time.Time) ([]*Appointment, error) {
	return r.list(ctx, `SELECT `+apptCols+` FROM appointments WHERE date_heure >= $1 AND date_heure < $2
		ORDER BY date_heure ASC, id ASC`, from, to)
}

func (r *appointmentRepoPG) NextUpcoming(ctx context.Context, patientID int64, now time.Time) (*Appointment, error) {
	a, err := scanAppointment(r.conn(ctx).QueryRow(ctx, `SELECT `+apptCols+` FROM appointments
		WHERE patient_id = $1 AND statut IN ($2, $3) AND date_heure >= $4
		ORDER BY date_heure ASC, id ASC LIMIT 1`,
		patientID, StatusPlanned, StatusConfirmed, now))
	if db.IsNoRows(err) {
		return nil, nil
	}
	return a, err
}

func (r *appointmentRepoPG) CountBetween(ctx context.Context, from, to time.Time) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM appointments WHERE date_heure >= $1 AND date_heure < $2`, from, to).Scan(&n)
	return n, err
}
