package scheduling

import (
	"context"
	"time"
)

type Repository interface {
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id int64) (*Appointment, error)
	// GetForUpdate reads the row and locks it until the surrounding
	// transaction ends.
	GetForUpdate(ctx context.Context, id int64) (*Appointment, error)
	// Update writes a and bumps its version. It fails with apperr.ErrConflict
	// when the stored version no longer matches a.VersionID.
	Update(ctx context.Context, a *Appointment) error
	ListByPatient(ctx context.Context, patientID int64) ([]*Appointment, error)
	ListBetween(ctx context.Context, from, to time.Time) ([]*Appointment, error)
	NextUpcoming(ctx context.Context, patientID int64, now time.Time) (*Appointment, error)
	CountBetween(ctx context.Context, from, to time.Time) (int, error)
}
