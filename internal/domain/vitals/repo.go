package vitals

import (
	"context"
	"time"
)

type Repository interface {
	Create(ctx context.Context, r *Reading) error
	// Latest returns nil, nil when the patient has no readings.
	Latest(ctx context.Context, patientID int64) (*Reading, error)
	// Recent returns at most limit readings, most recent first.
	Recent(ctx context.Context, patientID int64, limit int) ([]*Reading, error)
	CountActivePatientsSince(ctx context.Context, since time.Time) (int, error)
}
