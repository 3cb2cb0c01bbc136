package followup

import (
	"context"
	"time"
)

type Repository interface {
	Create(ctx context.Context, f *FollowUp) error
	// ListByPatient returns follow-ups most recent first. limit <= 0 means all.
	ListByPatient(ctx context.Context, patientID int64, limit int) ([]*FollowUp, error)
	CountSince(ctx context.Context, since time.Time) (int, error)
}
