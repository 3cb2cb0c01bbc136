package followup

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/carenet/clinic/internal/platform/apperr"
	"github.com/carenet/clinic/internal/platform/auth"
	"github.com/carenet/clinic/internal/platform/db"
)

// SubjectChecker confirms that an id names a patient (not a staff account).
type SubjectChecker interface {
	EnsureSubject(ctx context.Context, patientID int64) error
}

type Service struct {
	followUps Repository
	subjects  SubjectChecker
	tx        db.Transactor
	now       func() time.Time
	logger    zerolog.Logger
}

type Option func(*Service)

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func WithLogger(l zerolog.Logger) Option { return func(s *Service) { s.logger = l } }

func NewService(followUps Repository, subjects SubjectChecker, tx db.Transactor, opts ...Option) *Service {
	s := &Service{
		followUps: followUps,
		subjects:  subjects,
		tx:        tx,
		now:       time.Now,
		logger:    zerolog.Nop(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// CreateFollowUp records a staff note dated now.
func (s *Service) CreateFollowUp(ctx context.Context, actor auth.Actor, patientID int64, in Input) (*FollowUp, error) {
	if !actor.IsStaff() {
		return nil, apperr.Forbidden("only staff may write follow-ups")
	}
	in, err := in.normalize()
	if err != nil {
		return nil, err
	}
	f := &FollowUp{
		PatientID:     patientID,
		Date:          s.now().UTC(),
		Reason:        in.Reason,
		Notes:         in.Notes,
		Prescriptions: in.Prescriptions,
	}
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.subjects.EnsureSubject(ctx, patientID); err != nil {
			return err
		}
		return s.followUps.Create(ctx, f)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Debug().Int64("follow_up_id", f.ID).Int64("patient_id", patientID).
		Str("actor", actor.String()).Msg("follow-up created")
	return f, nil
}

// ListByPatient returns follow-ups most recent first; limit <= 0 returns all.
func (s *Service) ListByPatient(ctx context.Context, patientID int64, limit int) ([]*FollowUp, error) {
	items, err := s.followUps.ListByPatient(ctx, patientID, limit)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []*FollowUp{}
	}
	return items, nil
}

func (s *Service) CountSince(ctx context.Context, since time.Time) (int, error) {
	return s.followUps.CountSince(ctx, since)
}
