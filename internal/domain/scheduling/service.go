package scheduling

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
	appts    Repository
	subjects SubjectChecker
	tx       db.Transactor
	now      func() time.Time
	loc      *time.Location
	logger   zerolog.Logger
}

type Option func(*Service)

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func WithLocation(loc *time.Location) Option { return func(s *Service) { s.loc = loc } }

func WithLogger(l zerolog.Logger) Option { return func(s *Service) { s.logger = l } }

func NewService(appts Repository, subjects SubjectChecker, tx db.Transactor, opts ...Option) *Service {
	s := &Service{
		appts:    appts,
		subjects: subjects,
		tx:       tx,
		now:      time.Now,
		loc:      time.UTC,
		logger:   zerolog.Nop(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Location is the clinic timezone used for day and week boundaries.
func (s *Service) Location() *time.Location { return s.loc }

func (s *Service) ensureFuture(when time.Time) error {
	if !when.After(s.now()) {
		return apperr.ErrInvalidSchedule
	}
	return nil
}

// CreateAppointment books a new appointment. Patients book for themselves
// and always start in planned; staff may also book directly as confirmed.
func (s *Service) CreateAppointment(ctx context.Context, actor auth.Actor, req CreateRequest) (*Appointment, error) {
	if !actor.CanAccessPatient(req.PatientID) {
		return nil, apperr.Forbidden("patients may only book for themselves")
	}
	status := req.Status
	if status == "" {
		status = StatusPlanned
	}
	switch {
	case !status.Active():
		return nil, apperr.Validation("a new appointment must be planned or confirmed")
	case status == StatusConfirmed && !actor.IsStaff():
		return nil, apperr.Forbidden("only staff may confirm appointments")
	}
	reason, err := normalizeReason(req.Reason)
	if err != nil {
		return nil, err
	}
	if req.When.IsZero() {
		return nil, apperr.Validation("date_heure is required")
	}
	if err := s.ensureFuture(req.When); err != nil {
		return nil, err
	}

	a := &Appointment{
		PatientID:   req.PatientID,
		ScheduledAt: req.When.UTC(),
		Reason:      reason,
		Status:      status,
	}
	if actor.IsStaff() {
		a.InternalNotes = req.InternalNotes
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.subjects.EnsureSubject(ctx, req.PatientID); err != nil {
			return err
		}
		return s.appts.Create(ctx, a)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Debug().Int64("appointment_id", a.ID).Int64("patient_id", a.PatientID).
		Str("statut", string(a.Status)).Str("actor", actor.String()).Msg("appointment created")
	return a, nil
}

// GetAppointment returns one appointment. Patients only see their own.
func (s *Service) GetAppointment(ctx context.Context, actor auth.Actor, id int64) (*Appointment, error) {
	a, err := s.appts.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.CanAccessPatient(a.PatientID) {
		return nil, apperr.Forbidden("appointment belongs to another patient")
	}
	return a, nil
}

// Transition moves an appointment along a regular edge of the lifecycle.
func (s *Service) Transition(ctx context.Context, actor auth.Actor, id int64, to Status) (*Appointment, error) {
	return s.UpdateAppointment(ctx, actor, id, Patch{Status: &to})
}

// UpdateAppointment applies p under a row lock. Patients may only cancel
// their own appointments. Staff may also edit or reschedule appointments
// that are not closed. Changing the date or moving to an active status
// requires the resulting date to be in the future.
func (s *Service) UpdateAppointment(ctx context.Context, actor auth.Actor, id int64, p Patch) (*Appointment, error) {
	if p.Status == nil && !p.hasEdits() {
		return nil, apperr.Validation("nothing to update")
	}
	var out *Appointment
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		a, err := s.appts.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !actor.IsStaff() {
			if a.PatientID != actor.ID {
				return apperr.Forbidden("appointment belongs to another patient")
			}
			if p.hasEdits() || p.Status == nil || *p.Status != StatusCancelled {
				return apperr.Forbidden("patients may only cancel appointments")
			}
		}
		if p.hasEdits() && a.Status.Terminal() {
			return apperr.ErrInvalidTransition
		}

		whenChanged := false
		if p.When != nil && !p.When.Equal(a.ScheduledAt) {
			a.ScheduledAt = p.When.UTC()
			whenChanged = true
		}
		if p.Reason != nil {
			if a.Reason, err = normalizeReason(*p.Reason); err != nil {
				return err
			}
		}
		if p.InternalNotes != nil {
			a.InternalNotes = p.InternalNotes
		}

		statusChanged := false
		if p.Status != nil && (*p.Status != a.Status || !p.hasEdits()) {
			if !CanTransition(a.Status, *p.Status) {
				return apperr.ErrInvalidTransition
			}
			a.Status = *p.Status
			statusChanged = true
		}
		if a.Status.Active() && (whenChanged || statusChanged) {
			if err := s.ensureFuture(a.ScheduledAt); err != nil {
				return err
			}
		}

		if err := s.appts.Update(ctx, a); err != nil {
			return err
		}
		out = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Debug().Int64("appointment_id", id).Str("statut", string(out.Status)).
		Str("actor", actor.String()).Stringer("patch", p).Msg("appointment updated")
	return out, nil
}

// Reopen returns a cancelled or completed appointment to planned. It is a
// staff-only correction and is always written to the audit log. A nil when
// keeps the stored date, which must still be in the future.
func (s *Service) Reopen(ctx context.Context, actor auth.Actor, id int64, when *time.Time) (*Appointment, error) {
	if !actor.IsStaff() {
		return nil, apperr.Forbidden("only staff may reopen appointments")
	}
	var out *Appointment
	var previous Status
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		a, err := s.appts.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !a.Status.Terminal() {
			return apperr.ErrInvalidTransition
		}
		if when != nil {
			a.ScheduledAt = when.UTC()
		}
		if err := s.ensureFuture(a.ScheduledAt); err != nil {
			return err
		}
		previous = a.Status
		a.Status = StatusPlanned
		if err := s.appts.Update(ctx, a); err != nil {
			return err
		}
		out = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("event", "appointment_reopened").
		Int64("appointment_id", out.ID).
		Int64("patient_id", out.PatientID).
		Str("from", string(previous)).
		Str("to", string(out.Status)).
		Time("date_heure", out.ScheduledAt).
		Str("actor", actor.String()).
		Msg("appointment reopened")
	return out, nil
}

// ListByPatient returns a patient's appointments, most recent first.
func (s *Service) ListByPatient(ctx context.Context, patientID int64) ([]*Appointment, error) {
	items, err := s.appts.ListByPatient(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []*Appointment{}
	}
	return items, nil
}

// ListByDate returns every appointment on the clinic-local calendar day of
// day, in ascending order.
func (s *Service) ListByDate(ctx context.Context, day time.Time) ([]*Appointment, error) {
	from, to := DayBounds(day, s.loc)
	items, err := s.appts.ListBetween(ctx, from, to)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []*Appointment{}
	}
	return items, nil
}

// NextUpcoming returns the earliest active appointment dated at or after
// now, or nil.
func (s *Service) NextUpcoming(ctx context.Context, patientID int64, now time.Time) (*Appointment, error) {
	return s.appts.NextUpcoming(ctx, patientID, now)
}

// CountThisWeek counts appointments dated in the clinic-local ISO week
// (Monday start) containing now.
func (s *Service) CountThisWeek(ctx context.Context, now time.Time) (int, error) {
	from, to := WeekBounds(now, s.loc)
	return s.appts.CountBetween(ctx, from, to)
}

// DayBounds returns [start, end) of the calendar day containing t in loc.
func DayBounds(t time.Time, loc *time.Location) (time.Time, time.Time) {
	t = t.In(loc)
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1)
}

// WeekBounds returns [Monday 00:00, next Monday 00:00) around t in loc.
func WeekBounds(t time.Time, loc *time.Location) (time.Time, time.Time) {
	start, _ := DayBounds(t, loc)
	offset := (int(start.Weekday()) + 6) % 7
	start = start.AddDate(0, 0, -offset)
	return start, start.AddDate(0, 0, 7)
}
