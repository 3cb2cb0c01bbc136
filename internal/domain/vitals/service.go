package vitals

import (
	"context"
	"strings"
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
	readings    Repository
	subjects    SubjectChecker
	tx          db.Transactor
	now         func() time.Time
	loc         *time.Location
	chartWindow int
	logger      zerolog.Logger
}

type Option func(*Service)

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func WithLocation(loc *time.Location) Option { return func(s *Service) { s.loc = loc } }

func WithChartWindow(n int) Option { return func(s *Service) { s.chartWindow = n } }

func WithLogger(l zerolog.Logger) Option { return func(s *Service) { s.logger = l } }

func NewService(readings Repository, subjects SubjectChecker, tx db.Transactor, opts ...Option) *Service {
	s := &Service{
		readings:    readings,
		subjects:    subjects,
		tx:          tx,
		now:         time.Now,
		loc:         time.UTC,
		chartWindow: DefaultChartWindow,
		logger:      zerolog.Nop(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// ChartWindow is the configured default trend length.
func (s *Service) ChartWindow() int { return s.chartWindow }

// RecordReading appends a reading stamped with the server clock. Patient
// actors may only report for themselves and are held to the plausibility
// floors; staff entries bypass the floors.
func (s *Service) RecordReading(ctx context.Context, actor auth.Actor, patientID int64, in Input) (*Reading, error) {
	if !actor.CanAccessPatient(patientID) {
		return nil, apperr.Forbidden("patients may only record their own readings")
	}
	if in.Empty() {
		return nil, apperr.Validation("at least one measurement or a note is required")
	}
	if !actor.IsStaff() {
		if err := checkFloors(in); err != nil {
			return nil, err
		}
	}
	if err := validateInput(in); err != nil {
		return nil, err
	}

	r := &Reading{
		PatientID:  patientID,
		RecordedAt: s.now().UTC(),
		Systolic:   in.Systolic,
		Diastolic:  in.Diastolic,
		Glycemia:   roundPtr(in.Glycemia),
		Weight:     roundPtr(in.Weight),
	}
	if in.Note != nil {
		r.Note = strings.TrimSpace(*in.Note)
	}

	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.subjects.EnsureSubject(ctx, patientID); err != nil {
			return err
		}
		return s.readings.Create(ctx, r)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug().Int64("patient_id", patientID).Int64("reading_id", r.ID).
		Str("actor", actor.String()).Msg("vitals recorded")
	return r, nil
}

func validateInput(in Input) error {
	if in.Systolic != nil && *in.Systolic <= 0 {
		return apperr.Validation("tension_systolique must be positive")
	}
	if in.Diastolic != nil && *in.Diastolic <= 0 {
		return apperr.Validation("tension_diastolique must be positive")
	}
	if in.Glycemia != nil && (*in.Glycemia <= 0 || round2(*in.Glycemia) > maxDecimal) {
		return apperr.Validation("glycemie must be between 0 and %.2f", maxDecimal)
	}
	if in.Weight != nil && (*in.Weight <= 0 || round2(*in.Weight) > maxDecimal) {
		return apperr.Validation("poids must be between 0 and %.2f", maxDecimal)
	}
	return nil
}

func checkFloors(in Input) error {
	if in.Systolic != nil && *in.Systolic < MinSystolic {
		return apperr.OutOfRange("tension_systolique below %d", MinSystolic)
	}
	if in.Diastolic != nil && *in.Diastolic < MinDiastolic {
		return apperr.OutOfRange("tension_diastolique below %d", MinDiastolic)
	}
	if in.Glycemia != nil && *in.Glycemia < MinGlycemia {
		return apperr.OutOfRange("glycemie below %.1f", MinGlycemia)
	}
	return nil
}

func roundPtr(v *float64) *float64 {
	if v == nil {
		return nil
	}
	r := round2(*v)
	return &r
}

// LatestReading returns the most recent reading or nil when there is none.
func (s *Service) LatestReading(ctx context.Context, patientID int64) (*Reading, error) {
	return s.readings.Latest(ctx, patientID)
}

// RecentReadings returns at most limit readings, most recent first.
func (s *Service) RecentReadings(ctx context.Context, patientID int64, limit int) ([]*Reading, error) {
	if limit <= 0 {
		limit = s.chartWindow
	}
	items, err := s.readings.Recent(ctx, patientID, limit)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []*Reading{}
	}
	return items, nil
}

// TrendSeries returns the last limit readings in chronological order.
func (s *Service) TrendSeries(ctx context.Context, patientID int64, limit int) (*TrendSeries, error) {
	recent, err := s.RecentReadings(ctx, patientID, limit)
	if err != nil {
		return nil, err
	}
	return BuildTrend(recent, s.loc), nil
}

// CountActivePatientsSince counts distinct patients with a reading at or
// after since.
func (s *Service) CountActivePatientsSince(ctx context.Context, since time.Time) (int, error) {
	return s.readings.CountActivePatientsSince(ctx, since)
}
