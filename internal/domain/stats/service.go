package stats

import (
	"context"
	"fmt"
	"time"

	"github.com/carenet/clinic/internal/domain/followup"
	"github.com/carenet/clinic/internal/domain/scheduling"
	"github.com/carenet/clinic/internal/domain/vitals"
)

const (
	activityWindow = 30 * 24 * time.Hour
)

type PatientCounter interface {
	CountPatients(ctx context.Context) (int, error)
}

type Appointments interface {
	CountThisWeek(ctx context.Context, now time.Time) (int, error)
	NextUpcoming(ctx context.Context, patientID int64, now time.Time) (*scheduling.Appointment, error)
	ListByPatient(ctx context.Context, patientID int64) ([]*scheduling.Appointment, error)
}

type FollowUps interface {
	CountSince(ctx context.Context, since time.Time) (int, error)
	ListByPatient(ctx context.Context, patientID int64, limit int) ([]*followup.FollowUp, error)
}

type Vitals interface {
	CountActivePatientsSince(ctx context.Context, since time.Time) (int, error)
	LatestReading(ctx context.Context, patientID int64) (*vitals.Reading, error)
	RecentReadings(ctx context.Context, patientID int64, limit int) ([]*vitals.Reading, error)
	TrendSeries(ctx context.Context, patientID int64, limit int) (*vitals.TrendSeries, error)
}

// SubjectChecker confirms that an id names a patient (not a staff account).
type SubjectChecker interface {
	EnsureSubject(ctx context.Context, patientID int64) error
}

// Service composes read-only views over the other ledgers.
type Service struct {
	patients     PatientCounter
	subjects     SubjectChecker
	appointments Appointments
	followUps    FollowUps
	vitals       Vitals
	now          func() time.Time
	chartWindow  int
	historyLimit int
}

type Option func(*Service)

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func WithChartWindow(n int) Option { return func(s *Service) { s.chartWindow = n } }

// WithHistoryReadings caps the readings returned by PatientHistory.
func WithHistoryReadings(n int) Option { return func(s *Service) { s.historyLimit = n } }

func NewService(patients PatientCounter, subjects SubjectChecker, appts Appointments, followUps FollowUps, v Vitals, opts ...Option) *Service {
	s := &Service{
		patients:     patients,
		subjects:     subjects,
		appointments: appts,
		followUps:    followUps,
		vitals:       v,
		now:          time.Now,
		chartWindow:  vitals.DefaultChartWindow,
		historyLimit: 500,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

type GlobalSummary struct {
	TotalPatients         int       `json:"total_patients"`
	AppointmentsThisWeek  int       `json:"appointments_this_week"`
	FollowUpsLast30Days   int       `json:"followups_last_30_days"`
	ActivePatientsLast30d int       `json:"active_patients_30_days"`
	GeneratedAt           time.Time `json:"generated_at"`
}

// GlobalSummary returns clinic-wide counters, all taken at the same instant.
// The first failing sub-query fails the whole call; partial summaries are
// never returned.
func (s *Service) GlobalSummary(ctx context.Context) (*GlobalSummary, error) {
	now := s.now()
	since := now.Add(-activityWindow)
	out := &GlobalSummary{GeneratedAt: now.UTC()}

	var err error
	if out.TotalPatients, err = s.patients.CountPatients(ctx); err != nil {
		return nil, fmt.Errorf("count patients: %w", err)
	}
	if out.AppointmentsThisWeek, err = s.appointments.CountThisWeek(ctx, now); err != nil {
		return nil, fmt.Errorf("count appointments: %w", err)
	}
	if out.FollowUpsLast30Days, err = s.followUps.CountSince(ctx, since); err != nil {
		return nil, fmt.Errorf("count follow-ups: %w", err)
	}
	if out.ActivePatientsLast30d, err = s.vitals.CountActivePatientsSince(ctx, since); err != nil {
		return nil, fmt.Errorf("count active patients: %w", err)
	}
	return out, nil
}

type Dashboard struct {
	PatientID       int64                   `json:"patient_id"`
	NextAppointment *scheduling.Appointment `json:"next_appointment"`
	RecentFollowUps []*followup.FollowUp    `json:"recent_followups"`
	LatestReading   *vitals.Reading         `json:"latest_reading"`
	Trend           *vitals.TrendSeries     `json:"trend_series"`
}

// PatientDashboard assembles the patient home view.
func (s *Service) PatientDashboard(ctx context.Context, patientID int64) (*Dashboard, error) {
	if err := s.subjects.EnsureSubject(ctx, patientID); err != nil {
		return nil, err
	}
	out := &Dashboard{PatientID: patientID}
	var err error
	if out.NextAppointment, err = s.appointments.NextUpcoming(ctx, patientID, s.now()); err != nil {
		return nil, err
	}
	if out.RecentFollowUps, err = s.followUps.ListByPatient(ctx, patientID, followup.DashboardLimit); err != nil {
		return nil, err
	}
	if out.LatestReading, err = s.vitals.LatestReading(ctx, patientID); err != nil {
		return nil, err
	}
	if out.Trend, err = s.vitals.TrendSeries(ctx, patientID, s.chartWindow); err != nil {
		return nil, err
	}
	if out.NextAppointment != nil {
		out.NextAppointment = out.NextAppointment.ForPatient()
	}
	return out, nil
}

type History struct {
	PatientID    int64                     `json:"patient_id"`
	FollowUps    []*followup.FollowUp      `json:"followups"`
	Appointments []*scheduling.Appointment `json:"appointments"`
	Readings     []*vitals.Reading         `json:"vital_signs"`
}

// PatientHistory returns the patient's complete record, each list most
// recent first. Internal appointment notes are omitted.
func (s *Service) PatientHistory(ctx context.Context, patientID int64) (*History, error) {
	if err := s.subjects.EnsureSubject(ctx, patientID); err != nil {
		return nil, err
	}
	out := &History{PatientID: patientID}
	var err error
	if out.FollowUps, err = s.followUps.ListByPatient(ctx, patientID, 0); err != nil {
		return nil, err
	}
	appts, err := s.appointments.ListByPatient(ctx, patientID)
	if err != nil {
		return nil, err
	}
	out.Appointments = make([]*scheduling.Appointment, len(appts))
	for i, a := range appts {
		out.Appointments[i] = a.ForPatient()
	}
	if out.Readings, err = s.vitals.RecentReadings(ctx, patientID, s.historyLimit); err != nil {
		return nil, err
	}
	return out, nil
}
