package scheduling

import (
	"bytes"
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/carenet/clinic/internal/platform/apperr"
	"github.com/carenet/clinic/internal/platform/auth"
)

// -- Mock Repository --

type mockApptRepo struct {
	mu     sync.Mutex
	items  map[int64]*Appointment
	nextID int64
}

func newMockApptRepo() *mockApptRepo {
	return &mockApptRepo{items: make(map[int64]*Appointment), nextID: 1}
}

func (m *mockApptRepo) Create(_ context.Context, a *Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a.ID = m.nextID
	m.nextID++
	a.VersionID = 1
	cp := *a
	m.items[a.ID] = &cp
	return nil
}

func (m *mockApptRepo) GetByID(_ context.Context, id int64) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.items[id]
	if !ok {
		return nil, apperr.NotFound("appointment", id)
	}
	cp := *a
	return &cp, nil
}

func (m *mockApptRepo) GetForUpdate(ctx context.Context, id int64) (*Appointment, error) {
	return m.GetByID(ctx, id)
}

func (m *mockApptRepo) Update(_ context.Context, a *Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.items[a.ID]
	if !ok || cur.VersionID != a.VersionID {
		return apperr.ErrConflict
	}
	a.VersionID++
	cp := *a
	m.items[a.ID] = &cp
	return nil
}

func (m *mockApptRepo) filter(keep func(*Appointment) bool) []*Appointment {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Appointment
	for _, a := range m.items {
		if keep(a) {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledAt.Before(out[j].ScheduledAt) })
	return out
}

func (m *mockApptRepo) ListByPatient(_ context.Context, patientID int64) ([]*Appointment, error) {
	out := m.filter(func(a *Appointment) bool { return a.PatientID == patientID })
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (m *mockApptRepo) ListBetween(_ context.Context, from, to time.Time) ([]*Appointment, error) {
	return m.filter(func(a *Appointment) bool {
		return !a.ScheduledAt.Before(from) && a.ScheduledAt.Before(to)
	}), nil
}

func (m *mockApptRepo) NextUpcoming(_ context.Context, patientID int64, now time.Time) (*Appointment, error) {
	out := m.filter(func(a *Appointment) bool {
		return a.PatientID == patientID && a.Status.Active() && !a.ScheduledAt.Before(now)
	})
	if len(out) == 0 {
		return nil, nil
	}
	return out[0], nil
}

func (m *mockApptRepo) CountBetween(ctx context.Context, from, to time.Time) (int, error) {
	items, _ := m.ListBetween(ctx, from, to)
	return len(items), nil
}

type mockSubjects struct {
	patients map[int64]bool
}

func (m mockSubjects) EnsureSubject(_ context.Context, id int64) error {
	if !m.patients[id] {
		return apperr.NotFound("patient", id)
	}
	return nil
}

// serialTx runs one transaction at a time, like row locks on a single row.
type serialTx struct{ mu sync.Mutex }

func (s *serialTx) WithinTx(ctx context.Context, fn func(context.Context) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(ctx)
}

// -- Helpers --

var (
	testNow  = time.Date(2026, 5, 6, 10, 0, 0, 0, time.UTC) // a Wednesday
	staff    = auth.Actor{ID: 1, Role: auth.RoleStaff}
	patient7 = auth.Actor{ID: 7, Role: auth.RolePatient}
	patient8 = auth.Actor{ID: 8, Role: auth.RolePatient}
)

type testClock struct{ t time.Time }

func (c *testClock) now() time.Time { return c.t }

func newTestService(opts ...Option) (*Service, *mockApptRepo, *testClock) {
	repo := newMockApptRepo()
	clock := &testClock{t: testNow}
	opts = append([]Option{WithClock(clock.now)}, opts...)
	svc := NewService(repo, mockSubjects{patients: map[int64]bool{7: true, 8: true}}, &serialTx{}, opts...)
	return svc, repo, clock
}

func book(t *testing.T, svc *Service, actor auth.Actor, patientID int64, when time.Time) *Appointment {
	t.Helper()
	a, err := svc.CreateAppointment(context.Background(), actor, CreateRequest{
		PatientID: patientID, When: when, Reason: "Contrôle",
	})
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	return a
}

func statusPtr(s Status) *Status { return &s }

// -- Tests --

func TestCreateAppointment_PatientDefaultsToPlanned(t *testing.T) {
	svc, _, _ := newTestService()
	a := book(t, svc, patient7, 7, testNow.Add(48*time.Hour))
	if a.Status != StatusPlanned {
		t.Errorf("expected planned, got %s", a.Status)
	}
	if a.ID == 0 || a.VersionID != 1 {
		t.Errorf("expected persisted row, got id=%d version=%d", a.ID, a.VersionID)
	}
}

func TestCreateAppointment_PatientCannotConfirm(t *testing.T) {
	svc, _, _ := newTestService()
	_, err := svc.CreateAppointment(context.Background(), patient7, CreateRequest{
		PatientID: 7, When: testNow.Add(time.Hour), Reason: "x", Status: StatusConfirmed,
	})
	if !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("expected forbidden, got %v", err)
	}
}

func TestCreateAppointment_StaffMayConfirm(t *testing.T) {
	svc, _, _ := newTestService()
	notes := "fasting"
	a, err := svc.CreateAppointment(context.Background(), staff, CreateRequest{
		PatientID: 7, When: testNow.Add(time.Hour), Reason: "Bilan", Status: StatusConfirmed, InternalNotes: &notes,
	})
	if err != nil {
		t.Fatal(err)
	}
	if a.Status != StatusConfirmed || a.InternalNotes == nil {
		t.Errorf("unexpected appointment %+v", a)
	}
}

func TestCreateAppointment_PatientNotesDropped(t *testing.T) {
	svc, _, _ := newTestService()
	notes := "please call"
	a, err := svc.CreateAppointment(context.Background(), patient7, CreateRequest{
		PatientID: 7, When: testNow.Add(time.Hour), Reason: "x", InternalNotes: &notes,
	})
	if err != nil {
		t.Fatal(err)
	}
	if a.InternalNotes != nil {
		t.Error("patients must not write internal notes")
	}
}

func TestCreateAppointment_TerminalInitialStatus(t *testing.T) {
	svc, _, _ := newTestService()
	_, err := svc.CreateAppointment(context.Background(), staff, CreateRequest{
		PatientID: 7, When: testNow.Add(time.Hour), Reason: "x", Status: StatusCompleted,
	})
	if !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestCreateAppointment_TemporalGuard(t *testing.T) {
	svc, repo, _ := newTestService()
	for _, when := range []time.Time{testNow, testNow.Add(-time.Minute)} {
		_, err := svc.CreateAppointment(context.Background(), staff, CreateRequest{
			PatientID: 7, When: when, Reason: "x",
		})
		if !errors.Is(err, apperr.ErrInvalidSchedule) {
			t.Errorf("when=%v: expected invalid schedule, got %v", when, err)
		}
	}
	if len(repo.items) != 0 {
		t.Error("nothing should be stored")
	}
}

func TestCreateAppointment_Validation(t *testing.T) {
	svc, _, _ := newTestService()
	cases := []CreateRequest{
		{PatientID: 7, When: testNow.Add(time.Hour), Reason: "  "},
		{PatientID: 7, Reason: "x"},
	}
	for _, req := range cases {
		if _, err := svc.CreateAppointment(context.Background(), staff, req); !errors.Is(err, apperr.ErrValidation) {
			t.Errorf("%+v: expected validation error, got %v", req, err)
		}
	}
}

func TestCreateAppointment_Ownership(t *testing.T) {
	svc, _, _ := newTestService()
	_, err := svc.CreateAppointment(context.Background(), patient7, CreateRequest{
		PatientID: 8, When: testNow.Add(time.Hour), Reason: "x",
	})
	if !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("expected forbidden, got %v", err)
	}
	_, err = svc.CreateAppointment(context.Background(), staff, CreateRequest{
		PatientID: 99, When: testNow.Add(time.Hour), Reason: "x",
	})
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestTransition_Lifecycle(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	a := book(t, svc, staff, 7, testNow.Add(24*time.Hour))

	a, err := svc.Transition(ctx, staff, a.ID, StatusConfirmed)
	if err != nil {
		t.Fatal(err)
	}
	if a.Status != StatusConfirmed || a.VersionID != 2 {
		t.Fatalf("unexpected %+v", a)
	}
	if _, err := svc.Transition(ctx, staff, a.ID, StatusPlanned); !errors.Is(err, apperr.ErrInvalidTransition) {
		t.Errorf("confirmed -> planned: got %v", err)
	}
	if _, err := svc.Transition(ctx, staff, a.ID, StatusCompleted); err != nil {
		t.Fatal(err)
	}
	for _, to := range []Status{StatusPlanned, StatusConfirmed, StatusCancelled, StatusCompleted} {
		if _, err := svc.Transition(ctx, staff, a.ID, to); !errors.Is(err, apperr.ErrInvalidTransition) {
			t.Errorf("completed -> %s: got %v", to, err)
		}
	}
}

func TestTransition_FailureLeavesStatus(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	a := book(t, svc, staff, 7, testNow.Add(24*time.Hour))
	if _, err := svc.Transition(ctx, staff, a.ID, StatusCancelled); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Transition(ctx, staff, a.ID, StatusConfirmed); !errors.Is(err, apperr.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
	got, _ := svc.GetAppointment(ctx, staff, a.ID)
	if got.Status != StatusCancelled {
		t.Errorf("status changed to %s", got.Status)
	}
}

func TestTransition_ConfirmPastAppointment(t *testing.T) {
	svc, _, clock := newTestService()
	ctx := context.Background()
	a := book(t, svc, staff, 7, testNow.Add(time.Hour))
	clock.t = testNow.Add(2 * time.Hour)

	if _, err := svc.Transition(ctx, staff, a.ID, StatusConfirmed); !errors.Is(err, apperr.ErrInvalidSchedule) {
		t.Errorf("expected invalid schedule, got %v", err)
	}
	// Closing a past appointment is allowed.
	if _, err := svc.Transition(ctx, staff, a.ID, StatusCompleted); err != nil {
		t.Errorf("complete past appointment: %v", err)
	}
}

func TestTransition_PatientMayOnlyCancelOwn(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	a := book(t, svc, patient7, 7, testNow.Add(24*time.Hour))

	if _, err := svc.Transition(ctx, patient8, a.ID, StatusCancelled); !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("other patient: got %v", err)
	}
	if _, err := svc.Transition(ctx, patient7, a.ID, StatusConfirmed); !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("patient confirm: got %v", err)
	}
	got, err := svc.Transition(ctx, patient7, a.ID, StatusCancelled)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != StatusCancelled {
		t.Errorf("expected cancelled, got %s", got.Status)
	}
}

func TestUpdateAppointment_StaffReschedule(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	a := book(t, svc, staff, 7, testNow.Add(24*time.Hour))

	past := testNow.Add(-time.Hour)
	if _, err := svc.UpdateAppointment(ctx, staff, a.ID, Patch{When: &past}); !errors.Is(err, apperr.ErrInvalidSchedule) {
		t.Errorf("reschedule into past: got %v", err)
	}
	later := testNow.Add(72 * time.Hour)
	reason := "Suivi diabète"
	got, err := svc.UpdateAppointment(ctx, staff, a.ID, Patch{When: &later, Reason: &reason, Status: statusPtr(StatusPlanned)})
	if err != nil {
		t.Fatal(err)
	}
	if !got.ScheduledAt.Equal(later) || got.Reason != reason || got.Status != StatusPlanned {
		t.Errorf("unexpected %+v", got)
	}
}

func TestUpdateAppointment_NotesOnPastAppointment(t *testing.T) {
	svc, _, clock := newTestService()
	ctx := context.Background()
	a := book(t, svc, staff, 7, testNow.Add(time.Hour))
	clock.t = testNow.Add(3 * time.Hour)

	notes := "patient late"
	got, err := svc.UpdateAppointment(ctx, staff, a.ID, Patch{InternalNotes: &notes})
	if err != nil {
		t.Fatal(err)
	}
	if got.InternalNotes == nil || *got.InternalNotes != notes {
		t.Errorf("notes not saved: %+v", got)
	}
}

func TestUpdateAppointment_ClosedRejectsEdits(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	a := book(t, svc, staff, 7, testNow.Add(time.Hour))
	if _, err := svc.Transition(ctx, staff, a.ID, StatusCompleted); err != nil {
		t.Fatal(err)
	}
	reason := "changed"
	if _, err := svc.UpdateAppointment(ctx, staff, a.ID, Patch{Reason: &reason}); !errors.Is(err, apperr.ErrInvalidTransition) {
		t.Errorf("expected invalid transition, got %v", err)
	}
}

func TestUpdateAppointment_PatientEditsForbidden(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	a := book(t, svc, patient7, 7, testNow.Add(time.Hour))
	reason := "other"
	_, err := svc.UpdateAppointment(ctx, patient7, a.ID, Patch{Reason: &reason, Status: statusPtr(StatusCancelled)})
	if !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("expected forbidden, got %v", err)
	}
}

func TestUpdateAppointment_Empty(t *testing.T) {
	svc, _, _ := newTestService()
	if _, err := svc.UpdateAppointment(context.Background(), staff, 1, Patch{}); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestUpdateAppointment_NotFound(t *testing.T) {
	svc, _, _ := newTestService()
	if _, err := svc.Transition(context.Background(), staff, 404, StatusCancelled); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestTransition_ConcurrentCancelAndComplete(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	a := book(t, svc, staff, 7, testNow.Add(time.Hour))

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, to := range []Status{StatusCancelled, StatusCompleted} {
		wg.Add(1)
		go func(i int, to Status) {
			defer wg.Done()
			_, errs[i] = svc.Transition(ctx, staff, a.ID, to)
		}(i, to)
	}
	wg.Wait()

	ok, rejected := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, apperr.ErrInvalidTransition):
			rejected++
		default:
			t.Errorf("unexpected error %v", err)
		}
	}
	if ok != 1 || rejected != 1 {
		t.Errorf("expected one winner and one rejection, got ok=%d rejected=%d", ok, rejected)
	}
}

func TestUpdate_StaleVersionConflict(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()
	a := book(t, svc, staff, 7, testNow.Add(time.Hour))
	stale := *a
	if _, err := svc.Transition(ctx, staff, a.ID, StatusConfirmed); err != nil {
		t.Fatal(err)
	}
	stale.Status = StatusCancelled
	if err := repo.Update(ctx, &stale); !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("expected conflict, got %v", err)
	}
}

func TestReopen(t *testing.T) {
	var logged bytes.Buffer
	svc, _, _ := newTestService(WithLogger(zerolog.New(&logged)))
	ctx := context.Background()
	a := book(t, svc, staff, 7, testNow.Add(time.Hour))
	if _, err := svc.Transition(ctx, staff, a.ID, StatusCancelled); err != nil {
		t.Fatal(err)
	}

	if _, err := svc.Reopen(ctx, patient7, a.ID, nil); !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("patient reopen: got %v", err)
	}
	got, err := svc.Reopen(ctx, staff, a.ID, nil)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != StatusPlanned {
		t.Errorf("expected planned, got %s", got.Status)
	}
	line := logged.String()
	if !strings.Contains(line, `"event":"appointment_reopened"`) || !strings.Contains(line, `"actor":"staff:1"`) {
		t.Errorf("expected audit line, got %s", line)
	}
	if _, err := svc.Reopen(ctx, staff, a.ID, nil); !errors.Is(err, apperr.ErrInvalidTransition) {
		t.Errorf("reopen active: got %v", err)
	}
}

func TestReopen_PastDateNeedsNewDate(t *testing.T) {
	svc, _, clock := newTestService()
	ctx := context.Background()
	a := book(t, svc, staff, 7, testNow.Add(time.Hour))
	if _, err := svc.Transition(ctx, staff, a.ID, StatusCompleted); err != nil {
		t.Fatal(err)
	}
	clock.t = testNow.Add(24 * time.Hour)

	if _, err := svc.Reopen(ctx, staff, a.ID, nil); !errors.Is(err, apperr.ErrInvalidSchedule) {
		t.Errorf("expected invalid schedule, got %v", err)
	}
	when := clock.t.Add(48 * time.Hour)
	got, err := svc.Reopen(ctx, staff, a.ID, &when)
	if err != nil {
		t.Fatal(err)
	}
	if !got.ScheduledAt.Equal(when) {
		t.Errorf("expected new date %v, got %v", when, got.ScheduledAt)
	}
}

func TestListByPatient_Descending(t *testing.T) {
	svc, _, _ := newTestService()
	for _, h := range []int{5, 50, 20} {
		book(t, svc, staff, 7, testNow.Add(time.Duration(h)*time.Hour))
	}
	book(t, svc, staff, 8, testNow.Add(time.Hour))

	items, err := svc.ListByPatient(context.Background(), 7)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 3 {
		t.Fatalf("expected 3, got %d", len(items))
	}
	for i := 1; i < len(items); i++ {
		if items[i].ScheduledAt.After(items[i-1].ScheduledAt) {
			t.Error("expected descending order")
		}
	}
	empty, _ := svc.ListByPatient(context.Background(), 9)
	if empty == nil || len(empty) != 0 {
		t.Errorf("expected empty slice, got %v", empty)
	}
}

func TestListByDate_ClinicTimezone(t *testing.T) {
	loc := time.FixedZone("UTC+1", 3600)
	svc, _, _ := newTestService(WithLocation(loc))
	// 2026-05-07 23:30 UTC is 2026-05-08 00:30 local.
	book(t, svc, staff, 7, time.Date(2026, 5, 7, 23, 30, 0, 0, time.UTC))
	book(t, svc, staff, 7, time.Date(2026, 5, 7, 9, 0, 0, 0, time.UTC))
	book(t, svc, staff, 8, time.Date(2026, 5, 7, 8, 0, 0, 0, time.UTC))

	items, err := svc.ListByDate(context.Background(), time.Date(2026, 5, 7, 0, 0, 0, 0, loc))
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 appointments on May 7 local, got %d", len(items))
	}
	if !items[0].ScheduledAt.Before(items[1].ScheduledAt) {
		t.Error("expected ascending order")
	}
}

func TestNextUpcoming(t *testing.T) {
	svc, _, clock := newTestService()
	ctx := context.Background()
	first := book(t, svc, staff, 7, testNow.Add(2*time.Hour))
	second := book(t, svc, staff, 7, testNow.Add(48*time.Hour))
	if _, err := svc.Transition(ctx, staff, first.ID, StatusCancelled); err != nil {
		t.Fatal(err)
	}

	got, err := svc.NextUpcoming(ctx, 7, clock.t)
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.ID != second.ID {
		t.Fatalf("expected appointment %d, got %+v", second.ID, got)
	}
	if got, _ := svc.NextUpcoming(ctx, 7, testNow.Add(72*time.Hour)); got != nil {
		t.Errorf("expected none, got %+v", got)
	}
}

func TestCountThisWeek(t *testing.T) {
	svc, _, _ := newTestService()
	// testNow is Wednesday 2026-05-06; the week runs Mon 4th to Sun 10th.
	book(t, svc, staff, 7, time.Date(2026, 5, 6, 15, 0, 0, 0, time.UTC))
	book(t, svc, staff, 7, time.Date(2026, 5, 10, 23, 0, 0, 0, time.UTC))
	book(t, svc, staff, 8, time.Date(2026, 5, 11, 0, 0, 0, 0, time.UTC))

	n, err := svc.CountThisWeek(context.Background(), testNow)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("expected 2, got %d", n)
	}
}

func TestCountThisWeek_UsesGivenInstant(t *testing.T) {
	svc, _, clock := newTestService()
	book(t, svc, staff, 7, time.Date(2026, 5, 12, 9, 0, 0, 0, time.UTC))
	book(t, svc, staff, 7, time.Date(2026, 5, 17, 22, 0, 0, 0, time.UTC))
	book(t, svc, staff, 8, time.Date(2026, 5, 8, 9, 0, 0, 0, time.UTC))

	clock.t = time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	n, err := svc.CountThisWeek(context.Background(), time.Date(2026, 5, 13, 12, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("expected the two appointments of the week of May 11, got %d", n)
	}
}

func TestWeekBounds(t *testing.T) {
	sunday := time.Date(2026, 5, 10, 18, 0, 0, 0, time.UTC)
	from, to := WeekBounds(sunday, time.UTC)
	if from.Weekday() != time.Monday || from.Day() != 4 || to.Day() != 11 {
		t.Errorf("unexpected bounds %v - %v", from, to)
	}
}
