package followup

import (
	"context"
	"errors"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/carenet/clinic/internal/platform/apperr"
	"github.com/carenet/clinic/internal/platform/auth"
)

// -- Mock Repository --

type mockFollowUpRepo struct {
	items  []*FollowUp
	nextID int64
}

func (m *mockFollowUpRepo) Create(_ context.Context, f *FollowUp) error {
	m.nextID++
	f.ID = m.nextID
	cp := *f
	m.items = append(m.items, &cp)
	return nil
}

func (m *mockFollowUpRepo) ListByPatient(_ context.Context, patientID int64, limit int) ([]*FollowUp, error) {
	var out []*FollowUp
	for _, f := range m.items {
		if f.PatientID == patientID {
			cp := *f
			out = append(out, &cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Date.Equal(out[j].Date) {
			return out[i].ID > out[j].ID
		}
		return out[i].Date.After(out[j].Date)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *mockFollowUpRepo) CountSince(_ context.Context, since time.Time) (int, error) {
	n := 0
	for _, f := range m.items {
		if !f.Date.Before(since) {
			n++
		}
	}
	return n, nil
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

type inlineTx struct{}

func (inlineTx) WithinTx(ctx context.Context, fn func(context.Context) error) error { return fn(ctx) }

// -- Helpers --

var (
	testNow  = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	staff    = auth.Actor{ID: 1, Role: auth.RoleStaff}
	patient7 = auth.Actor{ID: 7, Role: auth.RolePatient}
)

type testClock struct{ t time.Time }

func (c *testClock) now() time.Time { return c.t }

func newTestService() (*Service, *mockFollowUpRepo, *testClock) {
	repo := &mockFollowUpRepo{}
	clock := &testClock{t: testNow}
	svc := NewService(repo, mockSubjects{patients: map[int64]bool{7: true, 8: true}}, inlineTx{},
		WithClock(clock.now))
	return svc, repo, clock
}

func validInput() Input {
	return Input{Reason: "Contrôle HTA", Notes: "TA stable sous traitement", Prescriptions: "Amlodipine 5mg"}
}

// -- Tests --

func TestCreateFollowUp(t *testing.T) {
	svc, _, _ := newTestService()
	in := validInput()
	in.Reason = "  " + in.Reason + " "
	f, err := svc.CreateFollowUp(context.Background(), staff, 7, in)
	if err != nil {
		t.Fatal(err)
	}
	if f.ID == 0 || f.Reason != "Contrôle HTA" || !f.Date.Equal(testNow) {
		t.Errorf("unexpected %+v", f)
	}
}

func TestCreateFollowUp_PatientForbidden(t *testing.T) {
	svc, repo, _ := newTestService()
	if _, err := svc.CreateFollowUp(context.Background(), patient7, 7, validInput()); !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("expected forbidden, got %v", err)
	}
	if len(repo.items) != 0 {
		t.Error("nothing should be stored")
	}
}

func TestCreateFollowUp_Validation(t *testing.T) {
	svc, _, _ := newTestService()
	tests := []struct {
		name string
		mod  func(*Input)
	}{
		{"blank motif", func(in *Input) { in.Reason = "   " }},
		{"long motif", func(in *Input) { in.Reason = strings.Repeat("m", MaxReasonLength+1) }},
		{"blank notes", func(in *Input) { in.Notes = "\n" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validInput()
			tt.mod(&in)
			if _, err := svc.CreateFollowUp(context.Background(), staff, 7, in); !errors.Is(err, apperr.ErrValidation) {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}
}

func TestCreateFollowUp_UnknownPatient(t *testing.T) {
	svc, _, _ := newTestService()
	if _, err := svc.CreateFollowUp(context.Background(), staff, 42, validInput()); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestListByPatient_OrderAndLimit(t *testing.T) {
	svc, _, clock := newTestService()
	ctx := context.Background()
	for i := 0; i < 7; i++ {
		clock.t = testNow.AddDate(0, 0, i)
		if _, err := svc.CreateFollowUp(ctx, staff, 7, validInput()); err != nil {
			t.Fatal(err)
		}
	}
	items, err := svc.ListByPatient(ctx, 7, DashboardLimit)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != DashboardLimit {
		t.Fatalf("expected %d, got %d", DashboardLimit, len(items))
	}
	if !items[0].Date.Equal(testNow.AddDate(0, 0, 6)) {
		t.Errorf("expected newest first, got %v", items[0].Date)
	}
	all, _ := svc.ListByPatient(ctx, 7, 0)
	if len(all) != 7 {
		t.Errorf("expected all 7, got %d", len(all))
	}
	none, _ := svc.ListByPatient(ctx, 8, 0)
	if none == nil || len(none) != 0 {
		t.Errorf("expected empty slice, got %v", none)
	}
}

func TestCountSince(t *testing.T) {
	svc, _, clock := newTestService()
	ctx := context.Background()
	for _, days := range []int{-40, -31, -29, -1} {
		clock.t = testNow.AddDate(0, 0, days)
		if _, err := svc.CreateFollowUp(ctx, staff, 7, validInput()); err != nil {
			t.Fatal(err)
		}
	}
	n, err := svc.CountSince(ctx, testNow.AddDate(0, 0, -30))
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("expected 2, got %d", n)
	}
}
