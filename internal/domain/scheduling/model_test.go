package scheduling

import (
	"errors"
	"strings"
	"testing"

	"github.com/carenet/clinic/internal/platform/apperr"
)

func TestParseStatus(t *testing.T) {
	tests := []struct {
		in   string
		want Status
	}{
		{"planned", StatusPlanned},
		{"Confirmed", StatusConfirmed},
		{" cancelled ", StatusCancelled},
		{"P", StatusPlanned},
		{"C", StatusConfirmed},
		{"A", StatusCancelled},
		{"T", StatusCompleted},
	}
	for _, tt := range tests {
		got, err := ParseStatus(tt.in)
		if err != nil {
			t.Errorf("ParseStatus(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseStatus(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseStatus_Unknown(t *testing.T) {
	for _, in := range []string{"", "done", "X", "p"} {
		if _, err := ParseStatus(in); !errors.Is(err, apperr.ErrValidation) {
			t.Errorf("ParseStatus(%q) error = %v, want validation error", in, err)
		}
	}
}

func TestCanTransition(t *testing.T) {
	all := []Status{StatusPlanned, StatusConfirmed, StatusCancelled, StatusCompleted}
	allowed := map[[2]Status]bool{
		{StatusPlanned, StatusConfirmed}:   true,
		{StatusPlanned, StatusCancelled}:   true,
		{StatusPlanned, StatusCompleted}:   true,
		{StatusConfirmed, StatusCancelled}: true,
		{StatusConfirmed, StatusCompleted}: true,
	}
	for _, from := range all {
		for _, to := range all {
			want := allowed[[2]Status{from, to}]
			if got := CanTransition(from, to); got != want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestStatus_ActiveTerminal(t *testing.T) {
	if !StatusPlanned.Active() || !StatusConfirmed.Active() {
		t.Error("planned and confirmed should be active")
	}
	if !StatusCancelled.Terminal() || !StatusCompleted.Terminal() {
		t.Error("cancelled and completed should be terminal")
	}
	if StatusPlanned.Terminal() || StatusCompleted.Active() {
		t.Error("active and terminal must be disjoint")
	}
}

func TestNormalizeReason(t *testing.T) {
	got, err := normalizeReason("  Contrôle tension  ")
	if err != nil || got != "Contrôle tension" {
		t.Fatalf("normalizeReason = %q, %v", got, err)
	}
	if _, err := normalizeReason("   "); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("blank motif: got %v", err)
	}
	if _, err := normalizeReason(strings.Repeat("é", MaxReasonLength)); err != nil {
		t.Errorf("motif at limit rejected: %v", err)
	}
	if _, err := normalizeReason(strings.Repeat("a", MaxReasonLength+1)); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("long motif: got %v", err)
	}
}

func TestForPatient_HidesInternalNotes(t *testing.T) {
	notes := "check INR"
	a := &Appointment{ID: 1, InternalNotes: &notes}
	if a.ForPatient().InternalNotes != nil {
		t.Error("expected notes to be stripped")
	}
	if a.InternalNotes == nil {
		t.Error("original must be untouched")
	}
}
