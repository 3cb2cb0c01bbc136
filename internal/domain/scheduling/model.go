package scheduling

import (
	"fmt"
	"strings"
	"time"

	"github.com/carenet/clinic/internal/platform/apperr"
)

// MaxReasonLength bounds the motif column.
const MaxReasonLength = 150

// Status is the appointment lifecycle state.
type Status string

const (
	StatusPlanned   Status = "planned"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

// legacyCodes maps the single-letter codes still sent by older clients.
var legacyCodes = map[string]Status{
	"P": StatusPlanned,
	"C": StatusConfirmed,
	"A": StatusCancelled,
	"T": StatusCompleted,
}

// ParseStatus accepts status names in any case or a legacy code.
func ParseStatus(raw string) (Status, error) {
	raw = strings.TrimSpace(raw)
	if s, ok := legacyCodes[raw]; ok {
		return s, nil
	}
	s := Status(strings.ToLower(raw))
	switch s {
	case StatusPlanned, StatusConfirmed, StatusCancelled, StatusCompleted:
		return s, nil
	}
	return "", apperr.Validation("unknown statut %q", raw)
}

// Active reports whether the appointment still expects to happen.
func (s Status) Active() bool {
	return s == StatusPlanned || s == StatusConfirmed
}

// Terminal reports whether no regular transition leaves s.
func (s Status) Terminal() bool {
	return s == StatusCancelled || s == StatusCompleted
}

var transitions = map[Status][]Status{
	StatusPlanned:   {StatusConfirmed, StatusCancelled, StatusCompleted},
	StatusConfirmed: {StatusCancelled, StatusCompleted},
}

// CanTransition reports whether from -> to is a regular edge. Reopening a
// closed appointment is a separate administrative operation.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

type Appointment struct {
	ID            int64     `json:"id"`
	PatientID     int64     `json:"patient_id"`
	ScheduledAt   time.Time `json:"date_heure"`
	Reason        string    `json:"motif"`
	Status        Status    `json:"statut"`
	InternalNotes *string   `json:"notes_internes,omitempty"`
	VersionID     int       `json:"version_id"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// GetVersionID returns the current version.
func (a *Appointment) GetVersionID() int { return a.VersionID }

// ForPatient returns a copy without staff-only fields.
func (a *Appointment) ForPatient() *Appointment {
	cp := *a
	cp.InternalNotes = nil
	return &cp
}

func normalizeReason(raw string) (string, error) {
	reason := strings.TrimSpace(raw)
	if reason == "" {
		return "", apperr.Validation("motif is required")
	}
	if n := len([]rune(reason)); n > MaxReasonLength {
		return "", apperr.Validation("motif exceeds %d characters (%d)", MaxReasonLength, n)
	}
	return reason, nil
}

// CreateRequest describes a new appointment. A zero Status means planned.
type CreateRequest struct {
	PatientID     int64
	When          time.Time
	Reason        string
	Status        Status
	InternalNotes *string
}

// Patch is a partial update. Nil fields are left unchanged.
type Patch struct {
	Status        *Status
	When          *time.Time
	Reason        *string
	InternalNotes *string
}

func (p Patch) hasEdits() bool {
	return p.When != nil || p.Reason != nil || p.InternalNotes != nil
}

func (p Patch) String() string {
	var parts []string
	if p.Status != nil {
		parts = append(parts, "statut="+string(*p.Status))
	}
	if p.When != nil {
		parts = append(parts, "date_heure="+p.When.Format(time.RFC3339))
	}
	if p.Reason != nil {
		parts = append(parts, "motif")
	}
	if p.InternalNotes != nil {
		parts = append(parts, "notes_internes")
	}
	return fmt.Sprintf("patch{%s}", strings.Join(parts, ","))
}
