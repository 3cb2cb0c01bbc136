package followup

import (
	"strings"
	"time"

	"github.com/carenet/clinic/internal/platform/apperr"
)

// MaxReasonLength bounds the motif column.
const MaxReasonLength = 255

// DashboardLimit is how many follow-ups the patient dashboard shows.
const DashboardLimit = 5

// FollowUp is a clinician's note from a visit. Rows are append-only.
type FollowUp struct {
	ID            int64     `json:"id"`
	PatientID     int64     `json:"patient_id"`
	Date          time.Time `json:"date_suivi"`
	Reason        string    `json:"motif"`
	Notes         string    `json:"notes_medecin"`
	Prescriptions string    `json:"prescriptions,omitempty"`
}

type Input struct {
	Reason        string `json:"motif"`
	Notes         string `json:"notes_medecin"`
	Prescriptions string `json:"prescriptions"`
}

func (in Input) normalize() (Input, error) {
	out := Input{
		Reason:        strings.TrimSpace(in.Reason),
		Notes:         strings.TrimSpace(in.Notes),
		Prescriptions: strings.TrimSpace(in.Prescriptions),
	}
	switch {
	case out.Reason == "":
		return out, apperr.Validation("motif is required")
	case len([]rune(out.Reason)) > MaxReasonLength:
		return out, apperr.Validation("motif exceeds %d characters", MaxReasonLength)
	case out.Notes == "":
		return out, apperr.Validation("notes_medecin is required")
	}
	return out, nil
}
