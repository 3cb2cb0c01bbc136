package auth

import (
	"context"
	"fmt"

	"github.com/carenet/clinic/internal/platform/apperr"
)

// Role is the coarse permission class of an authenticated caller.
type Role string

const (
	RolePatient Role = "patient"
	RoleStaff   Role = "staff"
)

func (r Role) Valid() bool {
	return r == RolePatient || r == RoleStaff
}

// Actor is the resolved caller passed explicitly into every domain operation.
type Actor struct {
	ID   int64
	Role Role
}

func (a Actor) IsStaff() bool { return a.Role == RoleStaff }

// CanAccessPatient reports whether the actor may read records of patientID:
// staff may read any patient, a patient only their own record.
func (a Actor) CanAccessPatient(patientID int64) bool {
	return a.IsStaff() || (a.Role == RolePatient && a.ID == patientID)
}

// SubjectFor resolves which patient a request is about. Patients default to
// themselves and may not name anyone else; staff must name a patient.
func (a Actor) SubjectFor(requested int64) (int64, error) {
	switch {
	case a.Role == RolePatient && requested == 0:
		return a.ID, nil
	case a.Role == RolePatient && requested != a.ID:
		return 0, apperr.Forbidden("patients may only access their own record")
	case a.IsStaff() && requested <= 0:
		return 0, apperr.Validation("patient_id is required")
	case !a.Role.Valid():
		return 0, apperr.Forbidden("unknown role")
	}
	return requested, nil
}

func (a Actor) String() string {
	return fmt.Sprintf("%s:%d", a.Role, a.ID)
}

type contextKey string

const actorKey contextKey = "actor"

// WithActor stores the actor on ctx.
func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey, a)
}

// ActorFromContext returns the actor set by the auth middleware.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(actorKey).(Actor)
	return a, ok
}
