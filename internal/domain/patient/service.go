package patient

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carenet/clinic/internal/domain/vitals"
	"github.com/carenet/clinic/internal/platform/apperr"
	"github.com/carenet/clinic/internal/platform/auth"
	"github.com/carenet/clinic/internal/platform/db"
)

// VitalsLedger is the slice of the vitals service the record store uses.
type VitalsLedger interface {
	RecordReading(ctx context.Context, actor auth.Actor, patientID int64, in vitals.Input) (*vitals.Reading, error)
	LatestReading(ctx context.Context, patientID int64) (*vitals.Reading, error)
}

type Service struct {
	patients Repository
	vitals   VitalsLedger
	tx       db.Transactor
	logger   zerolog.Logger
	password func() (string, error)
}

type Option func(*Service)

func WithLogger(l zerolog.Logger) Option { return func(s *Service) { s.logger = l } }

// WithPasswordGenerator replaces the one-time password source.
func WithPasswordGenerator(fn func() (string, error)) Option {
	return func(s *Service) { s.password = fn }
}

func NewService(patients Repository, tx db.Transactor, opts ...Option) *Service {
	s := &Service{
		patients: patients,
		tx:       tx,
		logger:   zerolog.Nop(),
		password: func() (string, error) { return auth.GeneratePassword(auth.OneTimePasswordLength) },
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// SetVitals wires the vitals ledger. The ledger itself depends on the
// service as its SubjectChecker, so it is attached after construction.
func (s *Service) SetVitals(v VitalsLedger) { s.vitals = v }

// EnsureSubject reports NotFound unless id is a non-staff account.
func (s *Service) EnsureSubject(ctx context.Context, id int64) error {
	p, err := s.patients.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if p.IsStaff {
		return apperr.NotFound("patient", id)
	}
	return nil
}

func requireStaff(actor auth.Actor) error {
	if !actor.IsStaff() {
		return apperr.Forbidden("staff only")
	}
	return nil
}

func (s *Service) resolvePassword(explicit *string) (plain string, generated bool, err error) {
	if explicit != nil && *explicit != "" {
		if len(*explicit) < auth.OneTimePasswordLength {
			return "", false, apperr.Validation("password must be at least %d characters", auth.OneTimePasswordLength)
		}
		return *explicit, false, nil
	}
	plain, err = s.password()
	return plain, true, err
}

// CreatePatient inserts the account and its detail in one transaction and
// assigns the PAT- username from the new id. Any failure leaves nothing
// behind. The generated password is returned in plaintext only here.
func (s *Service) CreatePatient(ctx context.Context, actor auth.Actor, in NewPatient) (*Created, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}
	p, d, err := buildNewPatient(in)
	if err != nil {
		return nil, err
	}
	plain, generated, err := s.resolvePassword(in.Password)
	if err != nil {
		return nil, err
	}
	if p.PasswordHash, err = auth.HashPassword(plain); err != nil {
		return nil, err
	}

	if err := s.insertAccount(ctx, p, d, PatientUsername); err != nil {
		return nil, err
	}
	s.logger.Info().Int64("patient_id", p.ID).Str("username", p.Username).
		Str("actor", actor.String()).Msg("patient created")

	out := &Created{View: &View{Patient: p, Detail: d}}
	if generated {
		out.OneTimePassword = plain
	}
	return out, nil
}

// CreateStaffAccount bootstraps a staff login. It is reached from the CLI,
// not the API.
func (s *Service) CreateStaffAccount(ctx context.Context, firstName, lastName, telephone, password string) (*Patient, error) {
	p, d, err := buildNewPatient(NewPatient{FirstName: firstName, LastName: lastName, Telephone: telephone})
	if err != nil {
		return nil, err
	}
	if len(password) < auth.OneTimePasswordLength {
		return nil, apperr.Validation("password must be at least %d characters", auth.OneTimePasswordLength)
	}
	p.IsStaff = true
	if p.PasswordHash, err = auth.HashPassword(password); err != nil {
		return nil, err
	}
	if err := s.insertAccount(ctx, p, d, StaffUsername); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) insertAccount(ctx context.Context, p *Patient, d *Detail, username func(int64) string) error {
	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.patients.Create(ctx, p); err != nil {
			return err
		}
		p.Username = username(p.ID)
		if err := s.patients.SetUsername(ctx, p.ID, p.Username); err != nil {
			return err
		}
		d.PatientID = p.ID
		return s.patients.CreateDetail(ctx, d)
	})
}

func buildNewPatient(in NewPatient) (*Patient, *Detail, error) {
	p := &Patient{NumeroPatient: uuid.New()}
	var err error
	if p.FirstName, err = requireText("first_name", in.FirstName, maxNameLength); err != nil {
		return nil, nil, err
	}
	if p.LastName, err = requireText("last_name", in.LastName, maxNameLength); err != nil {
		return nil, nil, err
	}
	if p.Telephone, err = requireText("telephone", in.Telephone, maxPhoneLength); err != nil {
		return nil, nil, err
	}
	if p.EmergencyPhone, err = optionalText("numero_urgence", in.EmergencyPhone, maxPhoneLength); err != nil {
		return nil, nil, err
	}
	if p.Email, err = optionalText("email", in.Email, maxEmailLength); err != nil {
		return nil, nil, err
	}
	if err := validateEmail(p.Email); err != nil {
		return nil, nil, err
	}
	p.Address = trimPtr(in.Address)
	p.BirthDate = in.BirthDate
	if p.BloodGroup, err = ParseBloodGroup(in.BloodGroup); err != nil {
		return nil, nil, err
	}

	d := &Detail{EmergencyContactRelation: RelationOther}
	if err := d.apply(in.Detail); err != nil {
		return nil, nil, err
	}
	if p.EmergencyPhone == nil && d.EmergencyContactPhone != "" {
		phone := d.EmergencyContactPhone
		p.EmergencyPhone = &phone
	}
	return p, d, nil
}

// GetPatient returns the record with its detail and latest reading.
// Patients may only read their own record.
func (s *Service) GetPatient(ctx context.Context, actor auth.Actor, id int64) (*View, error) {
	if !actor.CanAccessPatient(id) {
		return nil, apperr.Forbidden("patients may only access their own record")
	}
	return s.view(ctx, id)
}

func (s *Service) view(ctx context.Context, id int64) (*View, error) {
	p, err := s.patients.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.IsStaff {
		return nil, apperr.NotFound("patient", id)
	}
	d, err := s.patients.GetDetail(ctx, id)
	if err != nil {
		return nil, err
	}
	v := &View{Patient: p, Detail: d}
	if s.vitals != nil {
		if v.LastVitalSigns, err = s.vitals.LatestReading(ctx, id); err != nil {
			return nil, err
		}
	}
	return v, nil
}

// UpdatePatient applies both patches in one transaction. Vitals carried by
// the update are recorded afterwards as a separate step: if that step
// fails the record edit stands and the failure is reported in VitalsError.
func (s *Service) UpdatePatient(ctx context.Context, actor auth.Actor, id int64, u Update) (*Updated, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		p, err := s.patients.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if p.IsStaff {
			return apperr.NotFound("patient", id)
		}
		d, err := s.patients.GetDetail(ctx, id)
		if err != nil {
			return err
		}
		if err := p.apply(u.Patient); err != nil {
			return err
		}
		if err := d.apply(u.Detail); err != nil {
			return err
		}
		if err := s.patients.Update(ctx, p); err != nil {
			return err
		}
		return s.patients.UpdateDetail(ctx, d)
	})
	if err != nil {
		return nil, err
	}

	out := &Updated{}
	if u.Vitals != nil && !u.Vitals.Empty() && s.vitals != nil {
		out.Reading, err = s.vitals.RecordReading(ctx, actor, id, *u.Vitals)
		if err != nil {
			out.VitalsError = err.Error()
			s.logger.Warn().Err(err).Int64("patient_id", id).Str("actor", actor.String()).
				Msg("patient updated but vitals were not recorded")
		}
	}

	if out.View, err = s.view(ctx, id); err != nil {
		return nil, err
	}
	return out, nil
}

// DeletePatient removes a patient and everything that references it.
func (s *Service) DeletePatient(ctx context.Context, actor auth.Actor, id int64) error {
	if err := requireStaff(actor); err != nil {
		return err
	}
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.EnsureSubject(ctx, id); err != nil {
			return err
		}
		return s.patients.Delete(ctx, id)
	})
	if err != nil {
		return err
	}
	s.logger.Info().Int64("patient_id", id).Str("actor", actor.String()).Msg("patient deleted")
	return nil
}

// SearchPatients matches q against username, names and telephone.
func (s *Service) SearchPatients(ctx context.Context, actor auth.Actor, q string, limit, offset int) ([]*Patient, int, error) {
	if err := requireStaff(actor); err != nil {
		return nil, 0, err
	}
	items, total, err := s.patients.Search(ctx, strings.TrimSpace(q), limit, offset)
	if err != nil {
		return nil, 0, err
	}
	if items == nil {
		items = []*Patient{}
	}
	return items, total, nil
}

// CountPatients counts clinical subjects, excluding staff.
func (s *Service) CountPatients(ctx context.Context) (int, error) {
	return s.patients.CountPatients(ctx)
}

// CredentialByUsername adapts the account table to the login handler.
func (s *Service) CredentialByUsername(ctx context.Context, username string) (*auth.Credential, error) {
	p, err := s.patients.GetByUsername(ctx, strings.ToUpper(strings.TrimSpace(username)))
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, auth.ErrUnknownAccount
	}
	if err != nil {
		return nil, err
	}
	return &auth.Credential{
		ID:           p.ID,
		Username:     p.Username,
		FirstName:    p.FirstName,
		LastName:     p.LastName,
		PasswordHash: p.PasswordHash,
		IsStaff:      p.IsStaff,
	}, nil
}
