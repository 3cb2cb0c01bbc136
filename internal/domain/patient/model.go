package patient

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/carenet/clinic/internal/domain/vitals"
	"github.com/carenet/clinic/internal/platform/apperr"
)

const (
	patientUsernameFormat = "PAT-%05d"
	staffUsernameFormat   = "STF-%05d"
)

// PatientUsername returns the login id derived from a row id.
func PatientUsername(id int64) string { return fmt.Sprintf(patientUsernameFormat, id) }

// StaffUsername returns the login id of a staff account.
func StaffUsername(id int64) string { return fmt.Sprintf(staffUsernameFormat, id) }

type BloodGroup string

var bloodGroups = []BloodGroup{"A+", "A-", "B+", "B-", "AB+", "AB-", "O+", "O-"}

// ParseBloodGroup accepts one of the eight ABO/Rh groups. Blank means unknown.
func ParseBloodGroup(raw string) (BloodGroup, error) {
	raw = strings.ToUpper(strings.TrimSpace(raw))
	if raw == "" {
		return "", nil
	}
	for _, g := range bloodGroups {
		if string(g) == raw {
			return g, nil
		}
	}
	return "", apperr.Validation("unknown groupe_sanguin %q", raw)
}

// Relationship is the emergency contact's link to the patient.
type Relationship string

const (
	RelationSpouse  Relationship = "CO"
	RelationParent  Relationship = "PR"
	RelationChild   Relationship = "EN"
	RelationSibling Relationship = "FR"
	RelationFriend  Relationship = "AM"
	RelationOther   Relationship = "AU"
)

var relationshipWords = map[string]Relationship{
	"co": RelationSpouse, "conjoint": RelationSpouse, "conjointe": RelationSpouse,
	"epoux": RelationSpouse, "epouse": RelationSpouse, "spouse": RelationSpouse,
	"wife": RelationSpouse, "husband": RelationSpouse,
	"pr": RelationParent, "parent": RelationParent, "pere": RelationParent,
	"mere": RelationParent, "father": RelationParent, "mother": RelationParent,
	"en": RelationChild, "enfant": RelationChild, "fils": RelationChild,
	"fille": RelationChild, "child": RelationChild, "son": RelationChild, "daughter": RelationChild,
	"fr": RelationSibling, "frere": RelationSibling, "soeur": RelationSibling,
	"sibling": RelationSibling, "brother": RelationSibling, "sister": RelationSibling,
	"am": RelationFriend, "ami": RelationFriend, "amie": RelationFriend, "friend": RelationFriend,
	"au": RelationOther, "autre": RelationOther, "other": RelationOther,
}

var accentFolder = strings.NewReplacer("é", "e", "è", "e", "ê", "e", "œ", "oe")

// NormalizeRelationship maps a code or free text to a Relationship.
// Anything unrecognised becomes RelationOther.
func NormalizeRelationship(raw string) Relationship {
	key := accentFolder.Replace(strings.ToLower(strings.TrimSpace(raw)))
	if r, ok := relationshipWords[key]; ok {
		return r
	}
	return RelationOther
}

// Date is a calendar date serialized as YYYY-MM-DD.
type Date struct{ time.Time }

const dateLayout = "2006-01-02"

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Format(dateLayout))
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return apperr.Validation("date_naissance must be YYYY-MM-DD")
	}
	d.Time = t
	return nil
}

func dateOf(t *time.Time) *Date {
	if t == nil {
		return nil
	}
	return &Date{Time: *t}
}

func (d *Date) timePtr() *time.Time {
	if d == nil {
		return nil
	}
	t := d.Time
	return &t
}

// Patient is an account row. Staff accounts share the table with
// IsStaff set and are never clinical subjects.
type Patient struct {
	ID             int64      `json:"id"`
	NumeroPatient  uuid.UUID  `json:"numero_patient"`
	Username       string     `json:"username"`
	PasswordHash   string     `json:"-"`
	FirstName      string     `json:"first_name"`
	LastName       string     `json:"last_name"`
	Telephone      string     `json:"telephone"`
	EmergencyPhone *string    `json:"numero_urgence,omitempty"`
	Email          *string    `json:"email,omitempty"`
	Address        *string    `json:"adresse,omitempty"`
	BirthDate      *Date      `json:"date_naissance,omitempty"`
	BloodGroup     BloodGroup `json:"groupe_sanguin,omitempty"`
	IsStaff        bool       `json:"is_personnel"`
	VersionID      int        `json:"version_id"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func (p *Patient) FullName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

// Detail holds the clinical half of the record, one row per Patient.
type Detail struct {
	PatientID                int64        `json:"-"`
	HeightCM                 *int         `json:"taille_cm,omitempty"`
	MedicalHistory           string       `json:"antecedents_medicaux"`
	Allergies                string       `json:"allergies"`
	EmergencyContactName     string       `json:"contact_urgence_nom"`
	EmergencyContactPhone    string       `json:"contact_urgence_telephone"`
	EmergencyContactRelation Relationship `json:"contact_urgence_lien"`
}

// View is a patient with its detail and latest reading.
type View struct {
	*Patient
	Detail         *Detail         `json:"detail"`
	LastVitalSigns *vitals.Reading `json:"last_vital_signs"`
}

// NewPatient is the create payload.
type NewPatient struct {
	FirstName      string      `json:"first_name"`
	LastName       string      `json:"last_name"`
	Telephone      string      `json:"telephone"`
	EmergencyPhone *string     `json:"numero_urgence"`
	Email          *string     `json:"email"`
	Address        *string     `json:"adresse"`
	BirthDate      *Date       `json:"date_naissance"`
	BloodGroup     string      `json:"groupe_sanguin"`
	Password       *string     `json:"password"`
	Detail         DetailPatch `json:"detail"`
}

// Created is returned once after CreatePatient. OneTimePassword is only set
// when the password was generated.
type Created struct {
	*View
	OneTimePassword string `json:"one_time_password,omitempty"`
}

// PatientPatch is a partial update of the account row.
type PatientPatch struct {
	FirstName      *string `json:"first_name"`
	LastName       *string `json:"last_name"`
	Telephone      *string `json:"telephone"`
	EmergencyPhone *string `json:"numero_urgence"`
	Email          *string `json:"email"`
	Address        *string `json:"adresse"`
	BirthDate      *Date   `json:"date_naissance"`
	BloodGroup     *string `json:"groupe_sanguin"`
}

// DetailPatch is a partial update of the detail row.
type DetailPatch struct {
	HeightCM                 *int    `json:"taille_cm"`
	MedicalHistory           *string `json:"antecedents_medicaux"`
	Allergies                *string `json:"allergies"`
	EmergencyContactName     *string `json:"contact_urgence_nom"`
	EmergencyContactPhone    *string `json:"contact_urgence_telephone"`
	EmergencyContactRelation *string `json:"contact_urgence_lien"`
}

// Update bundles both patches and optional vitals to record afterwards.
type Update struct {
	Patient PatientPatch  `json:"patient"`
	Detail  DetailPatch   `json:"detail"`
	Vitals  *vitals.Input `json:"vitals"`
}

// Updated is the result of UpdatePatient. VitalsError is set when the
// record was saved but the attached reading was not.
type Updated struct {
	*View
	Reading     *vitals.Reading `json:"recorded_vitals,omitempty"`
	VitalsError string          `json:"vitals_error,omitempty"`
}

func trimPtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

// Column widths of the patient and patient_detail tables.
const (
	maxNameLength        = 150
	maxPhoneLength       = 20
	maxEmailLength       = 254
	maxContactNameLength = 100
)

func requireText(field, v string, max int) (string, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return "", apperr.Validation("%s is required", field)
	}
	return v, checkLength(field, v, max)
}

func checkLength(field, v string, max int) error {
	if utf8.RuneCountInString(v) > max {
		return apperr.Validation("%s must be at most %d characters", field, max)
	}
	return nil
}

func optionalText(field string, v *string, max int) (*string, error) {
	out := trimPtr(v)
	if out == nil {
		return nil, nil
	}
	return out, checkLength(field, *out, max)
}

func validateEmail(email *string) error {
	if email != nil && !strings.Contains(*email, "@") {
		return apperr.Validation("email is invalid")
	}
	return nil
}

func (d *Detail) apply(p DetailPatch) error {
	if p.HeightCM != nil {
		if *p.HeightCM <= 0 || *p.HeightCM > 300 {
			return apperr.Validation("taille_cm must be between 1 and 300")
		}
		h := *p.HeightCM
		d.HeightCM = &h
	}
	if p.MedicalHistory != nil {
		d.MedicalHistory = strings.TrimSpace(*p.MedicalHistory)
	}
	if p.Allergies != nil {
		d.Allergies = strings.TrimSpace(*p.Allergies)
	}
	if p.EmergencyContactName != nil {
		name := strings.TrimSpace(*p.EmergencyContactName)
		if err := checkLength("contact_urgence_nom", name, maxContactNameLength); err != nil {
			return err
		}
		d.EmergencyContactName = name
	}
	if p.EmergencyContactPhone != nil {
		phone := strings.TrimSpace(*p.EmergencyContactPhone)
		if err := checkLength("contact_urgence_telephone", phone, maxPhoneLength); err != nil {
			return err
		}
		d.EmergencyContactPhone = phone
	}
	if p.EmergencyContactRelation != nil {
		d.EmergencyContactRelation = NormalizeRelationship(*p.EmergencyContactRelation)
	}
	return nil
}

func (p *Patient) apply(patch PatientPatch) error {
	var err error
	if patch.FirstName != nil {
		if p.FirstName, err = requireText("first_name", *patch.FirstName, maxNameLength); err != nil {
			return err
		}
	}
	if patch.LastName != nil {
		if p.LastName, err = requireText("last_name", *patch.LastName, maxNameLength); err != nil {
			return err
		}
	}
	if patch.Telephone != nil {
		if p.Telephone, err = requireText("telephone", *patch.Telephone, maxPhoneLength); err != nil {
			return err
		}
	}
	if patch.EmergencyPhone != nil {
		if p.EmergencyPhone, err = optionalText("numero_urgence", patch.EmergencyPhone, maxPhoneLength); err != nil {
			return err
		}
	}
	if patch.Email != nil {
		email, err := optionalText("email", patch.Email, maxEmailLength)
		if err != nil {
			return err
		}
		if err := validateEmail(email); err != nil {
			return err
		}
		p.Email = email
	}
	if patch.Address != nil {
		p.Address = trimPtr(patch.Address)
	}
	if patch.BirthDate != nil {
		d := *patch.BirthDate
		p.BirthDate = &d
	}
	if patch.BloodGroup != nil {
		if p.BloodGroup, err = ParseBloodGroup(*patch.BloodGroup); err != nil {
			return err
		}
	}
	return nil
}
