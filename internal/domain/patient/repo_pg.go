package patient

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carenet/clinic/internal/platform/apperr"
	"github.com/carenet/clinic/internal/platform/db"
)

type patientRepoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &patientRepoPG{pool: pool} }

func (r *patientRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const patientCols = `id, numero_patient, COALESCE(username, ''), password_hash, first_name, last_name,
	telephone, numero_urgence, email, adresse, date_naissance, groupe_sanguin,
	is_personnel, version_id, created_at, updated_at`

func scanPatient(row pgx.Row) (*Patient, error) {
	var (
		p         Patient
		birthDate *time.Time
		blood     *string
	)
	err := row.Scan(&p.ID, &p.NumeroPatient, &p.Username, &p.PasswordHash, &p.FirstName, &p.LastName,
		&p.Telephone, &p.EmergencyPhone, &p.Email, &p.Address, &birthDate, &blood,
		&p.IsStaff, &p.VersionID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.BirthDate = dateOf(birthDate)
	if blood != nil {
		p.BloodGroup = BloodGroup(*blood)
	}
	return &p, nil
}

func nullableBlood(g BloodGroup) *string {
	if g == "" {
		return nil
	}
	s := string(g)
	return &s
}

func (r *patientRepoPG) Create(ctx context.Context, p *Patient) error {
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO patients (numero_patient, password_hash, first_name, last_name, telephone,
			numero_urgence, email, adresse, date_naissance, groupe_sanguin, is_personnel)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		RETURNING id, version_id, created_at, updated_at`,
		p.NumeroPatient, p.PasswordHash, p.FirstName, p.LastName, p.Telephone,
		p.EmergencyPhone, p.Email, p.Address, p.BirthDate.timePtr(), nullableBlood(p.BloodGroup), p.IsStaff,
	).Scan(&p.ID, &p.VersionID, &p.CreatedAt, &p.UpdatedAt)
}

func (r *patientRepoPG) SetUsername(ctx context.Context, id int64, username string) error {
	tag, err := r.conn(ctx).Exec(ctx, `UPDATE patients SET username = $2 WHERE id = $1`, id, username)
	if db.IsUniqueViolation(err) {
		return fmt.Errorf("username %s already taken: %w", username, apperr.ErrConflict)
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("patient", id)
	}
	return nil
}

func (r *patientRepoPG) GetByID(ctx context.Context, id int64) (*Patient, error) {
	p, err := scanPatient(r.conn(ctx).QueryRow(ctx,
		`SELECT `+patientCols+` FROM patients WHERE id = $1`, id))
	if db.IsNoRows(err) {
		return nil, apperr.NotFound("patient", id)
	}
	return p, err
}

func (r *patientRepoPG) GetByUsername(ctx context.Context, username string) (*Patient, error) {
	p, err := scanPatient(r.conn(ctx).QueryRow(ctx,
		`SELECT `+patientCols+` FROM patients WHERE username = $1`, username))
	if db.IsNoRows(err) {
		return nil, apperr.NotFound("account", username)
	}
	return p, err
}

func (r *patientRepoPG) Update(ctx context.Context, p *Patient) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE patients SET first_name=$2, last_name=$3, telephone=$4, numero_urgence=$5,
			email=$6, adresse=$7, date_naissance=$8, groupe_sanguin=$9,
			version_id = version_id + 1, updated_at = NOW()
		WHERE id = $1 AND version_id = $10
		RETURNING version_id, updated_at`,
		p.ID, p.FirstName, p.LastName, p.Telephone, p.EmergencyPhone,
		p.Email, p.Address, p.BirthDate.timePtr(), nullableBlood(p.BloodGroup), p.VersionID,
	).Scan(&p.VersionID, &p.UpdatedAt)
	if db.IsNoRows(err) {
		return fmt.Errorf("patient %d changed concurrently: %w", p.ID, apperr.ErrConflict)
	}
	return err
}

// Delete removes the account; detail, readings, appointments and follow-ups
// go with it through ON DELETE CASCADE.
func (r *patientRepoPG) Delete(ctx context.Context, id int64) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM patients WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("patient", id)
	}
	return nil
}

func (r *patientRepoPG) Search(ctx context.Context, q string, limit, offset int) ([]*Patient, int, error) {
	where := `WHERE is_personnel = FALSE`
	args := []interface{}{}
	if q = strings.TrimSpace(q); q != "" {
		args = append(args, "%"+q+"%")
		where += ` AND (username ILIKE $1 OR last_name ILIKE $1 OR first_name ILIKE $1 OR telephone ILIKE $1)`
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM patients `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	n := len(args)
	query := fmt.Sprintf(`SELECT %s FROM patients %s ORDER BY id LIMIT $%d OFFSET $%d`,
		patientCols, where, n+1, n+2)
	rows, err := r.conn(ctx).Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}

func (r *patientRepoPG) CountPatients(ctx context.Context) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM patients WHERE is_personnel = FALSE`).Scan(&n)
	return n, err
}

func (r *patientRepoPG) CreateDetail(ctx context.Context, d *Detail) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO patient_details (patient_id, taille_cm, antecedents_medicaux, allergies,
			contact_urgence_nom, contact_urgence_telephone, contact_urgence_lien)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		d.PatientID, d.HeightCM, d.MedicalHistory, d.Allergies,
		d.EmergencyContactName, d.EmergencyContactPhone, d.EmergencyContactRelation)
	if db.IsForeignKeyViolation(err) {
		return apperr.NotFound("patient", d.PatientID)
	}
	return err
}

func (r *patientRepoPG) GetDetail(ctx context.Context, patientID int64) (*Detail, error) {
	var d Detail
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT patient_id, taille_cm, antecedents_medicaux, allergies,
			contact_urgence_nom, contact_urgence_telephone, contact_urgence_lien
		FROM patient_details WHERE patient_id = $1`, patientID,
	).Scan(&d.PatientID, &d.HeightCM, &d.MedicalHistory, &d.Allergies,
		&d.EmergencyContactName, &d.EmergencyContactPhone, &d.EmergencyContactRelation)
	if db.IsNoRows(err) {
		return nil, apperr.NotFound("patient detail", patientID)
	}
	return &d, err
}

func (r *patientRepoPG) UpdateDetail(ctx context.Context, d *Detail) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE patient_details SET taille_cm=$2, antecedents_medicaux=$3, allergies=$4,
			contact_urgence_nom=$5, contact_urgence_telephone=$6, contact_urgence_lien=$7
		WHERE patient_id = $1`,
		d.PatientID, d.HeightCM, d.MedicalHistory, d.Allergies,
		d.EmergencyContactName, d.EmergencyContactPhone, d.EmergencyContactRelation)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("patient detail", d.PatientID)
	}
	return nil
}
