package identity

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicore/clinicore/internal/platform/db"
	"github.com/clinicore/clinicore/internal/platform/pii"
)

// birthDateLayout is the plaintext form a birth date takes before encryption.
const birthDateLayout = "2006-01-02"

type repoPG struct {
	pool   *pgxpool.Pool
	cipher *pii.Cipher
	policy *pii.FieldPolicy
}

// NewRepo builds the identity repository. Every sensitive field crossing the
// repo boundary is encrypted or decrypted here according to the policy, so
// services and handlers only ever see plaintext.
func NewRepo(pool *pgxpool.Pool, cipher *pii.Cipher, policy *pii.FieldPolicy) Repository {
	return &repoPG{pool: pool, cipher: cipher, policy: policy}
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

func (r *repoPG) conn(ctx context.Context) querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

// -- Field helpers --

func (r *repoPG) sealField(f pii.Field, value string) (string, error) {
	if value == "" || !r.policy.Encrypted(f) {
		return value, nil
	}
	sealed, err := r.cipher.Encrypt(value)
	if err != nil {
		return "", fmt.Errorf("encrypting %s: %w", f, err)
	}
	return sealed, nil
}

func (r *repoPG) openField(f pii.Field, value string) (string, error) {
	if value == "" || !r.policy.Encrypted(f) {
		return value, nil
	}
	opened, err := r.cipher.Decrypt(value)
	if err != nil {
		return "", fmt.Errorf("decrypting %s: %w", f, err)
	}
	return opened, nil
}

func (r *repoPG) sealOptional(f pii.Field, value *string) (*string, error) {
	if value == nil {
		return nil, nil
	}
	sealed, err := r.sealField(f, *value)
	if err != nil {
		return nil, err
	}
	return &sealed, nil
}

func (r *repoPG) openOptional(f pii.Field, value *string) (*string, error) {
	if value == nil {
		return nil, nil
	}
	opened, err := r.openField(f, *value)
	if err != nil {
		return nil, err
	}
	return &opened, nil
}

// sealedPerson is the storage image of a person: sensitive fields as
// ciphertext strings, birth date flattened to its encrypted text form.
type sealedPerson struct {
	Person
	BirthDateText *string
}

func (r *repoPG) sealPerson(p *Person) (*sealedPerson, error) {
	s := &sealedPerson{Person: *p}
	var err error

	if s.Person.DocumentNumber, err = r.sealField(pii.FieldDocumentNumber, p.DocumentNumber); err != nil {
		return nil, err
	}
	s.Person.DocumentNumberHash = r.cipher.Hash(p.DocumentNumber)
	if s.Person.GivenName, err = r.sealField(pii.FieldGivenNames, p.GivenName); err != nil {
		return nil, err
	}
	if s.Person.FamilyName, err = r.sealField(pii.FieldFamilyNames, p.FamilyName); err != nil {
		return nil, err
	}
	if p.BirthDate != nil {
		text, err := r.sealField(pii.FieldBirthDate, p.BirthDate.Format(birthDateLayout))
		if err != nil {
			return nil, err
		}
		s.BirthDateText = &text
	}
	if s.Person.Phone, err = r.sealOptional(pii.FieldPhone, p.Phone); err != nil {
		return nil, err
	}
	if s.Person.Email, err = r.sealOptional(pii.FieldEmail, p.Email); err != nil {
		return nil, err
	}
	if s.Person.AddressLine, err = r.sealOptional(pii.FieldAddress, p.AddressLine); err != nil {
		return nil, err
	}
	return s, nil
}

func (r *repoPG) openPerson(s *sealedPerson) (*Person, error) {
	p := s.Person
	var err error

	if p.DocumentNumber, err = r.openField(pii.FieldDocumentNumber, s.Person.DocumentNumber); err != nil {
		return nil, err
	}
	if p.GivenName, err = r.openField(pii.FieldGivenNames, s.Person.GivenName); err != nil {
		return nil, err
	}
	if p.FamilyName, err = r.openField(pii.FieldFamilyNames, s.Person.FamilyName); err != nil {
		return nil, err
	}
	if s.BirthDateText != nil {
		text, err := r.openField(pii.FieldBirthDate, *s.BirthDateText)
		if err != nil {
			return nil, err
		}
		parsed, err := time.Parse(birthDateLayout, text)
		if err != nil {
			return nil, fmt.Errorf("parsing birth date: %w", err)
		}
		p.BirthDate = &parsed
	}
	if p.Phone, err = r.openOptional(pii.FieldPhone, s.Person.Phone); err != nil {
		return nil, err
	}
	if p.Email, err = r.openOptional(pii.FieldEmail, s.Person.Email); err != nil {
		return nil, err
	}
	if p.AddressLine, err = r.openOptional(pii.FieldAddress, s.Person.AddressLine); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *repoPG) sealPatient(p *Patient) (*Patient, error) {
	s := *p
	var err error
	if s.EmergencyContactName, err = r.sealOptional(pii.FieldEmergencyName, p.EmergencyContactName); err != nil {
		return nil, err
	}
	if s.EmergencyContactPhone, err = r.sealOptional(pii.FieldEmergencyPhone, p.EmergencyContactPhone); err != nil {
		return nil, err
	}
	if s.InsurancePolicyNumber, err = r.sealOptional(pii.FieldPolicyNumber, p.InsurancePolicyNumber); err != nil {
		return nil, err
	}
	if s.Allergies, err = r.sealOptional(pii.FieldAllergies, p.Allergies); err != nil {
		return nil, err
	}
	if s.ChronicConditions, err = r.sealOptional(pii.FieldChronicConditions, p.ChronicConditions); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *repoPG) openPatient(p *Patient) error {
	var err error
	if p.EmergencyContactName, err = r.openOptional(pii.FieldEmergencyName, p.EmergencyContactName); err != nil {
		return err
	}
	if p.EmergencyContactPhone, err = r.openOptional(pii.FieldEmergencyPhone, p.EmergencyContactPhone); err != nil {
		return err
	}
	if p.InsurancePolicyNumber, err = r.openOptional(pii.FieldPolicyNumber, p.InsurancePolicyNumber); err != nil {
		return err
	}
	if p.Allergies, err = r.openOptional(pii.FieldAllergies, p.Allergies); err != nil {
		return err
	}
	if p.ChronicConditions, err = r.openOptional(pii.FieldChronicConditions, p.ChronicConditions); err != nil {
		return err
	}
	return nil
}

// -- Persons --

const personCols = `id, document_type, document_number, document_number_hash, given_name, family_name,
	birth_date, sex, phone, email, address_line, city, country, status,
	created_by, updated_by, created_at, updated_at`

func (r *repoPG) CreatePerson(ctx context.Context, p *Person) error {
	p.ID = uuid.New()
	s, err := r.sealPerson(p)
	if err != nil {
		return err
	}
	p.DocumentNumberHash = s.Person.DocumentNumberHash

	_, err = r.conn(ctx).Exec(ctx, `
		INSERT INTO person (
			id, document_type, document_number, document_number_hash, given_name, family_name,
			birth_date, sex, phone, email, address_line, city, country, status,
			created_by, updated_by
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`,
		p.ID, p.DocumentType, s.Person.DocumentNumber, s.Person.DocumentNumberHash,
		s.Person.GivenName, s.Person.FamilyName, s.BirthDateText, p.Sex,
		s.Person.Phone, s.Person.Email, s.Person.AddressLine, p.City, p.Country, p.Status,
		p.CreatedBy, p.UpdatedBy,
	)
	return err
}

func (r *repoPG) UpdatePerson(ctx context.Context, p *Person) error {
	s, err := r.sealPerson(p)
	if err != nil {
		return err
	}
	p.DocumentNumberHash = s.Person.DocumentNumberHash

	_, err = r.conn(ctx).Exec(ctx, `
		UPDATE person SET
			document_type=$2, document_number=$3, document_number_hash=$4,
			given_name=$5, family_name=$6, birth_date=$7, sex=$8,
			phone=$9, email=$10, address_line=$11, city=$12, country=$13, status=$14,
			updated_by=$15, updated_at=NOW()
		WHERE id = $1`,
		p.ID, p.DocumentType, s.Person.DocumentNumber, s.Person.DocumentNumberHash,
		s.Person.GivenName, s.Person.FamilyName, s.BirthDateText, p.Sex,
		s.Person.Phone, s.Person.Email, s.Person.AddressLine, p.City, p.Country, p.Status,
		p.UpdatedBy,
	)
	return err
}

func scanSealedPerson(row pgx.Row) (*sealedPerson, error) {
	var s sealedPerson
	err := row.Scan(
		&s.Person.ID, &s.Person.DocumentType, &s.Person.DocumentNumber, &s.Person.DocumentNumberHash,
		&s.Person.GivenName, &s.Person.FamilyName, &s.BirthDateText, &s.Person.Sex,
		&s.Person.Phone, &s.Person.Email, &s.Person.AddressLine, &s.Person.City, &s.Person.Country,
		&s.Person.Status, &s.Person.CreatedBy, &s.Person.UpdatedBy, &s.Person.CreatedAt, &s.Person.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *repoPG) GetPerson(ctx context.Context, id uuid.UUID) (*Person, error) {
	s, err := scanSealedPerson(r.conn(ctx).QueryRow(ctx,
		`SELECT `+personCols+` FROM person WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}
	return r.openPerson(s)
}

func (r *repoPG) FindPersonsByDocument(ctx context.Context, docType, documentNumber string) ([]*Person, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+personCols+` FROM person WHERE document_type = $1 AND document_number_hash = $2`,
		docType, r.cipher.Hash(documentNumber))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var persons []*Person
	for rows.Next() {
		s, err := scanSealedPerson(rows)
		if err != nil {
			return nil, err
		}
		p, err := r.openPerson(s)
		if err != nil {
			return nil, err
		}
		persons = append(persons, p)
	}
	return persons, rows.Err()
}

// -- Patients --

const patientCols = `id, person_id, record_number, blood_group, rh_factor, allergies, chronic_conditions,
	emergency_contact_name, emergency_contact_phone, insurance_name, insurance_policy_number,
	status, created_at, updated_at`

func (r *repoPG) CreatePatient(ctx context.Context, p *Patient) error {
	p.ID = uuid.New()
	s, err := r.sealPatient(p)
	if err != nil {
		return err
	}

	_, err = r.conn(ctx).Exec(ctx, `
		INSERT INTO patient (
			id, person_id, record_number, blood_group, rh_factor, allergies, chronic_conditions,
			emergency_contact_name, emergency_contact_phone, insurance_name, insurance_policy_number, status
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		p.ID, p.PersonID, p.RecordNumber, p.BloodGroup, p.RhFactor, s.Allergies, s.ChronicConditions,
		s.EmergencyContactName, s.EmergencyContactPhone, p.InsuranceName, s.InsurancePolicyNumber, p.Status,
	)
	return err
}

func (r *repoPG) UpdatePatient(ctx context.Context, p *Patient) error {
	s, err := r.sealPatient(p)
	if err != nil {
		return err
	}

	_, err = r.conn(ctx).Exec(ctx, `
		UPDATE patient SET
			blood_group=$2, rh_factor=$3, allergies=$4, chronic_conditions=$5,
			emergency_contact_name=$6, emergency_contact_phone=$7,
			insurance_name=$8, insurance_policy_number=$9, status=$10, updated_at=NOW()
		WHERE id = $1`,
		p.ID, p.BloodGroup, p.RhFactor, s.Allergies, s.ChronicConditions,
		s.EmergencyContactName, s.EmergencyContactPhone, p.InsuranceName, s.InsurancePolicyNumber, p.Status,
	)
	return err
}

func (r *repoPG) scanPatientRecord(row pgx.Row) (*PatientRecord, error) {
	var rec PatientRecord
	var sealed sealedPerson
	err := row.Scan(
		&rec.ID, &rec.PersonID, &rec.RecordNumber, &rec.BloodGroup, &rec.RhFactor,
		&rec.Allergies, &rec.ChronicConditions,
		&rec.EmergencyContactName, &rec.EmergencyContactPhone,
		&rec.InsuranceName, &rec.InsurancePolicyNumber,
		&rec.Status, &rec.CreatedAt, &rec.UpdatedAt,
		&sealed.Person.ID, &sealed.Person.DocumentType, &sealed.Person.DocumentNumber, &sealed.Person.DocumentNumberHash,
		&sealed.Person.GivenName, &sealed.Person.FamilyName, &sealed.BirthDateText, &sealed.Person.Sex,
		&sealed.Person.Phone, &sealed.Person.Email, &sealed.Person.AddressLine, &sealed.Person.City, &sealed.Person.Country,
		&sealed.Person.Status, &sealed.Person.CreatedBy, &sealed.Person.UpdatedBy, &sealed.Person.CreatedAt, &sealed.Person.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := r.openPatient(&rec.Patient); err != nil {
		return nil, err
	}
	person, err := r.openPerson(&sealed)
	if err != nil {
		return nil, err
	}
	rec.Person = *person
	return &rec, nil
}

const patientJoin = `
	SELECT pt.id, pt.person_id, pt.record_number, pt.blood_group, pt.rh_factor,
	       pt.allergies, pt.chronic_conditions,
	       pt.emergency_contact_name, pt.emergency_contact_phone,
	       pt.insurance_name, pt.insurance_policy_number,
	       pt.status, pt.created_at, pt.updated_at,
	       pe.id, pe.document_type, pe.document_number, pe.document_number_hash,
	       pe.given_name, pe.family_name, pe.birth_date, pe.sex,
	       pe.phone, pe.email, pe.address_line, pe.city, pe.country,
	       pe.status, pe.created_by, pe.updated_by, pe.created_at, pe.updated_at
	FROM patient pt
	JOIN person pe ON pe.id = pt.person_id`

func (r *repoPG) GetPatient(ctx context.Context, id uuid.UUID) (*PatientRecord, error) {
	return r.scanPatientRecord(r.conn(ctx).QueryRow(ctx, patientJoin+` WHERE pt.id = $1`, id))
}

func (r *repoPG) GetPatientByPerson(ctx context.Context, personID uuid.UUID) (*PatientRecord, error) {
	return r.scanPatientRecord(r.conn(ctx).QueryRow(ctx, patientJoin+` WHERE pt.person_id = $1`, personID))
}

func (r *repoPG) ListPatients(ctx context.Context, filter PatientFilter) ([]*PatientRecord, error) {
	where := []string{}
	args := []interface{}{}
	idx := 1

	if filter.Status != "" {
		where = append(where, fmt.Sprintf("pt.status = $%d", idx))
		args = append(args, filter.Status)
		idx++
	}
	if filter.BloodGroup != "" {
		where = append(where, fmt.Sprintf("pt.blood_group = $%d", idx))
		args = append(args, filter.BloodGroup)
		idx++
	}
	if filter.DocumentNumber != "" {
		// Deterministic ciphertext equality via the keyed hash.
		where = append(where, fmt.Sprintf("pe.document_number_hash = $%d", idx))
		args = append(args, r.cipher.Hash(filter.DocumentNumber))
		idx++
	}

	q := patientJoin
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}

	rows, err := r.conn(ctx).Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*PatientRecord
	for rows.Next() {
		rec, err := r.scanPatientRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// -- Record numbers --

// NextRecordNumber advances the per-year counter. The upsert keeps one row
// per year; callers run this outside the registration transaction so an
// aborted registration burns the number instead of reusing it.
func (r *repoPG) NextRecordNumber(ctx context.Context, year int) (int, error) {
	var value int
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO record_number_seq (year, last_value) VALUES ($1, 1)
		ON CONFLICT (year) DO UPDATE SET last_value = record_number_seq.last_value + 1
		RETURNING last_value`, year,
	).Scan(&value)
	if err != nil {
		return 0, fmt.Errorf("advance record number: %w", err)
	}
	return value, nil
}
