package identity

import (
	"time"

	"github.com/google/uuid"
)

// Person statuses.
const (
	PersonActive   = "active"
	PersonInactive = "inactive"
)

// Patient statuses. Patients are never deleted; they are deactivated or
// marked deceased.
const (
	PatientActive   = "active"
	PatientInactive = "inactive"
	PatientDeceased = "deceased"
)

// Document types accepted for a person's identity document.
var DocumentTypes = map[string]bool{
	"national_id": true,
	"passport":    true,
	"foreign_id":  true,
	"other":       true,
}

// Sex codes recorded at registration.
var SexCodes = map[string]bool{
	"female":      true,
	"male":        true,
	"other":       true,
	"unspecified": true,
}

// Person maps to the person table. Sensitive fields are encrypted at rest by
// the repository according to the field policy; the struct always carries
// plaintext on this side of the repo boundary. DocumentNumberHash is the
// keyed equality hash backing the uniqueness index, never exposed.
type Person struct {
	ID                 uuid.UUID  `db:"id" json:"id"`
	DocumentType       string     `db:"document_type" json:"document_type"`
	DocumentNumber     string     `db:"document_number" json:"document_number"`
	DocumentNumberHash string     `db:"document_number_hash" json:"-"`
	GivenName          string     `db:"given_name" json:"given_name"`
	FamilyName         string     `db:"family_name" json:"family_name"`
	BirthDate          *time.Time `db:"birth_date" json:"birth_date,omitempty"`
	Sex                string     `db:"sex" json:"sex"`
	Phone              *string    `db:"phone" json:"phone,omitempty"`
	Email              *string    `db:"email" json:"email,omitempty"`
	AddressLine        *string    `db:"address_line" json:"address_line,omitempty"`
	City               *string    `db:"city" json:"city,omitempty"`
	Country            *string    `db:"country" json:"country,omitempty"`
	Status             string     `db:"status" json:"status"`
	CreatedBy          *uuid.UUID `db:"created_by" json:"created_by,omitempty"`
	UpdatedBy          *uuid.UUID `db:"updated_by" json:"updated_by,omitempty"`
	CreatedAt          time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time  `db:"updated_at" json:"updated_at"`
}

// Patient maps to the patient table, 1:1 with a person. RecordNumber is the
// clinical record identifier HC-<year>-<seq>, assigned once and never reused.
type Patient struct {
	ID                    uuid.UUID `db:"id" json:"id"`
	PersonID              uuid.UUID `db:"person_id" json:"person_id"`
	RecordNumber          string    `db:"record_number" json:"record_number"`
	BloodGroup            *string   `db:"blood_group" json:"blood_group,omitempty"`
	RhFactor              *string   `db:"rh_factor" json:"rh_factor,omitempty"`
	Allergies             *string   `db:"allergies" json:"allergies,omitempty"`
	ChronicConditions     *string   `db:"chronic_conditions" json:"chronic_conditions,omitempty"`
	EmergencyContactName  *string   `db:"emergency_contact_name" json:"emergency_contact_name,omitempty"`
	EmergencyContactPhone *string   `db:"emergency_contact_phone" json:"emergency_contact_phone,omitempty"`
	InsuranceName         *string   `db:"insurance_name" json:"insurance_name,omitempty"`
	InsurancePolicyNumber *string   `db:"insurance_policy_number" json:"insurance_policy_number,omitempty"`
	Status                string    `db:"status" json:"status"`
	CreatedAt             time.Time `db:"created_at" json:"created_at"`
	UpdatedAt             time.Time `db:"updated_at" json:"updated_at"`
}

// PatientRecord joins a patient with its person for the API surface.
type PatientRecord struct {
	Patient
	Person Person `json:"person"`
}

// PatientFilter narrows FindPatients. Status and BloodGroup filter in SQL;
// NameSubstring and DocumentNumber are matched against decrypted values.
type PatientFilter struct {
	Status         string
	BloodGroup     string
	NameSubstring  string
	DocumentNumber string
}
