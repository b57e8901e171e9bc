package identity

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	CreatePerson(ctx context.Context, p *Person) error
	UpdatePerson(ctx context.Context, p *Person) error
	GetPerson(ctx context.Context, id uuid.UUID) (*Person, error)
	// FindPersonsByDocument returns persons matching the document number for
	// duplicate detection; callers confirm by comparing plaintext.
	FindPersonsByDocument(ctx context.Context, docType, documentNumber string) ([]*Person, error)

	CreatePatient(ctx context.Context, p *Patient) error
	UpdatePatient(ctx context.Context, p *Patient) error
	GetPatient(ctx context.Context, id uuid.UUID) (*PatientRecord, error)
	GetPatientByPerson(ctx context.Context, personID uuid.UUID) (*PatientRecord, error)
	// ListPatients applies the plaintext filters (status, blood group) in
	// SQL and returns decrypted candidates for in-memory matching.
	ListPatients(ctx context.Context, filter PatientFilter) ([]*PatientRecord, error)

	// NextRecordNumber atomically advances and returns the per-year record
	// sequence. Values are never reused, even when a caller later rolls back.
	NextRecordNumber(ctx context.Context, year int) (int, error)
}
