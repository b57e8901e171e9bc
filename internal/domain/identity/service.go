package identity

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hengadev/errsx"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/clinicore/clinicore/internal/platform/apperr"
	"github.com/clinicore/clinicore/internal/platform/auth"
	"github.com/clinicore/clinicore/internal/platform/db"
)

// Recorder is the audit surface the registry needs.
type Recorder interface {
	Success(ctx context.Context, action, entityType string, entityID *uuid.UUID, description string)
	Failure(ctx context.Context, action, entityType string, entityID *uuid.UUID, description, errorCode string)
}

// Service is the person registry and patient record store.
type Service struct {
	repo  Repository
	inTx  db.TxRunner
	audit Recorder
	clock func() time.Time
}

func NewService(repo Repository, inTx db.TxRunner, audit Recorder) *Service {
	return &Service{repo: repo, inTx: inTx, audit: audit, clock: time.Now}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// -- Persons --

func validatePerson(p *Person) error {
	var errs errsx.Map
	if !DocumentTypes[p.DocumentType] {
		errs.Set("document_type", errors.New("must be one of national_id, passport, foreign_id, other"))
	}
	if strings.TrimSpace(p.DocumentNumber) == "" {
		errs.Set("document_number", errors.New("is required"))
	}
	if strings.TrimSpace(p.GivenName) == "" {
		errs.Set("given_name", errors.New("is required"))
	}
	if strings.TrimSpace(p.FamilyName) == "" {
		errs.Set("family_name", errors.New("is required"))
	}
	if !SexCodes[p.Sex] {
		errs.Set("sex", errors.New("must be one of female, male, other, unspecified"))
	}
	if p.BirthDate != nil && p.BirthDate.After(time.Now()) {
		errs.Set("birth_date", errors.New("cannot be in the future"))
	}
	if !errs.IsEmpty() {
		return apperr.Validation("invalid person", errs)
	}
	return nil
}

// checkDocumentUnique confirms no other person holds the same document. The
// keyed hash narrows candidates in the store; the decrypted plaintext settles
// it here. A concurrent duplicate that slips past still hits the unique index.
func (s *Service) checkDocumentUnique(ctx context.Context, p *Person) error {
	candidates, err := s.repo.FindPersonsByDocument(ctx, p.DocumentType, p.DocumentNumber)
	if err != nil {
		return fmt.Errorf("document lookup: %w", err)
	}
	for _, c := range candidates {
		if c.ID != p.ID && c.DocumentNumber == p.DocumentNumber {
			return apperr.Conflict("duplicate_document", "a person with this document already exists")
		}
	}
	return nil
}

func (s *Service) CreatePerson(ctx context.Context, p *Person) error {
	if err := validatePerson(p); err != nil {
		s.audit.Failure(ctx, "person.create", "person", nil, "person registration rejected", apperr.CodeOf(err))
		return err
	}
	if p.Status == "" {
		p.Status = PersonActive
	}
	if actor := auth.ActorFromContext(ctx); actor != uuid.Nil {
		p.CreatedBy = &actor
		p.UpdatedBy = &actor
	}

	err := s.inTx(ctx, func(ctx context.Context) error {
		if err := s.checkDocumentUnique(ctx, p); err != nil {
			return err
		}
		if err := s.repo.CreatePerson(ctx, p); err != nil {
			if isUniqueViolation(err) {
				return apperr.Conflict("duplicate_document", "a person with this document already exists")
			}
			return fmt.Errorf("create person: %w", err)
		}
		s.audit.Success(ctx, "person.create", "person", &p.ID, "person registered")
		return nil
	})
	if err != nil {
		s.audit.Failure(ctx, "person.create", "person", nil, "person registration failed", apperr.CodeOf(err))
		return err
	}
	return nil
}

func (s *Service) UpdatePerson(ctx context.Context, p *Person) error {
	if err := validatePerson(p); err != nil {
		s.audit.Failure(ctx, "person.update", "person", &p.ID, "person update rejected", apperr.CodeOf(err))
		return err
	}
	if actor := auth.ActorFromContext(ctx); actor != uuid.Nil {
		p.UpdatedBy = &actor
	}

	err := s.inTx(ctx, func(ctx context.Context) error {
		if _, err := s.repo.GetPerson(ctx, p.ID); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return apperr.NotFound("person")
			}
			return err
		}
		if err := s.checkDocumentUnique(ctx, p); err != nil {
			return err
		}
		if err := s.repo.UpdatePerson(ctx, p); err != nil {
			if isUniqueViolation(err) {
				return apperr.Conflict("duplicate_document", "a person with this document already exists")
			}
			return fmt.Errorf("update person: %w", err)
		}
		s.audit.Success(ctx, "person.update", "person", &p.ID, "person updated")
		return nil
	})
	if err != nil {
		s.audit.Failure(ctx, "person.update", "person", &p.ID, "person update failed", apperr.CodeOf(err))
		return err
	}
	return nil
}

func (s *Service) GetPerson(ctx context.Context, id uuid.UUID) (*Person, error) {
	p, err := s.repo.GetPerson(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("person")
		}
		return nil, err
	}
	return p, nil
}

// -- Patients --

func validatePatientInput(in *Patient) error {
	var errs errsx.Map
	if in.Status != "" && in.Status != PatientActive && in.Status != PatientInactive && in.Status != PatientDeceased {
		errs.Set("status", errors.New("must be one of active, inactive, deceased"))
	}
	if !errs.IsEmpty() {
		return apperr.Validation("invalid patient", errs)
	}
	return nil
}

// RegisterPatient creates the person and the patient record as one unit of
// work: both inserts and the audit row commit together or not at all. The
// record number is burned in its own statement beforehand, so a failed
// registration leaves a gap in the sequence but never a reused number.
func (s *Service) RegisterPatient(ctx context.Context, person *Person, patient *Patient) (*PatientRecord, error) {
	rec, err := s.registerPatient(ctx, person, patient)
	if err != nil {
		s.audit.Failure(ctx, "patient.create", "patient", nil, "patient registration failed", apperr.CodeOf(err))
		return nil, err
	}
	return rec, nil
}

func (s *Service) registerPatient(ctx context.Context, person *Person, patient *Patient) (*PatientRecord, error) {
	if err := validatePerson(person); err != nil {
		return nil, err
	}
	if err := validatePatientInput(patient); err != nil {
		return nil, err
	}

	year := s.clock().Year()
	seq, err := s.repo.NextRecordNumber(ctx, year)
	if err != nil {
		return nil, fmt.Errorf("allocate record number: %w", err)
	}
	patient.RecordNumber = fmt.Sprintf("HC-%d-%06d", year, seq)
	if patient.Status == "" {
		patient.Status = PatientActive
	}
	if person.Status == "" {
		person.Status = PersonActive
	}
	if actor := auth.ActorFromContext(ctx); actor != uuid.Nil {
		person.CreatedBy = &actor
		person.UpdatedBy = &actor
	}

	err = s.inTx(ctx, func(ctx context.Context) error {
		if err := s.checkDocumentUnique(ctx, person); err != nil {
			return err
		}
		if err := s.repo.CreatePerson(ctx, person); err != nil {
			if isUniqueViolation(err) {
				return apperr.Conflict("duplicate_document", "a person with this document already exists")
			}
			return fmt.Errorf("create person: %w", err)
		}
		patient.PersonID = person.ID
		if err := s.repo.CreatePatient(ctx, patient); err != nil {
			return fmt.Errorf("create patient: %w", err)
		}
		s.audit.Success(ctx, "patient.create", "patient", &patient.ID,
			"patient registered with record "+patient.RecordNumber)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &PatientRecord{Patient: *patient, Person: *person}, nil
}

func (s *Service) UpdatePatient(ctx context.Context, patient *Patient) error {
	if err := validatePatientInput(patient); err != nil {
		s.audit.Failure(ctx, "patient.update", "patient", &patient.ID, "patient update rejected", apperr.CodeOf(err))
		return err
	}

	err := s.inTx(ctx, func(ctx context.Context) error {
		current, err := s.repo.GetPatient(ctx, patient.ID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return apperr.NotFound("patient")
			}
			return err
		}
		// Record numbers and person links are immutable.
		patient.PersonID = current.PersonID
		patient.RecordNumber = current.RecordNumber
		if patient.Status == "" {
			patient.Status = current.Status
		}
		if err := s.repo.UpdatePatient(ctx, patient); err != nil {
			return fmt.Errorf("update patient: %w", err)
		}
		s.audit.Success(ctx, "patient.update", "patient", &patient.ID, "patient record updated")
		return nil
	})
	if err != nil {
		s.audit.Failure(ctx, "patient.update", "patient", &patient.ID, "patient update failed", apperr.CodeOf(err))
		return err
	}
	return nil
}

// DeactivatePatient retires a patient without deleting anything.
func (s *Service) DeactivatePatient(ctx context.Context, id uuid.UUID) error {
	err := s.inTx(ctx, func(ctx context.Context) error {
		current, err := s.repo.GetPatient(ctx, id)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return apperr.NotFound("patient")
			}
			return err
		}
		if current.Status == PatientInactive {
			s.audit.Success(ctx, "patient.deactivate", "patient", &id, "patient already inactive")
			return nil
		}
		current.Patient.Status = PatientInactive
		if err := s.repo.UpdatePatient(ctx, &current.Patient); err != nil {
			return fmt.Errorf("deactivate patient: %w", err)
		}
		s.audit.Success(ctx, "patient.deactivate", "patient", &id, "patient deactivated")
		return nil
	})
	if err != nil {
		s.audit.Failure(ctx, "patient.deactivate", "patient", &id, "patient deactivation failed", apperr.CodeOf(err))
		return err
	}
	return nil
}

// GetPatient is a sensitive read; it is audited.
func (s *Service) GetPatient(ctx context.Context, id uuid.UUID) (*PatientRecord, error) {
	rec, err := s.repo.GetPatient(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("patient")
		}
		return nil, err
	}
	s.audit.Success(ctx, "patient.read", "patient", &id, "patient record viewed")
	return rec, nil
}

// FindPatients filters by status and blood group in SQL, then matches the
// name substring against decrypted values. Deterministic encryption only
// supports equality in the store, so substring search has to happen here.
// Results sort by family name, given name, then id so equal pages stay
// stable across calls.
func (s *Service) FindPatients(ctx context.Context, filter PatientFilter, limit, offset int) ([]*PatientRecord, int, error) {
	records, err := s.repo.ListPatients(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	if needle := strings.ToLower(strings.TrimSpace(filter.NameSubstring)); needle != "" {
		matched := records[:0]
		for _, rec := range records {
			full := strings.ToLower(rec.Person.GivenName + " " + rec.Person.FamilyName)
			if strings.Contains(full, needle) {
				matched = append(matched, rec)
			}
		}
		records = matched
	}

	sort.Slice(records, func(i, j int) bool {
		a, b := records[i].Person, records[j].Person
		if a.FamilyName != b.FamilyName {
			return a.FamilyName < b.FamilyName
		}
		if a.GivenName != b.GivenName {
			return a.GivenName < b.GivenName
		}
		return records[i].ID.String() < records[j].ID.String()
	})

	total := len(records)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	page := records[offset:end]

	s.audit.Success(ctx, "patient.search", "patient", nil,
		fmt.Sprintf("patient search returned %d of %d records", len(page), total))

	return page, total, nil
}
