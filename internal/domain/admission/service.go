package admission

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hengadev/errsx"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/clinicore/clinicore/internal/platform/apperr"
	"github.com/clinicore/clinicore/internal/platform/db"
)

// BedAllocator is the slice of the ward service admissions drive. Both calls
// run inside the admission's transaction via the context.
type BedAllocator interface {
	Assign(ctx context.Context, bedID uuid.UUID) error
	Release(ctx context.Context, bedID uuid.UUID) error
}

// Recorder is the audit surface admissions need.
type Recorder interface {
	Success(ctx context.Context, action, entityType string, entityID *uuid.UUID, description string)
	Failure(ctx context.Context, action, entityType string, entityID *uuid.UUID, description, errorCode string)
}

type Service struct {
	repo  Repository
	beds  BedAllocator
	inTx  db.TxRunner
	audit Recorder
	clock func() time.Time
}

func NewService(repo Repository, beds BedAllocator, inTx db.TxRunner, audit Recorder) *Service {
	return &Service{repo: repo, beds: beds, inTx: inTx, audit: audit, clock: time.Now}
}

type AdmitParams struct {
	PatientID   uuid.UUID  `json:"patient_id"`
	ClinicianID uuid.UUID  `json:"clinician_id"`
	BedID       *uuid.UUID `json:"bed_id,omitempty"`
	Type        string     `json:"admission_type"`
	Diagnosis   string     `json:"diagnosis"`
	Reason      string     `json:"reason"`
}

func (p AdmitParams) validate() error {
	var errs errsx.Map
	if p.PatientID == uuid.Nil {
		errs.Set("patient_id", errors.New("is required"))
	}
	if p.ClinicianID == uuid.Nil {
		errs.Set("clinician_id", errors.New("is required"))
	}
	if !AdmissionTypes[p.Type] {
		errs.Set("admission_type", errors.New("must be one of scheduled, emergency, referral"))
	}
	if strings.TrimSpace(p.Diagnosis) == "" {
		errs.Set("diagnosis", errors.New("is required"))
	}
	if !errs.IsEmpty() {
		return apperr.Validation("invalid admission", errs)
	}
	return nil
}

func foreignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}

func uniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// Admit opens an admission. The open-admission check, the optional bed claim
// and the insert share one transaction, so a bed is never left occupied
// without its admission. The partial unique indexes catch the race the
// row lock cannot see (two admits for a patient with no prior open row).
func (s *Service) Admit(ctx context.Context, params AdmitParams) (*Admission, error) {
	if err := params.validate(); err != nil {
		s.audit.Failure(ctx, "admission.admit", "admission", nil, "admission rejected", apperr.CodeOf(err))
		return nil, err
	}

	a := &Admission{
		PatientID:   params.PatientID,
		ClinicianID: params.ClinicianID,
		BedID:       params.BedID,
		Type:        params.Type,
		Diagnosis:   params.Diagnosis,
		Reason:      params.Reason,
		Status:      StatusInProgress,
		AdmittedAt:  s.clock(),
	}

	err := s.inTx(ctx, func(ctx context.Context) error {
		_, err := s.repo.FindOpenByPatient(ctx, params.PatientID)
		switch {
		case err == nil:
			return apperr.Conflict("patient_admitted", "patient already has an admission in progress")
		case !errors.Is(err, pgx.ErrNoRows):
			return fmt.Errorf("open admission check: %w", err)
		}

		if params.BedID != nil {
			if err := s.beds.Assign(ctx, *params.BedID); err != nil {
				return err
			}
		}

		if err := s.repo.Create(ctx, a); err != nil {
			switch {
			case uniqueViolation(err):
				return apperr.Conflict("patient_admitted", "patient already has an admission in progress")
			case foreignKeyViolation(err):
				return apperr.NotFound("patient")
			}
			return fmt.Errorf("create admission: %w", err)
		}
		s.audit.Success(ctx, "admission.admit", "admission", &a.ID,
			"patient admitted ("+params.Type+")")
		return nil
	})
	if err != nil {
		s.audit.Failure(ctx, "admission.admit", "admission", nil, "admission failed", apperr.CodeOf(err))
		return nil, err
	}
	return a, nil
}

// ReassignBed moves an open admission to another bed. The new bed is claimed
// before the old one is released, so a failed claim leaves the current
// assignment untouched.
func (s *Service) ReassignBed(ctx context.Context, admissionID, newBedID uuid.UUID) (*Admission, error) {
	var a *Admission
	err := s.inTx(ctx, func(ctx context.Context) error {
		var err error
		a, err = s.repo.GetForUpdate(ctx, admissionID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return apperr.NotFound("admission")
			}
			return err
		}
		if a.Status != StatusInProgress {
			return apperr.Conflict("not_in_progress", "admission is no longer in progress")
		}
		if a.BedID != nil && *a.BedID == newBedID {
			s.audit.Success(ctx, "admission.reassign_bed", "admission", &a.ID, "bed unchanged")
			return nil
		}

		if err := s.beds.Assign(ctx, newBedID); err != nil {
			return err
		}
		if a.BedID != nil {
			if err := s.beds.Release(ctx, *a.BedID); err != nil {
				return err
			}
		}
		a.BedID = &newBedID
		if err := s.repo.Update(ctx, a); err != nil {
			if uniqueViolation(err) {
				return apperr.Conflict("bed_occupied", "bed is already attached to an open admission")
			}
			return fmt.Errorf("update admission: %w", err)
		}
		s.audit.Success(ctx, "admission.reassign_bed", "admission", &a.ID, "bed reassigned")
		return nil
	})
	if err != nil {
		s.audit.Failure(ctx, "admission.reassign_bed", "admission", &admissionID, "bed reassignment failed", apperr.CodeOf(err))
		return nil, err
	}
	return a, nil
}

// Discharge closes an admission into one of the terminal states. The
// discharge timestamp is written once; a repeat call conflicts and leaves
// the original timestamp alone.
func (s *Service) Discharge(ctx context.Context, admissionID uuid.UUID, outcome string) (*Admission, error) {
	if !DischargeOutcomes[outcome] {
		err := apperr.ValidationField("outcome",
			errors.New("must be one of medical_discharge, voluntary_discharge, referred, deceased"))
		s.audit.Failure(ctx, "admission.discharge", "admission", &admissionID, "discharge rejected", apperr.CodeOf(err))
		return nil, err
	}

	var a *Admission
	err := s.inTx(ctx, func(ctx context.Context) error {
		var err error
		a, err = s.repo.GetForUpdate(ctx, admissionID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return apperr.NotFound("admission")
			}
			return err
		}
		if a.Status != StatusInProgress {
			return apperr.Conflict("already_discharged", "admission was already closed")
		}

		if a.BedID != nil {
			if err := s.beds.Release(ctx, *a.BedID); err != nil {
				return err
			}
		}
		now := s.clock()
		a.Status = outcome
		a.DischargedAt = &now
		if err := s.repo.Update(ctx, a); err != nil {
			return fmt.Errorf("update admission: %w", err)
		}
		s.audit.Success(ctx, "admission.discharge", "admission", &a.ID,
			"admission closed as "+outcome)
		return nil
	})
	if err != nil {
		s.audit.Failure(ctx, "admission.discharge", "admission", &admissionID, "discharge failed", apperr.CodeOf(err))
		return nil, err
	}
	return a, nil
}

func (s *Service) GetAdmission(ctx context.Context, id uuid.UUID) (*Admission, error) {
	a, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("admission")
		}
		return nil, err
	}
	return a, nil
}

func (s *Service) ListAdmissions(ctx context.Context, filter Filter, limit, offset int) ([]*Admission, int, error) {
	return s.repo.List(ctx, filter, limit, offset)
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Admission, error) {
	return s.repo.ListByPatient(ctx, patientID)
}
