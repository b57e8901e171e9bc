package evolution

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/hengadev/errsx"
	"github.com/jackc/pgx/v5"

	"github.com/clinicore/clinicore/internal/domain/admission"
	"github.com/clinicore/clinicore/internal/platform/apperr"
	"github.com/clinicore/clinicore/internal/platform/db"
)

// AdmissionDirectory resolves admission existence. Any status is fine; late
// documentation on a closed admission is legal.
type AdmissionDirectory interface {
	GetAdmission(ctx context.Context, id uuid.UUID) (*admission.Admission, error)
}

// Recorder is the audit surface the evolution log needs.
type Recorder interface {
	Success(ctx context.Context, action, entityType string, entityID *uuid.UUID, description string)
	Failure(ctx context.Context, action, entityType string, entityID *uuid.UUID, description, errorCode string)
}

const (
	defaultRecent = 10
	maxRecent     = 100
)

type Service struct {
	repo       Repository
	admissions AdmissionDirectory
	inTx       db.TxRunner
	audit      Recorder
}

func NewService(repo Repository, admissions AdmissionDirectory, inTx db.TxRunner, audit Recorder) *Service {
	return &Service{repo: repo, admissions: admissions, inTx: inTx, audit: audit}
}

type RecordParams struct {
	AdmissionID uuid.UUID `json:"admission_id"`
	ClinicianID uuid.UUID `json:"clinician_id"`
	Note        string    `json:"note"`
	Condition   string    `json:"condition"`
	Plan        *string   `json:"plan,omitempty"`
	Vitals      *Vitals   `json:"vitals,omitempty"`
}

func (p RecordParams) validate() error {
	var errs errsx.Map
	if p.AdmissionID == uuid.Nil {
		errs.Set("admission_id", errors.New("is required"))
	}
	if p.ClinicianID == uuid.Nil {
		errs.Set("clinician_id", errors.New("is required"))
	}
	if strings.TrimSpace(p.Note) == "" {
		errs.Set("note", errors.New("is required"))
	}
	if !Conditions[p.Condition] {
		errs.Set("condition", errors.New("must be one of stable, improving, worsening, critical"))
	}
	if !errs.IsEmpty() {
		return apperr.Validation("invalid evolution note", errs)
	}
	return nil
}

// Record appends a note to an admission. An all-empty vitals payload is
// dropped rather than stored as zeros.
func (s *Service) Record(ctx context.Context, params RecordParams) (*Evolution, error) {
	if err := params.validate(); err != nil {
		s.audit.Failure(ctx, "evolution.record", "evolution", nil, "clinical note rejected", apperr.CodeOf(err))
		return nil, err
	}

	e := &Evolution{
		AdmissionID: params.AdmissionID,
		ClinicianID: params.ClinicianID,
		Note:        params.Note,
		Condition:   params.Condition,
		Plan:        params.Plan,
	}
	if !params.Vitals.Empty() {
		e.Vitals = params.Vitals
	}

	err := s.inTx(ctx, func(ctx context.Context) error {
		if _, err := s.admissions.GetAdmission(ctx, params.AdmissionID); err != nil {
			return err
		}
		if err := s.repo.Create(ctx, e); err != nil {
			return fmt.Errorf("create evolution: %w", err)
		}
		s.audit.Success(ctx, "evolution.record", "evolution", &e.ID,
			"clinical note recorded, condition "+params.Condition)
		return nil
	})
	if err != nil {
		s.audit.Failure(ctx, "evolution.record", "evolution", nil, "clinical note rejected", apperr.CodeOf(err))
		return nil, err
	}
	return e, nil
}

func (s *Service) GetNote(ctx context.Context, id uuid.UUID) (*Evolution, error) {
	e, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("evolution")
		}
		return nil, err
	}
	return e, nil
}

// ListRecent returns the newest notes, bounded. Zero or negative n falls
// back to the default window.
func (s *Service) ListRecent(ctx context.Context, admissionID uuid.UUID, n int) ([]*Evolution, error) {
	if n <= 0 {
		n = defaultRecent
	}
	if n > maxRecent {
		n = maxRecent
	}
	return s.repo.ListRecent(ctx, admissionID, n)
}

func (s *Service) ListAll(ctx context.Context, admissionID uuid.UUID) ([]*Evolution, error) {
	return s.repo.ListAll(ctx, admissionID)
}
