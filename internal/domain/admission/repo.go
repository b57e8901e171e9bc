package admission

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, a *Admission) error
	Update(ctx context.Context, a *Admission) error
	Get(ctx context.Context, id uuid.UUID) (*Admission, error)
	// GetForUpdate row-locks the admission; requires a transaction on ctx.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Admission, error)
	// FindOpenByPatient row-locks the patient's in-progress admission, if
	// one exists; requires a transaction on ctx.
	FindOpenByPatient(ctx context.Context, patientID uuid.UUID) (*Admission, error)
	List(ctx context.Context, filter Filter, limit, offset int) ([]*Admission, int, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Admission, error)
}
