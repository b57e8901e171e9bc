package evolution

import (
	"context"

	"github.com/google/uuid"
)

// Repository is append-only; notes are never updated or deleted.
type Repository interface {
	Create(ctx context.Context, e *Evolution) error
	Get(ctx context.Context, id uuid.UUID) (*Evolution, error)
	// ListRecent returns the newest n notes for an admission, newest first.
	ListRecent(ctx context.Context, admissionID uuid.UUID, n int) ([]*Evolution, error)
	// ListAll returns the full history, newest first.
	ListAll(ctx context.Context, admissionID uuid.UUID) ([]*Evolution, error)
}
