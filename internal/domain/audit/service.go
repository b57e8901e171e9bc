package audit

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/clinicore/clinicore/internal/platform/auth"
)

// Service records and queries the audit trail. Success recordings run on
// conn(ctx), so inside a transaction the audit row shares the caller's fate.
// Recording failures outside a transaction never abort the primary
// operation; they are logged and dropped.
type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Success records a completed operation. Inside a transaction the insert
// joins it, making the mutation and its audit row atomic.
func (s *Service) Success(ctx context.Context, action, entityType string, entityID *uuid.UUID, description string) {
	s.record(ctx, action, entityType, entityID, description, OutcomeSuccess, nil)
}

// Failure records a rejected or failed operation. Callers invoke it after
// rolling back, on a context that no longer carries the dead transaction.
func (s *Service) Failure(ctx context.Context, action, entityType string, entityID *uuid.UUID, description, errorCode string) {
	s.record(ctx, action, entityType, entityID, description, OutcomeError, &errorCode)
}

func (s *Service) record(ctx context.Context, action, entityType string, entityID *uuid.UUID, description, outcome string, errorCode *string) {
	entry := &Entry{
		Action:      action,
		EntityType:  entityType,
		EntityID:    entityID,
		Description: truncateDescription(description),
		Origin:      auth.OriginFromContext(ctx),
		Outcome:     outcome,
		ErrorCode:   errorCode,
	}
	if actor := auth.ActorFromContext(ctx); actor != uuid.Nil {
		entry.ActorID = &actor
	}

	if err := s.repo.Insert(ctx, entry); err != nil {
		log.Error().Err(err).
			Str("action", action).
			Str("entity_type", entityType).
			Msg("audit record failed")
	}
}

func (s *Service) GetEntry(ctx context.Context, id uuid.UUID) (*Entry, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) SearchEntries(ctx context.Context, params map[string]string, limit, offset int) ([]*Entry, int, error) {
	return s.repo.Search(ctx, params, limit, offset)
}
