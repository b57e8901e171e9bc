package ward

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/hengadev/errsx"
	"github.com/jackc/pgx/v5"

	"github.com/clinicore/clinicore/internal/platform/apperr"
	"github.com/clinicore/clinicore/internal/platform/db"
)

// Recorder is the audit surface the allocator needs.
type Recorder interface {
	Success(ctx context.Context, action, entityType string, entityID *uuid.UUID, description string)
	Failure(ctx context.Context, action, entityType string, entityID *uuid.UUID, description, errorCode string)
}

// Service manages the physical layout and owns bed occupancy transitions.
type Service struct {
	repo  Repository
	inTx  db.TxRunner
	audit Recorder
}

func NewService(repo Repository, inTx db.TxRunner, audit Recorder) *Service {
	return &Service{repo: repo, inTx: inTx, audit: audit}
}

// -- Occupancy. Called by the admission flow inside its transaction. --

// Assign flips an available bed to occupied under a row lock. An occupied
// bed is a Conflict; the caller's transaction decides whether anything else
// survives.
func (s *Service) Assign(ctx context.Context, bedID uuid.UUID) error {
	bed, err := s.repo.LockBed(ctx, bedID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperr.NotFound("bed")
		}
		return fmt.Errorf("lock bed: %w", err)
	}
	if bed.Status == BedOccupied {
		return apperr.Conflict("bed_occupied", "bed "+bed.Label+" is already occupied")
	}
	if err := s.repo.SetBedStatus(ctx, bedID, BedOccupied); err != nil {
		return fmt.Errorf("occupy bed: %w", err)
	}
	return nil
}

// Release frees a bed. Releasing an already-available bed is a no-op, so
// discharge retries stay safe.
func (s *Service) Release(ctx context.Context, bedID uuid.UUID) error {
	bed, err := s.repo.LockBed(ctx, bedID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperr.NotFound("bed")
		}
		return fmt.Errorf("lock bed: %w", err)
	}
	if bed.Status == BedAvailable {
		return nil
	}
	if err := s.repo.SetBedStatus(ctx, bedID, BedAvailable); err != nil {
		return fmt.Errorf("release bed: %w", err)
	}
	return nil
}

// -- Queries --

func (s *Service) GetBed(ctx context.Context, id uuid.UUID) (*Bed, error) {
	bed, err := s.repo.GetBed(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("bed")
		}
		return nil, err
	}
	return bed, nil
}

func (s *Service) ListAvailable(ctx context.Context, wardID *uuid.UUID) ([]*BedView, error) {
	return s.repo.ListAvailable(ctx, wardID)
}

func (s *Service) GetWard(ctx context.Context, id uuid.UUID) (*Ward, error) {
	w, err := s.repo.GetWard(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("ward")
		}
		return nil, err
	}
	return w, nil
}

func (s *Service) ListWards(ctx context.Context) ([]*Ward, error) {
	return s.repo.ListWards(ctx)
}

func (s *Service) ListRooms(ctx context.Context, wardID uuid.UUID) ([]*Room, error) {
	return s.repo.ListRooms(ctx, wardID)
}

func (s *Service) ListBeds(ctx context.Context, roomID uuid.UUID) ([]*Bed, error) {
	return s.repo.ListBeds(ctx, roomID)
}

// -- Admin surface --

func (s *Service) CreateWard(ctx context.Context, w *Ward) error {
	var errs errsx.Map
	if strings.TrimSpace(w.Name) == "" {
		errs.Set("name", errors.New("is required"))
	}
	if !errs.IsEmpty() {
		err := apperr.Validation("invalid ward", errs)
		s.audit.Failure(ctx, "ward.create", "ward", nil, "ward creation rejected", apperr.CodeOf(err))
		return err
	}

	err := s.inTx(ctx, func(ctx context.Context) error {
		if err := s.repo.CreateWard(ctx, w); err != nil {
			return fmt.Errorf("create ward: %w", err)
		}
		s.audit.Success(ctx, "ward.create", "ward", &w.ID, "ward "+w.Name+" created")
		return nil
	})
	if err != nil {
		s.audit.Failure(ctx, "ward.create", "ward", nil, "ward creation failed", apperr.CodeOf(err))
		return err
	}
	return nil
}

func (s *Service) UpdateWard(ctx context.Context, w *Ward) error {
	var errs errsx.Map
	if strings.TrimSpace(w.Name) == "" {
		errs.Set("name", errors.New("is required"))
	}
	if !errs.IsEmpty() {
		err := apperr.Validation("invalid ward", errs)
		s.audit.Failure(ctx, "ward.update", "ward", &w.ID, "ward update rejected", apperr.CodeOf(err))
		return err
	}

	err := s.inTx(ctx, func(ctx context.Context) error {
		if _, err := s.repo.GetWard(ctx, w.ID); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return apperr.NotFound("ward")
			}
			return err
		}
		if err := s.repo.UpdateWard(ctx, w); err != nil {
			return fmt.Errorf("update ward: %w", err)
		}
		s.audit.Success(ctx, "ward.update", "ward", &w.ID, "ward "+w.Name+" updated")
		return nil
	})
	if err != nil {
		s.audit.Failure(ctx, "ward.update", "ward", &w.ID, "ward update failed", apperr.CodeOf(err))
		return err
	}
	return nil
}

func (s *Service) CreateRoom(ctx context.Context, room *Room) error {
	var errs errsx.Map
	if strings.TrimSpace(room.Number) == "" {
		errs.Set("number", errors.New("is required"))
	}
	if room.WardID == uuid.Nil {
		errs.Set("ward_id", errors.New("is required"))
	}
	if !errs.IsEmpty() {
		err := apperr.Validation("invalid room", errs)
		s.audit.Failure(ctx, "room.create", "room", nil, "room creation rejected", apperr.CodeOf(err))
		return err
	}

	err := s.inTx(ctx, func(ctx context.Context) error {
		if _, err := s.repo.GetWard(ctx, room.WardID); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return apperr.NotFound("ward")
			}
			return err
		}
		if err := s.repo.CreateRoom(ctx, room); err != nil {
			return fmt.Errorf("create room: %w", err)
		}
		s.audit.Success(ctx, "room.create", "room", &room.ID, "room "+room.Number+" created")
		return nil
	})
	if err != nil {
		s.audit.Failure(ctx, "room.create", "room", nil, "room creation failed", apperr.CodeOf(err))
		return err
	}
	return nil
}

func (s *Service) CreateBed(ctx context.Context, bed *Bed) error {
	var errs errsx.Map
	if strings.TrimSpace(bed.Label) == "" {
		errs.Set("label", errors.New("is required"))
	}
	if bed.RoomID == uuid.Nil {
		errs.Set("room_id", errors.New("is required"))
	}
	if !errs.IsEmpty() {
		err := apperr.Validation("invalid bed", errs)
		s.audit.Failure(ctx, "bed.create", "bed", nil, "bed creation rejected", apperr.CodeOf(err))
		return err
	}
	// New beds always start available.
	bed.Status = BedAvailable

	err := s.inTx(ctx, func(ctx context.Context) error {
		if _, err := s.repo.GetRoom(ctx, bed.RoomID); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return apperr.NotFound("room")
			}
			return err
		}
		if err := s.repo.CreateBed(ctx, bed); err != nil {
			return fmt.Errorf("create bed: %w", err)
		}
		s.audit.Success(ctx, "bed.create", "bed", &bed.ID, "bed "+bed.Label+" created")
		return nil
	})
	if err != nil {
		s.audit.Failure(ctx, "bed.create", "bed", nil, "bed creation failed", apperr.CodeOf(err))
		return err
	}
	return nil
}
