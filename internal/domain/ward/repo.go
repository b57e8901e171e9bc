package ward

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	CreateWard(ctx context.Context, w *Ward) error
	UpdateWard(ctx context.Context, w *Ward) error
	GetWard(ctx context.Context, id uuid.UUID) (*Ward, error)
	ListWards(ctx context.Context) ([]*Ward, error)

	CreateRoom(ctx context.Context, r *Room) error
	GetRoom(ctx context.Context, id uuid.UUID) (*Room, error)
	ListRooms(ctx context.Context, wardID uuid.UUID) ([]*Room, error)

	CreateBed(ctx context.Context, b *Bed) error
	GetBed(ctx context.Context, id uuid.UUID) (*Bed, error)
	// LockBed reads a bed with a row lock; callers must hold a transaction.
	LockBed(ctx context.Context, id uuid.UUID) (*Bed, error)
	SetBedStatus(ctx context.Context, id uuid.UUID, status string) error
	ListBeds(ctx context.Context, roomID uuid.UUID) ([]*Bed, error)
	ListAvailable(ctx context.Context, wardID *uuid.UUID) ([]*BedView, error)
}
