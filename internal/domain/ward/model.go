package ward

import (
	"time"

	"github.com/google/uuid"
)

// Bed states. Occupancy only changes through admission flows; the admin
// surface creates the physical layout but never flips a bed by hand.
const (
	BedAvailable = "available"
	BedOccupied  = "occupied"
)

type Ward struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Floor     string    `db:"floor" json:"floor"`
	Specialty string    `db:"specialty" json:"specialty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

type Room struct {
	ID        uuid.UUID `db:"id" json:"id"`
	WardID    uuid.UUID `db:"ward_id" json:"ward_id"`
	Number    string    `db:"number" json:"number"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

type Bed struct {
	ID        uuid.UUID `db:"id" json:"id"`
	RoomID    uuid.UUID `db:"room_id" json:"room_id"`
	Label     string    `db:"label" json:"label"`
	Status    string    `db:"status" json:"status"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// BedView joins a bed with its room and ward for listing.
type BedView struct {
	Bed
	RoomNumber string    `json:"room_number"`
	WardID     uuid.UUID `json:"ward_id"`
	WardName   string    `json:"ward_name"`
}
