package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// StaffAccount is a login identity for clinic personnel. It is deliberately
// separate from the clinical person registry; an account carries roles and a
// password hash, nothing medical.
type StaffAccount struct {
	ID           uuid.UUID `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	FullName     string    `json:"full_name"`
	Roles        []string  `json:"roles"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
}

// StaffRepository loads and stores staff accounts.
type StaffRepository interface {
	GetByUsername(ctx context.Context, username string) (*StaffAccount, error)
	Create(ctx context.Context, account *StaffAccount) error
}
