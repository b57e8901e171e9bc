package auth

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicore/clinicore/internal/platform/db"
)

type staffRepoPG struct {
	pool *pgxpool.Pool
}

func NewStaffRepo(pool *pgxpool.Pool) StaffRepository {
	return &staffRepoPG{pool: pool}
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

func (r *staffRepoPG) conn(ctx context.Context) querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const staffCols = `id, username, password_hash, full_name, roles, active, created_at`

func (r *staffRepoPG) GetByUsername(ctx context.Context, username string) (*StaffAccount, error) {
	var a StaffAccount
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT `+staffCols+` FROM staff_account WHERE username = $1`, username,
	).Scan(&a.ID, &a.Username, &a.PasswordHash, &a.FullName, &a.Roles, &a.Active, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *staffRepoPG) Create(ctx context.Context, account *StaffAccount) error {
	if account.ID == uuid.Nil {
		account.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO staff_account (id, username, password_hash, full_name, roles, active)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		account.ID, account.Username, account.PasswordHash, account.FullName, account.Roles, account.Active,
	)
	return err
}
