package evolution

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicore/clinicore/internal/platform/db"
)

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

func (r *repoPG) conn(ctx context.Context) querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const evolutionCols = `id, admission_id, clinician_id, note, condition, plan, vitals, created_at`

func scanEvolution(row pgx.Row) (*Evolution, error) {
	var e Evolution
	err := row.Scan(&e.ID, &e.AdmissionID, &e.ClinicianID, &e.Note, &e.Condition,
		&e.Plan, &e.Vitals, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *repoPG) Create(ctx context.Context, e *Evolution) error {
	e.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO evolution (id, admission_id, clinician_id, note, condition, plan, vitals)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING created_at`,
		e.ID, e.AdmissionID, e.ClinicianID, e.Note, e.Condition, e.Plan, e.Vitals,
	).Scan(&e.CreatedAt)
}

func (r *repoPG) Get(ctx context.Context, id uuid.UUID) (*Evolution, error) {
	return scanEvolution(r.conn(ctx).QueryRow(ctx,
		`SELECT `+evolutionCols+` FROM evolution WHERE id = $1`, id))
}

func (r *repoPG) list(ctx context.Context, sql string, args ...interface{}) ([]*Evolution, error) {
	rows, err := r.conn(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Evolution
	for rows.Next() {
		e, err := scanEvolution(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *repoPG) ListRecent(ctx context.Context, admissionID uuid.UUID, n int) ([]*Evolution, error) {
	return r.list(ctx,
		`SELECT `+evolutionCols+` FROM evolution WHERE admission_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2`,
		admissionID, n)
}

func (r *repoPG) ListAll(ctx context.Context, admissionID uuid.UUID) ([]*Evolution, error) {
	return r.list(ctx,
		`SELECT `+evolutionCols+` FROM evolution WHERE admission_id = $1 ORDER BY created_at DESC, id DESC`,
		admissionID)
}
