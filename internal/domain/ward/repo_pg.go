package ward

import (
	"context"
	"errors"

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

// -- Wards --

const wardCols = `id, name, floor, specialty, created_at, updated_at`

func (r *repoPG) CreateWard(ctx context.Context, w *Ward) error {
	w.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO ward (id, name, floor, specialty) VALUES ($1,$2,$3,$4)`,
		w.ID, w.Name, w.Floor, w.Specialty,
	)
	return err
}

func (r *repoPG) UpdateWard(ctx context.Context, w *Ward) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE ward SET name=$2, floor=$3, specialty=$4, updated_at=NOW() WHERE id = $1`,
		w.ID, w.Name, w.Floor, w.Specialty,
	)
	return err
}

func scanWard(row pgx.Row) (*Ward, error) {
	var w Ward
	if err := row.Scan(&w.ID, &w.Name, &w.Floor, &w.Specialty, &w.CreatedAt, &w.UpdatedAt); err != nil {
		return nil, err
	}
	return &w, nil
}

func (r *repoPG) GetWard(ctx context.Context, id uuid.UUID) (*Ward, error) {
	return scanWard(r.conn(ctx).QueryRow(ctx, `SELECT `+wardCols+` FROM ward WHERE id = $1`, id))
}

func (r *repoPG) ListWards(ctx context.Context) ([]*Ward, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+wardCols+` FROM ward ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var wards []*Ward
	for rows.Next() {
		w, err := scanWard(rows)
		if err != nil {
			return nil, err
		}
		wards = append(wards, w)
	}
	return wards, rows.Err()
}

// -- Rooms --

func (r *repoPG) CreateRoom(ctx context.Context, room *Room) error {
	room.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO room (id, ward_id, number) VALUES ($1,$2,$3)`,
		room.ID, room.WardID, room.Number,
	)
	return err
}

func (r *repoPG) GetRoom(ctx context.Context, id uuid.UUID) (*Room, error) {
	var room Room
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT id, ward_id, number, created_at FROM room WHERE id = $1`, id,
	).Scan(&room.ID, &room.WardID, &room.Number, &room.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &room, nil
}

func (r *repoPG) ListRooms(ctx context.Context, wardID uuid.UUID) ([]*Room, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT id, ward_id, number, created_at FROM room WHERE ward_id = $1 ORDER BY number`, wardID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rooms []*Room
	for rows.Next() {
		var room Room
		if err := rows.Scan(&room.ID, &room.WardID, &room.Number, &room.CreatedAt); err != nil {
			return nil, err
		}
		rooms = append(rooms, &room)
	}
	return rooms, rows.Err()
}

// -- Beds --

const bedCols = `id, room_id, label, status, created_at, updated_at`

func (r *repoPG) CreateBed(ctx context.Context, b *Bed) error {
	b.ID = uuid.New()
	if b.Status == "" {
		b.Status = BedAvailable
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO bed (id, room_id, label, status) VALUES ($1,$2,$3,$4)`,
		b.ID, b.RoomID, b.Label, b.Status,
	)
	return err
}

func scanBed(row pgx.Row) (*Bed, error) {
	var b Bed
	if err := row.Scan(&b.ID, &b.RoomID, &b.Label, &b.Status, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *repoPG) GetBed(ctx context.Context, id uuid.UUID) (*Bed, error) {
	return scanBed(r.conn(ctx).QueryRow(ctx, `SELECT `+bedCols+` FROM bed WHERE id = $1`, id))
}

// LockBed takes a row lock so two concurrent admissions cannot both see the
// bed as available. Outside a transaction the lock is pointless, so the call
// is rejected.
func (r *repoPG) LockBed(ctx context.Context, id uuid.UUID) (*Bed, error) {
	if db.TxFromContext(ctx) == nil {
		return nil, errors.New("ward: LockBed requires a transaction")
	}
	return scanBed(r.conn(ctx).QueryRow(ctx, `SELECT `+bedCols+` FROM bed WHERE id = $1 FOR UPDATE`, id))
}

func (r *repoPG) SetBedStatus(ctx context.Context, id uuid.UUID, status string) error {
	_, err := r.conn(ctx).Exec(ctx,
		`UPDATE bed SET status=$2, updated_at=NOW() WHERE id = $1`, id, status)
	return err
}

func (r *repoPG) ListBeds(ctx context.Context, roomID uuid.UUID) ([]*Bed, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+bedCols+` FROM bed WHERE room_id = $1 ORDER BY label`, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var beds []*Bed
	for rows.Next() {
		b, err := scanBed(rows)
		if err != nil {
			return nil, err
		}
		beds = append(beds, b)
	}
	return beds, rows.Err()
}

func (r *repoPG) ListAvailable(ctx context.Context, wardID *uuid.UUID) ([]*BedView, error) {
	q := `
		SELECT b.id, b.room_id, b.label, b.status, b.created_at, b.updated_at,
		       r.number, w.id, w.name
		FROM bed b
		JOIN room r ON r.id = b.room_id
		JOIN ward w ON w.id = r.ward_id
		WHERE b.status = 'available'`
	args := []interface{}{}
	if wardID != nil {
		q += ` AND w.id = $1`
		args = append(args, *wardID)
	}
	q += ` ORDER BY w.name, r.number, b.label`

	rows, err := r.conn(ctx).Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var views []*BedView
	for rows.Next() {
		var v BedView
		err := rows.Scan(&v.ID, &v.RoomID, &v.Label, &v.Status, &v.CreatedAt, &v.UpdatedAt,
			&v.RoomNumber, &v.WardID, &v.WardName)
		if err != nil {
			return nil, err
		}
		views = append(views, &v)
	}
	return views, rows.Err()
}
