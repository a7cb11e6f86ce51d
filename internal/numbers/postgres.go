package numbers

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// PostgresStore implements Store on postgres.
//
// Schema:
//
//	CREATE TABLE phone_numbers (
//	    id         UUID PRIMARY KEY,
//	    number     TEXT NOT NULL UNIQUE,
//	    label      TEXT NOT NULL DEFAULT '',
//	    active     BOOLEAN NOT NULL DEFAULT true,
//	    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
//	    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
//	);
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const numberColumns = "id, number, label, active, created_at, updated_at"

func (s *PostgresStore) Create(ctx context.Context, n PhoneNumber) (PhoneNumber, error) {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}

	const q = `
INSERT INTO phone_numbers (id, number, label, active)
VALUES ($1, $2, $3, $4)
RETURNING ` + numberColumns

	created, err := scanNumber(s.db.QueryRowContext(ctx, q, n.ID, n.Number, n.Label, n.Active))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return PhoneNumber{}, ErrDuplicate
		}
		return PhoneNumber{}, err
	}
	return created, nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id string) (PhoneNumber, error) {
	const q = `SELECT ` + numberColumns + ` FROM phone_numbers WHERE id = $1`
	n, err := scanNumber(s.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return PhoneNumber{}, ErrNotFound
	}
	return n, err
}

func (s *PostgresStore) List(ctx context.Context) ([]PhoneNumber, error) {
	const q = `SELECT ` + numberColumns + ` FROM phone_numbers ORDER BY number`

	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]PhoneNumber, 0)
	for rows.Next() {
		var n PhoneNumber
		if err := rows.Scan(&n.ID, &n.Number, &n.Label, &n.Active, &n.CreatedAt, &n.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Update(ctx context.Context, id string, u Update) (PhoneNumber, error) {
	const q = `
UPDATE phone_numbers SET
    label      = COALESCE($2, label),
    active     = COALESCE($3, active),
    updated_at = now()
WHERE id = $1
RETURNING ` + numberColumns

	n, err := scanNumber(s.db.QueryRowContext(ctx, q, id, u.Label, u.Active))
	if errors.Is(err, sql.ErrNoRows) {
		return PhoneNumber{}, ErrNotFound
	}
	return n, err
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM phone_numbers WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func scanNumber(row *sql.Row) (PhoneNumber, error) {
	var n PhoneNumber
	err := row.Scan(&n.ID, &n.Number, &n.Label, &n.Active, &n.CreatedAt, &n.UpdatedAt)
	return n, err
}
