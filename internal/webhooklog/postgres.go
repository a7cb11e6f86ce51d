package webhooklog

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

// NOTE: This repository assumes the following table exists:
//
// CREATE TABLE webhook_deliveries (
//   id          TEXT PRIMARY KEY,
//   method      TEXT NOT NULL,
//   url         TEXT NOT NULL,
//   headers     TEXT NOT NULL DEFAULT '',
//   body        TEXT NOT NULL DEFAULT '',
//   source_ip   TEXT NOT NULL DEFAULT '',
//   user_agent  TEXT NOT NULL DEFAULT '',
//   received_at TIMESTAMPTZ NOT NULL,
//   processed   BOOLEAN NOT NULL DEFAULT FALSE,
//   error       TEXT NOT NULL DEFAULT ''
// );
// CREATE INDEX webhook_deliveries_received_idx ON webhook_deliveries (received_at DESC);

const deliveryColumns = `
id, method, url, headers, body, source_ip, user_agent, received_at, processed, error`

type PostgresStore struct {
	db    *sql.DB
	clock func() time.Time
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, clock: time.Now}
}

func (s *PostgresStore) Append(ctx context.Context, d Delivery) (Delivery, error) {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.ReceivedAt.IsZero() {
		d.ReceivedAt = s.clock().UTC()
	}

	const q = `
INSERT INTO webhook_deliveries (
  id, method, url, headers, body, source_ip, user_agent, received_at, processed, error
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10
)
`
	_, err := s.db.ExecContext(ctx, q,
		d.ID,
		d.Method,
		d.URL,
		d.Headers,
		d.Body,
		d.SourceIP,
		d.UserAgent,
		d.ReceivedAt,
		d.Processed,
		d.Error,
	)
	if err != nil {
		return Delivery{}, err
	}
	return d, nil
}

func (s *PostgresStore) MarkProcessed(ctx context.Context, id string, procErr string) error {
	const q = `UPDATE webhook_deliveries SET processed = TRUE, error = $2 WHERE id = $1`
	res, err := s.db.ExecContext(ctx, q, id, procErr)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id string) (Delivery, error) {
	const q = `SELECT ` + deliveryColumns + ` FROM webhook_deliveries WHERE id = $1`
	var d Delivery
	err := s.db.QueryRowContext(ctx, q, id).Scan(
		&d.ID,
		&d.Method,
		&d.URL,
		&d.Headers,
		&d.Body,
		&d.SourceIP,
		&d.UserAgent,
		&d.ReceivedAt,
		&d.Processed,
		&d.Error,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Delivery{}, ErrNotFound
		}
		return Delivery{}, err
	}
	return d, nil
}

func (s *PostgresStore) List(ctx context.Context, page, limit int) ([]Delivery, int, error) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 20
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM webhook_deliveries`).Scan(&total); err != nil {
		return nil, 0, err
	}

	const q = `
SELECT ` + deliveryColumns + `
FROM webhook_deliveries
ORDER BY received_at DESC
LIMIT $1 OFFSET $2
`
	rows, err := s.db.QueryContext(ctx, q, limit, (page-1)*limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := make([]Delivery, 0)
	for rows.Next() {
		var d Delivery
		if err := rows.Scan(
			&d.ID,
			&d.Method,
			&d.URL,
			&d.Headers,
			&d.Body,
			&d.SourceIP,
			&d.UserAgent,
			&d.ReceivedAt,
			&d.Processed,
			&d.Error,
		); err != nil {
			return nil, 0, err
		}
		out = append(out, d)
	}
	return out, total, rows.Err()
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM webhook_deliveries WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM webhook_deliveries`)
	return err
}
