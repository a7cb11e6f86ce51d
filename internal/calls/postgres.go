package calls

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

// NOTE: This repository assumes the following table exists:
//
// CREATE TABLE calls (
//   id              TEXT PRIMARY KEY,
//   direction       TEXT NOT NULL,
//   status          TEXT NOT NULL,
//   customer_number TEXT NOT NULL DEFAULT '',
//   agent_id        TEXT NOT NULL DEFAULT '',
//   leg_a           TEXT NOT NULL DEFAULT '',
//   leg_b           TEXT NOT NULL DEFAULT '',
//   conference_id   TEXT NOT NULL DEFAULT '',
//   recording_url   TEXT NOT NULL DEFAULT '',
//   cost            DOUBLE PRECISION NOT NULL DEFAULT 0,
//   started_at      TIMESTAMPTZ NOT NULL,
//   answered_at     TIMESTAMPTZ,
//   ended_at        TIMESTAMPTZ,
//   created_at      TIMESTAMPTZ NOT NULL,
//   updated_at      TIMESTAMPTZ NOT NULL
// );
// CREATE INDEX calls_leg_a_idx ON calls (leg_a) WHERE leg_a <> '';
// CREATE INDEX calls_leg_b_idx ON calls (leg_b) WHERE leg_b <> '';
// CREATE INDEX calls_customer_idx ON calls (customer_number, started_at DESC);

const terminalStatuses = `('COMPLETED','NO_ANSWER','FAILED')`

const callColumns = `
id, direction, status, customer_number, agent_id, leg_a, leg_b, conference_id,
recording_url, cost, started_at, answered_at, ended_at, created_at, updated_at`

type PostgresStore struct {
	db    *sql.DB
	clock func() time.Time
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, clock: time.Now}
}

func (s *PostgresStore) Create(ctx context.Context, c Call) (Call, error) {
	now := s.clock().UTC()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Status == "" {
		c.Status = StatusInitiated
	}
	if c.StartedAt.IsZero() {
		c.StartedAt = now
	}
	c.CreatedAt = now
	c.UpdatedAt = now

	const q = `
INSERT INTO calls (
  id, direction, status, customer_number, agent_id, leg_a, leg_b, conference_id,
  recording_url, cost, started_at, answered_at, ended_at, created_at, updated_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15
)
`
	_, err := s.db.ExecContext(ctx, q,
		c.ID,
		c.Direction,
		c.Status,
		c.CustomerNumber,
		c.AgentID,
		c.LegA,
		c.LegB,
		c.ConferenceID,
		c.RecordingURL,
		c.Cost,
		c.StartedAt,
		c.AnsweredAt,
		c.EndedAt,
		c.CreatedAt,
		c.UpdatedAt,
	)
	if err != nil {
		return Call{}, err
	}
	return c, nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id string) (Call, error) {
	const q = `SELECT ` + callColumns + ` FROM calls WHERE id = $1`
	return scanCall(s.db.QueryRowContext(ctx, q, id))
}

func (s *PostgresStore) FindByLeg(ctx context.Context, legID string) (Call, error) {
	if legID == "" {
		return Call{}, ErrNotFound
	}
	// Prefer a live record, then the newest one.
	const q = `
SELECT ` + callColumns + `
FROM calls
WHERE leg_a = $1 OR leg_b = $1
ORDER BY (status IN ` + terminalStatuses + `) ASC, created_at DESC
LIMIT 1
`
	return scanCall(s.db.QueryRowContext(ctx, q, legID))
}

func (s *PostgresStore) Update(ctx context.Context, id string, p Patch) (Call, error) {
	// One statement so concurrent deliveries for the same record serialize on
	// the row, with set-once timestamps and the terminal-status guard applied
	// inside the database rather than in a read-modify-write cycle.
	const q = `
UPDATE calls SET
  status = CASE
    WHEN $2::text IS NULL THEN status
    WHEN status IN ` + terminalStatuses + ` AND $2::text NOT IN ` + terminalStatuses + ` THEN status
    ELSE $2::text
  END,
  agent_id      = COALESCE($3, agent_id),
  leg_b         = COALESCE($4, leg_b),
  conference_id = COALESCE($5, conference_id),
  recording_url = COALESCE($6, recording_url),
  cost          = COALESCE($7, cost),
  answered_at   = CASE
    WHEN status IN ` + terminalStatuses + ` THEN answered_at
    ELSE COALESCE(answered_at, $8)
  END,
  ended_at      = COALESCE(ended_at, $9),
  updated_at    = $10
WHERE id = $1
RETURNING ` + callColumns + `
`
	return scanCall(s.db.QueryRowContext(ctx, q,
		id,
		statusArg(p.Status),
		p.AgentID,
		p.LegB,
		p.ConferenceID,
		p.RecordingURL,
		p.Cost,
		p.AnsweredAt,
		p.EndedAt,
		s.clock().UTC(),
	))
}

func (s *PostgresStore) ListActive(ctx context.Context) ([]Call, error) {
	const q = `
SELECT ` + callColumns + `
FROM calls
WHERE status NOT IN ` + terminalStatuses + `
ORDER BY started_at DESC
`
	return s.queryCalls(ctx, q)
}

func (s *PostgresStore) ListHistory(ctx context.Context, f HistoryFilter) ([]Call, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	if f.CustomerNumber != "" {
		const q = `
SELECT ` + callColumns + `
FROM calls
WHERE customer_number = $1
ORDER BY started_at DESC
LIMIT $2 OFFSET $3
`
		return s.queryCalls(ctx, q, f.CustomerNumber, limit, f.Offset)
	}
	const q = `
SELECT ` + callColumns + `
FROM calls
ORDER BY started_at DESC
LIMIT $1 OFFSET $2
`
	return s.queryCalls(ctx, q, limit, f.Offset)
}

func (s *PostgresStore) queryCalls(ctx context.Context, q string, args ...any) ([]Call, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Call, 0)
	for rows.Next() {
		c, err := scanCall(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCall(row rowScanner) (Call, error) {
	var c Call
	var answered, ended sql.NullTime
	err := row.Scan(
		&c.ID,
		&c.Direction,
		&c.Status,
		&c.CustomerNumber,
		&c.AgentID,
		&c.LegA,
		&c.LegB,
		&c.ConferenceID,
		&c.RecordingURL,
		&c.Cost,
		&c.StartedAt,
		&answered,
		&ended,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Call{}, ErrNotFound
		}
		return Call{}, err
	}
	if answered.Valid {
		t := answered.Time
		c.AnsweredAt = &t
	}
	if ended.Valid {
		t := ended.Time
		c.EndedAt = &t
	}
	return c, nil
}

func statusArg(s *Status) any {
	if s == nil {
		return nil
	}
	return string(*s)
}
