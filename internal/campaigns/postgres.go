package campaigns

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"callcenter-platform/pkg/utils"
)

// PostgresStore implements Store on postgres.
//
// Schema:
//
//	CREATE TABLE campaigns (
//	    id          UUID PRIMARY KEY,
//	    name        TEXT NOT NULL,
//	    status      TEXT NOT NULL DEFAULT 'DRAFT',
//	    concurrency INT  NOT NULL DEFAULT 1,
//	    created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
//	    updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
//	);
//	CREATE TABLE campaign_targets (
//	    id          UUID PRIMARY KEY,
//	    campaign_id UUID NOT NULL REFERENCES campaigns(id) ON DELETE CASCADE,
//	    number      TEXT NOT NULL,
//	    status      TEXT NOT NULL DEFAULT 'PENDING',
//	    call_id     UUID,
//	    updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
//	);
//	CREATE INDEX campaign_targets_pending_idx
//	    ON campaign_targets (campaign_id) WHERE status = 'PENDING';
//	CREATE INDEX campaign_targets_call_idx
//	    ON campaign_targets (call_id) WHERE call_id IS NOT NULL;
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const campaignColumns = "id, name, status, concurrency, created_at, updated_at"
const targetColumns = "id, campaign_id, number, status, COALESCE(call_id::text, ''), updated_at"

func (s *PostgresStore) Create(ctx context.Context, c Campaign, targets []string) (Campaign, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Status == "" {
		c.Status = StatusDraft
	}

	err := utils.WithTx(ctx, s.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		const q = `
INSERT INTO campaigns (id, name, status, concurrency)
VALUES ($1, $2, $3, $4)
RETURNING ` + campaignColumns

		row := tx.QueryRowContext(ctx, q, c.ID, c.Name, c.Status, c.Concurrency)
		var err error
		c, err = scanCampaign(row)
		if err != nil {
			return err
		}

		const tq = `
INSERT INTO campaign_targets (id, campaign_id, number, status)
VALUES ($1, $2, $3, $4)`
		for _, number := range targets {
			if _, err := tx.ExecContext(ctx, tq, uuid.NewString(), c.ID, number, TargetPending); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Campaign{}, err
	}
	return c, nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id string) (Campaign, error) {
	const q = `SELECT ` + campaignColumns + ` FROM campaigns WHERE id = $1`
	c, err := scanCampaign(s.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Campaign{}, ErrNotFound
	}
	return c, err
}

func (s *PostgresStore) List(ctx context.Context) ([]Campaign, error) {
	const q = `SELECT ` + campaignColumns + ` FROM campaigns ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Campaign, 0)
	for rows.Next() {
		var c Campaign
		if err := rows.Scan(&c.ID, &c.Name, &c.Status, &c.Concurrency, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *PostgresStore) SetStatus(ctx context.Context, id string, status Status) (Campaign, error) {
	const q = `
UPDATE campaigns SET status = $2, updated_at = now()
WHERE id = $1
RETURNING ` + campaignColumns

	c, err := scanCampaign(s.db.QueryRowContext(ctx, q, id, status))
	if errors.Is(err, sql.ErrNoRows) {
		return Campaign{}, ErrNotFound
	}
	return c, err
}

func (s *PostgresStore) PendingTargets(ctx context.Context, campaignID string, limit int) ([]Target, error) {
	const q = `
SELECT ` + targetColumns + `
FROM campaign_targets
WHERE campaign_id = $1 AND status = 'PENDING'
ORDER BY number
LIMIT $2`

	rows, err := s.db.QueryContext(ctx, q, campaignID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTargets(rows)
}

func (s *PostgresStore) FindTargetByCallID(ctx context.Context, callID string) (Target, error) {
	const q = `
SELECT ` + targetColumns + `
FROM campaign_targets
WHERE call_id = $1::uuid`

	rows, err := s.db.QueryContext(ctx, q, callID)
	if err != nil {
		return Target{}, err
	}
	defer rows.Close()

	targets, err := collectTargets(rows)
	if err != nil {
		return Target{}, err
	}
	if len(targets) == 0 {
		return Target{}, ErrNotFound
	}
	return targets[0], nil
}

func (s *PostgresStore) MarkTarget(ctx context.Context, targetID string, status TargetStatus, callID string) error {
	const q = `
UPDATE campaign_targets SET
    status     = $2,
    call_id    = COALESCE(NULLIF($3, '')::uuid, call_id),
    updated_at = now()
WHERE id = $1`

	res, err := s.db.ExecContext(ctx, q, targetID, status, callID)
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

func (s *PostgresStore) Targets(ctx context.Context, campaignID string) ([]Target, error) {
	const q = `
SELECT ` + targetColumns + `
FROM campaign_targets
WHERE campaign_id = $1
ORDER BY number`

	rows, err := s.db.QueryContext(ctx, q, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTargets(rows)
}

func scanCampaign(row *sql.Row) (Campaign, error) {
	var c Campaign
	err := row.Scan(&c.ID, &c.Name, &c.Status, &c.Concurrency, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

func collectTargets(rows *sql.Rows) ([]Target, error) {
	out := make([]Target, 0)
	for rows.Next() {
		var t Target
		if err := rows.Scan(&t.ID, &t.CampaignID, &t.Number, &t.Status, &t.CallID, &t.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
