package export

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGQueue stores triggers in omop_export_queue. Claims use SKIP LOCKED so
// several pollers never receive the same row; the service's run lock keeps
// their runs from overlapping.
type PGQueue struct {
	pgBase
}

func NewPGQueue(pool *pgxpool.Pool) *PGQueue {
	return &PGQueue{pgBase{pool: pool}}
}

func (q *PGQueue) Submit(ctx context.Context, t Trigger) error {
	payload, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encode trigger: %w", err)
	}
	_, err = q.conn(ctx).Exec(ctx, `
		INSERT INTO omop_export_queue (export_run_id, payload, enqueued_at)
		VALUES ($1, $2, now())
		ON CONFLICT (export_run_id) DO NOTHING`,
		t.ExportRunID, payload)
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", t.ExportRunID, err)
	}
	return nil
}

func (q *PGQueue) Claim(ctx context.Context) (*Trigger, error) {
	var payload []byte
	err := q.conn(ctx).QueryRow(ctx, `
		UPDATE omop_export_queue SET claimed_at = now(), attempts = attempts + 1
		WHERE export_run_id = (
			SELECT export_run_id FROM omop_export_queue
			WHERE claimed_at IS NULL
			ORDER BY enqueued_at, export_run_id
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING payload`).Scan(&payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("claim trigger: %w", err)
	}
	var t Trigger
	if err := json.Unmarshal(payload, &t); err != nil {
		return nil, fmt.Errorf("decode trigger: %w", err)
	}
	return &t, nil
}

func (q *PGQueue) Ack(ctx context.Context, runID uuid.UUID) error {
	_, err := q.conn(ctx).Exec(ctx, `DELETE FROM omop_export_queue WHERE export_run_id = $1`, runID)
	if err != nil {
		return fmt.Errorf("ack %s: %w", runID, err)
	}
	return nil
}

func (q *PGQueue) Nack(ctx context.Context, runID uuid.UUID) error {
	_, err := q.conn(ctx).Exec(ctx, `UPDATE omop_export_queue SET claimed_at = NULL WHERE export_run_id = $1`, runID)
	if err != nil {
		return fmt.Errorf("nack %s: %w", runID, err)
	}
	return nil
}

// Release makes claims older than the given age claimable again. It recovers
// triggers held by a worker that stopped before acknowledging.
func (q *PGQueue) Release(ctx context.Context, olderThanSeconds int) (int, error) {
	tag, err := q.conn(ctx).Exec(ctx, `
		UPDATE omop_export_queue SET claimed_at = NULL
		WHERE claimed_at IS NOT NULL AND claimed_at < now() - make_interval(secs => $1)`,
		olderThanSeconds)
	if err != nil {
		return 0, fmt.Errorf("release claims: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
