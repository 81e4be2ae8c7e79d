package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/calmora/remindq/internal/domain/queue"
)

var _ queue.Repo = (*QueueRepo)(nil)

type QueueRepo struct {
	db *DB
}

func NewQueueRepo(db *DB) *QueueRepo { return &QueueRepo{db: db} }

const (
	qQueueUpsert = `
INSERT INTO cm_notification_queue (rule_id, user_id, app, entity_id, title, body, channel, fire_at, status)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (rule_id, fire_at) DO NOTHING;
`

	qQueueDeletePendingAfter = `
DELETE FROM cm_notification_queue
WHERE rule_id = $1 AND status = 'pending' AND fire_at > $2;
`

	qQueueWakeSnoozed = `
UPDATE cm_notification_queue
SET status = 'pending'
WHERE status = 'snoozed' AND fire_at <= $1;
`

	qQueueFetchPending = `
SELECT id, rule_id, user_id, app, entity_id, title, body, channel, fire_at, status, send_count, created_at
FROM cm_notification_queue
WHERE status = 'pending' AND fire_at <= $1
ORDER BY fire_at
LIMIT $2;
`

	qQueueFetchRetrying = `
SELECT id, rule_id, user_id, app, entity_id, title, body, channel, fire_at, status, send_count, created_at
FROM cm_notification_queue
WHERE status = 'sending' AND send_count < $1
ORDER BY fire_at
LIMIT $2;
`

	// Gated on the row still being in flight so a concurrent snooze or
	// cancel is never overwritten by the dispatcher.
	qQueueAdvance = `
UPDATE cm_notification_queue
SET status = $2, send_count = $3
WHERE id = $1 AND status IN ('pending', 'sending');
`

	qQueueSnooze = `
UPDATE cm_notification_queue
SET status = 'snoozed', fire_at = $2
WHERE id = $1;
`

	qQueueCancel = `
UPDATE cm_notification_queue
SET status = 'cancelled'
WHERE id = $1;
`
)

func (r *QueueRepo) UpsertIgnoreConflict(ctx context.Context, e *queue.Entry) (bool, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	eq := r.db.execQueryer(ctx)
	tag, err := eq.Exec(ctx, qQueueUpsert,
		e.RuleID, e.UserID, e.App, e.EntityID, e.Title, e.Body, e.Channel, e.FireAt, e.Status,
	)
	if err != nil {
		return false, fmt.Errorf("queue upsert: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *QueueRepo) DeletePendingAfter(ctx context.Context, ruleID uuid.UUID, cutoff time.Time) (int64, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	eq := r.db.execQueryer(ctx)
	tag, err := eq.Exec(ctx, qQueueDeletePendingAfter, ruleID, cutoff)
	if err != nil {
		return 0, fmt.Errorf("queue delete pending: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *QueueRepo) WakeSnoozed(ctx context.Context, now time.Time) (int64, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	tag, err := r.db.Pool.Exec(ctx, qQueueWakeSnoozed, now)
	if err != nil {
		return 0, fmt.Errorf("queue wake snoozed: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *QueueRepo) FetchPending(ctx context.Context, now time.Time, limit int) ([]*queue.Entry, error) {
	if limit <= 0 {
		limit = 25
	}
	return r.fetch(ctx, qQueueFetchPending, now, limit)
}

func (r *QueueRepo) FetchRetrying(ctx context.Context, ceiling, limit int) ([]*queue.Entry, error) {
	if limit <= 0 {
		limit = 25
	}
	return r.fetch(ctx, qQueueFetchRetrying, ceiling, limit)
}

func (r *QueueRepo) fetch(ctx context.Context, query string, args ...any) ([]*queue.Entry, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("queue fetch: %w", err)
	}
	defer rows.Close()

	var out []*queue.Entry
	for rows.Next() {
		var e queue.Entry
		if err := scanEntry(rows, &e); err != nil {
			return nil, err
		}
		out = append(out, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

func scanEntry(row pgx.Row, e *queue.Entry) error {
	if err := row.Scan(
		&e.ID,
		&e.RuleID,
		&e.UserID,
		&e.App,
		&e.EntityID,
		&e.Title,
		&e.Body,
		&e.Channel,
		&e.FireAt,
		&e.Status,
		&e.SendCount,
		&e.CreatedAt,
	); err != nil {
		return fmt.Errorf("scan queue entry: %w", err)
	}
	return nil
}

func (r *QueueRepo) Advance(ctx context.Context, id uuid.UUID, status queue.Status, sendCount int) (bool, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	tag, err := r.db.Pool.Exec(ctx, qQueueAdvance, id, status, sendCount)
	if err != nil {
		return false, fmt.Errorf("queue advance: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *QueueRepo) Snooze(ctx context.Context, id uuid.UUID, fireAt time.Time) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	tag, err := r.db.Pool.Exec(ctx, qQueueSnooze, id, fireAt)
	if err != nil {
		return fmt.Errorf("queue snooze: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *QueueRepo) Cancel(ctx context.Context, id uuid.UUID) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	tag, err := r.db.Pool.Exec(ctx, qQueueCancel, id)
	if err != nil {
		return fmt.Errorf("queue cancel: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
