package postgres

import (
	"context"
	"fmt"

	"github.com/calmora/remindq/internal/domain/deliverylog"
)

var _ deliverylog.Repo = (*LogRepo)(nil)

type LogRepo struct {
	db *DB
}

func NewLogRepo(db *DB) *LogRepo { return &LogRepo{db: db} }

const qLogInsert = `
INSERT INTO cm_notification_log (queue_id, user_id, app, entity_id, title, channel, fired_at, status, response, error_msg)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''), NULLIF($10, ''))
RETURNING id;
`

func (r *LogRepo) Append(ctx context.Context, rec *deliverylog.Record) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	if err := r.db.Pool.QueryRow(ctx, qLogInsert,
		rec.QueueID,
		rec.UserID,
		rec.App,
		rec.EntityID,
		rec.Title,
		rec.Channel,
		rec.FiredAt,
		rec.Status,
		rec.Response,
		rec.ErrorMsg,
	).Scan(&rec.ID); err != nil {
		return fmt.Errorf("insert log record: %w", err)
	}
	return nil
}
