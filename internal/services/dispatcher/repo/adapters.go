package repo

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/calmora/remindq/internal/domain/deliverylog"
	"github.com/calmora/remindq/internal/domain/queue"
	"github.com/calmora/remindq/internal/domain/settings"
)

type QueueRepo struct{ Q queue.Repo }
type SettingsRepo struct{ S settings.Repo }
type LogRepo struct{ L deliverylog.Repo }

func (a QueueRepo) WakeSnoozed(ctx context.Context, now time.Time) (int64, error) {
	return a.Q.WakeSnoozed(ctx, now)
}

func (a QueueRepo) FetchPending(ctx context.Context, now time.Time, limit int) ([]*queue.Entry, error) {
	return a.Q.FetchPending(ctx, now, limit)
}

func (a QueueRepo) FetchRetrying(ctx context.Context, ceiling, limit int) ([]*queue.Entry, error) {
	return a.Q.FetchRetrying(ctx, ceiling, limit)
}

func (a QueueRepo) Advance(ctx context.Context, id uuid.UUID, status queue.Status, sendCount int) (bool, error) {
	return a.Q.Advance(ctx, id, status, sendCount)
}

func (a SettingsRepo) GetByUser(ctx context.Context, userID uuid.UUID) (*settings.Settings, error) {
	return a.S.GetByUser(ctx, userID)
}

func (a LogRepo) Append(ctx context.Context, rec *deliverylog.Record) error {
	return a.L.Append(ctx, rec)
}
