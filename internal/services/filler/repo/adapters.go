package repo

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/calmora/remindq/internal/domain/queue"
	"github.com/calmora/remindq/internal/domain/rule"
)

type RuleRepo struct{ R rule.Repo }
type QueueRepo struct{ Q queue.Repo }

func (a RuleRepo) FetchEnabled(ctx context.Context) ([]*rule.Rule, error) {
	return a.R.FetchEnabled(ctx)
}

func (a QueueRepo) UpsertIgnoreConflict(ctx context.Context, e *queue.Entry) (bool, error) {
	return a.Q.UpsertIgnoreConflict(ctx, e)
}

func (a QueueRepo) DeletePendingAfter(ctx context.Context, ruleID uuid.UUID, cutoff time.Time) (int64, error) {
	return a.Q.DeletePendingAfter(ctx, ruleID, cutoff)
}
