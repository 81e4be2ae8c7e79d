package queue

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repo interface {
	// UpsertIgnoreConflict inserts the entry unless (rule_id, fire_at)
	// already exists. Reports whether a row was actually written.
	UpsertIgnoreConflict(ctx context.Context, e *Entry) (bool, error)

	// DeletePendingAfter removes a rule's still-pending entries firing
	// after cutoff. Entries inside the safety window stay untouched.
	DeletePendingAfter(ctx context.Context, ruleID uuid.UUID, cutoff time.Time) (int64, error)

	// WakeSnoozed moves snoozed entries whose fire time has passed back
	// to pending so the same run picks them up.
	WakeSnoozed(ctx context.Context, now time.Time) (int64, error)

	FetchPending(ctx context.Context, now time.Time, limit int) ([]*Entry, error)
	FetchRetrying(ctx context.Context, ceiling, limit int) ([]*Entry, error)

	// Advance persists a new status and attempt count, gated on the row
	// still being in flight (pending or sending). A false result means a
	// user action won the race and the transition was dropped.
	Advance(ctx context.Context, id uuid.UUID, status Status, sendCount int) (bool, error)

	// Snooze and Cancel are the user overrides: unconditional writes that
	// always win over whatever the dispatcher reads next.
	Snooze(ctx context.Context, id uuid.UUID, fireAt time.Time) error
	Cancel(ctx context.Context, id uuid.UUID) error
}
