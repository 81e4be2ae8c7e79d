package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/calmora/remindq/internal/domain/rule"
)

var _ rule.Resolver = (*TasksResolver)(nil)

// TasksResolver resolves rules tagged app="tasks" against the task table
// owned by the tasks application. A missing or completed task means the
// rule no longer applies.
type TasksResolver struct {
	db *DB
}

func NewTasksResolver(db *DB) *TasksResolver { return &TasksResolver{db: db} }

const qTaskByID = `
SELECT title, due_at
FROM cm_tasks
WHERE id = $1 AND completed = FALSE AND due_at IS NOT NULL;
`

func (r *TasksResolver) Resolve(ctx context.Context, rl *rule.Rule) (string, time.Time, bool, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var (
		title string
		dueAt time.Time
	)
	if err := r.db.Pool.QueryRow(ctx, qTaskByID, rl.EntityID).Scan(&title, &dueAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", time.Time{}, false, nil
		}
		return "", time.Time{}, false, fmt.Errorf("query task: %w", err)
	}
	return title, dueAt, true, nil
}
