package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/calmora/remindq/internal/domain/rule"
)

var _ rule.Repo = (*RuleRepo)(nil)

type RuleRepo struct {
	db *DB
}

func NewRuleRepo(db *DB) *RuleRepo { return &RuleRepo{db: db} }

const qRulesEnabled = `
SELECT id, user_id, app, entity_id, entity_title, due_at, offsets, offsets_selected, channel, enabled, created_at, updated_at
FROM cm_notification_rules
WHERE enabled = TRUE;
`

func (r *RuleRepo) FetchEnabled(ctx context.Context) ([]*rule.Rule, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.Pool.Query(ctx, qRulesEnabled)
	if err != nil {
		return nil, fmt.Errorf("query rules: %w", err)
	}
	defer rows.Close()

	var out []*rule.Rule
	for rows.Next() {
		var (
			rl      rule.Rule
			offsets []byte
		)
		if err := rows.Scan(
			&rl.ID,
			&rl.UserID,
			&rl.App,
			&rl.EntityID,
			&rl.EntityTitle,
			&rl.DueAt,
			&offsets,
			&rl.OffsetsSelected,
			&rl.Channel,
			&rl.Enabled,
			&rl.CreatedAt,
			&rl.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		if len(offsets) > 0 {
			if err := json.Unmarshal(offsets, &rl.Offsets); err != nil {
				return nil, fmt.Errorf("decode rule offsets: %w", err)
			}
		}
		out = append(out, &rl)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}
