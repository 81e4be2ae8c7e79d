package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/calmora/remindq/internal/domain/settings"
)

var _ settings.Repo = (*SettingsRepo)(nil)

type SettingsRepo struct {
	db *DB
}

func NewSettingsRepo(db *DB) *SettingsRepo { return &SettingsRepo{db: db} }

const qSettingsByUser = `
SELECT user_id, COALESCE(telegram_chat_id, ''), telegram_enabled
FROM cm_user_notification_settings
WHERE user_id = $1;
`

func (r *SettingsRepo) GetByUser(ctx context.Context, userID uuid.UUID) (*settings.Settings, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var s settings.Settings
	if err := r.db.Pool.QueryRow(ctx, qSettingsByUser, userID).
		Scan(&s.UserID, &s.TelegramChatID, &s.TelegramEnabled); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("query settings: %w", err)
	}
	return &s, nil
}
