package settings

import "github.com/google/uuid"

// Settings is per-user channel configuration, owned by the account service
// and read-only here.
type Settings struct {
	UserID          uuid.UUID `json:"user_id"`
	TelegramChatID  string    `json:"telegram_chat_id"`
	TelegramEnabled bool      `json:"telegram_enabled"`
}

// Deliverable reports whether the telegram channel can receive messages.
func (s *Settings) Deliverable() bool {
	return s != nil && s.TelegramEnabled && s.TelegramChatID != ""
}
