package queue

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusSending   Status = "sending"
	StatusSent      Status = "sent"
	StatusSnoozed   Status = "snoozed"
	StatusCancelled Status = "cancelled"
)

const ChannelTelegram = "telegram"

// Entry is one scheduled delivery attempt.
// (RuleID, FireAt) is unique: repeated fill passes upsert against that pair,
// which is what makes the fill job safe to re-run at any cadence.
type Entry struct {
	ID        uuid.UUID `json:"id"`
	RuleID    uuid.UUID `json:"rule_id"`
	UserID    uuid.UUID `json:"user_id"`
	App       string    `json:"app"`
	EntityID  string    `json:"entity_id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Channel   string    `json:"channel"`
	FireAt    time.Time `json:"fire_at"`
	Status    Status    `json:"status"`
	SendCount int       `json:"send_count"`
	CreatedAt time.Time `json:"created_at"`
}
