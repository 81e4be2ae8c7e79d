package deliverylog

import (
	"time"

	"github.com/google/uuid"
)

type Result string

const (
	ResultSent   Result = "sent"
	ResultFailed Result = "failed"
)

// Record is the immutable audit trail: exactly one row per delivery attempt,
// appended regardless of outcome.
type Record struct {
	ID       int64     `json:"id"`
	QueueID  uuid.UUID `json:"queue_id"`
	UserID   uuid.UUID `json:"user_id"`
	App      string    `json:"app"`
	EntityID string    `json:"entity_id"`
	Title    string    `json:"title"`
	Channel  string    `json:"channel"`
	FiredAt  time.Time `json:"fired_at"`
	Status   Result    `json:"status"`
	Response string    `json:"response"`
	ErrorMsg string    `json:"error_msg"`
}
