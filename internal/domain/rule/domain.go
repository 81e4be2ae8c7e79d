package rule

import (
	"time"

	"github.com/google/uuid"
)

// Offset is one "remind me N minutes before it is due" declaration.
type Offset struct {
	Minutes int    `json:"minutes"`
	Label   string `json:"label"`
}

func (o Offset) Duration() time.Duration { return time.Duration(o.Minutes) * time.Minute }

// Rule is a user's declared intent to be reminded about an entity.
// It is owned by the originating application; this service only reads it.
type Rule struct {
	ID              uuid.UUID  `json:"id"`
	UserID          uuid.UUID  `json:"user_id"`
	App             string     `json:"app"`
	EntityID        string     `json:"entity_id"`
	EntityTitle     string     `json:"entity_title"`
	DueAt           *time.Time `json:"due_at"`
	Offsets         []Offset   `json:"offsets"`
	OffsetsSelected bool       `json:"offsets_selected"`
	Channel         string     `json:"channel"`
	Enabled         bool       `json:"enabled"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}
