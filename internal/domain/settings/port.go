package settings

import (
	"context"

	"github.com/google/uuid"
)

type Repo interface {
	// GetByUser returns nil (no error) when the user never configured
	// notification settings.
	GetByUser(ctx context.Context, userID uuid.UUID) (*Settings, error)
}
