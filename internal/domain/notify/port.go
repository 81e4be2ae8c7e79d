package notify

import (
	"context"
	"time"
)

// Result carries the raw outcome of one outbound send: whether the channel
// API accepted the message, plus its verbatim response body for the audit log.
type Result struct {
	OK       bool
	Response string
}

// Notifier is the external messaging channel. A returned error means the
// call itself failed (transport); OK=false with nil error means the channel
// API rejected the message.
type Notifier interface {
	Send(ctx context.Context, to, text string) (Result, error)
}

type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }
