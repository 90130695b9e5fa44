package notify

import (
	"context"
	"errors"
)

// ErrNotConfigured means the outbound channel has no credentials yet; the
// scheduler treats it like any other send failure.
var ErrNotConfigured = errors.New("notifier is not configured")

// Notifier delivers a report text to the configured outbound channel.
type Notifier interface {
	Send(ctx context.Context, text string) error
}
