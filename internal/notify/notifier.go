// Package notify carries best-effort change notifications to connected
// clients. Every call is fire-and-forget: failures are logged by the
// implementation and never reach the mutation that triggered them.
package notify

import "context"

// Notifier is the real-time push collaborator surface.
type Notifier interface {
	MessageUpdated(ctx context.Context, sessionID, messageID string)
	SessionChanged(ctx context.Context, sessionID string)
}

// Noop discards all notifications. Used in tests and when push is
// disabled by configuration.
type Noop struct{}

func (Noop) MessageUpdated(context.Context, string, string) {}
func (Noop) SessionChanged(context.Context, string)         {}
