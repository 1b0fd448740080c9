package ports

import "context"

// SessionNotifier announces connected sessions to realtime subscribers
type SessionNotifier interface {
	NotifySessionConnected(ctx context.Context, sessionID string, address string) error
}
