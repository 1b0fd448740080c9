package events

import (
	"context"

	"github.com/layer-3/walletauth/ports"
)

// FallbackNotifier sends through primary while healthy reports true and
// through fallback afterwards.
type FallbackNotifier struct {
	primary  ports.SessionNotifier
	fallback ports.SessionNotifier
	healthy  func() bool
}

// NewFallbackNotifier creates a notifier switching on healthy, e.g. the
// session store's UsingPrimary
func NewFallbackNotifier(primary, fallback ports.SessionNotifier, healthy func() bool) ports.SessionNotifier {
	return &FallbackNotifier{primary: primary, fallback: fallback, healthy: healthy}
}

func (n *FallbackNotifier) NotifySessionConnected(ctx context.Context, sessionID string, address string) error {
	if n.healthy() {
		return n.primary.NotifySessionConnected(ctx, sessionID, address)
	}
	return n.fallback.NotifySessionConnected(ctx, sessionID, address)
}
