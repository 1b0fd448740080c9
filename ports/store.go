package ports

import (
	"context"

	"github.com/layer-3/walletauth/core"
)

// SessionStore persists session records keyed by session identifier
type SessionStore interface {
	Set(ctx context.Context, session core.Session) error
	// Get returns core.ErrSessionNotFound when the session is absent or expired
	Get(ctx context.Context, id string) (core.Session, error)
	Has(ctx context.Context, id string) (bool, error)
	Delete(ctx context.Context, id string) error

	// Diagnostics only
	Size(ctx context.Context) (int, error)
	Keys(ctx context.Context) ([]string, error)
	UsingPrimary() bool

	Close() error
}
