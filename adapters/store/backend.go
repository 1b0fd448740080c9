package store

import (
	"context"
	"time"

	"github.com/layer-3/walletauth/core"
)

// Backend is the raw key-value contract both session backends provide
type Backend interface {
	Set(ctx context.Context, session core.Session, ttl time.Duration) error
	// Get reports found=false for absent or expired sessions
	Get(ctx context.Context, id string) (session core.Session, found bool, err error)
	Exists(ctx context.Context, id string) (bool, error)
	Delete(ctx context.Context, id string) error
	Keys(ctx context.Context) ([]string, error)
}

// BackendKind identifies which backend is serving the store
type BackendKind int32

const (
	BackendPrimary BackendKind = iota
	BackendSecondary
)

func (b BackendKind) String() string {
	switch b {
	case BackendPrimary:
		return "primary"
	case BackendSecondary:
		return "secondary"
	default:
		return "unknown"
	}
}
