package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/Rican7/retry"
	"github.com/Rican7/retry/backoff"
	"github.com/Rican7/retry/strategy"
	"github.com/layer-3/walletauth/core"
	"github.com/layer-3/walletauth/ports"
	"go.uber.org/zap"
)

const (
	// DefaultSessionTTL bounds the lifetime of every session
	DefaultSessionTTL = time.Hour

	// DefaultPrimaryTimeout caps a single primary call
	DefaultPrimaryTimeout = time.Second
)

// Options configures a FailoverStore
type Options struct {
	TTL             time.Duration
	ConnectAttempts uint
	BackoffStep     time.Duration
	BackoffMax      time.Duration

	// PrimaryTimeout caps a primary call. A call never gets more than half of
	// the caller's remaining deadline, so a hung primary trips the latch and
	// the call still completes on the secondary.
	PrimaryTimeout time.Duration
}

// DefaultOptions returns the connect budget used when none is configured
func DefaultOptions() Options {
	return Options{
		TTL:             DefaultSessionTTL,
		ConnectAttempts: 4,
		BackoffStep:     100 * time.Millisecond,
		BackoffMax:      2 * time.Second,
		PrimaryTimeout:  DefaultPrimaryTimeout,
	}
}

// PrimaryBackend is a Backend that can be probed and closed
type PrimaryBackend interface {
	Backend
	Ping(ctx context.Context) error
	Close() error
}

// FailoverStore serves sessions from a primary backend and latches onto the
// secondary backend for the rest of the process once the primary fails.
type FailoverStore struct {
	primary   PrimaryBackend
	secondary Backend
	ttl       time.Duration
	timeout   time.Duration
	log       *zap.Logger

	// latch only ever moves from BackendPrimary to BackendSecondary
	latch atomic.Int32
}

var _ ports.SessionStore = (*FailoverStore)(nil)

// NewFailoverStore probes the primary within the connect budget and returns a
// store bound to whichever backend is usable. A nil primary starts on the secondary.
func NewFailoverStore(ctx context.Context, primary PrimaryBackend, secondary Backend, opts Options, log *zap.Logger) *FailoverStore {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultSessionTTL
	}
	if opts.ConnectAttempts == 0 {
		opts.ConnectAttempts = 1
	}
	if opts.PrimaryTimeout <= 0 {
		opts.PrimaryTimeout = DefaultPrimaryTimeout
	}

	s := &FailoverStore{
		primary:   primary,
		secondary: secondary,
		ttl:       opts.TTL,
		timeout:   opts.PrimaryTimeout,
		log:       log,
	}

	if primary == nil {
		s.latch.Store(int32(BackendSecondary))
		log.Warn("no primary session backend configured, using in-memory store")
		return s
	}

	err := retry.Retry(
		func(attempt uint) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			pctx, cancel := s.primaryContext(ctx)
			defer cancel()
			if err := primary.Ping(pctx); err != nil {
				log.Debug("primary session backend not reachable", zap.Uint("attempt", attempt), zap.Error(err))
				return err
			}
			return nil
		},
		strategy.Limit(opts.ConnectAttempts),
		strategy.Backoff(cappedLinear(opts.BackoffStep, opts.BackoffMax)),
	)
	if err != nil {
		s.trip(fmt.Errorf("connect: %w", err))
		return s
	}

	log.Info("connected to primary session backend")
	return s
}

func cappedLinear(step, max time.Duration) backoff.Algorithm {
	linear := backoff.Linear(step)
	return func(attempt uint) time.Duration {
		if d := linear(attempt); d < max {
			return d
		}
		return max
	}
}

// Backend reports the backend currently serving requests
func (s *FailoverStore) Backend() BackendKind {
	return BackendKind(s.latch.Load())
}

// UsingPrimary reports whether the primary backend is still active
func (s *FailoverStore) UsingPrimary() bool {
	return s.Backend() == BackendPrimary
}

// trip moves the latch to the secondary backend; later calls are no-ops
func (s *FailoverStore) trip(cause error) {
	if s.latch.CompareAndSwap(int32(BackendPrimary), int32(BackendSecondary)) {
		s.log.Warn("primary session backend failed, switching to in-memory store for the rest of the process", zap.Error(cause))
	}
}

// primaryContext bounds one primary call by the primary timeout and by half
// of the caller's remaining deadline.
func (s *FailoverStore) primaryContext(ctx context.Context) (context.Context, context.CancelFunc) {
	budget := s.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if half := time.Until(deadline) / 2; half < budget {
			budget = half
		}
	}
	return context.WithTimeout(ctx, budget)
}

// onPrimary runs fn against the primary while it is active. handled is false
// when the call must be repeated on the secondary.
func (s *FailoverStore) onPrimary(ctx context.Context, op string, fn func(context.Context, Backend) error) (handled bool, err error) {
	if !s.UsingPrimary() {
		return false, nil
	}
	if err := ctx.Err(); err != nil {
		return true, fmt.Errorf("%s: %w", op, errors.Join(core.ErrStoreTimeout, err))
	}

	pctx, cancel := s.primaryContext(ctx)
	defer cancel()

	err = fn(pctx, s.primary)
	if err == nil {
		return true, nil
	}
	if ctx.Err() != nil {
		return true, fmt.Errorf("%s: %w", op, errors.Join(core.ErrStoreTimeout, ctx.Err()))
	}

	s.trip(fmt.Errorf("%s: %w", op, err))
	return false, nil
}

func (s *FailoverStore) onSecondary(ctx context.Context, op string, fn func(context.Context, Backend) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, errors.Join(core.ErrStoreTimeout, err))
	}
	if err := fn(ctx, s.secondary); err != nil {
		return fmt.Errorf("%s: %w", op, errors.Join(core.ErrStoreUnavailable, err))
	}
	return nil
}

func (s *FailoverStore) do(ctx context.Context, op string, fn func(context.Context, Backend) error) error {
	if handled, err := s.onPrimary(ctx, op, fn); handled {
		return err
	}
	return s.onSecondary(ctx, op, fn)
}

// Set upserts a session and refreshes its TTL
func (s *FailoverStore) Set(ctx context.Context, session core.Session) error {
	return s.do(ctx, "set session", func(ctx context.Context, b Backend) error {
		return b.Set(ctx, session, s.ttl)
	})
}

// Get returns core.ErrSessionNotFound if the session is absent or expired
func (s *FailoverStore) Get(ctx context.Context, id string) (core.Session, error) {
	var (
		session core.Session
		found   bool
	)
	err := s.do(ctx, "get session", func(ctx context.Context, b Backend) error {
		var err error
		session, found, err = b.Get(ctx, id)
		return err
	})
	if err != nil {
		return core.Session{}, err
	}
	if !found {
		return core.Session{}, core.ErrSessionNotFound
	}
	return session, nil
}

// Has checks if a session exists
func (s *FailoverStore) Has(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := s.do(ctx, "check session", func(ctx context.Context, b Backend) error {
		var err error
		exists, err = b.Exists(ctx, id)
		return err
	})
	return exists, err
}

// Delete removes a session
func (s *FailoverStore) Delete(ctx context.Context, id string) error {
	return s.do(ctx, "delete session", func(ctx context.Context, b Backend) error {
		return b.Delete(ctx, id)
	})
}

// Keys lists the stored session ids in sorted order
func (s *FailoverStore) Keys(ctx context.Context) ([]string, error) {
	var ids []string
	err := s.do(ctx, "list sessions", func(ctx context.Context, b Backend) error {
		var err error
		ids, err = b.Keys(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(ids)
	return ids, nil
}

// Size counts the stored sessions
func (s *FailoverStore) Size(ctx context.Context) (int, error) {
	ids, err := s.Keys(ctx)
	return len(ids), err
}

// Close releases the primary connection. Safe when the primary never connected.
func (s *FailoverStore) Close() error {
	if s.primary == nil {
		return nil
	}
	return s.primary.Close()
}
