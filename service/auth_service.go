package service

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"time"

	"github.com/layer-3/walletauth/core"
	"github.com/layer-3/walletauth/ports"
	"go.uber.org/zap"
)

const (
	maxSessionIDDraws = 3
	lockStripes       = 64

	// DefaultNotifyTimeout is how long Verify waits for a notification to be handed off
	DefaultNotifyTimeout = 500 * time.Millisecond
)

// AuthService runs the wallet challenge-response protocol over stored sessions
type AuthService struct {
	store     ports.SessionStore
	verifier  ports.SignatureVerifier
	tokens    ports.TokenSource
	tokenizer ports.Tokenizer
	notifier  ports.SessionNotifier
	log       *zap.Logger

	notifyTimeout time.Duration

	// verifies of one session are serialised; different sessions rarely share a stripe
	locks [lockStripes]sync.Mutex
}

// Option customises an AuthService
type Option func(*AuthService)

// WithNotifier sets the realtime notifier, nil disables notifications
func WithNotifier(n ports.SessionNotifier) Option {
	return func(s *AuthService) { s.notifier = n }
}

// WithTokenizer enables attestation tokens in verify results
func WithTokenizer(t ports.Tokenizer) Option {
	return func(s *AuthService) { s.tokenizer = t }
}

// WithNotifyTimeout bounds how long Verify waits on the notifier
func WithNotifyTimeout(d time.Duration) Option {
	return func(s *AuthService) {
		if d > 0 {
			s.notifyTimeout = d
		}
	}
}

// WithLogger sets the logger
func WithLogger(log *zap.Logger) Option {
	return func(s *AuthService) { s.log = log }
}

// NewAuthService creates a new authentication service
func NewAuthService(
	store ports.SessionStore,
	verifier ports.SignatureVerifier,
	tokens ports.TokenSource,
	opts ...Option,
) *AuthService {
	s := &AuthService{
		store:    store,
		verifier: verifier,
		tokens:   tokens,
		log:      zap.NewNop(),

		notifyTimeout: DefaultNotifyTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateSession issues a fresh session id and nonce
func (s *AuthService) CreateSession(ctx context.Context) (core.Session, error) {
	return s.create(ctx, false)
}

// IssueNonce serves the legacy flow: the session is deleted once verified
func (s *AuthService) IssueNonce(ctx context.Context) (core.Session, error) {
	return s.create(ctx, true)
}

func (s *AuthService) create(ctx context.Context, singleUse bool) (core.Session, error) {
	id, err := s.newSessionID(ctx)
	if err != nil {
		return core.Session{}, err
	}

	nonce, err := s.tokens.Nonce()
	if err != nil {
		return core.Session{}, err
	}

	session := core.Session{
		ID:        id,
		Nonce:     nonce,
		SingleUse: singleUse,
	}
	if err := s.store.Set(ctx, session); err != nil {
		return core.Session{}, fmt.Errorf("failed to store session: %w", err)
	}

	s.log.Info("session created", zap.String("session_id", id), zap.Bool("single_use", singleUse))
	return session, nil
}

// newSessionID draws ids until one is unused
func (s *AuthService) newSessionID(ctx context.Context) (string, error) {
	for i := 0; i < maxSessionIDDraws; i++ {
		id, err := s.tokens.SessionID()
		if err != nil {
			return "", err
		}

		exists, err := s.store.Has(ctx, id)
		if err != nil {
			return "", fmt.Errorf("failed to check session id: %w", err)
		}
		if !exists {
			return id, nil
		}
		s.log.Warn("session id collision, drawing again", zap.String("session_id", id))
	}
	return "", fmt.Errorf("no unused session id after %d draws", maxSessionIDDraws)
}

// GetSession returns a stored session or core.ErrInvalidSession
func (s *AuthService) GetSession(ctx context.Context, id string) (core.Session, error) {
	if strings.TrimSpace(id) == "" {
		return core.Session{}, core.ErrInvalidSession
	}

	session, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, core.ErrSessionNotFound) {
			return core.Session{}, core.ErrInvalidSession
		}
		return core.Session{}, err
	}
	return session, nil
}

// Verify checks a signature over the session nonce and connects the session
// to the recovered address. Failed verifications never touch the store.
func (s *AuthService) Verify(ctx context.Context, req core.VerifyRequest) (core.VerifyResult, error) {
	if strings.TrimSpace(req.Address) == "" || strings.TrimSpace(req.Signature) == "" {
		return core.VerifyResult{}, core.ErrMissingFields
	}
	if strings.TrimSpace(req.SessionID) == "" {
		return core.VerifyResult{}, core.ErrInvalidSession
	}

	session, err := s.connect(ctx, req)
	if err != nil {
		return core.VerifyResult{}, err
	}

	s.notify(ctx, session.ID, session.Address)

	result := core.VerifyResult{
		SessionID: session.ID,
		Address:   session.Address,
	}
	if s.tokenizer != nil {
		token, err := s.tokenizer.SessionToToken(&session)
		if err != nil {
			s.log.Error("failed to issue session token", zap.String("session_id", session.ID), zap.Error(err))
		} else {
			result.Token = token
		}
	}

	return result, nil
}

// connect runs the read-compare-write of a verification under the session's
// stripe lock and returns the connected session.
func (s *AuthService) connect(ctx context.Context, req core.VerifyRequest) (core.Session, error) {
	mu := s.lockFor(req.SessionID)
	mu.Lock()
	defer mu.Unlock()

	session, err := s.GetSession(ctx, req.SessionID)
	if err != nil {
		return core.Session{}, err
	}

	if req.Nonce != "" && req.Nonce != session.Nonce {
		s.log.Info("verify rejected: nonce mismatch", zap.String("session_id", session.ID))
		return core.Session{}, core.ErrInvalidNonce
	}

	recovered, err := s.verifier.Recover(core.LoginMessage(session.Nonce), req.Signature)
	if err != nil {
		s.log.Info("verify rejected: signature unusable", zap.String("session_id", session.ID), zap.Error(err))
		return core.Session{}, err
	}

	if !core.SameAddress(recovered, req.Address) {
		s.log.Info("verify rejected: signer mismatch",
			zap.String("session_id", session.ID),
			zap.String("recovered", recovered),
			zap.String("claimed", req.Address))
		return core.Session{}, &core.MismatchError{Recovered: recovered, Claimed: req.Address}
	}

	if session.Connected {
		if !core.SameAddress(session.Address, recovered) {
			s.log.Warn("verify rejected: session bound to another address",
				zap.String("session_id", session.ID),
				zap.String("bound", session.Address),
				zap.String("recovered", recovered))
			return core.Session{}, core.ErrAddressConflict
		}
		// Same signer again: nothing to write
		return session, nil
	}

	session.Connected = true
	session.Address = recovered
	if err := s.commit(ctx, session); err != nil {
		return core.Session{}, err
	}
	s.log.Info("session connected", zap.String("session_id", session.ID), zap.String("address", recovered))
	return session, nil
}

// commit persists a newly connected session; single-use sessions are consumed
func (s *AuthService) commit(ctx context.Context, session core.Session) error {
	if session.SingleUse {
		if err := s.store.Delete(ctx, session.ID); err != nil {
			return fmt.Errorf("failed to consume nonce: %w", err)
		}
		return nil
	}

	if err := s.store.Set(ctx, session); err != nil {
		return fmt.Errorf("failed to connect session: %w", err)
	}
	return nil
}

// notify is best effort and never fails the verification. It waits at most
// notifyTimeout for the notifier; a slower publish finishes in the background.
func (s *AuthService) notify(ctx context.Context, sessionID, address string) {
	if s.notifier == nil {
		return
	}

	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.notifyTimeout)
	done := make(chan error, 1)
	go func() {
		defer cancel()
		done <- s.notifier.NotifySessionConnected(nctx, sessionID, address)
	}()

	timer := time.NewTimer(s.notifyTimeout)
	defer timer.Stop()

	select {
	case err := <-done:
		if err != nil {
			s.log.Warn("failed to emit session connected", zap.String("session_id", sessionID), zap.Error(err))
		}
	case <-timer.C:
		s.log.Warn("session connected event still pending, not waiting", zap.String("session_id", sessionID))
	case <-ctx.Done():
		s.log.Warn("request ended before session connected event was sent", zap.String("session_id", sessionID))
	}
}

// Stats reports the active backend and stored session count
func (s *AuthService) Stats(ctx context.Context) (usingPrimary bool, sessions int, err error) {
	sessions, err = s.store.Size(ctx)
	return s.store.UsingPrimary(), sessions, err
}

// SessionIDs lists stored session ids, for diagnostics
func (s *AuthService) SessionIDs(ctx context.Context) ([]string, error) {
	return s.store.Keys(ctx)
}

// ValidateToken parses a session attestation token
func (s *AuthService) ValidateToken(token string) (*core.Session, error) {
	if s.tokenizer == nil {
		return nil, core.ErrInvalidToken
	}
	return s.tokenizer.TokenToSession(token)
}

func (s *AuthService) lockFor(sessionID string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(sessionID))
	return &s.locks[h.Sum32()%lockStripes]
}
