package store

import (
	"context"
	"time"

	"github.com/layer-3/walletauth/core"
	"github.com/patrickmn/go-cache"
)

// MemoryStore is the in-process secondary backend.
// Contents are lost on restart; entries expire with the session TTL.
type MemoryStore struct {
	sessions *cache.Cache
}

// NewMemoryStore creates an in-memory backend sweeping expired sessions every cleanupInterval
func NewMemoryStore(cleanupInterval time.Duration) *MemoryStore {
	return &MemoryStore{
		sessions: cache.New(cache.NoExpiration, cleanupInterval),
	}
}

// Set stores the session, a non-positive ttl never expires
func (s *MemoryStore) Set(_ context.Context, session core.Session, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = cache.NoExpiration
	}
	s.sessions.Set(session.ID, session, ttl)
	return nil
}

// Get retrieves a session by id
func (s *MemoryStore) Get(_ context.Context, id string) (core.Session, bool, error) {
	v, ok := s.sessions.Get(id)
	if !ok {
		return core.Session{}, false, nil
	}
	return v.(core.Session), true, nil
}

// Exists checks if an unexpired session is stored
func (s *MemoryStore) Exists(_ context.Context, id string) (bool, error) {
	_, ok := s.sessions.Get(id)
	return ok, nil
}

// Delete removes a session
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.sessions.Delete(id)
	return nil
}

// Keys lists unexpired session ids
func (s *MemoryStore) Keys(_ context.Context) ([]string, error) {
	items := s.sessions.Items()
	ids := make([]string, 0, len(items))
	for id := range items {
		ids = append(ids, id)
	}
	return ids, nil
}

// Clear removes all sessions
func (s *MemoryStore) Clear() {
	s.sessions.Flush()
}
