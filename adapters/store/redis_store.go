package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/layer-3/walletauth/core"
	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix namespaces session keys in Redis
const DefaultKeyPrefix = "session:"

// RedisStore is the primary session backend
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a Redis backend over a shared client
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: DefaultKeyPrefix,
	}
}

// Ping checks that the server is reachable
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Set writes the session with SETEX, refreshing its TTL
func (s *RedisStore) Set(ctx context.Context, session core.Session, ttl time.Duration) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	if err := s.client.SetEx(ctx, s.key(session.ID), payload, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set session: %w", err)
	}

	return nil
}

// Get loads a session, found is false when the key is missing
func (s *RedisStore) Get(ctx context.Context, id string) (core.Session, bool, error) {
	payload, err := s.client.Get(ctx, s.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return core.Session{}, false, nil
		}
		return core.Session{}, false, fmt.Errorf("failed to get session: %w", err)
	}

	var session core.Session
	if err := json.Unmarshal(payload, &session); err != nil {
		return core.Session{}, false, fmt.Errorf("failed to decode session: %w", err)
	}
	if session.ID == "" {
		session.ID = id
	}

	return session, true, nil
}

// Exists checks if the session key is present
func (s *RedisStore) Exists(ctx context.Context, id string) (bool, error) {
	n, err := s.client.Exists(ctx, s.key(id)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check session: %w", err)
	}

	return n > 0, nil
}

// Delete removes the session key
func (s *RedisStore) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, s.key(id)).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	return nil
}

// Keys enumerates session identifiers with SCAN
func (s *RedisStore) Keys(ctx context.Context) ([]string, error) {
	var ids []string

	iter := s.client.Scan(ctx, 0, s.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		ids = append(ids, strings.TrimPrefix(iter.Val(), s.prefix))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan sessions: %w", err)
	}

	return ids, nil
}

// Client returns the Redis client shared with the event stream
func (s *RedisStore) Client() *redis.Client {
	return s.client
}

// Close closes the Redis connection
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) key(id string) string {
	return s.prefix + id
}
