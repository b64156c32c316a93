package redis

// Package redis provides the Redis-backed session store for the portal.
// Sessions are hashes keyed by an opaque cookie or token value; TTL
// enforcement is owned by Redis.

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	apperrors "github.com/guardgate/portal/internal/errors"
	"github.com/guardgate/portal/internal/ports"
)

// SessionStore implements ports.SessionStore over Redis hashes.
type SessionStore struct {
	client redis.UniversalClient
	prefix string
}

var _ ports.SessionStore = (*SessionStore)(nil)

// NewSessionStore creates a Redis-based session store.
func NewSessionStore(client redis.UniversalClient) *SessionStore {
	return &SessionStore{client: client}
}

// NewSessionStoreWithPrefix creates a Redis session store with a key prefix.
func NewSessionStoreWithPrefix(client redis.UniversalClient, prefix string) *SessionStore {
	return &SessionStore{client: client, prefix: prefix}
}

func (s *SessionStore) key(k string) string { return s.prefix + k }

// Exists reports whether the session key is present.
func (s *SessionStore) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, s.key(key)).Result()
	if err != nil {
		return false, apperrors.Wrapf(err, apperrors.ErrCodeInternal, "session store exists %q", key)
	}
	return n > 0, nil
}

// GetField returns the value of a single field, or "" when absent.
func (s *SessionStore) GetField(ctx context.Context, key, field string) (string, error) {
	v, err := s.client.HGet(ctx, s.key(key), field).Result()
	if err != nil {
		if err == redis.Nil {
			return "", nil
		}
		return "", apperrors.Wrapf(err, apperrors.ErrCodeInternal, "session store get %q.%q", key, field)
	}
	return v, nil
}

// GetAllFields returns every field of a session hash.
func (s *SessionStore) GetAllFields(ctx context.Context, key string) (map[string]string, error) {
	m, err := s.client.HGetAll(ctx, s.key(key)).Result()
	if err != nil {
		return nil, apperrors.Wrapf(err, apperrors.ErrCodeInternal, "session store get all %q", key)
	}
	return m, nil
}

// SetFields writes fields and refreshes the key TTL in one pipeline.
func (s *SessionStore) SetFields(ctx context.Context, key string, fields map[string]string, ttl time.Duration) error {
	if len(fields) == 0 {
		return s.Expire(ctx, key, ttl)
	}
	args := make(map[string]any, len(fields))
	for f, v := range fields {
		args[f] = v
	}
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, s.key(key), args)
	if ttl > 0 {
		pipe.Expire(ctx, s.key(key), ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return apperrors.Wrapf(err, apperrors.ErrCodeInternal, "session store set %q", key)
	}
	return nil
}

// IncrField atomically increments a numeric field and refreshes the TTL.
func (s *SessionStore) IncrField(ctx context.Context, key, field string, ttl time.Duration) (int64, error) {
	pipe := s.client.TxPipeline()
	incr := pipe.HIncrBy(ctx, s.key(key), field, 1)
	if ttl > 0 {
		pipe.Expire(ctx, s.key(key), ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, apperrors.Wrapf(err, apperrors.ErrCodeInternal, "session store incr %q.%q", key, field)
	}
	return incr.Val(), nil
}

// DeleteFields removes fields from a session hash.
func (s *SessionStore) DeleteFields(ctx context.Context, key string, fields ...string) error {
	if len(fields) == 0 {
		return nil
	}
	if err := s.client.HDel(ctx, s.key(key), fields...).Err(); err != nil {
		return apperrors.Wrapf(err, apperrors.ErrCodeInternal, "session store delete fields %q", key)
	}
	return nil
}

// Delete removes an entire session.
func (s *SessionStore) Delete(ctx context.Context, key string) error {
	if key == "" {
		return nil
	}
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return apperrors.Wrapf(err, apperrors.ErrCodeInternal, "session store delete %q", key)
	}
	return nil
}

// Expire refreshes the TTL of a session key.
func (s *SessionStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("ttl must be positive, got %s", ttl)
	}
	if err := s.client.Expire(ctx, s.key(key), ttl).Err(); err != nil {
		return apperrors.Wrapf(err, apperrors.ErrCodeInternal, "session store expire %q", key)
	}
	return nil
}
