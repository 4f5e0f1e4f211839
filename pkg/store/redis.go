package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisStore persists user records as JSON values keyed by uid. Records have
// no TTL; sessions are invalidated by the auth flow, not by expiry.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a Redis-backed user store.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: "user:",
	}
}

func (s *RedisStore) key(uid string) string {
	return s.prefix + uid
}

// Load returns the stored record, or a default record when none exists.
func (s *RedisStore) Load(ctx context.Context, uid string) (*UserRecord, error) {
	val, err := s.client.Get(ctx, s.key(uid)).Result()
	if err == redis.Nil {
		return NewUserRecord(uid), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read user record: %w", err)
	}

	rec := &UserRecord{}
	if err := json.Unmarshal([]byte(val), rec); err != nil {
		return nil, fmt.Errorf("failed to decode user record for %s: %w", uid, err)
	}
	return rec, nil
}

// Save persists the record.
func (s *RedisStore) Save(ctx context.Context, rec *UserRecord) error {
	if rec.UID == "" {
		return fmt.Errorf("user record is missing a uid")
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode user record: %w", err)
	}
	if err := s.client.Set(ctx, s.key(rec.UID), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to persist user record: %w", err)
	}
	return nil
}
