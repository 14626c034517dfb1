package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps one string key per user: <prefix>:<userID> → bill id.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore returns a store using rdb.  An empty prefix defaults to
// "active_bill"; a zero ttl keeps keys forever.
func NewRedisStore(rdb *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "active_bill"
	}
	return &RedisStore{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (s *RedisStore) key(userID int64) string {
	return s.prefix + ":" + strconv.FormatInt(userID, 10)
}

// Save overwrites the user's bill id and refreshes the TTL.
func (s *RedisStore) Save(ctx context.Context, userID, billID int64) error {
	if err := s.rdb.Set(ctx, s.key(userID), billID, s.ttl).Err(); err != nil {
		return fmt.Errorf("store: redis set: %w", err)
	}
	return nil
}

func (s *RedisStore) Load(ctx context.Context, userID int64) (int64, error) {
	v, err := s.rdb.Get(ctx, s.key(userID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("store: redis get: %w", err)
	}
	return v, nil
}

// Delete is idempotent.
func (s *RedisStore) Delete(ctx context.Context, userID int64) error {
	if err := s.rdb.Del(ctx, s.key(userID)).Err(); err != nil {
		return fmt.Errorf("store: redis del: %w", err)
	}
	return nil
}
