// Package cache provides the keyed expiring-lease store used for cached
// rate-limit markers. A marker records "this (user, operation) pair is
// rate-limited until T"; the TTL keeps stale markers from outliving the
// window they describe. Races are benign: the last writer's expiry wins,
// which only ever extends caution.
package cache

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// MarkerStore is the core's entire dependency on the shared cache:
// get a timestamp by key, set one with a TTL.
type MarkerStore interface {
	Get(ctx context.Context, key string) (time.Time, bool, error)
	Set(ctx context.Context, key string, until time.Time, ttl time.Duration) error
}

type RedisMarkerStore struct {
	client *redis.Client
}

func NewRedisMarkerStore(client *redis.Client) *RedisMarkerStore {
	return &RedisMarkerStore{client: client}
}

func (s *RedisMarkerStore) Get(ctx context.Context, key string) (time.Time, bool, error) {
	val, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	unix, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return time.Time{}, false, nil
	}
	return time.Unix(unix, 0), true, nil
}

func (s *RedisMarkerStore) Set(ctx context.Context, key string, until time.Time, ttl time.Duration) error {
	return s.client.Set(ctx, key, strconv.FormatInt(until.Unix(), 10), ttl).Err()
}
