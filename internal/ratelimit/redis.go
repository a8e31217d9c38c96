package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "fixflow:ratelimit"

// RedisStore is the shared CounterStore for multi-node deployments. Keys are
// bucketed by window start, so the reset instant is derived from the key
// instead of a TTL round trip; the expiry only garbage-collects stale buckets.
type RedisStore struct {
	client *redis.Client
	now    Clock
}

// NewRedisStore creates a RedisStore. now may be nil for wall-clock time.
func NewRedisStore(client *redis.Client, now Clock) *RedisStore {
	if now == nil {
		now = time.Now
	}
	return &RedisStore{client: client, now: now}
}

func (s *RedisStore) Incr(ctx context.Context, key string, window time.Duration) (int64, time.Time, error) {
	start := s.now().Truncate(window)
	bucket := fmt.Sprintf("%s:%s:%d", redisKeyPrefix, key, start.Unix())

	pipe := s.client.TxPipeline()
	incr := pipe.Incr(ctx, bucket)
	pipe.Expire(ctx, bucket, window+window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, time.Time{}, fmt.Errorf("ratelimit incr: %w", err)
	}
	return incr.Val(), start.Add(window), nil
}
