package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

// pendingValue marks a key whose create has not finished yet.
const pendingValue = "0"

// maxPendingTTL bounds how long an unbound claim blocks replays after a crash
// between Claim and Bind.
const maxPendingTTL = time.Minute

// RedisIdempotencyStore keeps idempotency keys in Redis. A claim lives for at
// most maxPendingTTL; Bind extends it to the full ttl.
type RedisIdempotencyStore struct {
	rdb        redis.Cmdable
	ttl        time.Duration
	pendingTTL time.Duration
}

func NewRedisIdempotencyStore(rdb redis.Cmdable, ttl time.Duration) *RedisIdempotencyStore {
	pendingTTL := maxPendingTTL
	if ttl < pendingTTL {
		pendingTTL = ttl
	}
	return &RedisIdempotencyStore{rdb: rdb, ttl: ttl, pendingTTL: pendingTTL}
}

func redisKey(key string) string {
	return fmt.Sprintf("idempotent-key:%s", key)
}

func (s *RedisIdempotencyStore) Claim(ctx context.Context, key string) (bool, int64, error) {
	ok, err := s.rdb.SetNX(ctx, redisKey(key), pendingValue, s.pendingTTL).Result()
	if err != nil {
		return false, 0, fmt.Errorf("claim idempotency key: %w", err)
	}
	if ok {
		return true, 0, nil
	}

	val, err := s.rdb.Get(ctx, redisKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		// expired between SETNX and GET; the caller may retry
		return false, 0, nil
	}
	if err != nil {
		return false, 0, fmt.Errorf("read idempotency key: %w", err)
	}

	orderID, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return false, 0, fmt.Errorf("corrupt idempotency key %q: %w", key, err)
	}
	return false, orderID, nil
}

func (s *RedisIdempotencyStore) Bind(ctx context.Context, key string, orderID int64) error {
	return s.rdb.Set(ctx, redisKey(key), strconv.FormatInt(orderID, 10), s.ttl).Err()
}

func (s *RedisIdempotencyStore) Release(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, redisKey(key)).Err()
}
