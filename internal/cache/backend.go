package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Backend is a namespaced key-value tier. Keys passed in are relative to the
// backend's prefix.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, val []byte) error
	Del(ctx context.Context, keys ...string) error
	Incr(ctx context.Context, key string) (int64, error)
	DeleteByPrefix(ctx context.Context, prefix string) (int, error)
}

// RedisBackend stores entries under prefix. A zero ttl keeps them until
// deleted.
type RedisBackend struct {
	rdb    redis.Cmdable
	prefix string
	ttl    time.Duration
}

func NewRedisBackend(rdb redis.Cmdable, prefix string, ttl time.Duration) *RedisBackend {
	return &RedisBackend{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (b *RedisBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := b.rdb.Get(ctx, b.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("cache get %s: %w", key, err)
	}
	return val, true, nil
}

func (b *RedisBackend) Set(ctx context.Context, key string, val []byte) error {
	if err := b.rdb.Set(ctx, b.prefix+key, val, b.ttl).Err(); err != nil {
		return fmt.Errorf("cache set %s: %w", key, err)
	}
	return nil
}

func (b *RedisBackend) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = b.prefix + k
	}
	if err := b.rdb.Del(ctx, full...).Err(); err != nil {
		return fmt.Errorf("cache del: %w", err)
	}
	return nil
}

// Incr never expires the counter, regardless of the backend ttl.
func (b *RedisBackend) Incr(ctx context.Context, key string) (int64, error) {
	n, err := b.rdb.Incr(ctx, b.prefix+key).Result()
	if err != nil {
		return 0, fmt.Errorf("cache incr %s: %w", key, err)
	}
	return n, nil
}

func (b *RedisBackend) DeleteByPrefix(ctx context.Context, prefix string) (int, error) {
	deleted := 0
	iter := b.rdb.Scan(ctx, 0, b.prefix+prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := b.rdb.Del(ctx, iter.Val()).Err(); err != nil {
			return deleted, fmt.Errorf("cache del %s: %w", iter.Val(), err)
		}
		deleted++
	}
	if err := iter.Err(); err != nil {
		return deleted, fmt.Errorf("cache scan %s: %w", prefix, err)
	}
	return deleted, nil
}
