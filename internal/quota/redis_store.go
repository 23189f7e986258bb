package quota

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	redisKeyPrefix  = "ielts:quota:"
	maxWatchRetries = 10
)

// RedisStore keeps quota records in Redis hashes and serializes updates with
// optimistic WATCH/MULTI/EXEC transactions.
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore creates a Redis-backed quota store.
func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func redisKey(userID uuid.UUID) string {
	return redisKeyPrefix + userID.String()
}

func (s *RedisStore) Get(ctx context.Context, userID uuid.UUID) (Record, bool, error) {
	vals, err := s.rdb.HGetAll(ctx, redisKey(userID)).Result()
	if err != nil {
		return Record{}, false, fmt.Errorf("reading quota: %w", err)
	}
	if len(vals) == 0 {
		return Record{}, false, nil
	}
	return decodeHash(vals), true, nil
}

func (s *RedisStore) Put(ctx context.Context, userID uuid.UUID, rec Record) error {
	err := s.rdb.HSet(ctx, redisKey(userID), "used", rec.Used, "date", rec.LastResetDate).Err()
	if err != nil {
		return fmt.Errorf("writing quota: %w", err)
	}
	return nil
}

// Update retries on write conflicts. An error returned by fn aborts the
// transaction without writing and is passed through unchanged.
func (s *RedisStore) Update(ctx context.Context, userID uuid.UUID, fn func(rec *Record) error) (Record, error) {
	key := redisKey(userID)
	var out Record

	txf := func(tx *redis.Tx) error {
		vals, err := tx.HGetAll(ctx, key).Result()
		if err != nil {
			return err
		}
		rec := decodeHash(vals)
		if err := fn(&rec); err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, "used", rec.Used, "date", rec.LastResetDate)
			return nil
		})
		if err != nil {
			return err
		}
		out = rec
		return nil
	}

	for i := 0; i < maxWatchRetries; i++ {
		err := s.rdb.Watch(ctx, txf, key)
		if err == nil {
			return out, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return Record{}, err
	}
	return Record{}, fmt.Errorf("quota update for %s: too many conflicting writers", userID)
}

func decodeHash(vals map[string]string) Record {
	used, _ := strconv.Atoi(vals["used"])
	if used < 0 {
		used = 0
	}
	return Record{Used: used, LastResetDate: vals["date"]}
}
