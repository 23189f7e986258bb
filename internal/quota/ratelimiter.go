package quota

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const slidingKeyPrefix = "ielts:ratelimit:sliding:"

// RateLimiter is a Redis sorted-set sliding window. It guards the shared AI
// key so at most max calls land in any trailing window, per key.
type RateLimiter struct {
	rdb    redis.Cmdable
	name   string
	max    int
	window time.Duration
	now    func() time.Time
}

// NewRateLimiter creates a sliding-window limiter. name separates limiters
// that share a Redis instance.
func NewRateLimiter(rdb redis.Cmdable, name string, max int, window time.Duration) *RateLimiter {
	return &RateLimiter{rdb: rdb, name: name, max: max, window: window, now: time.Now}
}

// Max returns the number of calls allowed per window.
func (rl *RateLimiter) Max() int {
	return rl.max
}

func (rl *RateLimiter) key(id string) string {
	return slidingKeyPrefix + rl.name + ":" + id
}

// Allow records a call for id and reports whether it fits in the window.
// Denied calls are not recorded.
func (rl *RateLimiter) Allow(ctx context.Context, id string) (bool, error) {
	key := rl.key(id)
	now := rl.now()
	windowStart := now.Add(-rl.window).UnixMilli()

	pipe := rl.rdb.Pipeline()
	pipe.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatInt(windowStart, 10))
	countCmd := pipe.ZCard(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("rate limiter pipeline (clean+count): %w", err)
	}

	count := countCmd.Val()
	if count >= int64(rl.max) {
		return false, nil
	}

	pipe = rl.rdb.Pipeline()
	member := fmt.Sprintf("%d:%d", now.UnixNano(), count)
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(now.UnixMilli()), Member: member})
	pipe.Expire(ctx, key, rl.window+rl.window/2)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("rate limiter pipeline (add): %w", err)
	}

	return true, nil
}

// Usage returns the number of calls currently inside the window for id.
func (rl *RateLimiter) Usage(ctx context.Context, id string) (int, error) {
	now := rl.now()
	from := strconv.FormatInt(now.Add(-rl.window).UnixMilli(), 10)
	to := strconv.FormatInt(now.UnixMilli(), 10)

	count, err := rl.rdb.ZCount(ctx, rl.key(id), from, to).Result()
	if err != nil {
		return 0, fmt.Errorf("getting window usage: %w", err)
	}
	return int(count), nil
}
