package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// WindowCounter counts hits per key in fixed windows shared by every replica.
type WindowCounter struct {
	rdb    goredis.UniversalClient
	prefix string
	now    func() time.Time
}

func NewWindowCounter(rdb goredis.UniversalClient, prefix string) *WindowCounter {
	if prefix == "" {
		prefix = "ratelimit"
	}
	return &WindowCounter{rdb: rdb, prefix: prefix, now: time.Now}
}

// Hit increments key's counter for the current window and returns the new
// count plus the time left in the window.
func (w *WindowCounter) Hit(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	now := w.now()
	start := now.Truncate(window)
	redisKey := fmt.Sprintf("%s:%s:%d", w.prefix, key, start.Unix())

	var incr *goredis.IntCmd
	_, err := w.rdb.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		incr = p.Incr(ctx, redisKey)
		p.Expire(ctx, redisKey, window+time.Second)
		return nil
	})
	if err != nil {
		return 0, 0, fmt.Errorf("redis window incr: %w", err)
	}
	return incr.Val(), start.Add(window).Sub(now), nil
}
