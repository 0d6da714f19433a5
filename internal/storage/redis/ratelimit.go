package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateCounter keeps fixed-window counters in Redis. INCR is atomic, so two
// concurrent requests never observe the same count.
type RateCounter struct {
	client redis.UniversalClient
}

func NewRateCounter(client redis.UniversalClient) *RateCounter {
	return &RateCounter{client: client}
}

func (c *RateCounter) Incr(ctx context.Context, key string, windowStart time.Time, window time.Duration) (int64, error) {
	k := fmt.Sprintf("%s:%d", key, windowStart.Unix())

	pipe := c.client.TxPipeline()
	incr := pipe.Incr(ctx, k)
	pipe.ExpireAt(ctx, k, windowStart.Add(window))
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("redis incr: %w", err)
	}
	return incr.Val(), nil
}
