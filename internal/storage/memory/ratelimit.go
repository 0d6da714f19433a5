package memory

import (
	"context"
	"sync"
	"time"
)

const sweepEvery = 1024

type bucket struct {
	windowStart time.Time
	window      time.Duration
	count       int64
}

// RateCounter is a fixed-window counter set guarded by one mutex, so the
// increment and the comparison done by the caller see a single value.
type RateCounter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	calls   int
}

func NewRateCounter() *RateCounter {
	return &RateCounter{buckets: make(map[string]*bucket)}
}

func (c *RateCounter) Incr(ctx context.Context, key string, windowStart time.Time, window time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.calls++
	if c.calls%sweepEvery == 0 {
		c.sweep(windowStart)
	}

	b, ok := c.buckets[key]
	if !ok || !b.windowStart.Equal(windowStart) {
		b = &bucket{windowStart: windowStart, window: window}
		c.buckets[key] = b
	}
	b.count++
	return b.count, nil
}

func (c *RateCounter) sweep(now time.Time) {
	for k, b := range c.buckets {
		if !now.Before(b.windowStart.Add(b.window)) {
			delete(c.buckets, k)
		}
	}
}
