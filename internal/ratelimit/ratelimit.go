// Package ratelimit enforces fixed-window request quotas per principal and
// operation class. Every configured tier of a class must admit a request.
//
// Windows are aligned to wall-clock boundaries, so a burst straddling a
// boundary can see up to twice the limit. Checks stay O(1) with no sweeper.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var ErrRateLimited = errors.New("rate limited")

// Class names an operation class with its own tiers.
type Class string

const (
	ClassLogin    Class = "login"
	ClassRegister Class = "register"
	ClassReset    Class = "reset"
	ClassAPI      Class = "api"
)

// Tier is one fixed window and its limit.
type Tier struct {
	Window time.Duration
	Limit  int64
}

// Counter atomically increments the bucket identified by key within the
// window starting at windowStart and returns the new count.
type Counter interface {
	Incr(ctx context.Context, key string, windowStart time.Time, window time.Duration) (int64, error)
}

// LimitError is returned when a tier rejects a request.
type LimitError struct {
	Class      Class
	Window     time.Duration
	Limit      int64
	RetryAfter time.Duration
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("rate limited: %s allows %d per %s, retry in %s", e.Class, e.Limit, e.Window, e.RetryAfter)
}

func (e *LimitError) Is(target error) bool { return target == ErrRateLimited }

type Limiter struct {
	counter Counter
	tiers   map[Class][]Tier
	now     func() time.Time
}

type Option func(*Limiter)

// WithClock overrides the time source.
func WithClock(fn func() time.Time) Option {
	return func(l *Limiter) {
		if fn != nil {
			l.now = fn
		}
	}
}

func New(counter Counter, tiers map[Class][]Tier, opts ...Option) *Limiter {
	l := &Limiter{
		counter: counter,
		tiers:   tiers,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Admit counts one request for key in class. Classes with no tiers are
// unlimited. All tiers are incremented even after one rejects, so every
// window reflects the attempt.
func (l *Limiter) Admit(ctx context.Context, key string, class Class) error {
	tiers := l.tiers[class]
	if len(tiers) == 0 {
		return nil
	}

	now := l.now()
	var rejected *LimitError
	for _, t := range tiers {
		start := now.Truncate(t.Window)
		count, err := l.counter.Incr(ctx, bucketKey(class, t.Window, key), start, t.Window)
		if err != nil {
			return fmt.Errorf("increment %s counter: %w", class, err)
		}
		if count <= t.Limit {
			continue
		}
		retry := start.Add(t.Window).Sub(now)
		if rejected == nil || retry > rejected.RetryAfter {
			rejected = &LimitError{Class: class, Window: t.Window, Limit: t.Limit, RetryAfter: retry}
		}
	}
	if rejected != nil {
		return rejected
	}
	return nil
}

func bucketKey(class Class, window time.Duration, key string) string {
	return fmt.Sprintf("rl:%s:%d:%s", class, int64(window/time.Second), key)
}
