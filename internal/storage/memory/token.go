package memory

import (
	"context"
	"sync"
	"time"
)

// TokenStorage is an in-process access-token denylist. Expired entries are
// dropped when looked up and by a sweep every sweepEvery insertions.
type TokenStorage struct {
	mu      sync.Mutex
	entries map[string]time.Time
	now     func() time.Time
	calls   int
}

func NewTokenStorage() *TokenStorage {
	return &TokenStorage{entries: make(map[string]time.Time), now: time.Now}
}

func (s *TokenStorage) InvalidateToken(ctx context.Context, jti string, expiration time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if expiration <= 0 {
		return nil
	}
	now := s.now()
	s.calls++
	if s.calls%sweepEvery == 0 {
		s.sweep(now)
	}
	s.entries[jti] = now.Add(expiration)
	return nil
}

func (s *TokenStorage) IsTokenInvalidated(ctx context.Context, jti string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	until, ok := s.entries[jti]
	if !ok {
		return false, nil
	}
	if !s.now().Before(until) {
		delete(s.entries, jti)
		return false, nil
	}
	return true, nil
}

func (s *TokenStorage) sweep(now time.Time) {
	for jti, until := range s.entries {
		if !now.Before(until) {
			delete(s.entries, jti)
		}
	}
}
