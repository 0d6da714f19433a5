package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const denylistPrefix = "denylist:"

type TokenStorage struct {
	client redis.UniversalClient
}

func NewTokenStorage(client redis.UniversalClient) *TokenStorage {
	return &TokenStorage{client: client}
}

// InvalidateToken кладет jti в черный список до истечения access токена.
func (s *TokenStorage) InvalidateToken(ctx context.Context, jti string, expiration time.Duration) error {
	if expiration <= 0 {
		return nil
	}
	return s.client.Set(ctx, denylistPrefix+jti, "invalidated", expiration).Err()
}

// IsTokenInvalidated проверяет наличие jti в Redis.
func (s *TokenStorage) IsTokenInvalidated(ctx context.Context, jti string) (bool, error) {
	result, err := s.client.Get(ctx, denylistPrefix+jti).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	} else if err != nil {
		return false, err
	}
	return result == "invalidated", nil
}
