package memory

import (
	"context"

	"github.com/rryowa/listarr/internal/models"
	"github.com/rryowa/listarr/internal/storage"
)

func (s *Storage) CreateResetToken(ctx context.Context, token models.PasswordResetToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.resetTokens[token.Selector] = token
	return nil
}

func (s *Storage) GetResetTokenBySelector(ctx context.Context, selector string) (*models.PasswordResetToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tok, ok := s.resetTokens[selector]
	if !ok {
		return nil, storage.ErrResetTokenNotFound
	}
	return &tok, nil
}
