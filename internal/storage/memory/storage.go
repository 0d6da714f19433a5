// Package memory holds process-local repositories used in development mode
// and in tests. All maps share one lock so multi-step operations stay atomic.
package memory

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rryowa/listarr/internal/models"
	"github.com/rryowa/listarr/internal/storage"
)

var _ storage.Storage = (*Storage)(nil)

type Storage struct {
	mu          sync.RWMutex
	log         *zap.SugaredLogger
	users       map[string]models.User
	sessions    map[string]models.RefreshSession // by selector
	apiKeys     map[string]models.APIKey
	resetTokens map[string]models.PasswordResetToken // by selector
}

func NewStorage(log *zap.SugaredLogger) *Storage {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Storage{
		log:         log,
		users:       make(map[string]models.User),
		sessions:    make(map[string]models.RefreshSession),
		apiKeys:     make(map[string]models.APIKey),
		resetTokens: make(map[string]models.PasswordResetToken),
	}
}

func (s *Storage) ResetPasswordTx(ctx context.Context, tokenID, userID, passwordHash string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		selector string
		found    bool
	)
	for sel, t := range s.resetTokens {
		if t.ID == tokenID && t.UsedAt == nil {
			selector, found = sel, true
			break
		}
	}
	if !found {
		return storage.ErrResetTokenNotFound
	}
	user, ok := s.users[userID]
	if !ok {
		return storage.ErrUserNotFound
	}

	tok := s.resetTokens[selector]
	usedAt := at
	tok.UsedAt = &usedAt
	s.resetTokens[selector] = tok

	user.PasswordHash = passwordHash
	user.UpdatedAt = at
	s.users[userID] = user

	s.revokeUserSessionsLocked(userID)
	return nil
}
