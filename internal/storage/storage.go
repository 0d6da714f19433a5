package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rryowa/listarr/internal/models"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrUserExists         = errors.New("user already exists")
	ErrSessionNotFound    = errors.New("session not found")
	ErrSessionNotActive   = errors.New("session is not active")
	ErrAPIKeyNotFound     = errors.New("api key not found")
	ErrResetTokenNotFound = errors.New("reset token not found")
)

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Storage interface {
	UserRepository
	SessionRepository
	APIKeyRepository
	ResetTokenRepository

	// ResetPasswordTx consumes the reset token, stores the new password hash
	// and revokes every session of the user as one unit.
	ResetPasswordTx(ctx context.Context, tokenID, userID, passwordHash string, at time.Time) error
}

type UserRepository interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	CountUsers(ctx context.Context) (int64, error)
}

type SessionRepository interface {
	CreateSession(ctx context.Context, session models.RefreshSession) error
	GetSessionBySelector(ctx context.Context, selector string) (*models.RefreshSession, error)
	// RotateSession marks the active session with oldSelector as used and
	// stores next. It fails with ErrSessionNotActive if the old session was
	// already rotated or revoked.
	RotateSession(ctx context.Context, oldSelector string, next models.RefreshSession) error
	RevokeSession(ctx context.Context, id string) error
	RevokeAllUserSessions(ctx context.Context, userID string) error
}

type APIKeyRepository interface {
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
	GetAPIKey(ctx context.Context, id string) (*models.APIKey, error)
	FindAPIKeysByPrefix(ctx context.Context, prefix string) ([]models.APIKey, error)
	ListAPIKeys(ctx context.Context, ownerID string) ([]models.APIKey, error)
	UpdateAPIKey(ctx context.Context, key *models.APIKey) error
	TouchAPIKey(ctx context.Context, id string, at time.Time, ip string) error
}

type ResetTokenRepository interface {
	CreateResetToken(ctx context.Context, token models.PasswordResetToken) error
	GetResetTokenBySelector(ctx context.Context, selector string) (*models.PasswordResetToken, error)
}

// TokenStorage is the access-token denylist, keyed by jti.
type TokenStorage interface {
	InvalidateToken(ctx context.Context, jti string, expiration time.Duration) error
	IsTokenInvalidated(ctx context.Context, jti string) (bool, error)
}
