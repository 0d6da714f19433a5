package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rryowa/listarr/internal/models"
	"github.com/rryowa/listarr/internal/storage"
)

type SessionRepository struct {
	db storage.DBTX
}

func NewSessionRepository(db storage.DBTX) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) CreateSession(ctx context.Context, session models.RefreshSession) error {
	query := `INSERT INTO sessions (id, user_id, selector, verifier_hash, client_ip, user_agent, status, expires_at, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := r.db.ExecContext(
		ctx,
		query,
		session.ID,
		session.UserID,
		session.Selector,
		session.VerifierHash,
		session.IPAddress,
		session.UserAgent,
		session.Status,
		session.ExpiresAt,
		session.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	return nil
}

func (r *SessionRepository) GetSessionBySelector(ctx context.Context, selector string) (*models.RefreshSession, error) {
	var session models.RefreshSession
	query := `SELECT id, user_id, selector, verifier_hash, client_ip, user_agent, status, expires_at, created_at FROM sessions WHERE selector = $1`
	err := r.db.QueryRowContext(ctx, query, selector).Scan(
		&session.ID,
		&session.UserID,
		&session.Selector,
		&session.VerifierHash,
		&session.IPAddress,
		&session.UserAgent,
		&session.Status,
		&session.ExpiresAt,
		&session.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("session with selector %s: %w", selector, storage.ErrSessionNotFound)
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return &session, nil
}

// MarkSessionAsUsed помечает активную сессию как использованную.
// Условие на status защищает от двух параллельных ротаций одного токена.
func (r *SessionRepository) MarkSessionAsUsed(ctx context.Context, selector string) error {
	query := `UPDATE sessions SET status = 'used' WHERE selector = $1 AND status = 'active'`
	res, err := r.db.ExecContext(ctx, query, selector)
	if err != nil {
		return fmt.Errorf("failed to mark session as used: %w", err)
	}
	return expectOneRow(res, storage.ErrSessionNotActive)
}

func (r *SessionRepository) RevokeSession(ctx context.Context, id string) error {
	query := `UPDATE sessions SET status = 'revoked' WHERE id = $1 AND status = 'active'`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	return nil
}

func (r *SessionRepository) RevokeAllUserSessions(ctx context.Context, userID string) error {
	query := `UPDATE sessions SET status = 'revoked' WHERE user_id = $1 AND status = 'active'`
	if _, err := r.db.ExecContext(ctx, query, userID); err != nil {
		return fmt.Errorf("revoke user sessions: %w", err)
	}
	return nil
}
