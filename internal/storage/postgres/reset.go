package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rryowa/listarr/internal/models"
	"github.com/rryowa/listarr/internal/storage"
)

type ResetTokenRepository struct {
	db storage.DBTX
}

func NewResetTokenRepository(db storage.DBTX) *ResetTokenRepository {
	return &ResetTokenRepository{db: db}
}

func (r *ResetTokenRepository) CreateResetToken(ctx context.Context, token models.PasswordResetToken) error {
	query := `INSERT INTO password_reset_tokens (id, user_id, selector, verifier_hash, expires_at, created_at) VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := r.db.ExecContext(ctx, query, token.ID, token.UserID, token.Selector, token.VerifierHash, token.ExpiresAt, token.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert reset token: %w", err)
	}
	return nil
}

func (r *ResetTokenRepository) GetResetTokenBySelector(ctx context.Context, selector string) (*models.PasswordResetToken, error) {
	var (
		token  models.PasswordResetToken
		usedAt sql.NullTime
	)
	query := `SELECT id, user_id, selector, verifier_hash, expires_at, used_at, created_at FROM password_reset_tokens WHERE selector = $1`
	err := r.db.QueryRowContext(ctx, query, selector).Scan(
		&token.ID,
		&token.UserID,
		&token.Selector,
		&token.VerifierHash,
		&token.ExpiresAt,
		&usedAt,
		&token.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrResetTokenNotFound
		}
		return nil, fmt.Errorf("get reset token: %w", err)
	}
	if usedAt.Valid {
		t := usedAt.Time
		token.UsedAt = &t
	}
	return &token, nil
}

func (r *ResetTokenRepository) ConsumeResetToken(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE password_reset_tokens SET used_at = $1 WHERE id = $2 AND used_at IS NULL`
	res, err := r.db.ExecContext(ctx, query, at, id)
	if err != nil {
		return fmt.Errorf("consume reset token: %w", err)
	}
	return expectOneRow(res, storage.ErrResetTokenNotFound)
}
