package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/rryowa/listarr/internal/models"
	"github.com/rryowa/listarr/internal/storage"
)

const uniqueViolation = "23505"

var _ storage.Storage = (*Storage)(nil)

type Storage struct {
	db *sql.DB
	*UserRepository
	*SessionRepository
	*APIKeyRepository
	*ResetTokenRepository
}

func NewStorage(db *sql.DB) *Storage {
	return &Storage{
		db:                   db,
		UserRepository:       NewUserRepository(db),
		SessionRepository:    NewSessionRepository(db),
		APIKeyRepository:     NewAPIKeyRepository(db),
		ResetTokenRepository: NewResetTokenRepository(db),
	}
}

// RotateSession выполняет ротацию refresh-токена в транзакции.
// Старая сессия помечается как 'used', создается новая.
func (s *Storage) RotateSession(ctx context.Context, oldSelector string, next models.RefreshSession) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	sessionRepoTx := NewSessionRepository(tx)

	if err := sessionRepoTx.MarkSessionAsUsed(ctx, oldSelector); err != nil {
		return err
	}
	if err := sessionRepoTx.CreateSession(ctx, next); err != nil {
		return fmt.Errorf("failed to create new session in tx: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (s *Storage) ResetPasswordTx(ctx context.Context, tokenID, userID, passwordHash string, at time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := NewResetTokenRepository(tx).ConsumeResetToken(ctx, tokenID, at); err != nil {
		return err
	}
	if err := NewUserRepository(tx).UpdatePassword(ctx, userID, passwordHash, at); err != nil {
		return err
	}
	if err := NewSessionRepository(tx).RevokeAllUserSessions(ctx, userID); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

func expectOneRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}
