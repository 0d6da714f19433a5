package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rryowa/listarr/internal/models"
	"github.com/rryowa/listarr/internal/storage"
)

const apiKeyColumns = `id, owner_id, name, key_prefix, key_hash, scopes, is_active, expires_at, last_used_at, last_used_ip, created_at, updated_at`

type APIKeyRepository struct {
	db storage.DBTX
}

func NewAPIKeyRepository(db storage.DBTX) *APIKeyRepository {
	return &APIKeyRepository{db: db}
}

func (r *APIKeyRepository) CreateAPIKey(ctx context.Context, key *models.APIKey) error {
	scopes, err := json.Marshal(key.Scopes)
	if err != nil {
		return fmt.Errorf("marshal scopes: %w", err)
	}
	query := `INSERT INTO api_keys (` + apiKeyColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	_, err = r.db.ExecContext(
		ctx,
		query,
		key.ID,
		key.OwnerID,
		key.Name,
		key.KeyPrefix,
		key.KeyHash,
		string(scopes),
		key.IsActive,
		key.ExpiresAt,
		key.LastUsedAt,
		key.LastUsedIP,
		key.CreatedAt,
		key.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert api key: %w", err)
	}
	return nil
}

func (r *APIKeyRepository) GetAPIKey(ctx context.Context, id string) (*models.APIKey, error) {
	query := `SELECT ` + apiKeyColumns + ` FROM api_keys WHERE id = $1`
	rows, err := r.db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("get api key: %w", err)
	}
	keys, err := scanAPIKeys(rows)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, storage.ErrAPIKeyNotFound
	}
	return &keys[0], nil
}

func (r *APIKeyRepository) FindAPIKeysByPrefix(ctx context.Context, prefix string) ([]models.APIKey, error) {
	query := `SELECT ` + apiKeyColumns + ` FROM api_keys WHERE key_prefix = $1 AND is_active`
	rows, err := r.db.QueryContext(ctx, query, prefix)
	if err != nil {
		return nil, fmt.Errorf("find api keys by prefix: %w", err)
	}
	return scanAPIKeys(rows)
}

func (r *APIKeyRepository) ListAPIKeys(ctx context.Context, ownerID string) ([]models.APIKey, error) {
	query := `SELECT ` + apiKeyColumns + ` FROM api_keys WHERE owner_id = $1 ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	return scanAPIKeys(rows)
}

func (r *APIKeyRepository) UpdateAPIKey(ctx context.Context, key *models.APIKey) error {
	scopes, err := json.Marshal(key.Scopes)
	if err != nil {
		return fmt.Errorf("marshal scopes: %w", err)
	}
	query := `UPDATE api_keys SET name = $1, scopes = $2, is_active = $3, expires_at = $4, updated_at = $5 WHERE id = $6`
	res, err := r.db.ExecContext(ctx, query, key.Name, string(scopes), key.IsActive, key.ExpiresAt, key.UpdatedAt, key.ID)
	if err != nil {
		return fmt.Errorf("update api key: %w", err)
	}
	return expectOneRow(res, storage.ErrAPIKeyNotFound)
}

func (r *APIKeyRepository) TouchAPIKey(ctx context.Context, id string, at time.Time, ip string) error {
	query := `UPDATE api_keys SET last_used_at = $1, last_used_ip = $2 WHERE id = $3`
	res, err := r.db.ExecContext(ctx, query, at, ip, id)
	if err != nil {
		return fmt.Errorf("touch api key: %w", err)
	}
	return expectOneRow(res, storage.ErrAPIKeyNotFound)
}

func scanAPIKeys(rows *sql.Rows) ([]models.APIKey, error) {
	defer rows.Close()

	out := make([]models.APIKey, 0)
	for rows.Next() {
		var (
			key        models.APIKey
			scopes     []byte
			expiresAt  sql.NullTime
			lastUsedAt sql.NullTime
		)
		err := rows.Scan(
			&key.ID,
			&key.OwnerID,
			&key.Name,
			&key.KeyPrefix,
			&key.KeyHash,
			&scopes,
			&key.IsActive,
			&expiresAt,
			&lastUsedAt,
			&key.LastUsedIP,
			&key.CreatedAt,
			&key.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		if err := json.Unmarshal(scopes, &key.Scopes); err != nil {
			return nil, fmt.Errorf("unmarshal scopes: %w", err)
		}
		if expiresAt.Valid {
			t := expiresAt.Time
			key.ExpiresAt = &t
		}
		if lastUsedAt.Valid {
			t := lastUsedAt.Time
			key.LastUsedAt = &t
		}
		out = append(out, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate api keys: %w", err)
	}
	return out, nil
}
