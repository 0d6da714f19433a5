package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/rryowa/listarr/internal/metrics"
	"github.com/rryowa/listarr/internal/models"
	"github.com/rryowa/listarr/internal/scope"
	"github.com/rryowa/listarr/internal/storage"
)

const (
	APIKeyPrefix       = "lsk_"
	apiKeyVisibleChars = 12
	apiKeyRandomBytes  = 32
	apiKeySaltBytes    = 16
	maxKeyNameLength   = 64

	APIKeyWarning = "This key is shown only once. Store it securely; it cannot be recovered."
)

type APIKeyService struct {
	storage storage.APIKeyRepository
	users   storage.UserRepository
	log     *zap.SugaredLogger
	now     func() time.Time
}

type APIKeyOption func(*APIKeyService)

func WithAPIKeyClock(fn func() time.Time) APIKeyOption {
	return func(s *APIKeyService) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewAPIKeyService builds the key authority. users is consulted on every
// verification so a key stops working once its owner is deactivated.
func NewAPIKeyService(repo storage.APIKeyRepository, users storage.UserRepository, log *zap.SugaredLogger, opts ...APIKeyOption) *APIKeyService {
	s := &APIKeyService{storage: repo, users: users, log: log, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create issues a key for ownerID. The plaintext key is returned here and
// nowhere else.
func (s *APIKeyService) Create(ctx context.Context, ownerID string, ownerRole models.Role, req models.CreateAPIKeyRequest) (*models.CreateAPIKeyResponse, error) {
	name, err := validateKeyName(req.Name)
	if err != nil {
		return nil, err
	}
	scopes, err := s.checkScopes(ownerRole, req.Scopes)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if req.ExpiresAt != nil && !req.ExpiresAt.After(now) {
		return nil, validationErr("expires_at", "must be in the future")
	}

	plain, err := generateAPIKey()
	if err != nil {
		return nil, err
	}
	hash, err := hashAPIKey(plain)
	if err != nil {
		return nil, err
	}

	key := &models.APIKey{
		ID:        ulid.Make().String(),
		OwnerID:   ownerID,
		Name:      name,
		KeyPrefix: plain[:apiKeyVisibleChars],
		KeyHash:   hash,
		Scopes:    scopes,
		IsActive:  true,
		ExpiresAt: req.ExpiresAt,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err = s.storage.CreateAPIKey(ctx, key); err != nil {
		return nil, fmt.Errorf("create api key: %w", err)
	}
	s.log.Infow("API key created", "keyID", key.ID, "ownerID", ownerID, "prefix", key.KeyPrefix)

	return &models.CreateAPIKeyResponse{APIKey: *key, Key: plain, Warning: APIKeyWarning}, nil
}

// Verify resolves a presented key. Unknown, inactive and expired keys all
// fail with ErrInvalidAPIKey. A key whose owner is no longer active fails
// the way a refresh by that owner would.
func (s *APIKeyService) Verify(ctx context.Context, presented, ip string) (principal *models.APIKeyPrincipal, err error) {
	defer func() {
		metrics.APIKeyVerifications.WithLabelValues(metrics.Result(err)).Inc()
	}()

	if !strings.HasPrefix(presented, APIKeyPrefix) || len(presented) <= apiKeyVisibleChars {
		return nil, ErrInvalidAPIKey
	}

	candidates, err := s.storage.FindAPIKeysByPrefix(ctx, presented[:apiKeyVisibleChars])
	if err != nil {
		return nil, fmt.Errorf("find api keys: %w", err)
	}

	now := s.now()
	for i := range candidates {
		key := &candidates[i]
		if !matchAPIKey(presented, key.KeyHash) {
			continue
		}
		if !key.Usable(now) {
			s.log.Debugw("Rejected unusable API key", "keyID", key.ID, "active", key.IsActive)
			return nil, ErrInvalidAPIKey
		}
		if err = s.checkOwner(ctx, key); err != nil {
			return nil, err
		}
		if touchErr := s.storage.TouchAPIKey(ctx, key.ID, now, ip); touchErr != nil {
			s.log.Warnw("failed to record api key usage", "keyID", key.ID, "error", touchErr)
		}
		return &models.APIKeyPrincipal{KeyID: key.ID, OwnerID: key.OwnerID, Scopes: key.Scopes}, nil
	}
	return nil, ErrInvalidAPIKey
}

func (s *APIKeyService) checkOwner(ctx context.Context, key *models.APIKey) error {
	owner, err := s.users.GetUserByID(ctx, key.OwnerID)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			s.log.Warnw("API key owner not found", "keyID", key.ID, "ownerID", key.OwnerID)
			return ErrInvalidAPIKey
		}
		return fmt.Errorf("get api key owner: %w", err)
	}
	if err = statusError(owner.Status); err != nil {
		s.log.Infow("Rejected API key of non-active owner", "keyID", key.ID, "ownerID", owner.ID, "status", owner.Status)
		return err
	}
	return nil
}

// Authorize fails with ErrForbidden unless scopes grant action on resource.
func (s *APIKeyService) Authorize(scopes []scope.Scope, resource, action string) error {
	if !scope.Allows(scopes, resource, action) {
		return ErrForbidden
	}
	return nil
}

func (s *APIKeyService) List(ctx context.Context, ownerID string) ([]models.APIKey, error) {
	keys, err := s.storage.ListAPIKeys(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	return keys, nil
}

// Get returns ErrNotFound for keys owned by someone else.
func (s *APIKeyService) Get(ctx context.Context, ownerID, id string) (*models.APIKey, error) {
	key, err := s.storage.GetAPIKey(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrAPIKeyNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get api key: %w", err)
	}
	if key.OwnerID != ownerID {
		return nil, ErrNotFound
	}
	return key, nil
}

func (s *APIKeyService) Update(ctx context.Context, ownerID string, ownerRole models.Role, id string, req models.UpdateAPIKeyRequest) (*models.APIKey, error) {
	key, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		if key.Name, err = validateKeyName(*req.Name); err != nil {
			return nil, err
		}
	}
	if req.Scopes != nil {
		if key.Scopes, err = s.checkScopes(ownerRole, req.Scopes); err != nil {
			return nil, err
		}
	}
	now := s.now()
	if req.ExpiresAt != nil {
		if !req.ExpiresAt.After(now) {
			return nil, validationErr("expires_at", "must be in the future")
		}
		key.ExpiresAt = req.ExpiresAt
	}
	if req.IsActive != nil {
		key.IsActive = *req.IsActive
	}
	key.UpdatedAt = now

	if err = s.storage.UpdateAPIKey(ctx, key); err != nil {
		if errors.Is(err, storage.ErrAPIKeyNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("update api key: %w", err)
	}
	s.log.Infow("API key updated", "keyID", key.ID, "ownerID", ownerID)
	return key, nil
}

// Revoke deactivates the key. The record and its usage history are kept.
func (s *APIKeyService) Revoke(ctx context.Context, ownerID, id string) error {
	inactive := false
	if _, err := s.Update(ctx, ownerID, "", id, models.UpdateAPIKeyRequest{IsActive: &inactive}); err != nil {
		return err
	}
	s.log.Infow("API key revoked", "keyID", id, "ownerID", ownerID)
	return nil
}

// checkScopes normalizes requested scopes and rejects grants the owner's
// role does not hold itself.
func (s *APIKeyService) checkScopes(ownerRole models.Role, requested []scope.Scope) ([]scope.Scope, error) {
	scopes, err := scope.Normalize(requested)
	if err != nil {
		return nil, validationErr("scopes", "%v", err)
	}
	if !scope.Covers(scope.ForRole(string(ownerRole)), scopes) {
		return nil, ErrForbidden
	}
	return scopes, nil
}

func validateKeyName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", validationErr("name", "is required")
	}
	if len(name) > maxKeyNameLength {
		return "", validationErr("name", "must be at most %d characters", maxKeyNameLength)
	}
	return name, nil
}

func generateAPIKey() (string, error) {
	raw := make([]byte, apiKeyRandomBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return APIKeyPrefix + base64.RawURLEncoding.EncodeToString(raw), nil
}

func hashAPIKey(key string) (string, error) {
	salt := make([]byte, apiKeySaltBytes)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return hex.EncodeToString(salt) + "$" + hex.EncodeToString(saltedSum(salt, key)), nil
}

func matchAPIKey(key, stored string) bool {
	saltHex, sumHex, ok := strings.Cut(stored, "$")
	if !ok {
		return false
	}
	salt, err := hex.DecodeString(saltHex)
	if err != nil {
		return false
	}
	expected, err := hex.DecodeString(sumHex)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare(saltedSum(salt, key), expected) == 1
}

func saltedSum(salt []byte, key string) []byte {
	h := sha256.New()
	h.Write(salt)
	h.Write([]byte(key))
	return h.Sum(nil)
}
