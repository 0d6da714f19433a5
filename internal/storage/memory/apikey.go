package memory

import (
	"context"
	"slices"
	"sort"
	"time"

	"github.com/rryowa/listarr/internal/models"
	"github.com/rryowa/listarr/internal/storage"
)

func (s *Storage) CreateAPIKey(ctx context.Context, key *models.APIKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.apiKeys[key.ID] = cloneKey(*key)
	return nil
}

func (s *Storage) GetAPIKey(ctx context.Context, id string) (*models.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	key, ok := s.apiKeys[id]
	if !ok {
		return nil, storage.ErrAPIKeyNotFound
	}
	key = cloneKey(key)
	return &key, nil
}

func (s *Storage) FindAPIKeysByPrefix(ctx context.Context, prefix string) ([]models.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.APIKey
	for _, key := range s.apiKeys {
		if key.KeyPrefix == prefix {
			out = append(out, cloneKey(key))
		}
	}
	return out, nil
}

func (s *Storage) ListAPIKeys(ctx context.Context, ownerID string) ([]models.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.APIKey, 0)
	for _, key := range s.apiKeys {
		if key.OwnerID == ownerID {
			out = append(out, cloneKey(key))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Storage) UpdateAPIKey(ctx context.Context, key *models.APIKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.apiKeys[key.ID]; !ok {
		return storage.ErrAPIKeyNotFound
	}
	s.apiKeys[key.ID] = cloneKey(*key)
	return nil
}

func (s *Storage) TouchAPIKey(ctx context.Context, id string, at time.Time, ip string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, ok := s.apiKeys[id]
	if !ok {
		return storage.ErrAPIKeyNotFound
	}
	usedAt := at
	key.LastUsedAt = &usedAt
	key.LastUsedIP = ip
	s.apiKeys[id] = key
	return nil
}

func cloneKey(k models.APIKey) models.APIKey {
	k.Scopes = slices.Clone(k.Scopes)
	for i := range k.Scopes {
		k.Scopes[i].Actions = slices.Clone(k.Scopes[i].Actions)
	}
	return k
}
