package models

import (
	"time"

	"github.com/rryowa/listarr/internal/scope"
)

// APIKey is the stored form of a machine credential. The plaintext key is
// never persisted; KeyHash is "hex(salt)$hex(sha256(salt||key))".
type APIKey struct {
	ID         string        `json:"id"`
	OwnerID    string        `json:"owner_id"`
	Name       string        `json:"name"`
	KeyPrefix  string        `json:"key_prefix"`
	KeyHash    string        `json:"-"`
	Scopes     []scope.Scope `json:"scopes"`
	IsActive   bool          `json:"is_active"`
	ExpiresAt  *time.Time    `json:"expires_at,omitempty"`
	LastUsedAt *time.Time    `json:"last_used_at,omitempty"`
	LastUsedIP string        `json:"last_used_ip,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
}

// Usable reports whether the key may authenticate at now.
func (k *APIKey) Usable(now time.Time) bool {
	if !k.IsActive {
		return false
	}
	return k.ExpiresAt == nil || now.Before(*k.ExpiresAt)
}

// APIKeyPrincipal is what a verified key resolves to.
type APIKeyPrincipal struct {
	KeyID   string        `json:"key_id"`
	OwnerID string        `json:"owner_id"`
	Scopes  []scope.Scope `json:"scopes"`
}
