package models

import "time"

type SessionStatus string

const (
	SessionActive  SessionStatus = "active"
	SessionUsed    SessionStatus = "used"
	SessionRevoked SessionStatus = "revoked"
)

// RefreshSession is the server-side record behind one refresh token.
// ID doubles as the "sid" claim of access tokens minted for it.
type RefreshSession struct {
	ID           string        `json:"id"`
	UserID       string        `json:"user_id"`
	Selector     string        `json:"selector"`
	VerifierHash string        `json:"verifier_hash"`
	UserAgent    string        `json:"user_agent"`
	IPAddress    string        `json:"ip_address"`
	Status       SessionStatus `json:"status"`
	ExpiresAt    time.Time     `json:"expires_at"`
	CreatedAt    time.Time     `json:"created_at"`
}

type PasswordResetToken struct {
	ID           string     `json:"id"`
	UserID       string     `json:"user_id"`
	Selector     string     `json:"selector"`
	VerifierHash string     `json:"verifier_hash"`
	ExpiresAt    time.Time  `json:"expires_at"`
	UsedAt       *time.Time `json:"used_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

type UserMetadata struct {
	UserAgent string `json:"user_agent"`
	IPAddress string `json:"ip_address"`
}
