package models

import (
	"time"

	"github.com/rryowa/listarr/internal/scope"
)

type TokenPair struct {
	AccessToken   string    `json:"access_token"`
	RefreshToken  string    `json:"refresh_token"`
	CSRFToken     string    `json:"csrf_token"`
	TokenType     string    `json:"token_type"`
	IssuedAt      time.Time `json:"issued_at"`
	AccessExpiry  time.Time `json:"access_expires_at"`
	RefreshExpiry time.Time `json:"refresh_expires_at"`
}

type RegisterRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AuthResponse struct {
	User  PublicUser `json:"user"`
	Token *TokenPair `json:"token,omitempty"`
}

type TokenRefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type LogoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type PasswordResetRequest struct {
	Email string `json:"email"`
}

type PasswordResetConfirmRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type ErrorResponse struct {
	Code   string `json:"code"`
	Reason string `json:"reason"`
}

type CreateAPIKeyRequest struct {
	Name      string        `json:"name"`
	Scopes    []scope.Scope `json:"scopes"`
	ExpiresAt *time.Time    `json:"expires_at,omitempty"`
}

type UpdateAPIKeyRequest struct {
	Name      *string       `json:"name,omitempty"`
	Scopes    []scope.Scope `json:"scopes,omitempty"`
	ExpiresAt *time.Time    `json:"expires_at,omitempty"`
	IsActive  *bool         `json:"is_active,omitempty"`
}

type CreateAPIKeyResponse struct {
	APIKey  APIKey `json:"api_key"`
	Key     string `json:"key"`
	Warning string `json:"warning"`
}

type AuthorizeRequest struct {
	Resource string `json:"resource"`
	Action   string `json:"action"`
}

type VerifyResponse struct {
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	Role      Role      `json:"role"`
	SessionID string    `json:"session_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

type AuthorizeResponse struct {
	Allowed   bool            `json:"allowed"`
	Resource  string          `json:"resource"`
	Action    string          `json:"action"`
	Principal APIKeyPrincipal `json:"principal"`
}
