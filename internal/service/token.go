package service

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/rryowa/listarr/internal/models"
	"github.com/rryowa/listarr/internal/util"
)

const selectorBytes = 16

// Claims are the identity claims carried by an access token. They are only
// ever returned by a verification that checked signature and expiry.
type Claims struct {
	UserID    string      `json:"uid"`
	Email     string      `json:"email"`
	Role      models.Role `json:"role"`
	SessionID string      `json:"sid"`
	jwt.RegisteredClaims
}

type TokenService struct {
	jwtSecretKey []byte
	issuer       string
	accessTTL    time.Duration
	refreshTTL   time.Duration
	resetTTL     time.Duration
	now          func() time.Time
}

type TokenOption func(*TokenService)

// WithTokenClock overrides the time source.
func WithTokenClock(fn func() time.Time) TokenOption {
	return func(ts *TokenService) {
		if fn != nil {
			ts.now = fn
		}
	}
}

func NewTokenService(cfg *util.TokenConfig, opts ...TokenOption) *TokenService {
	ts := &TokenService{
		jwtSecretKey: cfg.JwtSecretKey,
		issuer:       cfg.Issuer,
		accessTTL:    cfg.AccessTTL,
		refreshTTL:   cfg.RefreshTTL,
		resetTTL:     cfg.ResetTTL,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(ts)
	}
	return ts
}

func (ts *TokenService) Now() time.Time            { return ts.now() }
func (ts *TokenService) RefreshTTL() time.Duration { return ts.refreshTTL }
func (ts *TokenService) ResetTTL() time.Duration   { return ts.resetTTL }

// CreateAccessToken создает HS512 access токен с новым JTI, привязанный к сессии.
func (ts *TokenService) CreateAccessToken(user *models.User, sessionID string, now time.Time) (string, *Claims, error) {
	claims := &Claims{
		UserID:    user.ID,
		Email:     user.Email,
		Role:      user.Role,
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    ts.issuer,
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ts.accessTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS512, claims)
	signedToken, err := token.SignedString(ts.jwtSecretKey)
	if err != nil {
		return "", nil, fmt.Errorf("signed string: %w", err)
	}
	return signedToken, claims, nil
}

// VerifyAccessToken checks signature, expiry and required claims in one step.
func (ts *TokenService) VerifyAccessToken(token string) (*Claims, error) {
	return ts.parse(token,
		jwt.WithLeeway(util.JWTLeeWay),
		jwt.WithExpirationRequired(),
	)
}

// ParseIgnoringExpiry verifies the signature but not the time-based claims.
// Logout uses it to find the session of an already expired token.
func (ts *TokenService) ParseIgnoringExpiry(token string) (*Claims, error) {
	return ts.parse(token, jwt.WithoutClaimsValidation())
}

func (ts *TokenService) parse(token string, extra ...jwt.ParserOption) (*Claims, error) {
	if strings.TrimSpace(token) == "" {
		return nil, ErrMalformed
	}

	opts := append([]jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS512.Alg()}),
		jwt.WithTimeFunc(ts.now),
		jwt.WithIssuer(ts.issuer),
	}, extra...)

	parsed, err := jwt.ParseWithClaims(
		token,
		&Claims{},
		func(t *jwt.Token) (interface{}, error) {
			return ts.jwtSecretKey, nil
		},
		opts...,
	)
	if err != nil {
		return nil, mapJWTError(err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if claims.UserID == "" || claims.Role == "" || claims.SessionID == "" || claims.ID == "" {
		return nil, ErrMalformed
	}
	return claims, nil
}

func mapJWTError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed), errors.Is(err, jwt.ErrTokenRequiredClaimMissing):
		return ErrMalformed
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return ErrInvalidSignature
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpired
	default:
		return ErrInvalidToken
	}
}

// CreateSecretToken выдает opaque токен вида selector.verifier.
// Хранится только sha256 от verifier.
func (ts *TokenService) CreateSecretToken() (token, selector, verifierHash string, err error) {
	rawToken := make([]byte, util.RawTokenLength)
	if _, err = rand.Read(rawToken); err != nil {
		return "", "", "", fmt.Errorf("failed to read random bytes: %w", err)
	}

	selector = base64.RawURLEncoding.EncodeToString(rawToken[:selectorBytes])
	verifier := base64.RawURLEncoding.EncodeToString(rawToken[selectorBytes:])
	verifierHash = hashVerifier(verifier)

	return selector + "." + verifier, selector, verifierHash, nil
}

// SplitSecretToken returns the selector and verifier of a selector.verifier token.
func SplitSecretToken(token string) (selector, verifier string, err error) {
	parts := strings.Split(token, ".")
	if len(parts) != util.TokenPartsExpected || parts[0] == "" || parts[1] == "" {
		return "", "", ErrInvalidToken
	}
	return parts[0], parts[1], nil
}

// VerifySecret compares the verifier against its stored hash in constant time.
func VerifySecret(verifier, verifierHash string) bool {
	expected, err := hex.DecodeString(verifierHash)
	if err != nil {
		return false
	}
	actual := sha256.Sum256([]byte(verifier))
	return subtle.ConstantTimeCompare(actual[:], expected) == 1
}

func hashVerifier(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return hex.EncodeToString(sum[:])
}
