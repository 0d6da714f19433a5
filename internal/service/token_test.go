package service

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rryowa/listarr/internal/models"
)

func testUser() *models.User {
	return &models.User{ID: "user-1", Email: "ann@example.com", Role: models.RoleUser, Status: models.StatusActive}
}

func TestAccessToken_RoundTrip(t *testing.T) {
	clock := newTestClock()
	ts := NewTokenService(testTokenConfig(), WithTokenClock(clock.Now))

	token, issued, err := ts.CreateAccessToken(testUser(), "sess-1", clock.Now())
	require.NoError(t, err)

	claims, err := ts.VerifyAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "ann@example.com", claims.Email)
	assert.Equal(t, models.RoleUser, claims.Role)
	assert.Equal(t, "sess-1", claims.SessionID)
	assert.Equal(t, issued.ID, claims.ID)
	assert.True(t, clock.Now().Add(15*time.Minute).Equal(claims.ExpiresAt.Time))
}

func TestAccessToken_DistinctJTI(t *testing.T) {
	clock := newTestClock()
	ts := NewTokenService(testTokenConfig(), WithTokenClock(clock.Now))

	first, _, err := ts.CreateAccessToken(testUser(), "sess-1", clock.Now())
	require.NoError(t, err)
	second, _, err := ts.CreateAccessToken(testUser(), "sess-1", clock.Now())
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}

func TestVerifyAccessToken_Expired(t *testing.T) {
	clock := newTestClock()
	ts := NewTokenService(testTokenConfig(), WithTokenClock(clock.Now))

	token, _, err := ts.CreateAccessToken(testUser(), "sess-1", clock.Now())
	require.NoError(t, err)

	clock.Advance(16 * time.Minute)
	_, err = ts.VerifyAccessToken(token)
	assert.ErrorIs(t, err, ErrExpired)

	claims, err := ts.ParseIgnoringExpiry(token)
	require.NoError(t, err)
	assert.Equal(t, "sess-1", claims.SessionID)
}

func TestVerifyAccessToken_WrongKey(t *testing.T) {
	clock := newTestClock()
	other := testTokenConfig()
	other.JwtSecretKey = []byte(strings.Repeat("x", 64))

	token, _, err := NewTokenService(other, WithTokenClock(clock.Now)).CreateAccessToken(testUser(), "sess-1", clock.Now())
	require.NoError(t, err)

	_, err = NewTokenService(testTokenConfig(), WithTokenClock(clock.Now)).VerifyAccessToken(token)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestVerifyAccessToken_RejectsOtherAlgorithms(t *testing.T) {
	clock := newTestClock()
	cfg := testTokenConfig()
	ts := NewTokenService(cfg, WithTokenClock(clock.Now))

	claims := &Claims{
		UserID: "user-1", Role: models.RoleAdmin, SessionID: "sess-1",
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        "jti",
			Issuer:    cfg.Issuer,
			ExpiresAt: jwt.NewNumericDate(clock.Now().Add(time.Minute)),
		},
	}
	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(cfg.JwtSecretKey)
	require.NoError(t, err)

	_, err = ts.VerifyAccessToken(forged)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestVerifyAccessToken_Malformed(t *testing.T) {
	clock := newTestClock()
	cfg := testTokenConfig()
	ts := NewTokenService(cfg, WithTokenClock(clock.Now))

	for _, token := range []string{"", "garbage", "a.b.c"} {
		_, err := ts.VerifyAccessToken(token)
		assert.ErrorIs(t, err, ErrMalformed, "token %q", token)
	}

	noRole := &Claims{
		UserID: "user-1", SessionID: "sess-1",
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        "jti",
			Issuer:    cfg.Issuer,
			ExpiresAt: jwt.NewNumericDate(clock.Now().Add(time.Minute)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, noRole).SignedString(cfg.JwtSecretKey)
	require.NoError(t, err)
	_, err = ts.VerifyAccessToken(token)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestSecretToken(t *testing.T) {
	ts := NewTokenService(testTokenConfig())

	token, selector, verifierHash, err := ts.CreateSecretToken()
	require.NoError(t, err)

	gotSelector, verifier, err := SplitSecretToken(token)
	require.NoError(t, err)
	assert.Equal(t, selector, gotSelector)
	assert.True(t, VerifySecret(verifier, verifierHash))
	assert.False(t, VerifySecret(verifier+"x", verifierHash))
	assert.NotContains(t, verifierHash, verifier)

	for _, bad := range []string{"", "nodot", ".verifier", "selector.", "a.b.c"} {
		_, _, err = SplitSecretToken(bad)
		assert.ErrorIs(t, err, ErrInvalidToken, "token %q", bad)
	}
}
