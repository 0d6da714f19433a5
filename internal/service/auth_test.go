package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rryowa/listarr/internal/models"
)

const testPassword = "correct-horse-1"

func (f *authFixture) register(t *testing.T, email string) *models.AuthResponse {
	t.Helper()
	resp, err := f.svc.Register(context.Background(), models.RegisterRequest{
		Email:    email,
		Username: "user_" + email[:3],
		Password: testPassword,
	}, browser)
	require.NoError(t, err)
	return resp
}

func TestRegister_FirstUserIsAdmin(t *testing.T) {
	f := newAuthFixture(t, false)

	first := f.register(t, "ann@example.com")
	second := f.register(t, "bob@example.com")

	assert.Equal(t, models.RoleAdmin, first.User.Role)
	assert.Equal(t, models.RoleUser, second.User.Role)
	require.NotNil(t, second.Token)
	assert.NotEmpty(t, second.Token.AccessToken)
	assert.NotEmpty(t, second.Token.RefreshToken)
	assert.NotEmpty(t, second.Token.CSRFToken)
	assert.Equal(t, "Bearer", second.Token.TokenType)

	claims, err := f.svc.Verify(context.Background(), second.Token.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, second.User.ID, claims.UserID)
}

func TestRegister_DuplicateEmail(t *testing.T) {
	f := newAuthFixture(t, false)
	f.register(t, "ann@example.com")

	_, err := f.svc.Register(context.Background(), models.RegisterRequest{
		Email: "ANN@example.com", Username: "other", Password: testPassword,
	}, browser)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestRegister_Validation(t *testing.T) {
	f := newAuthFixture(t, false)
	ctx := context.Background()

	cases := []struct {
		req   models.RegisterRequest
		field string
	}{
		{models.RegisterRequest{Email: "nope", Username: "ann", Password: testPassword}, "email"},
		{models.RegisterRequest{Email: "ann@example.com", Username: "a", Password: testPassword}, "username"},
		{models.RegisterRequest{Email: "ann@example.com", Username: "ann", Password: "short"}, "password"},
	}
	for _, tc := range cases {
		_, err := f.svc.Register(ctx, tc.req, browser)
		var vErr *ValidationError
		require.True(t, errors.As(err, &vErr), tc.field)
		assert.Equal(t, tc.field, vErr.Field)
	}

	count, err := f.store.CountUsers(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestRegister_PendingWhenApprovalRequired(t *testing.T) {
	f := newAuthFixture(t, true)

	admin := f.register(t, "ann@example.com")
	pending := f.register(t, "bob@example.com")

	assert.Equal(t, models.StatusActive, admin.User.Status)
	assert.NotNil(t, admin.Token)
	assert.Equal(t, models.StatusPending, pending.User.Status)
	assert.Nil(t, pending.Token)
}

func TestLogin_IdenticalErrorForUnknownEmailAndWrongPassword(t *testing.T) {
	f := newAuthFixture(t, false)
	f.register(t, "ann@example.com")
	ctx := context.Background()

	_, ghostErr := f.svc.Login(ctx, models.LoginRequest{Email: "ghost@x.com", Password: "x"}, browser)
	_, wrongErr := f.svc.Login(ctx, models.LoginRequest{Email: "ann@example.com", Password: "wrong"}, browser)

	require.ErrorIs(t, ghostErr, ErrInvalidCredentials)
	require.ErrorIs(t, wrongErr, ErrInvalidCredentials)
	assert.Equal(t, ghostErr, wrongErr)
}

// Account status is revealed once the password matched. This lets a caller
// holding the right password tell a disabled account apart from a wrong one.
func TestLogin_StatusReportedOnlyAfterPasswordMatch(t *testing.T) {
	f := newAuthFixture(t, true)
	f.register(t, "ann@example.com")
	pending := f.register(t, "bob@example.com")
	ctx := context.Background()

	_, err := f.svc.Login(ctx, models.LoginRequest{Email: "bob@example.com", Password: "wrong"}, browser)
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = f.svc.Login(ctx, models.LoginRequest{Email: "bob@example.com", Password: testPassword}, browser)
	assert.ErrorIs(t, err, ErrAccountPending)

	require.NoError(t, f.store.SetUserStatus(ctx, pending.User.ID, models.StatusInactive))
	_, err = f.svc.Login(ctx, models.LoginRequest{Email: "bob@example.com", Password: testPassword}, browser)
	assert.ErrorIs(t, err, ErrAccountInactive)

	require.NoError(t, f.store.SetUserStatus(ctx, pending.User.ID, models.StatusActive))
	resp, err := f.svc.Login(ctx, models.LoginRequest{Email: "Bob@Example.com", Password: testPassword}, browser)
	require.NoError(t, err)
	assert.Equal(t, pending.User.ID, resp.User.ID)
}

func TestVerify_ExpiredAccessToken(t *testing.T) {
	f := newAuthFixture(t, false)
	resp := f.register(t, "ann@example.com")

	f.clock.Advance(20 * time.Minute)
	_, err := f.svc.Verify(context.Background(), resp.Token.AccessToken)
	assert.ErrorIs(t, err, ErrExpired)
}

func TestRefresh_RotatesAndRejectsReplay(t *testing.T) {
	f := newAuthFixture(t, false)
	resp := f.register(t, "ann@example.com")
	ctx := context.Background()

	next, err := f.svc.Refresh(ctx, resp.Token.RefreshToken, browser)
	require.NoError(t, err)
	assert.NotEqual(t, resp.Token.AccessToken, next.AccessToken)
	assert.NotEqual(t, resp.Token.RefreshToken, next.RefreshToken)
	assert.NotEqual(t, resp.Token.CSRFToken, next.CSRFToken)

	_, err = f.svc.Refresh(ctx, resp.Token.RefreshToken, browser)
	assert.ErrorIs(t, err, ErrInvalidToken)

	// Replaying the rotated token ended the whole family.
	_, err = f.svc.Refresh(ctx, next.RefreshToken, browser)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestRefresh_Expired(t *testing.T) {
	f := newAuthFixture(t, false)
	resp := f.register(t, "ann@example.com")

	f.clock.Advance(2 * time.Hour)
	_, err := f.svc.Refresh(context.Background(), resp.Token.RefreshToken, browser)
	assert.ErrorIs(t, err, ErrExpired)
}

func TestRefresh_InvalidTokens(t *testing.T) {
	f := newAuthFixture(t, false)
	resp := f.register(t, "ann@example.com")
	ctx := context.Background()

	selector, _, err := SplitSecretToken(resp.Token.RefreshToken)
	require.NoError(t, err)

	for _, token := range []string{"", "garbage", "unknown.verifier", selector + ".forged"} {
		_, err = f.svc.Refresh(ctx, token, browser)
		assert.ErrorIs(t, err, ErrInvalidToken, token)
	}

	// A forged verifier must not burn the real session.
	_, err = f.svc.Refresh(ctx, resp.Token.RefreshToken, browser)
	assert.NoError(t, err)
}

func TestRefresh_RechecksAccountStatus(t *testing.T) {
	f := newAuthFixture(t, false)
	f.register(t, "ann@example.com")
	resp := f.register(t, "bob@example.com")
	ctx := context.Background()

	require.NoError(t, f.store.SetUserStatus(ctx, resp.User.ID, models.StatusInactive))
	_, err := f.svc.Refresh(ctx, resp.Token.RefreshToken, browser)
	assert.ErrorIs(t, err, ErrAccountInactive)
}

func TestRefresh_NotifiesOnIPChange(t *testing.T) {
	f := newAuthFixture(t, false)
	resp := f.register(t, "ann@example.com")

	_, err := f.svc.Refresh(context.Background(), resp.Token.RefreshToken, models.UserMetadata{IPAddress: "10.9.9.9"})
	require.NoError(t, err)

	f.notifier.mu.Lock()
	defer f.notifier.mu.Unlock()
	assert.Equal(t, []string{resp.User.ID + "@10.9.9.9"}, f.notifier.ipMoves)
}

func TestLogout_WithoutTokensSucceeds(t *testing.T) {
	f := newAuthFixture(t, false)

	assert.NoError(t, f.svc.Logout(context.Background(), "", ""))
	assert.NoError(t, f.svc.Logout(context.Background(), "garbage", "garbage"))
}

func TestLogout_RevokesSessionAndAccessToken(t *testing.T) {
	f := newAuthFixture(t, false)
	resp := f.register(t, "ann@example.com")
	ctx := context.Background()

	require.NoError(t, f.svc.Logout(ctx, resp.Token.AccessToken, ""))

	_, err := f.svc.Verify(ctx, resp.Token.AccessToken)
	assert.ErrorIs(t, err, ErrTokenRevoked)
	_, err = f.svc.Refresh(ctx, resp.Token.RefreshToken, browser)
	assert.ErrorIs(t, err, ErrInvalidToken)

	require.NoError(t, f.svc.Logout(ctx, resp.Token.AccessToken, resp.Token.RefreshToken))
}

func TestLogout_ByRefreshTokenOnly(t *testing.T) {
	f := newAuthFixture(t, false)
	resp := f.register(t, "ann@example.com")
	ctx := context.Background()

	require.NoError(t, f.svc.Logout(ctx, "", resp.Token.RefreshToken))
	_, err := f.svc.Refresh(ctx, resp.Token.RefreshToken, browser)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestLogout_ExpiredAccessTokenStillEndsSession(t *testing.T) {
	f := newAuthFixture(t, false)
	resp := f.register(t, "ann@example.com")
	ctx := context.Background()

	f.clock.Advance(30 * time.Minute)
	require.NoError(t, f.svc.Logout(ctx, resp.Token.AccessToken, ""))

	_, err := f.svc.Refresh(ctx, resp.Token.RefreshToken, browser)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestRequestPasswordReset_SameAnswerForUnknownEmail(t *testing.T) {
	f := newAuthFixture(t, false)
	f.register(t, "ann@example.com")
	ctx := context.Background()

	unknownErr := f.svc.RequestPasswordReset(ctx, "ghost@example.com")
	knownErr := f.svc.RequestPasswordReset(ctx, "ann@example.com")

	assert.NoError(t, unknownErr)
	assert.NoError(t, knownErr)

	f.notifier.mu.Lock()
	defer f.notifier.mu.Unlock()
	assert.Len(t, f.notifier.resets, 1)
}

func TestConfirmPasswordReset(t *testing.T) {
	f := newAuthFixture(t, false)
	resp := f.register(t, "ann@example.com")
	ctx := context.Background()

	require.NoError(t, f.svc.RequestPasswordReset(ctx, "ann@example.com"))
	msg, ok := f.notifier.lastReset()
	require.True(t, ok)
	assert.Equal(t, resp.User.ID, msg.userID)

	err := f.svc.ConfirmPasswordReset(ctx, msg.token, "weak")
	assert.ErrorIs(t, err, ErrValidation)

	require.NoError(t, f.svc.ConfirmPasswordReset(ctx, msg.token, "brand-new-pass-2"))

	// Old sessions are gone, the new password works, the token is spent.
	_, err = f.svc.Refresh(ctx, resp.Token.RefreshToken, browser)
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, err = f.svc.Login(ctx, models.LoginRequest{Email: "ann@example.com", Password: testPassword}, browser)
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = f.svc.Login(ctx, models.LoginRequest{Email: "ann@example.com", Password: "brand-new-pass-2"}, browser)
	assert.NoError(t, err)
	assert.ErrorIs(t, f.svc.ConfirmPasswordReset(ctx, msg.token, "another-pass-3"), ErrInvalidToken)
}

func TestConfirmPasswordReset_Expired(t *testing.T) {
	f := newAuthFixture(t, false)
	f.register(t, "ann@example.com")
	ctx := context.Background()

	require.NoError(t, f.svc.RequestPasswordReset(ctx, "ann@example.com"))
	msg, ok := f.notifier.lastReset()
	require.True(t, ok)

	f.clock.Advance(31 * time.Minute)
	assert.ErrorIs(t, f.svc.ConfirmPasswordReset(ctx, msg.token, "brand-new-pass-2"), ErrExpired)
	assert.ErrorIs(t, f.svc.ConfirmPasswordReset(ctx, "bogus", "brand-new-pass-2"), ErrInvalidToken)
}
