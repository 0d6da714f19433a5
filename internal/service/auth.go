package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rryowa/listarr/internal/metrics"
	"github.com/rryowa/listarr/internal/models"
	"github.com/rryowa/listarr/internal/storage"
	"github.com/rryowa/listarr/internal/util"
)

const tokenTypeBearer = "Bearer"

type AuthService struct {
	storage         storage.Storage
	denylist        storage.TokenStorage
	tokens          *TokenService
	csrf            *CSRFManager
	notifier        Notifier
	requireApproval bool
	log             *zap.SugaredLogger
}

func NewAuthService(
	st storage.Storage,
	denylist storage.TokenStorage,
	tokens *TokenService,
	csrf *CSRFManager,
	notifier Notifier,
	cfg *util.AuthConfig,
	log *zap.SugaredLogger,
) *AuthService {
	return &AuthService{
		storage:         st,
		denylist:        denylist,
		tokens:          tokens,
		csrf:            csrf,
		notifier:        notifier,
		requireApproval: cfg.RequireApproval,
		log:             log,
	}
}

// Register creates an account. The first account becomes admin. When
// approval is required the account starts pending and no pair is issued.
func (s *AuthService) Register(ctx context.Context, req models.RegisterRequest, meta models.UserMetadata) (resp *models.AuthResponse, err error) {
	defer observe("register", &err)

	email, err := NormalizeEmail(req.Email)
	if err != nil {
		return nil, err
	}
	username, err := ValidateUsername(req.Username)
	if err != nil {
		return nil, err
	}
	if err = ValidatePassword(req.Password); err != nil {
		return nil, err
	}

	hash, err := HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	count, err := s.storage.CountUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("count users: %w", err)
	}

	now := s.tokens.Now()
	user := &models.User{
		ID:           uuid.NewString(),
		Email:        email,
		Username:     username,
		PasswordHash: hash,
		Role:         models.RoleUser,
		Status:       models.StatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if count == 0 {
		user.Role = models.RoleAdmin
	} else if s.requireApproval {
		user.Status = models.StatusPending
	}

	if err = s.storage.CreateUser(ctx, user); err != nil {
		if errors.Is(err, storage.ErrUserExists) {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	s.log.Infow("User registered", "userID", user.ID, "role", user.Role, "status", user.Status)

	resp = &models.AuthResponse{User: user.Public()}
	if user.Status != models.StatusActive {
		return resp, nil
	}

	resp.Token, err = s.issuePair(ctx, user, meta, now)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// Login answers ErrInvalidCredentials for both an unknown email and a wrong
// password. Account status is only reported once the password matched.
func (s *AuthService) Login(ctx context.Context, req models.LoginRequest, meta models.UserMetadata) (resp *models.AuthResponse, err error) {
	defer observe("login", &err)

	email, emailErr := NormalizeEmail(req.Email)
	if emailErr != nil {
		VerifyPassword("", req.Password)
		return nil, ErrInvalidCredentials
	}

	user, err := s.storage.GetUserByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, storage.ErrUserNotFound) {
			return nil, fmt.Errorf("get user: %w", err)
		}
		VerifyPassword("", req.Password)
		return nil, ErrInvalidCredentials
	}

	if !VerifyPassword(user.PasswordHash, req.Password) {
		s.log.Debugw("Password mismatch", "userID", user.ID)
		return nil, ErrInvalidCredentials
	}

	if err = statusError(user.Status); err != nil {
		return nil, err
	}

	pair, err := s.issuePair(ctx, user, meta, s.tokens.Now())
	if err != nil {
		return nil, err
	}
	return &models.AuthResponse{User: user.Public(), Token: pair}, nil
}

// Verify returns the claims of a valid, not logged-out access token.
func (s *AuthService) Verify(ctx context.Context, accessToken string) (*Claims, error) {
	claims, err := s.tokens.VerifyAccessToken(accessToken)
	if err != nil {
		return nil, err
	}

	revoked, err := s.denylist.IsTokenInvalidated(ctx, claims.ID)
	if err != nil {
		return nil, fmt.Errorf("check denylist: %w", err)
	}
	if revoked {
		return nil, ErrTokenRevoked
	}
	return claims, nil
}

// Refresh rotates a refresh token. Presenting a token that was already
// rotated is treated as theft and ends every session of its owner.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string, meta models.UserMetadata) (pair *models.TokenPair, err error) {
	defer observe("refresh", &err)

	selector, verifier, err := SplitSecretToken(refreshToken)
	if err != nil {
		return nil, err
	}

	session, err := s.storage.GetSessionBySelector(ctx, selector)
	if err != nil {
		if errors.Is(err, storage.ErrSessionNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	if !VerifySecret(verifier, session.VerifierHash) {
		return nil, ErrInvalidToken
	}

	switch session.Status {
	case models.SessionUsed:
		s.log.Warnw("Refresh token reuse detected, revoking all sessions",
			"userID", session.UserID, "sessionID", session.ID, "ip", meta.IPAddress)
		if err = s.storage.RevokeAllUserSessions(ctx, session.UserID); err != nil {
			return nil, fmt.Errorf("revoke sessions: %w", err)
		}
		return nil, ErrInvalidToken
	case models.SessionRevoked:
		return nil, ErrInvalidToken
	}

	now := s.tokens.Now()
	if !now.Before(session.ExpiresAt) {
		return nil, ErrExpired
	}

	user, err := s.storage.GetUserByID(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	if err = statusError(user.Status); err != nil {
		return nil, err
	}

	token, next, err := s.newSession(user, meta, now)
	if err != nil {
		return nil, err
	}
	if err = s.storage.RotateSession(ctx, selector, next); err != nil {
		if errors.Is(err, storage.ErrSessionNotActive) || errors.Is(err, storage.ErrSessionNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("rotate session: %w", err)
	}

	if session.IPAddress != "" && meta.IPAddress != "" && session.IPAddress != meta.IPAddress && s.notifier != nil {
		s.notifier.NotifyIPChange(ctx, user, session.IPAddress, meta.IPAddress)
	}

	return s.pairFor(user, next, token, now)
}

// Logout never fails. It revokes whatever session the presented tokens
// identify and denylists the access token until it would expire anyway.
func (s *AuthService) Logout(ctx context.Context, accessToken, refreshToken string) error {
	var err error
	defer observe("logout", &err)

	if accessToken != "" {
		claims, parseErr := s.tokens.ParseIgnoringExpiry(accessToken)
		if parseErr == nil {
			if revokeErr := s.storage.RevokeSession(ctx, claims.SessionID); revokeErr != nil {
				s.log.Warnw("failed to revoke session on logout", "sessionID", claims.SessionID, "error", revokeErr)
			}
			s.denylistToken(ctx, claims)
		} else {
			s.log.Debugw("Ignoring unusable access token on logout", "error", parseErr)
		}
	}

	if refreshToken != "" {
		selector, verifier, splitErr := SplitSecretToken(refreshToken)
		if splitErr != nil {
			return nil
		}
		session, getErr := s.storage.GetSessionBySelector(ctx, selector)
		if getErr != nil || !VerifySecret(verifier, session.VerifierHash) {
			return nil
		}
		if revokeErr := s.storage.RevokeSession(ctx, session.ID); revokeErr != nil {
			s.log.Warnw("failed to revoke session on logout", "sessionID", session.ID, "error", revokeErr)
		}
	}
	return nil
}

// RequestPasswordReset succeeds for any well-formed email whether or not an
// account exists.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) (err error) {
	defer observe("password_reset_request", &err)

	email, err = NormalizeEmail(email)
	if err != nil {
		return err
	}

	user, getErr := s.storage.GetUserByEmail(ctx, email)
	if getErr != nil {
		if !errors.Is(getErr, storage.ErrUserNotFound) {
			s.log.Errorw("failed to look up user for password reset", "error", getErr)
		}
		return nil
	}
	if user.Status != models.StatusActive {
		s.log.Infow("Password reset requested for non-active account", "userID", user.ID, "status", user.Status)
		return nil
	}

	token, selector, verifierHash, genErr := s.tokens.CreateSecretToken()
	if genErr != nil {
		s.log.Errorw("failed to generate reset token", "error", genErr)
		return nil
	}
	now := s.tokens.Now()
	reset := models.PasswordResetToken{
		ID:           uuid.NewString(),
		UserID:       user.ID,
		Selector:     selector,
		VerifierHash: verifierHash,
		ExpiresAt:    now.Add(s.tokens.ResetTTL()),
		CreatedAt:    now,
	}
	if createErr := s.storage.CreateResetToken(ctx, reset); createErr != nil {
		s.log.Errorw("failed to store reset token", "userID", user.ID, "error", createErr)
		return nil
	}

	if s.notifier != nil {
		s.notifier.NotifyPasswordReset(ctx, user, token, reset.ExpiresAt)
	}
	s.log.Infow("Password reset token issued", "userID", user.ID)
	return nil
}

// ConfirmPasswordReset sets a new password and ends every session of the user.
func (s *AuthService) ConfirmPasswordReset(ctx context.Context, token, newPassword string) (err error) {
	defer observe("password_reset_confirm", &err)

	selector, verifier, err := SplitSecretToken(token)
	if err != nil {
		return err
	}

	reset, err := s.storage.GetResetTokenBySelector(ctx, selector)
	if err != nil {
		if errors.Is(err, storage.ErrResetTokenNotFound) {
			return ErrInvalidToken
		}
		return fmt.Errorf("get reset token: %w", err)
	}
	if !VerifySecret(verifier, reset.VerifierHash) || reset.UsedAt != nil {
		return ErrInvalidToken
	}

	now := s.tokens.Now()
	if !now.Before(reset.ExpiresAt) {
		return ErrExpired
	}
	if err = ValidatePassword(newPassword); err != nil {
		return err
	}

	hash, err := HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err = s.storage.ResetPasswordTx(ctx, reset.ID, reset.UserID, hash, now); err != nil {
		if errors.Is(err, storage.ErrResetTokenNotFound) {
			return ErrInvalidToken
		}
		return fmt.Errorf("reset password: %w", err)
	}
	s.log.Infow("Password reset completed", "userID", reset.UserID)
	return nil
}

func (s *AuthService) issuePair(ctx context.Context, user *models.User, meta models.UserMetadata, now time.Time) (*models.TokenPair, error) {
	token, session, err := s.newSession(user, meta, now)
	if err != nil {
		return nil, err
	}
	if err = s.storage.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return s.pairFor(user, session, token, now)
}

func (s *AuthService) newSession(user *models.User, meta models.UserMetadata, now time.Time) (string, models.RefreshSession, error) {
	token, selector, verifierHash, err := s.tokens.CreateSecretToken()
	if err != nil {
		return "", models.RefreshSession{}, fmt.Errorf("create refresh token: %w", err)
	}
	return token, models.RefreshSession{
		ID:           uuid.NewString(),
		UserID:       user.ID,
		Selector:     selector,
		VerifierHash: verifierHash,
		UserAgent:    meta.UserAgent,
		IPAddress:    meta.IPAddress,
		Status:       models.SessionActive,
		ExpiresAt:    now.Add(s.tokens.RefreshTTL()),
		CreatedAt:    now,
	}, nil
}

func (s *AuthService) pairFor(user *models.User, session models.RefreshSession, refreshToken string, now time.Time) (*models.TokenPair, error) {
	access, claims, err := s.tokens.CreateAccessToken(user, session.ID, now)
	if err != nil {
		return nil, fmt.Errorf("create access token: %w", err)
	}
	return &models.TokenPair{
		AccessToken:   access,
		RefreshToken:  refreshToken,
		CSRFToken:     s.csrf.Issue(session.ID),
		TokenType:     tokenTypeBearer,
		IssuedAt:      now,
		AccessExpiry:  claims.ExpiresAt.Time,
		RefreshExpiry: session.ExpiresAt,
	}, nil
}

func (s *AuthService) denylistToken(ctx context.Context, claims *Claims) {
	if claims.ExpiresAt == nil {
		return
	}
	ttl := claims.ExpiresAt.Sub(s.tokens.Now()) + util.JWTLeeWay
	if ttl <= 0 {
		return
	}
	if err := s.denylist.InvalidateToken(ctx, claims.ID, ttl); err != nil {
		s.log.Warnw("failed to denylist access token", "jti", claims.ID, "error", err)
	}
}

func statusError(status models.UserStatus) error {
	switch status {
	case models.StatusActive:
		return nil
	case models.StatusPending:
		return ErrAccountPending
	default:
		return ErrAccountInactive
	}
}

func observe(operation string, err *error) {
	metrics.AuthEvents.WithLabelValues(operation, metrics.Result(*err)).Inc()
}
