package controller

import (
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/rryowa/listarr/internal/models"
	"github.com/rryowa/listarr/internal/service"
)

type Controller struct {
	zapLogger     *zap.SugaredLogger
	authService   *service.AuthService
	apiKeyService *service.APIKeyService
	secureCookies bool
}

func NewController(
	logger *zap.SugaredLogger,
	authService *service.AuthService,
	apiKeyService *service.APIKeyService,
	secureCookies bool,
) *Controller {
	return &Controller{
		zapLogger:     logger,
		authService:   authService,
		apiKeyService: apiKeyService,
		secureCookies: secureCookies,
	}
}

// (GET /api/ping).
func (c *Controller) CheckServer(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, "ok")
}

// (POST /api/auth/register).
func (c *Controller) Register(ctx echo.Context) error {
	var req models.RegisterRequest
	if err := ctx.Bind(&req); err != nil {
		return err
	}

	resp, err := c.authService.Register(ctx.Request().Context(), req, userMetadata(ctx))
	if err != nil {
		return err
	}
	if resp.Token != nil {
		c.setSessionCookies(ctx, resp.Token)
	}
	return ctx.JSON(http.StatusCreated, resp)
}

// (POST /api/auth/login).
func (c *Controller) Login(ctx echo.Context) error {
	var req models.LoginRequest
	if err := ctx.Bind(&req); err != nil {
		return err
	}

	resp, err := c.authService.Login(ctx.Request().Context(), req, userMetadata(ctx))
	if err != nil {
		return err
	}
	c.setSessionCookies(ctx, resp.Token)
	return ctx.JSON(http.StatusOK, resp)
}

// (POST /api/auth/logout). Always 200.
func (c *Controller) Logout(ctx echo.Context) error {
	var req models.LogoutRequest
	if err := bindOptional(ctx, &req); err != nil {
		c.zapLogger.Debugw("Ignoring unreadable logout body", "error", err)
	}

	accessToken := BearerToken(ctx.Request())
	if accessToken == "" {
		accessToken = cookieValue(ctx, AccessTokenCookie)
	}
	refreshToken := req.RefreshToken
	if refreshToken == "" {
		refreshToken = cookieValue(ctx, RefreshTokenCookie)
	}

	_ = c.authService.Logout(ctx.Request().Context(), accessToken, refreshToken)
	c.clearSessionCookies(ctx)
	return ctx.JSON(http.StatusOK, models.MessageResponse{Message: "logged out"})
}

// (GET /api/auth/verify).
func (c *Controller) Verify(ctx echo.Context) error {
	claims, ok := ClaimsFrom(ctx)
	if !ok {
		return service.ErrInvalidToken
	}
	return ctx.JSON(http.StatusOK, models.VerifyResponse{
		UserID:    claims.UserID,
		Email:     claims.Email,
		Role:      claims.Role,
		SessionID: claims.SessionID,
		ExpiresAt: claims.ExpiresAt.Time,
	})
}

// (POST /api/auth/refresh).
func (c *Controller) Refresh(ctx echo.Context) error {
	var req models.TokenRefreshRequest
	if err := bindOptional(ctx, &req); err != nil {
		return err
	}
	if req.RefreshToken == "" {
		req.RefreshToken = cookieValue(ctx, RefreshTokenCookie)
	}

	pair, err := c.authService.Refresh(ctx.Request().Context(), req.RefreshToken, userMetadata(ctx))
	if err != nil {
		return err
	}
	c.setSessionCookies(ctx, pair)
	return ctx.JSON(http.StatusOK, pair)
}

// (POST /api/auth/password/reset). Same answer whether or not the account exists.
func (c *Controller) RequestPasswordReset(ctx echo.Context) error {
	var req models.PasswordResetRequest
	if err := ctx.Bind(&req); err != nil {
		return err
	}
	if err := c.authService.RequestPasswordReset(ctx.Request().Context(), req.Email); err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, models.MessageResponse{
		Message: "If an account exists for this address, a reset link has been sent.",
	})
}

// (POST /api/auth/password/confirm).
func (c *Controller) ConfirmPasswordReset(ctx echo.Context) error {
	var req models.PasswordResetConfirmRequest
	if err := ctx.Bind(&req); err != nil {
		return err
	}

	err := c.authService.ConfirmPasswordReset(ctx.Request().Context(), req.Token, req.Password)
	if errors.Is(err, service.ErrExpired) || errors.Is(err, service.ErrInvalidToken) {
		// A bad reset link is a client input problem, not an auth failure.
		return &echo.HTTPError{Code: http.StatusBadRequest, Message: err.Error(), Internal: err}
	}
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, models.MessageResponse{Message: "password updated"})
}

// (GET /api/api-keys).
func (c *Controller) ListAPIKeys(ctx echo.Context) error {
	claims, ok := ClaimsFrom(ctx)
	if !ok {
		return service.ErrInvalidToken
	}
	keys, err := c.apiKeyService.List(ctx.Request().Context(), claims.UserID)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, keys)
}

// (POST /api/api-keys).
func (c *Controller) CreateAPIKey(ctx echo.Context) error {
	claims, ok := ClaimsFrom(ctx)
	if !ok {
		return service.ErrInvalidToken
	}
	var req models.CreateAPIKeyRequest
	if err := ctx.Bind(&req); err != nil {
		return err
	}

	resp, err := c.apiKeyService.Create(ctx.Request().Context(), claims.UserID, claims.Role, req)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, resp)
}

// (GET /api/api-keys/{id}).
func (c *Controller) GetAPIKey(ctx echo.Context) error {
	claims, ok := ClaimsFrom(ctx)
	if !ok {
		return service.ErrInvalidToken
	}
	key, err := c.apiKeyService.Get(ctx.Request().Context(), claims.UserID, ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, key)
}

// (PATCH /api/api-keys/{id}).
func (c *Controller) UpdateAPIKey(ctx echo.Context) error {
	claims, ok := ClaimsFrom(ctx)
	if !ok {
		return service.ErrInvalidToken
	}
	var req models.UpdateAPIKeyRequest
	if err := ctx.Bind(&req); err != nil {
		return err
	}

	key, err := c.apiKeyService.Update(ctx.Request().Context(), claims.UserID, claims.Role, ctx.Param("id"), req)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, key)
}

// (DELETE /api/api-keys/{id}).
func (c *Controller) RevokeAPIKey(ctx echo.Context) error {
	claims, ok := ClaimsFrom(ctx)
	if !ok {
		return service.ErrInvalidToken
	}
	if err := c.apiKeyService.Revoke(ctx.Request().Context(), claims.UserID, ctx.Param("id")); err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, models.MessageResponse{Message: "api key revoked"})
}

// (POST /api/v1/authorize). Checks the calling key against a resource/action pair.
func (c *Controller) Authorize(ctx echo.Context) error {
	principal, ok := PrincipalFrom(ctx)
	if !ok {
		return service.ErrInvalidAPIKey
	}
	var req models.AuthorizeRequest
	if err := ctx.Bind(&req); err != nil {
		return err
	}

	if err := c.apiKeyService.Authorize(principal.Scopes, req.Resource, req.Action); err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, models.AuthorizeResponse{
		Allowed:   true,
		Resource:  req.Resource,
		Action:    req.Action,
		Principal: *principal,
	})
}

func userMetadata(ctx echo.Context) models.UserMetadata {
	return models.UserMetadata{
		UserAgent: ctx.Request().UserAgent(),
		IPAddress: ctx.RealIP(),
	}
}

// bindOptional binds a body that may be absent.
func bindOptional(ctx echo.Context, dst any) error {
	if ctx.Request().ContentLength == 0 {
		return nil
	}
	if err := ctx.Bind(dst); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
