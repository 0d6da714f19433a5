package controller

import (
	"github.com/labstack/echo/v4"

	"github.com/rryowa/listarr/internal/models"
	"github.com/rryowa/listarr/internal/service"
)

const (
	claimsContextKey    = "session_claims"
	principalContextKey = "api_key_principal"
)

func SetClaims(c echo.Context, claims *service.Claims) {
	c.Set(claimsContextKey, claims)
}

// ClaimsFrom returns the claims stored by the session middleware.
func ClaimsFrom(c echo.Context) (*service.Claims, bool) {
	claims, ok := c.Get(claimsContextKey).(*service.Claims)
	return claims, ok && claims != nil
}

func SetPrincipal(c echo.Context, p *models.APIKeyPrincipal) {
	c.Set(principalContextKey, p)
}

func PrincipalFrom(c echo.Context) (*models.APIKeyPrincipal, bool) {
	p, ok := c.Get(principalContextKey).(*models.APIKeyPrincipal)
	return p, ok && p != nil
}
