package controller

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/rryowa/listarr/internal/models"
)

const (
	AccessTokenCookie  = "access_token"
	RefreshTokenCookie = "refresh_token"
	CSRFTokenCookie    = "csrf_token"

	refreshCookiePath = "/api/auth"
)

func (c *Controller) setSessionCookies(ctx echo.Context, pair *models.TokenPair) {
	ctx.SetCookie(&http.Cookie{
		Name:     AccessTokenCookie,
		Value:    pair.AccessToken,
		Path:     "/",
		Expires:  pair.AccessExpiry,
		HttpOnly: true,
		Secure:   c.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	ctx.SetCookie(&http.Cookie{
		Name:     RefreshTokenCookie,
		Value:    pair.RefreshToken,
		Path:     refreshCookiePath,
		Expires:  pair.RefreshExpiry,
		HttpOnly: true,
		Secure:   c.secureCookies,
		SameSite: http.SameSiteStrictMode,
	})
	// Readable by scripts so the page can echo it back in the header.
	ctx.SetCookie(&http.Cookie{
		Name:     CSRFTokenCookie,
		Value:    pair.CSRFToken,
		Path:     "/",
		Expires:  pair.RefreshExpiry,
		Secure:   c.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

func (c *Controller) clearSessionCookies(ctx echo.Context) {
	for _, ck := range []struct{ name, path string }{
		{AccessTokenCookie, "/"},
		{RefreshTokenCookie, refreshCookiePath},
		{CSRFTokenCookie, "/"},
	} {
		ctx.SetCookie(&http.Cookie{
			Name:     ck.name,
			Value:    "",
			Path:     ck.path,
			Expires:  time.Unix(0, 0),
			MaxAge:   -1,
			HttpOnly: ck.name != CSRFTokenCookie,
			Secure:   c.secureCookies,
		})
	}
}

// BearerToken returns the token of an "Authorization: Bearer" header.
func BearerToken(r *http.Request) string {
	h := r.Header.Get(echo.HeaderAuthorization)
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func cookieValue(ctx echo.Context, name string) string {
	ck, err := ctx.Cookie(name)
	if err != nil {
		return ""
	}
	return ck.Value
}
