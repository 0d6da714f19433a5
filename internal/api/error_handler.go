package api

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/rryowa/listarr/internal/models"
	"github.com/rryowa/listarr/internal/ratelimit"
	"github.com/rryowa/listarr/internal/service"
)

var (
	ErrUnauthenticated = errors.New("authentication required")
	ErrCSRF            = errors.New("csrf token missing or invalid")
)

type errorMapping struct {
	target error
	status int
	code   string
}

//nolint:gochecknoglobals // lookup table
var errorMappings = []errorMapping{
	{service.ErrValidation, http.StatusBadRequest, "validation_error"},
	{service.ErrInvalidCredentials, http.StatusUnauthorized, "invalid_credentials"},
	{service.ErrInvalidAPIKey, http.StatusUnauthorized, "invalid_api_key"},
	{service.ErrExpired, http.StatusUnauthorized, "expired"},
	{service.ErrInvalidSignature, http.StatusUnauthorized, "invalid_signature"},
	{service.ErrMalformed, http.StatusUnauthorized, "malformed_token"},
	{service.ErrInvalidToken, http.StatusUnauthorized, "invalid_token"},
	{service.ErrTokenRevoked, http.StatusUnauthorized, "token_revoked"},
	{ErrUnauthenticated, http.StatusUnauthorized, "unauthenticated"},
	{service.ErrAccountInactive, http.StatusForbidden, "account_inactive"},
	{service.ErrAccountPending, http.StatusForbidden, "account_pending"},
	{service.ErrForbidden, http.StatusForbidden, "forbidden"},
	{ErrCSRF, http.StatusForbidden, "csrf_failed"},
	{service.ErrNotFound, http.StatusNotFound, "not_found"},
	{service.ErrConflict, http.StatusConflict, "conflict"},
	{ratelimit.ErrRateLimited, http.StatusTooManyRequests, "rate_limited"},
}

func lookup(err error) (errorMapping, bool) {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			return m, true
		}
	}
	return errorMapping{}, false
}

func ErrorHandler(log *zap.SugaredLogger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		var limitErr *ratelimit.LimitError
		if errors.As(err, &limitErr) {
			secs := int(math.Ceil(limitErr.RetryAfter.Seconds()))
			c.Response().Header().Set("Retry-After", strconv.Itoa(max(secs, 1)))
		}

		status, body := http.StatusInternalServerError, models.ErrorResponse{Code: "internal", Reason: "internal server error"}

		var he *echo.HTTPError
		if errors.As(err, &he) {
			status = he.Code
			body.Code = statusCode(he.Code)
			if m, ok := lookup(he.Internal); ok {
				body.Code = m.code
			}
			body.Reason = httpErrorMessage(he)
			if status >= http.StatusInternalServerError {
				log.Errorw("HTTP error", "error", err, "uri", c.Request().RequestURI)
			}
		} else if m, ok := lookup(err); ok {
			status, body.Code, body.Reason = m.status, m.code, err.Error()
		} else {
			log.Errorw("unhandled error", "error", err, "uri", c.Request().RequestURI)
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(status)
		} else {
			err = c.JSON(status, body)
		}
		if err != nil {
			log.Errorw("failed to write json response", "error", err)
		}
	}
}

func httpErrorMessage(he *echo.HTTPError) string {
	if msg, ok := he.Message.(string); ok {
		return msg
	}
	return http.StatusText(he.Code)
}

func statusCode(status int) string {
	text := http.StatusText(status)
	if text == "" {
		return "error"
	}
	return strings.ReplaceAll(strings.ToLower(text), " ", "_")
}
