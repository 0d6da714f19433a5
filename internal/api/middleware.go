package api

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/rryowa/listarr/internal/controller"
	"github.com/rryowa/listarr/internal/metrics"
	"github.com/rryowa/listarr/internal/ratelimit"
	"github.com/rryowa/listarr/internal/service"
)

const (
	APIKeyHeader = "X-API-Key"
	CSRFHeader   = "X-CSRF-Token"

	throttleExpiry = 3 * time.Minute
)

// SessionAuthMiddleware accepts an access token from the Authorization header
// or the access_token cookie. Cookie-authenticated requests with unsafe
// methods must also carry a matching X-CSRF-Token header.
func SessionAuthMiddleware(auth *service.AuthService, csrf *service.CSRFManager) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token := controller.BearerToken(c.Request())
			viaCookie := false
			if token == "" {
				if ck, err := c.Cookie(controller.AccessTokenCookie); err == nil && ck.Value != "" {
					token, viaCookie = ck.Value, true
				}
			}
			if token == "" {
				return ErrUnauthenticated
			}

			claims, err := auth.Verify(c.Request().Context(), token)
			if err != nil {
				return err
			}

			if viaCookie && !isSafeMethod(c.Request().Method) &&
				!csrf.Validate(claims.SessionID, c.Request().Header.Get(CSRFHeader)) {
				return ErrCSRF
			}

			controller.SetClaims(c, claims)
			return next(c)
		}
	}
}

// APIKeyAuthMiddleware проверяет API ключ из заголовка X-API-Key.
// Если ключ валиден, его владелец и скоупы сохраняются в контексте Echo.
func APIKeyAuthMiddleware(keys *service.APIKeyService) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			apiKey := c.Request().Header.Get(APIKeyHeader)
			if apiKey == "" {
				return ErrUnauthenticated
			}

			principal, err := keys.Verify(c.Request().Context(), apiKey, c.RealIP())
			if err != nil {
				return err
			}

			controller.SetPrincipal(c, principal)
			return next(c)
		}
	}
}

// KeyFunc picks the principal a request is counted against.
type KeyFunc func(c echo.Context) string

func ByIP(c echo.Context) string { return "ip:" + c.RealIP() }

// ByAPIKey counts against the verified key, falling back to the client IP.
func ByAPIKey(c echo.Context) string {
	if p, ok := controller.PrincipalFrom(c); ok {
		return "key:" + p.KeyID
	}
	return ByIP(c)
}

func RateLimitMiddleware(limiter *ratelimit.Limiter, class ratelimit.Class, key KeyFunc) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := limiter.Admit(c.Request().Context(), key(c), class)
			if errors.Is(err, ratelimit.ErrRateLimited) {
				metrics.RateLimitRejections.WithLabelValues(string(class)).Inc()
				return err
			}
			if err != nil {
				return err
			}
			return next(c)
		}
	}
}

// ThrottleMiddleware is a per-IP token bucket in front of every route.
// Rejections carry Retry-After set to the time one token takes to refill.
func ThrottleMiddleware(rps float64, burst int) echo.MiddlewareFunc {
	retryAfter := strconv.Itoa(max(int(math.Ceil(1/rps)), 1))

	store := echomiddleware.NewRateLimiterMemoryStoreWithConfig(echomiddleware.RateLimiterMemoryStoreConfig{
		Rate:      rate.Limit(rps),
		Burst:     burst,
		ExpiresIn: throttleExpiry,
	})
	return echomiddleware.RateLimiterWithConfig(echomiddleware.RateLimiterConfig{
		Store: store,
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			c.Response().Header().Set("Retry-After", retryAfter)
			return &echo.HTTPError{Code: http.StatusTooManyRequests, Message: "too many requests", Internal: ratelimit.ErrRateLimited}
		},
	})
}

func MetricsMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if err != nil {
				var he *echo.HTTPError
				if errors.As(err, &he) {
					status = he.Code
				} else if m, ok := lookup(err); ok {
					status = m.status
				} else {
					status = http.StatusInternalServerError
				}
			}
			metrics.HTTPRequestDuration.
				WithLabelValues(c.Request().Method, c.Path(), strconv.Itoa(status)).
				Observe(time.Since(start).Seconds())
			return err
		}
	}
}

func GetLoggerMiddlewareConfig(log *zap.SugaredLogger) echomiddleware.RequestLoggerConfig {
	return echomiddleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogError:     true,
		LogLatency:   true,
		LogRemoteIP:  true,
		HandleError:  true,
		LogRequestID: true,

		LogValuesFunc: func(c echo.Context, v echomiddleware.RequestLoggerValues) error {
			fields := []interface{}{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
				"ip", v.RemoteIP,
			}
			if v.RequestID != "" {
				fields = append(fields, "requestID", v.RequestID)
			}
			if v.Error != nil {
				fields = append(fields, "error", v.Error)
				log.Errorw("Request", fields...)
			} else {
				log.Infow("Request", fields...)
			}
			return nil
		},
	}
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return true
	}
	return false
}
