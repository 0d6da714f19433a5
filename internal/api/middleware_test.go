package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newThrottledServer(rps float64, burst int) *echo.Echo {
	e := echo.New()
	e.HTTPErrorHandler = ErrorHandler(zap.NewNop().Sugar())
	e.Use(ThrottleMiddleware(rps, burst))
	e.GET("/", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	return e
}

func TestThrottleMiddleware_SetsRetryAfter(t *testing.T) {
	for _, tc := range []struct {
		name  string
		rps   float64
		retry string
	}{
		{"slow refill", 0.25, "4"},
		{"sub-second refill rounds up to one second", 2, "1"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			e := newThrottledServer(tc.rps, 1)

			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
			require.Equal(t, http.StatusOK, rec.Code)

			rec = httptest.NewRecorder()
			e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
			require.Equal(t, http.StatusTooManyRequests, rec.Code)
			assert.Equal(t, tc.retry, rec.Header().Get("Retry-After"))
			assert.Contains(t, rec.Body.String(), "rate_limited")
		})
	}
}
