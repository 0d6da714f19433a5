package api

import (
	"net/http"
	"net/http/httptest"

	"github.com/labstack/echo/v4"
)

func newEchoContext(req *http.Request, rec *httptest.ResponseRecorder) echo.Context {
	return echo.New().NewContext(req, rec)
}
