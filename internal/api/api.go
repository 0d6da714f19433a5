package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	middleware "github.com/oapi-codegen/echo-middleware"
	"go.uber.org/zap"

	"github.com/rryowa/listarr/internal/controller"
	"github.com/rryowa/listarr/internal/metrics"
	"github.com/rryowa/listarr/internal/ratelimit"
	"github.com/rryowa/listarr/internal/service"
	"github.com/rryowa/listarr/internal/util"
)

const defaultGracefulTimeout = 5 * time.Second

// Deps are the services the HTTP layer routes to.
type Deps struct {
	Controller *controller.Controller
	Auth       *service.AuthService
	APIKeys    *service.APIKeyService
	CSRF       *service.CSRFManager
	Limiter    *ratelimit.Limiter
}

type API struct {
	server          *echo.Echo
	log             *zap.SugaredLogger
	gracefulTimeout time.Duration
	cleanupFuncs    []func()
}

func NewAPI(deps Deps, l *zap.SugaredLogger, sc *util.ServerConfig, cleanupFuncs []func()) (*API, error) {
	e := echo.New()
	e.HideBanner = true

	e.Server.Addr = sc.ServerAddr
	e.Server.WriteTimeout = sc.WriteTimeout
	e.Server.ReadTimeout = sc.ReadTimeout
	e.Server.IdleTimeout = sc.IdleTimeout
	e.HTTPErrorHandler = ErrorHandler(l)
	e.IPExtractor = echo.ExtractIPDirect()
	if sc.TrustProxyHeaders {
		e.IPExtractor = echo.ExtractIPFromXFFHeader()
	}

	a := &API{
		server:          e,
		log:             l,
		gracefulTimeout: sc.GracefulTimeout,
		cleanupFuncs:    cleanupFuncs,
	}
	if a.gracefulTimeout <= 0 {
		a.gracefulTimeout = defaultGracefulTimeout
	}
	if err := a.registerRoutes(deps, sc); err != nil {
		return nil, err
	}
	return a, nil
}

// Handler exposes the router, mainly for tests.
func (a *API) Handler() http.Handler {
	return a.server
}

func (a *API) registerRoutes(deps Deps, sc *util.ServerConfig) error {
	swagger, err := controller.GetSwagger()
	if err != nil {
		return fmt.Errorf("failed to load OpenAPI specification: %w", err)
	}
	swagger.Servers = nil

	metrics.Init()

	e := a.server
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())
	e.Use(echomiddleware.RequestLoggerWithConfig(GetLoggerMiddlewareConfig(a.log)))
	e.Use(MetricsMiddleware())
	if sc.ThrottleRPS > 0 {
		e.Use(ThrottleMiddleware(sc.ThrottleRPS, sc.ThrottleBurst))
	}

	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))

	c := deps.Controller
	session := SessionAuthMiddleware(deps.Auth, deps.CSRF)
	limit := func(class ratelimit.Class, key KeyFunc) echo.MiddlewareFunc {
		return RateLimitMiddleware(deps.Limiter, class, key)
	}

	g := e.Group("/api")
	g.Use(middleware.OapiRequestValidatorWithOptions(swagger, &middleware.Options{
		Options: openapi3filter.Options{
			// Authentication is enforced by the session and API key middlewares.
			AuthenticationFunc: openapi3filter.NoopAuthenticationFunc,
		},
	}))
	g.GET("/ping", c.CheckServer)

	auth := g.Group("/auth")
	auth.POST("/register", c.Register, limit(ratelimit.ClassRegister, ByIP))
	auth.POST("/login", c.Login, limit(ratelimit.ClassLogin, ByIP))
	auth.POST("/logout", c.Logout)
	auth.GET("/verify", c.Verify, session)
	auth.POST("/refresh", c.Refresh)
	auth.POST("/password/reset", c.RequestPasswordReset, limit(ratelimit.ClassReset, ByIP))
	auth.POST("/password/confirm", c.ConfirmPasswordReset, limit(ratelimit.ClassReset, ByIP))

	keys := g.Group("/api-keys", session)
	keys.GET("", c.ListAPIKeys)
	keys.POST("", c.CreateAPIKey)
	keys.GET("/:id", c.GetAPIKey)
	keys.PATCH("/:id", c.UpdateAPIKey)
	keys.DELETE("/:id", c.RevokeAPIKey)

	v1 := g.Group("/v1", APIKeyAuthMiddleware(deps.APIKeys), limit(ratelimit.ClassAPI, ByAPIKey))
	v1.POST("/authorize", c.Authorize)

	return nil
}

func (a *API) Run(ctxBackground context.Context) {
	ctx, stop := signal.NotifyContext(ctxBackground, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a.ListenGracefulShutdown(ctx)
}

func (a *API) ListenGracefulShutdown(ctx context.Context) {
	go func() {
		err := a.server.Start(a.server.Server.Addr)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Fatalf("HTTP server ListenAndServe: %v", err)
		}
	}()
	a.log.Infof("Listening on: %s", a.server.Server.Addr)

	<-ctx.Done()
	a.log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.gracefulTimeout)
	defer cancel()

	if err := a.server.Shutdown(shutdownCtx); err != nil {
		a.log.Errorf("server shutdown: %v", err)
	} else {
		a.log.Info("server shutdown completed")
	}

	for _, cleanup := range a.cleanupFuncs {
		cleanup()
	}
}
