package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rryowa/listarr/internal/api"
	"github.com/rryowa/listarr/internal/controller"
	"github.com/rryowa/listarr/internal/migrations"
	"github.com/rryowa/listarr/internal/ratelimit"
	"github.com/rryowa/listarr/internal/service"
	"github.com/rryowa/listarr/internal/storage"
	"github.com/rryowa/listarr/internal/storage/memory"
	"github.com/rryowa/listarr/internal/storage/postgres"
	"github.com/rryowa/listarr/internal/storage/redis"
	"github.com/rryowa/listarr/internal/util"
)

const (
	appName = "listarr"
	Version = "0.1.0"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          appName,
		Short:        "listarr auth and session service",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return migrate()
		},
	})
	cmd.AddCommand(sessionCmd())
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s version %s\n", appName, Version)
		},
	})

	return cmd
}

func migrate() error {
	logger := util.NewZapLogger()
	defer logger.Sync() //nolint:errcheck // best effort

	dbCfg, err := util.NewDBConfig()
	if err != nil {
		return err
	}
	db, cleanup, err := util.NewDBConnection(logger, dbCfg)
	if err != nil {
		return err
	}
	defer cleanup()

	return migrations.RunMigrations(db, logger)
}

func serve(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	logger := util.NewZapLogger()
	defer logger.Sync() //nolint:errcheck // best effort

	serverCfg, err := util.NewServerConfig()
	if err != nil {
		return err
	}
	tokenCfg, err := util.NewTokenConfig()
	if err != nil {
		return err
	}
	authCfg, err := util.NewAuthConfig()
	if err != nil {
		return err
	}
	storageCfg, err := util.NewStorageConfig()
	if err != nil {
		return err
	}
	rateCfg, err := util.NewRateLimiterConfig()
	if err != nil {
		return err
	}

	var cleanupFuncs []func()
	st, err := newStorage(logger, storageCfg, &cleanupFuncs)
	if err != nil {
		runCleanup(cleanupFuncs)
		return err
	}
	denylist, counter, err := newSharedState(logger, storageCfg, &cleanupFuncs)
	if err != nil {
		runCleanup(cleanupFuncs)
		return err
	}

	tokenService := service.NewTokenService(tokenCfg)
	csrf := service.NewCSRFManager(tokenCfg.CSRFSecretKey)
	webhookService := service.NewWebhookService(logger, authCfg.WebhookURL)
	authService := service.NewAuthService(st, denylist, tokenService, csrf, webhookService, authCfg, logger)
	apiKeyService := service.NewAPIKeyService(st, st, logger)
	limiter := ratelimit.New(counter, rateCfg.Tiers())

	ctrl := controller.NewController(logger, authService, apiKeyService, serverCfg.SecureCookies)

	apiServer, err := api.NewAPI(api.Deps{
		Controller: ctrl,
		Auth:       authService,
		APIKeys:    apiKeyService,
		CSRF:       csrf,
		Limiter:    limiter,
	}, logger, serverCfg, cleanupFuncs)
	if err != nil {
		runCleanup(cleanupFuncs)
		return err
	}
	apiServer.Run(ctx)
	return nil
}

func newStorage(logger *zap.SugaredLogger, cfg *util.StorageConfig, cleanups *[]func()) (storage.Storage, error) {
	switch cfg.Driver {
	case "memory":
		logger.Warn("Using in-memory storage; all accounts are lost on restart")
		return memory.NewStorage(logger), nil
	case "postgres":
		dbCfg, err := util.NewDBConfig()
		if err != nil {
			return nil, err
		}
		db, cleanup, err := util.NewDBConnection(logger, dbCfg)
		if err != nil {
			return nil, err
		}
		*cleanups = append(*cleanups, cleanup)
		if err = migrations.RunMigrations(db, logger); err != nil {
			return nil, err
		}
		return postgres.NewStorage(db), nil
	default:
		return nil, fmt.Errorf("unknown STORAGE_DRIVER %q", cfg.Driver)
	}
}

// newSharedState returns the denylist and rate counters. They live in Redis
// when enabled so several replicas see the same state.
func newSharedState(logger *zap.SugaredLogger, cfg *util.StorageConfig, cleanups *[]func()) (storage.TokenStorage, ratelimit.Counter, error) {
	if !cfg.RedisEnabled {
		logger.Warn("Redis disabled; denylist and rate limits are per process")
		return memory.NewTokenStorage(), memory.NewRateCounter(), nil
	}

	redisCfg, err := util.NewRedisConfig()
	if err != nil {
		return nil, nil, err
	}
	client, cleanup, err := util.NewRedisClient(logger, redisCfg)
	if err != nil {
		return nil, nil, err
	}
	*cleanups = append(*cleanups, cleanup)
	return redis.NewTokenStorage(client), redis.NewRateCounter(client), nil
}

func runCleanup(funcs []func()) {
	for _, f := range funcs {
		f()
	}
}
