package util

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/rryowa/listarr/internal/ratelimit"
)

//nolint:gochecknoglobals // here its ok
var once sync.Once

func LoadEnv() {
	once.Do(func() {
		if err := godotenv.Load(".env"); err != nil {
			log.Printf("Warning: could not load .env file: %v", err)
		}
	})
}

const (
	TokenPartsExpected = 2
	RawTokenLength     = 32
	JWTLeeWay          = 5 * time.Second
	minSecretLength    = 32
)

type ServerConfig struct {
	ServerAddr      string        `env:"SERVER_ADDRESS" envDefault:"localhost:8080"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"10s"`
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"10s"`
	IdleTimeout     time.Duration `env:"IDLE_TIMEOUT" envDefault:"30s"`
	GracefulTimeout time.Duration `env:"GRACEFUL_TIMEOUT" envDefault:"5s"`
	SecureCookies   bool          `env:"SECURE_COOKIES" envDefault:"false"`

	// Take the client IP from X-Forwarded-For. Only enable behind a proxy.
	TrustProxyHeaders bool `env:"TRUST_PROXY_HEADERS" envDefault:"false"`

	// Per-IP token bucket in front of every route.
	ThrottleRPS   float64 `env:"THROTTLE_RPS" envDefault:"20"`
	ThrottleBurst int     `env:"THROTTLE_BURST" envDefault:"40"`
}

func NewServerConfig() (*ServerConfig, error) {
	return parse[ServerConfig]()
}

type TokenConfig struct {
	JwtSecretKey  []byte
	CSRFSecretKey []byte
	JwtSecret     string        `env:"JWT_SECRET,required,unset"`
	CSRFSecret    string        `env:"CSRF_SECRET,unset"`
	Issuer        string        `env:"JWT_ISSUER" envDefault:"listarr"`
	AccessTTL     time.Duration `env:"ACCESS_TOKEN_TTL" envDefault:"15m"`
	RefreshTTL    time.Duration `env:"REFRESH_TOKEN_TTL" envDefault:"720h"`
	ResetTTL      time.Duration `env:"RESET_TOKEN_TTL" envDefault:"1h"`
}

func NewTokenConfig() (*TokenConfig, error) {
	cfg, err := parse[TokenConfig]()
	if err != nil {
		return nil, err
	}
	if len(cfg.JwtSecret) < minSecretLength {
		return nil, fmt.Errorf("JWT_SECRET must be at least %d bytes", minSecretLength)
	}
	cfg.JwtSecretKey = []byte(cfg.JwtSecret)
	if cfg.CSRFSecret == "" {
		// Domain-separate the CSRF key from the signing key when only one secret is configured.
		cfg.CSRFSecret = "csrf:" + cfg.JwtSecret
	}
	cfg.CSRFSecretKey = []byte(cfg.CSRFSecret)
	cfg.JwtSecret, cfg.CSRFSecret = "", ""
	return cfg, nil
}

type AuthConfig struct {
	RequireApproval bool   `env:"REGISTRATION_REQUIRES_APPROVAL" envDefault:"false"`
	WebhookURL      string `env:"WEBHOOK_URL"`
}

func NewAuthConfig() (*AuthConfig, error) {
	return parse[AuthConfig]()
}

type StorageConfig struct {
	// Driver is "postgres" or "memory".
	Driver string `env:"STORAGE_DRIVER" envDefault:"postgres"`
	// RedisEnabled switches the denylist and rate counters to Redis.
	RedisEnabled bool `env:"REDIS_ENABLED" envDefault:"true"`
}

func NewStorageConfig() (*StorageConfig, error) {
	return parse[StorageConfig]()
}

type RateLimiterConfig struct {
	LoginPerMinute    int64 `env:"RATE_LOGIN_PER_MINUTE" envDefault:"5"`
	LoginPerHour      int64 `env:"RATE_LOGIN_PER_HOUR" envDefault:"20"`
	LoginPerDay       int64 `env:"RATE_LOGIN_PER_DAY" envDefault:"100"`
	RegisterPerMinute int64 `env:"RATE_REGISTER_PER_MINUTE" envDefault:"3"`
	RegisterPerDay    int64 `env:"RATE_REGISTER_PER_DAY" envDefault:"20"`
	ResetPerMinute    int64 `env:"RATE_RESET_PER_MINUTE" envDefault:"3"`
	ResetPerDay       int64 `env:"RATE_RESET_PER_DAY" envDefault:"10"`
	APIPerMinute      int64 `env:"RATE_API_PER_MINUTE" envDefault:"120"`
	APIPerHour        int64 `env:"RATE_API_PER_HOUR" envDefault:"5000"`
	APIPerDay         int64 `env:"RATE_API_PER_DAY" envDefault:"50000"`
}

func NewRateLimiterConfig() (*RateLimiterConfig, error) {
	return parse[RateLimiterConfig]()
}

// Tiers converts the flat config into limiter tiers. Zero limits disable a tier.
func (c *RateLimiterConfig) Tiers() map[ratelimit.Class][]ratelimit.Tier {
	const day = 24 * time.Hour
	tiers := map[ratelimit.Class][]ratelimit.Tier{}
	add := func(class ratelimit.Class, window time.Duration, limit int64) {
		if limit > 0 {
			tiers[class] = append(tiers[class], ratelimit.Tier{Window: window, Limit: limit})
		}
	}
	add(ratelimit.ClassLogin, time.Minute, c.LoginPerMinute)
	add(ratelimit.ClassLogin, time.Hour, c.LoginPerHour)
	add(ratelimit.ClassLogin, day, c.LoginPerDay)
	add(ratelimit.ClassRegister, time.Minute, c.RegisterPerMinute)
	add(ratelimit.ClassRegister, day, c.RegisterPerDay)
	add(ratelimit.ClassReset, time.Minute, c.ResetPerMinute)
	add(ratelimit.ClassReset, day, c.ResetPerDay)
	add(ratelimit.ClassAPI, time.Minute, c.APIPerMinute)
	add(ratelimit.ClassAPI, time.Hour, c.APIPerHour)
	add(ratelimit.ClassAPI, day, c.APIPerDay)
	return tiers
}

func parse[T any]() (*T, error) {
	LoadEnv()
	cfg, err := env.ParseAs[T]()
	if err != nil {
		var zero T
		return nil, fmt.Errorf("parse %T: %w", zero, err)
	}
	return &cfg, nil
}
