package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultAppName        = "StallPay"
	defaultAppEnv         = "development"
	defaultPort           = "8080"
	defaultLogLevel       = "info"
	defaultShutdownDelay  = 10 * time.Second
	defaultIdempotencyTTL = 24 * time.Hour

	defaultMarkupBps          = 1_000
	defaultPlatformFeeBps     = 1_000
	defaultSubscriptionFeeBps = 2_500
	defaultMinFeeCents        = 50

	defaultDepositMinCents = 1_000
	defaultDepositMaxCents = 1_000_000
	defaultDepositTTL      = 30 * time.Minute

	defaultWithdrawMaxPerMin = 3
)

// Config captures application runtime configuration loaded from environment
// variables, with an optional .env file for local development.
type Config struct {
	AppName        string
	AppEnv         string
	Port           string
	LogLevel       string
	DatabaseURL    string
	RedisURL       string
	ShutdownPeriod time.Duration
	IdempotencyTTL time.Duration

	// AdminKeyHash is the bcrypt hash the admin surface is guarded with.
	// Empty disables admin endpoints.
	AdminKeyHash string

	// Fee schedule, in basis points and cents.
	MarkupBps          int64
	PlatformFeeBps     int64
	SubscriptionFeeBps int64
	MinFeeCents        int64

	// Crypto deposit bounds.
	DepositMinCents int64
	DepositMaxCents int64
	DepositTTL      time.Duration

	WithdrawMaxPerMin int
}

// Load reads configuration values from the environment and populates a
// Config instance.
func Load() (Config, error) {
	_ = godotenv.Load() // optional .env, absent in production

	cfg := Config{
		AppName:            getEnv("APP_NAME", defaultAppName),
		AppEnv:             getEnv("APP_ENV", defaultAppEnv),
		Port:               getEnv("PORT", defaultPort),
		LogLevel:           strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel)),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		RedisURL:           os.Getenv("REDIS_URL"),
		AdminKeyHash:       os.Getenv("ADMIN_KEY_HASH"),
		ShutdownPeriod:     defaultShutdownDelay,
		IdempotencyTTL:     defaultIdempotencyTTL,
		MarkupBps:          defaultMarkupBps,
		PlatformFeeBps:     defaultPlatformFeeBps,
		SubscriptionFeeBps: defaultSubscriptionFeeBps,
		MinFeeCents:        defaultMinFeeCents,
		DepositMinCents:    defaultDepositMinCents,
		DepositMaxCents:    defaultDepositMaxCents,
		DepositTTL:         defaultDepositTTL,
		WithdrawMaxPerMin:  defaultWithdrawMaxPerMin,
	}

	var err error
	if cfg.ShutdownPeriod, err = durationEnv("SHUTDOWN_TIMEOUT", cfg.ShutdownPeriod); err != nil {
		return Config{}, err
	}
	if cfg.IdempotencyTTL, err = durationEnv("IDEMPOTENCY_TTL", cfg.IdempotencyTTL); err != nil {
		return Config{}, err
	}
	if cfg.DepositTTL, err = durationEnv("DEPOSIT_TTL", cfg.DepositTTL); err != nil {
		return Config{}, err
	}

	if cfg.MarkupBps, err = intEnv("MARKUP_BPS", cfg.MarkupBps); err != nil {
		return Config{}, err
	}
	if cfg.PlatformFeeBps, err = intEnv("PLATFORM_FEE_BPS", cfg.PlatformFeeBps); err != nil {
		return Config{}, err
	}
	if cfg.SubscriptionFeeBps, err = intEnv("SUBSCRIPTION_FEE_BPS", cfg.SubscriptionFeeBps); err != nil {
		return Config{}, err
	}
	if cfg.MinFeeCents, err = intEnv("MIN_FEE_CENTS", cfg.MinFeeCents); err != nil {
		return Config{}, err
	}
	if cfg.DepositMinCents, err = intEnv("DEPOSIT_MIN_CENTS", cfg.DepositMinCents); err != nil {
		return Config{}, err
	}
	if cfg.DepositMaxCents, err = intEnv("DEPOSIT_MAX_CENTS", cfg.DepositMaxCents); err != nil {
		return Config{}, err
	}

	if v := os.Getenv("WITHDRAW_MAX_PER_MIN"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid WITHDRAW_MAX_PER_MIN: %w", err)
		}
		cfg.WithdrawMaxPerMin = n
	}

	if !cfg.IsDev() {
		if cfg.DatabaseURL == "" {
			return Config{}, fmt.Errorf("DATABASE_URL must be set when APP_ENV=%s", cfg.AppEnv)
		}
		if cfg.RedisURL == "" {
			return Config{}, fmt.Errorf("REDIS_URL must be set when APP_ENV=%s", cfg.AppEnv)
		}
	}

	return cfg, nil
}

// IsDev reports whether the app runs in a development environment.
func (c Config) IsDev() bool {
	switch strings.ToLower(c.AppEnv) {
	case "dev", "development", "local":
		return true
	default:
		return false
	}
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func intEnv(key string, fallback int64) (int64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}
