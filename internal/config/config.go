package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

const (
	defaultAppName        = "VaultRent"
	defaultAppEnv         = "development"
	defaultPort           = "8080"
	defaultLogLevel       = "info"
	defaultLeaseDuration  = 5 * time.Minute
	defaultSweepCron      = "*/10 * * * *"
	defaultSweepGrace     = time.Minute
	defaultShutdownDelay  = 10 * time.Second
	defaultIdempotencyTTL = 24 * time.Hour
)

// Stranded-funds policies for deposits that arrive outside the rental window.
const (
	// PolicyRetain keeps the deposit on the wallet without attributing it to
	// any user. Unattributed wallet balances require manual reconciliation.
	PolicyRetain = "retain"
	// PolicyReject refuses the deposit before any balance is mutated.
	PolicyReject = "reject"
)

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName             string
	AppEnv              string
	Port                string
	LogLevel            string
	LedgerDatabaseURL   string
	IdentityDatabaseURL string
	RedisURL            string
	LeaseDuration       time.Duration
	StrandedFundsPolicy string
	SweepCron           string
	SweepGrace          time.Duration
	ShutdownPeriod      time.Duration
	IdempotencyTTL      time.Duration
}

// Load reads configuration values from the environment and populates a Config instance.
func Load() (Config, error) {
	cfg := Config{
		AppName:             getEnv("APP_NAME", defaultAppName),
		AppEnv:              strings.ToLower(getEnv("APP_ENV", defaultAppEnv)),
		Port:                getEnv("PORT", defaultPort),
		LogLevel:            strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel)),
		LedgerDatabaseURL:   os.Getenv("LEDGER_DATABASE_URL"),
		IdentityDatabaseURL: os.Getenv("IDENTITY_DATABASE_URL"),
		RedisURL:            os.Getenv("REDIS_URL"),
		StrandedFundsPolicy: strings.ToLower(getEnv("STRANDED_FUNDS_POLICY", PolicyRetain)),
		SweepCron:           getEnv("SWEEP_CRON", defaultSweepCron),
	}

	var err error
	if cfg.LeaseDuration, err = durationEnv("LEASE_DURATION", defaultLeaseDuration); err != nil {
		return Config{}, err
	}
	if cfg.SweepGrace, err = durationEnv("SWEEP_GRACE", defaultSweepGrace); err != nil {
		return Config{}, err
	}
	if cfg.ShutdownPeriod, err = durationEnv("SHUTDOWN_TIMEOUT", defaultShutdownDelay); err != nil {
		return Config{}, err
	}
	if cfg.IdempotencyTTL, err = durationEnv("IDEMPOTENCY_TTL", defaultIdempotencyTTL); err != nil {
		return Config{}, err
	}

	if cfg.LeaseDuration <= 0 {
		return Config{}, fmt.Errorf("LEASE_DURATION must be positive")
	}

	switch cfg.StrandedFundsPolicy {
	case PolicyRetain, PolicyReject:
	default:
		return Config{}, fmt.Errorf("invalid STRANDED_FUNDS_POLICY %q", cfg.StrandedFundsPolicy)
	}

	if !cfg.Dev() {
		if cfg.LedgerDatabaseURL == "" {
			return Config{}, fmt.Errorf("LEDGER_DATABASE_URL must be set")
		}
		if cfg.IdentityDatabaseURL == "" {
			return Config{}, fmt.Errorf("IDENTITY_DATABASE_URL must be set")
		}
		if cfg.RedisURL == "" {
			return Config{}, fmt.Errorf("REDIS_URL must be set")
		}
	}

	return cfg, nil
}

// Dev reports whether the application runs in a development environment. Dev
// mode falls back to in-memory stores and an in-process expiry scheduler when
// the external backends are not configured.
func (c Config) Dev() bool {
	switch c.AppEnv {
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

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
