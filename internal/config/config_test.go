package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDevDefaults(t *testing.T) {
	t.Setenv("APP_ENV", "development")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "8080" {
		t.Fatalf("expected default port 8080, got %q", cfg.Port)
	}
	if cfg.LeaseDuration != 5*time.Minute {
		t.Fatalf("expected 5m lease duration, got %s", cfg.LeaseDuration)
	}
	if cfg.StrandedFundsPolicy != PolicyRetain {
		t.Fatalf("expected retain policy, got %q", cfg.StrandedFundsPolicy)
	}
	if !cfg.Dev() {
		t.Fatal("development env must report Dev()")
	}
}

func TestLoadRejectsInvalidPolicy(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("STRANDED_FUNDS_POLICY", "refund")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for unknown policy")
	}
}

func TestLoadRejectsNonPositiveLease(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("LEASE_DURATION", "-1m")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for negative lease duration")
	}
}

func TestLoadProductionRequiresBackends(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("LEDGER_DATABASE_URL", "")
	t.Setenv("IDENTITY_DATABASE_URL", "")
	t.Setenv("REDIS_URL", "")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error without backend URLs")
	}
	if !strings.Contains(err.Error(), "LEDGER_DATABASE_URL") {
		t.Fatalf("expected ledger URL error first, got %v", err)
	}

	t.Setenv("LEDGER_DATABASE_URL", "postgres://ledger")
	t.Setenv("IDENTITY_DATABASE_URL", "postgres://identity")
	t.Setenv("REDIS_URL", "redis://localhost:6379")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Dev() {
		t.Fatal("production env must not report Dev()")
	}
}

func TestAddress(t *testing.T) {
	c := Config{Port: "9090"}
	if got := c.Address(); got != ":9090" {
		t.Fatalf("expected :9090, got %q", got)
	}
	c.Port = ":7070"
	if got := c.Address(); got != ":7070" {
		t.Fatalf("expected :7070, got %q", got)
	}
}

func TestLoadParsesDurations(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("LEASE_DURATION", "90s")
	t.Setenv("SWEEP_GRACE", "30s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LeaseDuration != 90*time.Second {
		t.Fatalf("expected 90s lease, got %s", cfg.LeaseDuration)
	}
	if cfg.SweepGrace != 30*time.Second {
		t.Fatalf("expected 30s grace, got %s", cfg.SweepGrace)
	}

	t.Setenv("LEASE_DURATION", "five minutes")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for malformed duration")
	}
}
