package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 8000 {
		t.Errorf("expected default port 8000, got %d", cfg.Server.Port)
	}
	if cfg.Upstream.AuthEndpoint != "https://api.amazon.com/auth/o2/token" {
		t.Errorf("unexpected auth endpoint: %s", cfg.Upstream.AuthEndpoint)
	}
	if cfg.Token.SafetyMargin != 60*time.Second {
		t.Errorf("unexpected safety margin: %v", cfg.Token.SafetyMargin)
	}
	if cfg.Retry.MaxAttempts != 4 {
		t.Errorf("unexpected max attempts: %d", cfg.Retry.MaxAttempts)
	}
	if cfg.Dispatch.WaitCeiling != 5*time.Second {
		t.Errorf("unexpected wait ceiling: %v", cfg.Dispatch.WaitCeiling)
	}
}

func TestLoadFromFile(t *testing.T) {
	content := `
server:
  port: 9090
upstream:
  region: us-east-1
  endpoint: https://sellingpartnerapi-na.amazon.com
rate_limit:
  pricing:
    capacity: 30
    refill_rate: 15
retry:
  max_attempts: 2
`
	path := filepath.Join(t.TempDir(), "amztec.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Upstream.Region != "us-east-1" {
		t.Errorf("unexpected region: %s", cfg.Upstream.Region)
	}
	if cfg.RateLimit.Pricing.Capacity != 30 {
		t.Errorf("unexpected pricing capacity: %g", cfg.RateLimit.Pricing.Capacity)
	}
	if cfg.Retry.MaxAttempts != 2 {
		t.Errorf("unexpected max attempts: %d", cfg.Retry.MaxAttempts)
	}
	// Untouched sections keep their defaults.
	if cfg.RateLimit.Catalog.Capacity != 10 {
		t.Errorf("catalog limit should keep its default, got %g", cfg.RateLimit.Catalog.Capacity)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("AMZTEC_PORT", "7777")
	t.Setenv("AMZTEC_DATABASE_URL", "postgres://localhost/amztec")
	t.Setenv("GATEWAY_API_KEYS", "amztec_ab:s1, amztec_cd:s2")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 7777 {
		t.Errorf("expected port 7777, got %d", cfg.Server.Port)
	}
	if cfg.Database.URL != "postgres://localhost/amztec" {
		t.Errorf("unexpected database url: %s", cfg.Database.URL)
	}
	if len(cfg.Gateway.APIKeys) != 2 || cfg.Gateway.APIKeys[1] != "amztec_cd:s2" {
		t.Errorf("unexpected api keys: %v", cfg.Gateway.APIKeys)
	}
}

func TestEnvExpansionInFile(t *testing.T) {
	t.Setenv("TEST_DB_URL", "postgres://db.internal/amztec")

	content := `
database:
  url: ${TEST_DB_URL}
`
	path := filepath.Join(t.TempDir(), "amztec.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Database.URL != "postgres://db.internal/amztec" {
		t.Errorf("env var not expanded: %s", cfg.Database.URL)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name    string
		content string
	}{
		{"zero attempts", "retry:\n  max_attempts: 0\n"},
		{"jitter out of range", "retry:\n  jitter: 1.5\n"},
		{"zero capacity", "rate_limit:\n  catalog:\n    capacity: 0\n    refill_rate: 1\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "amztec.yaml")
			if err := os.WriteFile(path, []byte(tc.content), 0o600); err != nil {
				t.Fatalf("writing config: %v", err)
			}
			if _, err := Load(path); err == nil {
				t.Fatal("expected a validation error")
			}
		})
	}
}

func TestForOperation(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := cfg.RateLimit.ForOperation("pricing"); got != cfg.RateLimit.Pricing {
		t.Errorf("pricing limit mismatch: %+v", got)
	}
	if got := cfg.RateLimit.ForOperation("listing"); got != cfg.RateLimit.Listing {
		t.Errorf("listing limit mismatch: %+v", got)
	}
	// Unknown kinds fall back to the catalog limit.
	if got := cfg.RateLimit.ForOperation("other"); got != cfg.RateLimit.Catalog {
		t.Errorf("fallback limit mismatch: %+v", got)
	}
}

func TestAddr(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Addr() != "0.0.0.0:8000" {
		t.Errorf("unexpected addr: %s", cfg.Addr())
	}
}

func TestDatabaseURLForMigrate(t *testing.T) {
	cfg := defaults()
	cfg.Database.URL = "postgres://localhost/amztec"
	if got := cfg.DatabaseURLForMigrate(); got != "postgres://localhost/amztec?sslmode=disable" {
		t.Errorf("unexpected migrate url: %s", got)
	}

	cfg.Database.URL = "postgres://localhost/amztec?sslmode=require"
	if got := cfg.DatabaseURLForMigrate(); got != "postgres://localhost/amztec?sslmode=require" {
		t.Errorf("sslmode must not be appended twice: %s", got)
	}
}
