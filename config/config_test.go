package config

import (
	"path/filepath"
	"testing"
	"time"
)

func missingEnvFile(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "absent.env")
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("TRACKING_TOKEN_TTL", "")
	t.Setenv("LEDGER_MODE", "")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example ,")

	cfg, err := Load(missingEnvFile(t))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.TokenTTL != 24*time.Hour {
		t.Fatalf("TokenTTL=%v, want 24h", cfg.TokenTTL)
	}
	if cfg.LedgerMode != LedgerModeLocal {
		t.Fatalf("LedgerMode=%q, want local", cfg.LedgerMode)
	}
	if cfg.TokenQueryParam != "tracking_token" {
		t.Fatalf("TokenQueryParam=%q", cfg.TokenQueryParam)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "https://b.example" {
		t.Fatalf("AllowedOrigins=%v", cfg.AllowedOrigins)
	}
	if cfg.R2.Enabled() {
		t.Fatalf("R2 should be disabled without credentials")
	}
}

func TestLoadRejectsBadDuration(t *testing.T) {
	t.Setenv("REWARD_LEASE", "soon")
	if _, err := Load(missingEnvFile(t)); err == nil {
		t.Fatalf("expected error for invalid REWARD_LEASE")
	}
}

func TestLoadHTTPLedgerNeedsURL(t *testing.T) {
	t.Setenv("LEDGER_MODE", "http")
	t.Setenv("LEDGER_URL", "")
	if _, err := Load(missingEnvFile(t)); err == nil {
		t.Fatalf("expected error when LEDGER_URL is missing")
	}

	t.Setenv("LEDGER_URL", "http://ledger.internal")
	cfg, err := Load(missingEnvFile(t))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LedgerMode != LedgerModeHTTP {
		t.Fatalf("LedgerMode=%q, want http", cfg.LedgerMode)
	}
}

func TestRequireServe(t *testing.T) {
	cfg := &Config{}
	if err := cfg.RequireServe(); err == nil {
		t.Fatalf("expected error without DATABASE_URL")
	}
	cfg.DatabaseURL = "postgres://x"
	if err := cfg.RequireServe(); err == nil {
		t.Fatalf("expected error without GAME_SERVICE_TOKEN")
	}
	cfg.GatewayToken = "secret"
	if err := cfg.RequireServe(); err != nil {
		t.Fatalf("RequireServe: %v", err)
	}
}
