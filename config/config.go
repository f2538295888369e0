// config/config.go
package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	LedgerModeLocal = "local"
	LedgerModeHTTP  = "http"
)

// Config is everything the service reads from the environment.
type Config struct {
	Port           string
	DatabaseURL    string
	GatewayToken   string
	AllowedOrigins []string
	PublicBaseURL  string

	TokenTTL        time.Duration
	TokenQueryParam string

	LedgerMode  string
	LedgerURL   string
	LedgerToken string

	RewardLease        time.Duration
	ReconcileInterval  time.Duration
	TokenSweepInterval time.Duration
	VisitLogRetention  time.Duration

	R2 R2Config
}

// R2Config holds Cloudflare R2 credentials used by the visit-log archiver.
type R2Config struct {
	AccountID       string
	AccessKeyID     string
	AccessKeySecret string
	Bucket          string
}

// Enabled reports whether every R2 setting is present.
func (r R2Config) Enabled() bool {
	return r.AccountID != "" && r.AccessKeyID != "" && r.AccessKeySecret != "" && r.Bucket != ""
}

// Load reads an optional .env file and then the process environment.
func Load(envFile string) (*Config, error) {
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil {
		log.Printf("⚠️  No %s file found, reading environment variables directly", envFile)
	}

	cfg := &Config{
		Port:            getEnv("PORT", "5200"),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		GatewayToken:    os.Getenv("GAME_SERVICE_TOKEN"),
		AllowedOrigins:  splitList(getEnv("ALLOWED_ORIGINS", "http://localhost:3000")),
		PublicBaseURL:   strings.TrimRight(getEnv("PUBLIC_BASE_URL", "http://localhost:5200"), "/"),
		TokenQueryParam: getEnv("TRACKING_QUERY_PARAM", "tracking_token"),
		LedgerMode:      strings.ToLower(getEnv("LEDGER_MODE", LedgerModeLocal)),
		LedgerURL:       os.Getenv("LEDGER_URL"),
		LedgerToken:     os.Getenv("LEDGER_TOKEN"),
		R2: R2Config{
			AccountID:       os.Getenv("CLOUDFLARE_ACCOUNT_ID"),
			AccessKeyID:     os.Getenv("R2_ACCESS_KEY_ID"),
			AccessKeySecret: os.Getenv("R2_ACCESS_KEY_SECRET"),
			Bucket:          os.Getenv("R2_BUCKET_NAME"),
		},
	}

	durations := []struct {
		key  string
		def  time.Duration
		dest *time.Duration
	}{
		{"TRACKING_TOKEN_TTL", 24 * time.Hour, &cfg.TokenTTL},
		{"REWARD_LEASE", 2 * time.Minute, &cfg.RewardLease},
		{"RECONCILE_INTERVAL", 30 * time.Second, &cfg.ReconcileInterval},
		{"TOKEN_SWEEP_INTERVAL", 15 * time.Minute, &cfg.TokenSweepInterval},
		{"VISIT_LOG_RETENTION", 30 * 24 * time.Hour, &cfg.VisitLogRetention},
	}
	for _, d := range durations {
		v, err := getDuration(d.key, d.def)
		if err != nil {
			return nil, err
		}
		*d.dest = v
	}

	switch cfg.LedgerMode {
	case LedgerModeLocal:
	case LedgerModeHTTP:
		if cfg.LedgerURL == "" {
			return nil, fmt.Errorf("LEDGER_URL is required when LEDGER_MODE=%s", LedgerModeHTTP)
		}
	default:
		return nil, fmt.Errorf("unknown LEDGER_MODE %q", cfg.LedgerMode)
	}

	return cfg, nil
}

// RequireServe checks the settings only the HTTP server needs.
func (c *Config) RequireServe() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL environment variable not set")
	}
	if c.GatewayToken == "" {
		return fmt.Errorf("GAME_SERVICE_TOKEN environment variable not set")
	}
	return nil
}

func getEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getDuration(key string, def time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s %q: must be positive", key, raw)
	}
	return d, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
