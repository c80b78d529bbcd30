// Package config provides centralized configuration loaded from environment
// variables. Shared by both cmd/api and cmd/settle.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// --------------------------------------------------------------------------
// Sport registry
// --------------------------------------------------------------------------

// SportConfig describes a sport the score gateway knows how to refresh.
type SportConfig struct {
	ID   string
	Name string
}

var SportRegistry = map[string]SportConfig{
	"NBA": {ID: "NBA", Name: "National Basketball Association"},
	"NFL": {ID: "NFL", Name: "National Football League"},
}

// --------------------------------------------------------------------------
// Table names, matching schema/schema.sql
// --------------------------------------------------------------------------

const (
	EntriesTable     = "entries"
	GameResultsTable = "game_results"
	RunsTable        = "settlement_runs"
)

// --------------------------------------------------------------------------
// Config, populated from environment variables
// --------------------------------------------------------------------------

type Config struct {
	// Database
	DatabaseURL    string
	DBPoolMinConns int
	DBPoolMaxConns int
	DBPoolMaxLife  time.Duration

	// API server
	APIHost     string
	APIPort     int
	Environment string // development, staging, production
	Debug       bool

	// CORS
	CORSAllowOrigins []string

	// Rate limiting
	RateLimitEnabled  bool
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Cache
	CacheEnabled bool
	CacheTTL     time.Duration

	// Settlement scheduler
	SettlementEnabled  bool
	SettlementInterval time.Duration
	StartupDelay       time.Duration
	RunTimeout         time.Duration
	Market             string
	Sports             []string

	// Score gateway
	BDLAPIKey           string
	BDLTeamName         string // full_name or name
	ScoreLookbackDays   int
	ScoreBreakerTimeout time.Duration

	// Notifications
	NotifyWebhookURL string

	// Maintenance
	RunRetentionDays int
	StaleEntryDays   int
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	dbURL := envOr("DATABASE_URL", envOr("NEON_DATABASE_URL", ""))
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL or NEON_DATABASE_URL must be set")
	}

	cfg := &Config{
		DatabaseURL:    dbURL,
		DBPoolMinConns: envInt("DB_POOL_MIN_CONNS", 2),
		DBPoolMaxConns: envInt("DB_POOL_MAX_CONNS", 10),
		DBPoolMaxLife:  time.Duration(envInt("DB_POOL_MAX_LIFE_MINUTES", 30)) * time.Minute,

		APIHost:     envOr("API_HOST", "0.0.0.0"),
		APIPort:     envInt("API_PORT", envInt("PORT", 8000)),
		Environment: envOr("ENVIRONMENT", "development"),
		Debug:       envBool("DEBUG", false),

		CORSAllowOrigins: envList("CORS_ALLOW_ORIGINS", []string{
			"http://localhost:3000",
			"http://localhost:5173",
		}),

		RateLimitEnabled:  envBool("RATE_LIMIT_ENABLED", true),
		RateLimitRequests: envInt("RATE_LIMIT_REQUESTS", 100),
		RateLimitWindow:   time.Duration(envInt("RATE_LIMIT_WINDOW", 60)) * time.Second,

		CacheEnabled: envBool("CACHE_ENABLED", true),
		CacheTTL:     time.Duration(envInt("CACHE_TTL_SECONDS", 30)) * time.Second,

		SettlementEnabled:  envBool("SETTLEMENT_ENABLED", true),
		SettlementInterval: time.Duration(envInt("SETTLEMENT_INTERVAL_MINUTES", 15)) * time.Minute,
		StartupDelay:       time.Duration(envInt("SETTLEMENT_STARTUP_DELAY_SECONDS", 10)) * time.Second,
		RunTimeout:         time.Duration(envInt("SETTLEMENT_RUN_TIMEOUT_MINUTES", 5)) * time.Minute,
		Market:             envOr("SETTLEMENT_MARKET", "moneyline"),
		Sports:             upper(envList("SETTLEMENT_SPORTS", []string{"NBA", "NFL"})),

		BDLAPIKey:           envOr("BALLDONTLIE_API_KEY", ""),
		BDLTeamName:         envOr("BDL_TEAM_NAME", "full_name"),
		ScoreLookbackDays:   envInt("SCORE_LOOKBACK_DAYS", 3),
		ScoreBreakerTimeout: time.Duration(envInt("SCORE_BREAKER_TIMEOUT_SECONDS", 60)) * time.Second,

		NotifyWebhookURL: envOr("NOTIFY_WEBHOOK_URL", ""),

		RunRetentionDays: envInt("RUN_RETENTION_DAYS", 30),
		StaleEntryDays:   envInt("STALE_ENTRY_DAYS", 3),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.SettlementInterval <= 0 {
		return fmt.Errorf("SETTLEMENT_INTERVAL_MINUTES must be positive")
	}
	if c.ScoreLookbackDays < 0 {
		return fmt.Errorf("SCORE_LOOKBACK_DAYS must not be negative")
	}
	for _, s := range c.Sports {
		if _, ok := SportRegistry[s]; !ok {
			return fmt.Errorf("unsupported sport %q in SETTLEMENT_SPORTS", s)
		}
	}
	switch c.BDLTeamName {
	case "full_name", "name":
	default:
		return fmt.Errorf("BDL_TEAM_NAME must be full_name or name, got %q", c.BDLTeamName)
	}
	return nil
}

// IsProduction returns true if running in production environment.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// --------------------------------------------------------------------------
// Env helpers
// --------------------------------------------------------------------------

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return fallback
}

func envList(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return fallback
}

func upper(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToUpper(s)
	}
	return out
}
