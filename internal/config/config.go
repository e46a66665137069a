// Package config provides application configuration management.
// It loads settings from environment variables and provides defaults for
// server mode, timeouts, scraper behavior, and snapshot settings.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// LINE Bot Configuration
	LineChannelToken  string
	LineChannelSecret string

	// Observability
	BetterStackToken    string // Better Stack log shipping token (empty = disabled)
	BetterStackEndpoint string // Better Stack ingesting endpoint
	SentryToken         string // Better Stack Errors token for Sentry SDK (empty = disabled)
	SentryHost          string // Better Stack Errors ingesting host
	Environment         string // Deployment environment tag (default: "production")

	// Metrics Authentication
	MetricsUsername string // Username for /metrics endpoint Basic Auth (default: "prometheus")
	MetricsPassword string // Password for /metrics endpoint Basic Auth (empty = no auth)

	// Server Configuration
	Port            string
	LogLevel        string
	ShutdownTimeout time.Duration

	// Data Configuration
	DataDir string // Data directory for the SQLite database

	// Scraper Configuration
	ScraperTimeout    time.Duration
	ScraperMaxRetries int

	// Historical query engine
	FetchCap     int // Upstream truncation threshold per query (default: 1000)
	BlockDays    int // Top-level partition size in days (default: 30)
	FetchWorkers int // Concurrent top-level block fetches (default: 1 = sequential)

	// Directory refresh
	DirectoryRefreshInterval time.Duration // Company directory refresh cadence (default: 24h)

	// Notify job
	NotifyInterval time.Duration // Watchlist push notification cadence (0 = disabled)

	// R2 snapshot backup (all empty = disabled)
	R2Endpoint         string
	R2AccessKeyID      string
	R2SecretKey        string
	R2Bucket           string
	R2SnapshotInterval time.Duration

	// Bot Configuration (embedded)
	Bot BotConfig
}

// BotConfig holds bot-specific configuration
type BotConfig struct {
	WebhookTimeout time.Duration // Timeout for webhook bot processing

	// Rate Limits (token bucket)
	UserRateLimitBurst        float64 // Maximum burst tokens per owner (default: 15)
	UserRateLimitRefillPerSec float64 // Tokens refilled per second (default: 0.1 = 1 per 10s)
	GlobalRateLimitRPS        float64 // Global reply rate limit in requests per second (default: 100)

	// LINE API Constraints
	MaxMessagesPerReply int // Maximum messages per reply (LINE API limit: 5)
	MaxEventsPerWebhook int // Maximum events per webhook (default: 100)
	MinReplyTokenLength int // Minimum reply token length (default: 10)

	// Business Limits
	MaxRangeDays     int // Maximum span of a "mops range" query in days (default: 90)
	MaxReplyChars    int // Character budget when formatting announcement lists (default: 4800)
	MaxCandidates    int // Maximum stock-name candidates shown on ambiguous lookup (default: 10)
	MaxWatchedStocks int // Maximum codes per owner watchlist (default: 50)
}

// Load reads configuration from environment variables
// It attempts to load .env file first, then reads from env vars
func Load() (*Config, error) {
	// Try to load .env file (ignore error if file doesn't exist)
	_ = godotenv.Load()

	cfg := &Config{
		LineChannelToken:  getEnv("LINE_CHANNEL_ACCESS_TOKEN", ""),
		LineChannelSecret: getEnv("LINE_CHANNEL_SECRET", ""),

		BetterStackToken:    getEnv("BETTERSTACK_TOKEN", ""),
		BetterStackEndpoint: getEnv("BETTERSTACK_ENDPOINT", ""),
		SentryToken:         getEnv("SENTRY_TOKEN", ""),
		SentryHost:          getEnv("SENTRY_HOST", "errors.betterstack.com"),
		Environment:         getEnv("ENVIRONMENT", "production"),

		MetricsUsername: getEnv("METRICS_USERNAME", "prometheus"),
		MetricsPassword: getEnv("METRICS_PASSWORD", ""),

		Port:            getEnv("PORT", "10000"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		ShutdownTimeout: getDurationEnv("SHUTDOWN_TIMEOUT", 30*time.Second),

		DataDir: getEnv("DATA_DIR", getDefaultDataDir()),

		ScraperTimeout:    getDurationEnv("SCRAPER_TIMEOUT", ScraperRequest),
		ScraperMaxRetries: getIntEnv("SCRAPER_MAX_RETRIES", 3),

		FetchCap:     getIntEnv("MOPS_FETCH_CAP", 1000),
		BlockDays:    getIntEnv("MOPS_BLOCK_DAYS", 30),
		FetchWorkers: getIntEnv("MOPS_FETCH_WORKERS", 1),

		DirectoryRefreshInterval: getDurationEnv("DIRECTORY_REFRESH_INTERVAL", 24*time.Hour),
		NotifyInterval:           getDurationEnv("NOTIFY_INTERVAL", 0),

		R2Endpoint:         getEnv("R2_ENDPOINT", ""),
		R2AccessKeyID:      getEnv("R2_ACCESS_KEY_ID", ""),
		R2SecretKey:        getEnv("R2_SECRET_ACCESS_KEY", ""),
		R2Bucket:           getEnv("R2_BUCKET", ""),
		R2SnapshotInterval: getDurationEnv("R2_SNAPSHOT_INTERVAL", 6*time.Hour),

		Bot: BotConfig{
			WebhookTimeout:            getDurationEnv("WEBHOOK_TIMEOUT", WebhookProcessing),
			UserRateLimitBurst:        getFloatEnv("USER_RATE_LIMIT_BURST", 15.0),
			UserRateLimitRefillPerSec: getFloatEnv("USER_RATE_LIMIT_REFILL_PER_SEC", 0.1), // 1 per 10s
			GlobalRateLimitRPS:        getFloatEnv("GLOBAL_RATE_LIMIT_RPS", 100.0),
			MaxMessagesPerReply:       LINEMaxMessagesPerReply,
			MaxEventsPerWebhook:       100,
			MinReplyTokenLength:       10,
			MaxRangeDays:              getIntEnv("MAX_RANGE_DAYS", 90),
			MaxReplyChars:             4800,
			MaxCandidates:             10,
			MaxWatchedStocks:          getIntEnv("MAX_WATCHED_STOCKS", 50),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if required configuration values are set
func (c *Config) Validate() error {
	var errs []error

	if c.LineChannelToken == "" {
		errs = append(errs, errors.New("LINE_CHANNEL_ACCESS_TOKEN is required"))
	}
	if c.LineChannelSecret == "" {
		errs = append(errs, errors.New("LINE_CHANNEL_SECRET is required"))
	}
	if c.Port == "" {
		errs = append(errs, errors.New("PORT is required"))
	}
	if c.DataDir == "" {
		errs = append(errs, errors.New("DATA_DIR is required"))
	}
	if c.ScraperTimeout <= 0 {
		errs = append(errs, fmt.Errorf("SCRAPER_TIMEOUT must be positive, got %v", c.ScraperTimeout))
	}
	if c.ScraperMaxRetries < 0 {
		errs = append(errs, fmt.Errorf("SCRAPER_MAX_RETRIES cannot be negative, got %d", c.ScraperMaxRetries))
	}
	if c.FetchCap <= 0 {
		errs = append(errs, fmt.Errorf("MOPS_FETCH_CAP must be positive, got %d", c.FetchCap))
	}
	if c.BlockDays <= 0 {
		errs = append(errs, fmt.Errorf("MOPS_BLOCK_DAYS must be positive, got %d", c.BlockDays))
	}
	if c.FetchWorkers <= 0 {
		errs = append(errs, fmt.Errorf("MOPS_FETCH_WORKERS must be positive, got %d", c.FetchWorkers))
	}
	if c.HasR2() {
		if c.R2Endpoint == "" || c.R2AccessKeyID == "" || c.R2SecretKey == "" || c.R2Bucket == "" {
			errs = append(errs, errors.New("R2 snapshot requires R2_ENDPOINT, R2_ACCESS_KEY_ID, R2_SECRET_ACCESS_KEY and R2_BUCKET"))
		}
	}
	if err := c.Bot.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("bot config: %w", err))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Validate checks bot configuration consistency.
func (c *BotConfig) Validate() error {
	var errs []error

	if c.WebhookTimeout <= 0 {
		errs = append(errs, fmt.Errorf("WEBHOOK_TIMEOUT must be positive, got %v", c.WebhookTimeout))
	}
	if c.UserRateLimitBurst <= 0 {
		errs = append(errs, fmt.Errorf("USER_RATE_LIMIT_BURST must be positive, got %v", c.UserRateLimitBurst))
	}
	if c.UserRateLimitRefillPerSec <= 0 {
		errs = append(errs, fmt.Errorf("USER_RATE_LIMIT_REFILL_PER_SEC must be positive, got %v", c.UserRateLimitRefillPerSec))
	}
	if c.MaxRangeDays <= 0 {
		errs = append(errs, fmt.Errorf("MAX_RANGE_DAYS must be positive, got %d", c.MaxRangeDays))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// HasR2 returns true if any R2 snapshot setting is configured.
func (c *Config) HasR2() bool {
	return c.R2Endpoint != "" || c.R2AccessKeyID != "" || c.R2SecretKey != "" || c.R2Bucket != ""
}

// SQLitePath returns the full path to the SQLite database file
func (c *Config) SQLitePath() string {
	return filepath.Join(c.DataDir, "mopsbot.db")
}

// getEnv retrieves environment variable with fallback to default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getIntEnv retrieves integer environment variable with fallback to default value
func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getDurationEnv retrieves duration environment variable with fallback to default value
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getFloatEnv retrieves float64 environment variable with fallback to default value
func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// getDefaultDataDir returns platform-specific default data directory
func getDefaultDataDir() string {
	if runtime.GOOS == "windows" {
		return "./data"
	}
	return "/data"
}
