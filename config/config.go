// Package config loads the server configuration from defaults, an optional
// JSON file, and GAMIFYD_* environment variables, in that order of
// precedence.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gamifyd/adapters/sqlx"
	"gamifyd/core"
	"gamifyd/engine"
	"gamifyd/leaderboard"
)

// envPrefix is prepended to every env tag in this package.
const envPrefix = "GAMIFYD"

// Environment represents the deployment environment.
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvTesting     Environment = "testing"
	EnvStaging     Environment = "staging"
	EnvProduction  Environment = "production"
)

// Config holds the complete application configuration.
type Config struct {
	Environment Environment `json:"environment" env:"ENV"`

	Server      ServerConfig      `json:"server"`
	Storage     StorageConfig     `json:"storage"`
	Engine      EngineConfig      `json:"engine"`
	Leaderboard LeaderboardConfig `json:"leaderboard"`
	Webhooks    WebhookConfig     `json:"webhooks"`
	Logging     LoggingConfig     `json:"logging"`
	Metrics     MetricsConfig     `json:"metrics"`
	Security    SecurityConfig    `json:"security"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Address           string        `json:"address" env:"SERVER_ADDR"`
	PathPrefix        string        `json:"path_prefix" env:"SERVER_PATH_PREFIX"`
	CORSOrigin        string        `json:"cors_origin" env:"SERVER_CORS_ORIGIN"`
	AdminKey          string        `json:"admin_key" env:"ADMIN_KEY"`
	ReadTimeout       time.Duration `json:"read_timeout" env:"SERVER_READ_TIMEOUT"`
	WriteTimeout      time.Duration `json:"write_timeout" env:"SERVER_WRITE_TIMEOUT"`
	IdleTimeout       time.Duration `json:"idle_timeout" env:"SERVER_IDLE_TIMEOUT"`
	ReadHeaderTimeout time.Duration `json:"read_header_timeout" env:"SERVER_READ_HEADER_TIMEOUT"`
	ShutdownTimeout   time.Duration `json:"shutdown_timeout" env:"SERVER_SHUTDOWN_TIMEOUT"`
}

// StorageConfig selects and configures the storage adapter.
type StorageConfig struct {
	Adapter string `json:"adapter" env:"STORAGE_ADAPTER"`
	// Path is the snapshot location used by the jsonfile adapter.
	Path string      `json:"path,omitempty" env:"STORAGE_PATH"`
	SQL  sqlx.Config `json:"sql,omitempty"`
}

// EngineConfig tunes the progression engine.
type EngineConfig struct {
	BaseXP       int64   `json:"base_xp" env:"ENGINE_BASE_XP"`
	GrowthFactor float64 `json:"growth_factor" env:"ENGINE_GROWTH_FACTOR"`
	Distribution string  `json:"distribution" env:"ENGINE_DISTRIBUTION"`
	MaxRetries   int     `json:"max_retries" env:"ENGINE_MAX_RETRIES"`
	AsyncEvents  bool    `json:"async_events" env:"ENGINE_ASYNC_EVENTS"`
}

// LeaderboardConfig selects and configures the leaderboard backend.
type LeaderboardConfig struct {
	Enabled bool                    `json:"enabled" env:"LEADERBOARD_ENABLED"`
	Backend string                  `json:"backend" env:"LEADERBOARD_BACKEND"`
	Redis   leaderboard.RedisConfig `json:"redis,omitempty"`
}

// WebhookConfig configures outbound event delivery.
type WebhookConfig struct {
	Endpoints []string `json:"endpoints,omitempty" env:"WEBHOOK_ENDPOINTS"`
	Retries   int      `json:"retries" env:"WEBHOOK_RETRIES"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `json:"level" env:"LOG_LEVEL"`
	Format string `json:"format" env:"LOG_FORMAT"`
	Output string `json:"output" env:"LOG_OUTPUT"`
}

// MetricsConfig holds the Prometheus scrape endpoint configuration.
type MetricsConfig struct {
	Enabled bool   `json:"enabled" env:"METRICS_ENABLED"`
	Address string `json:"address" env:"METRICS_ADDR"`
	Path    string `json:"path" env:"METRICS_PATH"`
}

// SecurityConfig holds security-related configuration.
type SecurityConfig struct {
	EnableRateLimit bool            `json:"enable_rate_limit" env:"RATE_LIMIT_ENABLED"`
	RateLimit       RateLimitConfig `json:"rate_limit,omitempty"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerMinute int `json:"requests_per_minute" env:"RATE_LIMIT_RPM"`
	BurstSize         int `json:"burst_size" env:"RATE_LIMIT_BURST"`
}

// DefaultConfig returns a configuration with sensible defaults for
// development.
func DefaultConfig() *Config {
	return &Config{
		Environment: EnvDevelopment,
		Server: ServerConfig{
			Address:           ":8080",
			PathPrefix:        "/api",
			CORSOrigin:        "*",
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       60 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			ShutdownTimeout:   30 * time.Second,
		},
		Storage: StorageConfig{
			Adapter: "memory",
			SQL:     sqlx.DefaultConfig(sqlx.DriverPostgres),
		},
		Engine: EngineConfig{
			BaseXP:       100,
			GrowthFactor: 1.4,
			Distribution: string(engine.DistributeInitiator),
			MaxRetries:   3,
		},
		Leaderboard: LeaderboardConfig{
			Enabled: true,
			Backend: "memory",
			Redis:   leaderboard.DefaultRedisConfig(),
		},
		Webhooks: WebhookConfig{
			Retries: 2,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Address: ":9090",
			Path:    "/metrics",
		},
		Security: SecurityConfig{
			EnableRateLimit: false,
			RateLimit: RateLimitConfig{
				RequestsPerMinute: 60,
				BurstSize:         10,
			},
		},
	}
}

// Load loads configuration from environment variables and validates it.
func Load() (*Config, error) {
	cfg := DefaultConfig()
	if err := loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// LoadFromFile loads configuration from a JSON file. Environment variables
// override file values.
func LoadFromFile(path string) (*Config, error) {
	if err := validateConfigPath(path); err != nil {
		return nil, fmt.Errorf("invalid config file path: %w", err)
	}
	file, err := os.Open(path) // #nosec G304 - path validated above
	if err != nil {
		return nil, fmt.Errorf("failed to open config file %s: %w", path, err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	if err := loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func validateConfigPath(path string) error {
	if path == "" {
		return errors.New("config file path cannot be empty")
	}
	cleanPath := filepath.Clean(path)
	if !strings.HasSuffix(strings.ToLower(cleanPath), ".json") {
		return errors.New("config file must have .json extension")
	}
	if _, err := os.Stat(cleanPath); err != nil {
		return fmt.Errorf("config file not accessible: %w", err)
	}
	return nil
}

// Options converts the engine section into engine options. The logger is
// left for the caller to set.
func (e EngineConfig) Options() engine.Options {
	return engine.Options{
		Curve:        core.LevelCurve{BaseXP: e.BaseXP, GrowthFactor: e.GrowthFactor},
		Distribution: engine.Distribution(e.Distribution),
		MaxRetries:   e.MaxRetries,
	}
}

// String returns a JSON representation of the config with secrets redacted.
func (c *Config) String() string {
	cfg := *c
	if cfg.Storage.SQL.DSN != "" {
		cfg.Storage.SQL.DSN = "[REDACTED]"
	}
	if cfg.Leaderboard.Redis.Password != "" {
		cfg.Leaderboard.Redis.Password = "[REDACTED]"
	}
	if cfg.Server.AdminKey != "" {
		cfg.Server.AdminKey = "[REDACTED]"
	}
	data, _ := json.MarshalIndent(cfg, "", "  ")
	return string(data)
}
