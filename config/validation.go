package config

import (
	"errors"
	"fmt"
	"strings"

	"gamifyd/engine"
)

// Validate validates the configuration and returns detailed error messages.
func (c *Config) Validate() error {
	var errs []string

	if c.Environment == "" {
		errs = append(errs, "environment cannot be empty")
	}
	if err := c.Server.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("server config: %v", err))
	}
	if err := c.Storage.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("storage config: %v", err))
	}
	if err := c.Engine.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("engine config: %v", err))
	}
	if err := c.Leaderboard.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("leaderboard config: %v", err))
	}
	if err := c.Logging.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("logging config: %v", err))
	}
	if err := c.Metrics.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("metrics config: %v", err))
	}
	if err := c.Security.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("security config: %v", err))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// Validate validates server configuration.
func (s *ServerConfig) Validate() error {
	var errs []string

	if s.Address == "" {
		errs = append(errs, "address cannot be empty")
	}
	if s.ReadTimeout <= 0 {
		errs = append(errs, "read_timeout must be positive")
	}
	if s.WriteTimeout <= 0 {
		errs = append(errs, "write_timeout must be positive")
	}
	if s.IdleTimeout <= 0 {
		errs = append(errs, "idle_timeout must be positive")
	}
	if s.ReadHeaderTimeout <= 0 {
		errs = append(errs, "read_header_timeout must be positive")
	}
	if s.ShutdownTimeout <= 0 {
		errs = append(errs, "shutdown_timeout must be positive")
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// Validate validates storage configuration.
func (s *StorageConfig) Validate() error {
	var errs []string

	switch s.Adapter {
	case "memory":
	case "jsonfile":
		if s.Path == "" {
			errs = append(errs, "path cannot be empty when the jsonfile adapter is selected")
		}
	case "sql":
		if s.SQL.DSN == "" {
			errs = append(errs, "sql.dsn cannot be empty when the sql adapter is selected")
		}
		if s.SQL.Driver != "postgres" && s.SQL.Driver != "mysql" {
			errs = append(errs, "sql.driver must be postgres or mysql")
		}
	default:
		errs = append(errs, "adapter must be one of: memory, jsonfile, sql")
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// Validate validates engine configuration.
func (e *EngineConfig) Validate() error {
	var errs []string

	if e.BaseXP <= 0 {
		errs = append(errs, "base_xp must be positive")
	}
	if e.GrowthFactor <= 1 {
		errs = append(errs, "growth_factor must be greater than 1")
	}
	if !engine.Distribution(e.Distribution).Valid() {
		errs = append(errs, "distribution must be one of: initiator, equal, proportional")
	}
	if e.MaxRetries < 0 {
		errs = append(errs, "max_retries cannot be negative")
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// Validate validates leaderboard configuration.
func (l *LeaderboardConfig) Validate() error {
	if !l.Enabled {
		return nil
	}
	switch l.Backend {
	case "memory":
		return nil
	case "redis":
		if l.Redis.Addr == "" {
			return errors.New("redis.addr cannot be empty when the redis backend is selected")
		}
		return nil
	default:
		return errors.New("backend must be one of: memory, redis")
	}
}

// Validate validates logging configuration.
func (l *LoggingConfig) Validate() error {
	var errs []string

	switch l.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, "level must be one of: debug, info, warn, error")
	}
	switch l.Format {
	case "json", "text":
	default:
		errs = append(errs, "format must be one of: json, text")
	}
	switch l.Output {
	case "stdout", "stderr":
	default:
		errs = append(errs, "output must be one of: stdout, stderr")
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// Validate validates metrics configuration.
func (m *MetricsConfig) Validate() error {
	var errs []string

	if m.Enabled {
		if m.Address == "" {
			errs = append(errs, "address cannot be empty when metrics are enabled")
		}
		if m.Path == "" {
			errs = append(errs, "path cannot be empty when metrics are enabled")
		}
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// Validate validates security settings.
func (s *SecurityConfig) Validate() error {
	var errs []string

	if s.EnableRateLimit {
		if s.RateLimit.RequestsPerMinute <= 0 {
			errs = append(errs, "rate_limit.requests_per_minute must be > 0 when rate limiting is enabled")
		}
		if s.RateLimit.BurstSize <= 0 {
			errs = append(errs, "rate_limit.burst_size must be > 0 when rate limiting is enabled")
		}
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}
