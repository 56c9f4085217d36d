package domain

import (
	"time"
)

// Config represents the main application configuration
type Config struct {
	Environment string           `mapstructure:"environment"`
	Server      ServerConfig     `mapstructure:"server"`
	Storage     StorageConfig    `mapstructure:"storage"`
	Inference   InferenceConfig  `mapstructure:"inference"`
	Cache       CacheConfig      `mapstructure:"cache"`
	RateLimit   RateLimitConfig  `mapstructure:"rate_limit"`
	Validation  ValidationConfig `mapstructure:"validation"`
	History     HistoryConfig    `mapstructure:"history"`
	Logging     LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	BasePath       string        `mapstructure:"base_path"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
}

// StorageConfig selects and configures the record store backend.
// Driver is one of "memory", "sqlite", "postgres". PostgresDriver picks the
// database/sql driver used for postgres: "pgx" or "pq".
type StorageConfig struct {
	Driver          string        `mapstructure:"driver"`
	SQLitePath      string        `mapstructure:"sqlite_path"`
	PostgresURL     string        `mapstructure:"postgres_url"`
	PostgresDriver  string        `mapstructure:"postgres_driver"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// InferenceConfig configures the predictive model collaborator.
// Driver is "process" or "http"; InputMode is "arg" or "stdin".
type InferenceConfig struct {
	Driver    string        `mapstructure:"driver"`
	Command   string        `mapstructure:"command"`
	Args      []string      `mapstructure:"args"`
	WorkDir   string        `mapstructure:"work_dir"`
	InputMode string        `mapstructure:"input_mode"`
	URL       string        `mapstructure:"url"`
	Timeout   time.Duration `mapstructure:"timeout"`
	Breaker   BreakerConfig `mapstructure:"breaker"`
}

// BreakerConfig configures the circuit breaker around the model.
type BreakerConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	MaxRequests  uint32        `mapstructure:"max_requests"`
	Interval     time.Duration `mapstructure:"interval"`
	Timeout      time.Duration `mapstructure:"timeout"`
	MinRequests  uint32        `mapstructure:"min_requests"`
	FailureRatio float64       `mapstructure:"failure_ratio"`
}

// CacheConfig represents prediction cache configuration
type CacheConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	MaxItems   int           `mapstructure:"max_items"`
	RedisURL   string        `mapstructure:"redis_url"`
	DefaultTTL time.Duration `mapstructure:"default_ttl"`
	PoolSize   int           `mapstructure:"pool_size"`
}

// RateLimitConfig bounds diagnosis submissions per client.
type RateLimitConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// ValidationConfig controls numeric coercion strictness.
type ValidationConfig struct {
	StrictNumeric bool `mapstructure:"strict_numeric"`
}

// HistoryConfig configures the history query engine.
type HistoryConfig struct {
	Locale string `mapstructure:"locale"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level    string `mapstructure:"level"`
	Format   string `mapstructure:"format"`
	Output   string `mapstructure:"output"`
	Filename string `mapstructure:"filename"`

	// PrivacyMode redacts patient identity fields from log entries.
	PrivacyMode bool `mapstructure:"privacy_mode"`
}
