package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
	"golang.org/x/text/language"

	"github.com/sb-diagnostic-server/internal/domain"
)

// Manager implements the ConfigManager interface using Viper
type Manager struct {
	v      *viper.Viper
	config *domain.Config
}

// NewManager creates a new configuration manager
func NewManager() (*Manager, error) {
	m := &Manager{v: viper.New()}
	if err := m.loadConfig(); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return m, nil
}

// NewManagerFromFile loads configuration from an explicit file path.
func NewManagerFromFile(path string) (*Manager, error) {
	m := &Manager{v: viper.New()}
	m.v.SetConfigFile(path)
	if err := m.loadConfig(); err != nil {
		return nil, fmt.Errorf("failed to load configuration from %s: %w", path, err)
	}
	return m, nil
}

// loadConfig loads configuration from various sources
func (m *Manager) loadConfig() error {
	v := m.v
	if v.ConfigFileUsed() == "" {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/sb-diagnostic-server/")
	}

	v.SetEnvPrefix("SB_DIAG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	m.setDefaults()

	// Config file is optional; defaults and environment variables suffice.
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	config := &domain.Config{}
	if err := v.Unmarshal(config); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	m.config = config
	return nil
}

// setDefaults sets default configuration values
func (m *Manager) setDefaults() {
	v := m.v
	v.SetDefault("environment", "development")

	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 5000)
	v.SetDefault("server.base_path", "/api")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.request_timeout", "45s")
	v.SetDefault("server.allowed_origins", []string{"*"})

	// Storage defaults: memory-resident history, reset on restart
	v.SetDefault("storage.driver", "memory")
	v.SetDefault("storage.sqlite_path", "./data/diagnoses.db")
	v.SetDefault("storage.postgres_url", "")
	v.SetDefault("storage.postgres_driver", "pgx")
	v.SetDefault("storage.auto_migrate", true)
	v.SetDefault("storage.max_open_conns", 25)
	v.SetDefault("storage.max_idle_conns", 5)
	v.SetDefault("storage.conn_max_lifetime", "5m")

	// Inference defaults
	v.SetDefault("inference.driver", "process")
	v.SetDefault("inference.command", "python3")
	v.SetDefault("inference.args", []string{"predict.py"})
	v.SetDefault("inference.work_dir", ".")
	v.SetDefault("inference.input_mode", "arg")
	v.SetDefault("inference.url", "")
	v.SetDefault("inference.timeout", "30s")
	v.SetDefault("inference.breaker.enabled", true)
	v.SetDefault("inference.breaker.max_requests", 3)
	v.SetDefault("inference.breaker.interval", "30s")
	v.SetDefault("inference.breaker.timeout", "60s")
	v.SetDefault("inference.breaker.min_requests", 3)
	v.SetDefault("inference.breaker.failure_ratio", 0.6)

	// Prediction cache defaults
	v.SetDefault("cache.enabled", false)
	v.SetDefault("cache.max_items", 1000)
	v.SetDefault("cache.redis_url", "")
	v.SetDefault("cache.default_ttl", "24h")
	v.SetDefault("cache.pool_size", 10)

	// Rate limit defaults
	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests_per_second", 5.0)
	v.SetDefault("rate_limit.burst", 10)

	v.SetDefault("validation.strict_numeric", true)
	v.SetDefault("history.locale", "en")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.privacy_mode", true)
}

// GetConfig returns the complete configuration
func (m *Manager) GetConfig() *domain.Config {
	return m.config
}

// GetServerConfig returns server configuration
func (m *Manager) GetServerConfig() *domain.ServerConfig {
	return &m.config.Server
}

// GetStorageConfig returns record store configuration
func (m *Manager) GetStorageConfig() *domain.StorageConfig {
	return &m.config.Storage
}

// GetInferenceConfig returns predictive model configuration
func (m *Manager) GetInferenceConfig() *domain.InferenceConfig {
	return &m.config.Inference
}

// Reload reloads the configuration
func (m *Manager) Reload() error {
	return m.loadConfig()
}

// Validate validates the configuration
func (m *Manager) Validate() error {
	config := m.config

	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	switch config.Storage.Driver {
	case "memory":
	case "sqlite":
		if config.Storage.SQLitePath == "" {
			return fmt.Errorf("sqlite path is required for sqlite storage")
		}
	case "postgres":
		if config.Storage.PostgresURL == "" {
			return fmt.Errorf("postgres URL is required for postgres storage")
		}
		if config.Storage.PostgresDriver != "pgx" && config.Storage.PostgresDriver != "pq" {
			return fmt.Errorf("invalid postgres driver: %s", config.Storage.PostgresDriver)
		}
	default:
		return fmt.Errorf("invalid storage driver: %s", config.Storage.Driver)
	}

	switch config.Inference.Driver {
	case "process":
		if config.Inference.Command == "" {
			return fmt.Errorf("inference command is required for process driver")
		}
		if config.Inference.InputMode != "arg" && config.Inference.InputMode != "stdin" {
			return fmt.Errorf("invalid inference input mode: %s", config.Inference.InputMode)
		}
	case "http":
		if config.Inference.URL == "" {
			return fmt.Errorf("inference URL is required for http driver")
		}
	default:
		return fmt.Errorf("invalid inference driver: %s", config.Inference.Driver)
	}
	if config.Inference.Timeout <= 0 {
		return fmt.Errorf("inference timeout must be positive")
	}

	if config.Cache.Enabled && config.Cache.MaxItems <= 0 {
		return fmt.Errorf("cache max items must be positive")
	}

	if config.RateLimit.Enabled && (config.RateLimit.RequestsPerSecond <= 0 || config.RateLimit.Burst <= 0) {
		return fmt.Errorf("rate limit requires positive requests_per_second and burst")
	}

	for _, origin := range config.Server.AllowedOrigins {
		if origin != "*" && !strings.HasPrefix(origin, "http://") && !strings.HasPrefix(origin, "https://") {
			return fmt.Errorf("invalid allowed origin %q", origin)
		}
	}

	if _, err := language.Parse(config.History.Locale); err != nil {
		return fmt.Errorf("invalid history locale %q: %w", config.History.Locale, err)
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(config.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", config.Logging.Level)
	}

	return nil
}

// IsProduction returns true if running in production mode
func (m *Manager) IsProduction() bool {
	return strings.ToLower(m.config.Environment) == "production"
}

// IsDevelopment returns true if running in development mode
func (m *Manager) IsDevelopment() bool {
	env := strings.ToLower(m.config.Environment)
	return env == "development" || env == "dev" || env == ""
}
