package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewManager_Defaults(t *testing.T) {
	m, err := NewManager()
	require.NoError(t, err)

	cfg := m.GetConfig()
	assert.Equal(t, 5000, cfg.Server.Port)
	assert.Equal(t, "/api", cfg.Server.BasePath)
	assert.Equal(t, "memory", cfg.Storage.Driver)
	assert.Equal(t, "pgx", cfg.Storage.PostgresDriver)
	assert.True(t, cfg.Storage.AutoMigrate)
	assert.Equal(t, "process", cfg.Inference.Driver)
	assert.Equal(t, []string{"predict.py"}, cfg.Inference.Args)
	assert.Equal(t, "arg", cfg.Inference.InputMode)
	assert.Equal(t, 30*time.Second, cfg.Inference.Timeout)
	assert.True(t, cfg.Validation.StrictNumeric)
	assert.Equal(t, "en", cfg.History.Locale)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.True(t, m.IsDevelopment())
	assert.False(t, m.IsProduction())

	require.NoError(t, m.Validate())
}

func TestNewManager_EnvironmentOverrides(t *testing.T) {
	t.Setenv("SB_DIAG_SERVER_PORT", "9090")
	t.Setenv("SB_DIAG_STORAGE_DRIVER", "sqlite")
	t.Setenv("SB_DIAG_INFERENCE_TIMEOUT", "5s")
	t.Setenv("SB_DIAG_LOGGING_LEVEL", "debug")
	t.Setenv("SB_DIAG_ENVIRONMENT", "production")

	m, err := NewManager()
	require.NoError(t, err)

	cfg := m.GetConfig()
	assert.Equal(t, 9090, m.GetServerConfig().Port)
	assert.Equal(t, "sqlite", m.GetStorageConfig().Driver)
	assert.Equal(t, 5*time.Second, m.GetInferenceConfig().Timeout)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, m.IsProduction())
	require.NoError(t, m.Validate())
}

func TestNewManagerFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  port: 7070
inference:
  driver: http
  url: http://model.internal/predict
  timeout: 10s
cache:
  enabled: true
  max_items: 50
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	m, err := NewManagerFromFile(path)
	require.NoError(t, err)

	cfg := m.GetConfig()
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "http", cfg.Inference.Driver)
	assert.Equal(t, "http://model.internal/predict", cfg.Inference.URL)
	assert.Equal(t, 10*time.Second, cfg.Inference.Timeout)
	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, 50, cfg.Cache.MaxItems)
	require.NoError(t, m.Validate())
}

func TestNewManagerFromFile_Missing(t *testing.T) {
	_, err := NewManagerFromFile(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestManager_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(m *Manager)
		wantErr string
	}{
		{"invalid port", func(m *Manager) { m.config.Server.Port = 0 }, "invalid server port"},
		{"unknown storage driver", func(m *Manager) { m.config.Storage.Driver = "mongo" }, "invalid storage driver"},
		{"postgres without url", func(m *Manager) { m.config.Storage.Driver = "postgres" }, "postgres URL is required"},
		{"unknown postgres driver", func(m *Manager) {
			m.config.Storage.Driver = "postgres"
			m.config.Storage.PostgresURL = "postgres://localhost/sb"
			m.config.Storage.PostgresDriver = "odbc"
		}, "invalid postgres driver"},
		{"origin without scheme", func(m *Manager) {
			m.config.Server.AllowedOrigins = []string{"localhost:3000"}
		}, "invalid allowed origin"},
		{"sqlite without path", func(m *Manager) {
			m.config.Storage.Driver = "sqlite"
			m.config.Storage.SQLitePath = ""
		}, "sqlite path is required"},
		{"http without url", func(m *Manager) { m.config.Inference.Driver = "http" }, "inference URL is required"},
		{"bad input mode", func(m *Manager) { m.config.Inference.InputMode = "file" }, "invalid inference input mode"},
		{"zero timeout", func(m *Manager) { m.config.Inference.Timeout = 0 }, "inference timeout must be positive"},
		{"bad rate limit", func(m *Manager) { m.config.RateLimit.Burst = 0 }, "rate limit requires"},
		{"bad locale", func(m *Manager) { m.config.History.Locale = "not a locale!" }, "invalid history locale"},
		{"bad log level", func(m *Manager) { m.config.Logging.Level = "verbose" }, "invalid log level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := NewManager()
			require.NoError(t, err)
			tt.mutate(m)

			err = m.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
