package database

import (
	"context"
	"io/fs"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sb-diagnostic-server/internal/domain"
)

func TestEmbeddedMigrations(t *testing.T) {
	files, err := fs.Glob(migrationFiles, "migrations/*.sql")
	require.NoError(t, err)

	assert.Contains(t, files, "migrations/000001_create_diagnoses.up.sql")
	assert.Contains(t, files, "migrations/000001_create_diagnoses.down.sql")

	up, err := fs.ReadFile(migrationFiles, "migrations/000001_create_diagnoses.up.sql")
	require.NoError(t, err)
	assert.Contains(t, string(up), "CREATE TABLE IF NOT EXISTS diagnoses")
}

func TestOpen_RejectsBadConfig(t *testing.T) {
	logger, _ := test.NewNullLogger()
	ctx := context.Background()

	_, err := Open(ctx, &domain.StorageConfig{PostgresURL: "postgres://localhost/sb", PostgresDriver: "odbc"}, logger)
	assert.ErrorContains(t, err, "unsupported postgres driver")

	_, err = Open(ctx, &domain.StorageConfig{PostgresURL: "::not a url::", PostgresDriver: "pgx"}, logger)
	assert.ErrorContains(t, err, "parsing database config")
}

func TestNewMigrationRunner_RejectsBadURL(t *testing.T) {
	logger, _ := test.NewNullLogger()

	_, err := NewMigrationRunner("unknown://localhost/sb", logger)
	assert.Error(t, err)
}
