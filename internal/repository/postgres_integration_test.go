package repository

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/sb-diagnostic-server/internal/database"
	"github.com/sb-diagnostic-server/internal/domain"
)

func startPostgres(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping PostgreSQL container test in short mode")
	}
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		t.Skipf("PostgreSQL container unavailable: %v", err)
	}
	t.Cleanup(func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate PostgreSQL container: %v", err)
		}
	})

	url, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	return url
}

func TestPostgresStore_Integration(t *testing.T) {
	url := startPostgres(t)
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	require.NoError(t, database.Migrate(url, logger))
	require.NoError(t, database.Migrate(url, logger), "migrations are idempotent")

	for _, driver := range []string{"pgx", "pq"} {
		t.Run(driver, func(t *testing.T) {
			cfg := &domain.StorageConfig{
				Driver:         "postgres",
				PostgresURL:    url,
				PostgresDriver: driver,
				MaxOpenConns:   5,
			}

			runStoreContract(t, func(t *testing.T) domain.RecordStore {
				ctx := context.Background()
				db, err := database.Open(ctx, cfg, logger)
				require.NoError(t, err)
				_, err = db.ExecContext(ctx, "TRUNCATE diagnoses RESTART IDENTITY")
				require.NoError(t, err)

				store, err := NewPostgresStore(ctx, db)
				require.NoError(t, err)
				t.Cleanup(func() { store.Close() })
				return store
			})
		})
	}
}
