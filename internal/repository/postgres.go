package repository

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresStore keeps diagnosis history in PostgreSQL. The schema is
// created by the database package migrations.
type PostgresStore struct {
	*sqlStore
}

// NewPostgresStore wraps an open connection pool.
func NewPostgresStore(ctx context.Context, db *sql.DB) (*PostgresStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{
		sqlStore: &sqlStore{db: db, dialect: postgresDialect},
	}, nil
}
