// Package database opens PostgreSQL connections for the record store and
// applies its schema migrations.
package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/sb-diagnostic-server/internal/domain"
)

// Open creates a PostgreSQL connection pool using the configured
// database/sql driver and verifies it with a ping.
func Open(ctx context.Context, cfg *domain.StorageConfig, logger *logrus.Logger) (*sql.DB, error) {
	var (
		db  *sql.DB
		err error
	)

	switch cfg.PostgresDriver {
	case "", "pgx":
		connConfig, perr := pgx.ParseConfig(cfg.PostgresURL)
		if perr != nil {
			return nil, fmt.Errorf("parsing database config: %w", perr)
		}
		db = stdlib.OpenDB(*connConfig)
	case "pq":
		db, err = sql.Open("postgres", cfg.PostgresURL)
		if err != nil {
			return nil, fmt.Errorf("opening database: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported postgres driver: %s", cfg.PostgresDriver)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	logger.WithFields(logrus.Fields{
		"driver":         cfg.PostgresDriver,
		"max_open_conns": cfg.MaxOpenConns,
		"max_idle_conns": cfg.MaxIdleConns,
	}).Info("Database connection pool established")

	return db, nil
}
