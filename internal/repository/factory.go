package repository

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/sb-diagnostic-server/internal/database"
	"github.com/sb-diagnostic-server/internal/domain"
)

// New opens the record store selected by the storage configuration.
func New(ctx context.Context, cfg *domain.StorageConfig, logger *logrus.Logger) (domain.RecordStore, error) {
	switch cfg.Driver {
	case "", "memory":
		logger.Info("Using memory record store; history resets on restart")
		return NewMemoryStore(), nil

	case "sqlite":
		store, err := NewSQLiteStore(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		logger.WithField("path", cfg.SQLitePath).Info("Using SQLite record store")
		return store, nil

	case "postgres":
		if cfg.AutoMigrate {
			if err := database.Migrate(cfg.PostgresURL, logger); err != nil {
				return nil, err
			}
		}
		db, err := database.Open(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		store, err := NewPostgresStore(ctx, db)
		if err != nil {
			db.Close()
			return nil, err
		}
		logger.Info("Using PostgreSQL record store")
		return store, nil

	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", cfg.Driver)
	}
}
