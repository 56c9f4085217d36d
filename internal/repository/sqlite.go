package repository

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps diagnosis history in a local SQLite file.
type SQLiteStore struct {
	*sqlStore
	dbPath string
}

// NewSQLiteStore opens (creating if needed) the database file and schema.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection keeps writers from contending for the file lock.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}

	if err := createSQLiteSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStore{
		sqlStore: &sqlStore{db: db, dialect: sqliteDialect},
		dbPath:   dbPath,
	}, nil
}

func createSQLiteSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS diagnoses (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		patient_id TEXT NOT NULL,
		patient_name TEXT NOT NULL,
		diagnosis TEXT NOT NULL,
		confidence REAL NOT NULL,
		risk_level TEXT NOT NULL,
		timestamp_ns INTEGER NOT NULL,
		recommendations TEXT NOT NULL,
		input_data TEXT NOT NULL,
		probability_sb REAL,
		probability_no_sb REAL
	);

	CREATE INDEX IF NOT EXISTS idx_diagnoses_patient_id ON diagnoses(patient_id);
	CREATE INDEX IF NOT EXISTS idx_diagnoses_timestamp ON diagnoses(timestamp_ns);
	`

	_, err := db.Exec(schema)
	return err
}

// Path returns the database file location.
func (s *SQLiteStore) Path() string {
	return s.dbPath
}
