// Package db opens the indexer's SQLite database and runs its schema
// migrations.
package db

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"github.com/Openmesh-Network/openrd-indexer/internal/config"
)

// NewSQLiteDB opens a SQLite database at the given path with the settings the
// indexer relies on (WAL, immediate transactions, busy timeout).
func NewSQLiteDB(dbPath string) (*sql.DB, error) {
	return sql.Open("sqlite3", fmt.Sprintf(
		"file:%s?_txlock=immediate&_journal_mode=WAL&_busy_timeout=30000",
		dbPath,
	))
}

// NewSQLiteDBFromConfig opens a SQLite database using the storage
// configuration.
func NewSQLiteDBFromConfig(cfg config.StorageConfig) (*sql.DB, error) {
	connStr := fmt.Sprintf(
		"file:%s?_txlock=immediate&_journal_mode=%s&_busy_timeout=%d",
		cfg.Path,
		cfg.JournalMode,
		cfg.BusyTimeout,
	)

	sqlDB, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConnections)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConnections)

	if _, err := sqlDB.Exec(fmt.Sprintf("PRAGMA synchronous = %s", cfg.Synchronous)); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to set pragma: %w", err)
	}

	return sqlDB, nil
}
