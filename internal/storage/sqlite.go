package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SQLiteBackend stores one row per collection in the collections table. The
// full serialized value is replaced on every save, so a partially written
// record can never be observed: the row either holds the previous value or
// the new one.
type SQLiteBackend struct {
	db *sql.DB
}

func NewSQLiteBackend(db *sql.DB) *SQLiteBackend {
	return &SQLiteBackend{db: db}
}

func (s *SQLiteBackend) Load(name string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRow(`SELECT data FROM collections WHERE name = ?`, name).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load collection %s: %w", name, err)
	}
	return data, nil
}

func (s *SQLiteBackend) Save(name string, data []byte) error {
	_, err := s.db.Exec(`
		INSERT INTO collections (name, data, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at
	`, name, data, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to save collection %s: %w", name, err)
	}
	return nil
}
