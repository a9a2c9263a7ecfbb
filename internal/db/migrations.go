package db

import (
	"database/sql"
	_ "embed"
	"fmt"
	"strings"

	migrate "github.com/rubenv/sql-migrate"
	"github.com/Openmesh-Network/openrd-indexer/internal/logger"
)

const upDownSeparator = "-- +migrate Up"

//go:embed migrations/001_collections.sql
var migCollections string

//go:embed migrations/002_sync_state.sql
var migSyncState string

// Migration is one embedded SQL migration with a Down section above the
// "-- +migrate Up" separator and an Up section below it.
type Migration struct {
	ID  string
	SQL string
}

// Migrations returns the full ordered migration set of the indexer schema.
func Migrations() []Migration {
	return []Migration{
		{ID: "001_collections.sql", SQL: migCollections},
		{ID: "002_sync_state.sql", SQL: migSyncState},
	}
}

// RunMigrations applies all pending migrations to the database at dbPath.
func RunMigrations(log *logger.Logger, dbPath string) error {
	sqlDB, err := NewSQLiteDB(dbPath)
	if err != nil {
		return fmt.Errorf("error creating DB: %w", err)
	}
	defer sqlDB.Close()
	return RunMigrationsDB(log, sqlDB)
}

// RunMigrationsDB applies all pending migrations to an open database.
func RunMigrationsDB(log *logger.Logger, sqlDB *sql.DB) error {
	migs := &migrate.MemoryMigrationSource{}

	for _, m := range Migrations() {
		splitted := strings.Split(m.SQL, upDownSeparator)
		if len(splitted) < 2 {
			return fmt.Errorf("migration %s missing %q separator", m.ID, upDownSeparator)
		}

		downSQL := splitted[0]
		if idx := strings.Index(downSQL, "-- +migrate Down"); idx != -1 {
			downSQL = downSQL[idx+len("-- +migrate Down"):]
		}

		migs.Migrations = append(migs.Migrations, &migrate.Migration{
			Id:   m.ID,
			Up:   []string{strings.TrimSpace(splitted[1])},
			Down: []string{strings.TrimSpace(downSQL)},
		})
	}

	n, err := migrate.Exec(sqlDB, "sqlite3", migs, migrate.Up)
	if err != nil {
		return fmt.Errorf("error executing migrations: %w", err)
	}

	log.Debugf("applied %d migrations", n)
	return nil
}
