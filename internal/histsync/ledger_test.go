package histsync

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Openmesh-Network/openrd-indexer/internal/db"
	"github.com/Openmesh-Network/openrd-indexer/internal/logger"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	sqlDB, err := db.NewSQLiteDB(t.TempDir() + "/indexer.db")
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.RunMigrationsDB(logger.NewNopLogger(), sqlDB))

	return sqlDB
}

func TestLedger_WatchCheckpointUpsert(t *testing.T) {
	ledger := NewLedger(setupTestDB(t), logger.NewNopLogger())

	block, err := ledger.LastSeen(1)
	require.NoError(t, err)
	require.Equal(t, uint64(0), block)

	require.NoError(t, ledger.SaveLastSeen(1, 100))
	require.NoError(t, ledger.SaveLastSeen(137, 900))
	require.NoError(t, ledger.SaveLastSeen(1, 120))

	block, err = ledger.LastSeen(1)
	require.NoError(t, err)
	require.Equal(t, uint64(120), block)

	block, err = ledger.LastSeen(137)
	require.NoError(t, err)
	require.Equal(t, uint64(900), block)
}

func TestLedger_SyncRunLifecycle(t *testing.T) {
	ledger := NewLedger(setupTestDB(t), logger.NewNopLogger())
	ledger.now = func() int64 { return 1700000000 }

	run, err := ledger.BeginRun(1, 10, 500)
	require.NoError(t, err)
	require.NotZero(t, run.ID)
	require.Equal(t, int64(1700000000), run.StartedAt)

	// In flight: finished_at stays zero so interrupted runs are visible.
	runs, err := ledger.Runs(1, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	require.Zero(t, runs[0].FinishedAt)

	ledger.now = func() int64 { return 1700000060 }
	run.LogsProcessed = 42
	require.NoError(t, ledger.FinishRun(run))

	runs, err = ledger.Runs(1, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	require.Equal(t, uint64(42), runs[0].LogsProcessed)
	require.Equal(t, int64(1700000060), runs[0].FinishedAt)
}

func TestLedger_RunsNewestFirstAndScopedToChain(t *testing.T) {
	ledger := NewLedger(setupTestDB(t), logger.NewNopLogger())

	first, err := ledger.BeginRun(1, 0, 100)
	require.NoError(t, err)
	second, err := ledger.BeginRun(1, 100, 200)
	require.NoError(t, err)
	_, err = ledger.BeginRun(137, 0, 50)
	require.NoError(t, err)

	runs, err := ledger.Runs(1, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	require.Equal(t, second.ID, runs[0].ID)
	require.Equal(t, first.ID, runs[1].ID)

	runs, err = ledger.Runs(1, 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
}
