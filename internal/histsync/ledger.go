// Package histsync replays historical contract logs through the live
// processing path and keeps a durable ledger of sync runs and watch
// checkpoints.
package histsync

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/russross/meddler"

	icommon "github.com/Openmesh-Network/openrd-indexer/internal/common"
	"github.com/Openmesh-Network/openrd-indexer/internal/logger"
)

// SyncRun is one backfill run over a block range. FinishedAt stays zero while
// the run is in flight, so an operator can spot runs interrupted by a crash.
type SyncRun struct {
	ID            int64  `meddler:"id,pk" json:"id"`
	ChainID       uint64 `meddler:"chain_id" json:"chainId"`
	FromBlock     uint64 `meddler:"from_block" json:"fromBlock"`
	ToBlock       uint64 `meddler:"to_block" json:"toBlock"`
	LogsProcessed uint64 `meddler:"logs_processed" json:"logsProcessed"`
	StartedAt     int64  `meddler:"started_at" json:"startedAt"`
	FinishedAt    int64  `meddler:"finished_at" json:"finishedAt"`
}

// Ledger persists sync runs and per-chain watch checkpoints. It implements
// watcher.Checkpoint for the live watchers.
type Ledger struct {
	db  *sql.DB
	log *logger.Logger
	now func() int64
}

// NewLedger creates a ledger over an already-migrated database.
func NewLedger(db *sql.DB, log *logger.Logger) *Ledger {
	return &Ledger{
		db:  db,
		log: log.WithComponent(icommon.ComponentHistorySync),
		now: func() int64 { return time.Now().Unix() },
	}
}

// SaveLastSeen upserts the highest block seen by a chain's live watcher.
func (l *Ledger) SaveLastSeen(chainID uint64, block uint64) error {
	_, err := l.db.Exec(`
		INSERT INTO watch_state (chain_id, last_seen_block, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(chain_id) DO UPDATE SET
			last_seen_block = excluded.last_seen_block,
			updated_at = excluded.updated_at
	`, chainID, block, l.now())
	if err != nil {
		return fmt.Errorf("failed to save watch checkpoint: %w", err)
	}

	return nil
}

// LastSeen returns the checkpointed block for a chain, zero when the chain
// has never checkpointed.
func (l *Ledger) LastSeen(chainID uint64) (uint64, error) {
	var block uint64
	err := l.db.QueryRow(`
		SELECT last_seen_block FROM watch_state WHERE chain_id = ?
	`, chainID).Scan(&block)

	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get watch checkpoint: %w", err)
	}

	return block, nil
}

// BeginRun records the start of a backfill run and returns its id.
func (l *Ledger) BeginRun(chainID uint64, fromBlock, toBlock uint64) (*SyncRun, error) {
	run := &SyncRun{
		ChainID:   chainID,
		FromBlock: fromBlock,
		ToBlock:   toBlock,
		StartedAt: l.now(),
	}

	if err := meddler.Insert(l.db, "sync_runs", run); err != nil {
		return nil, fmt.Errorf("failed to record sync run: %w", err)
	}

	l.log.Debugf("started sync run %d: chain=%d, range=%d-%d", run.ID, chainID, fromBlock, toBlock)

	return run, nil
}

// FinishRun marks a run complete with its final processed-log count.
func (l *Ledger) FinishRun(run *SyncRun) error {
	run.FinishedAt = l.now()

	if err := meddler.Update(l.db, "sync_runs", run); err != nil {
		return fmt.Errorf("failed to finish sync run: %w", err)
	}

	return nil
}

// Runs returns the most recent runs for a chain, newest first.
func (l *Ledger) Runs(chainID uint64, limit int) ([]*SyncRun, error) {
	var runs []*SyncRun
	err := meddler.QueryAll(l.db, &runs, `
		SELECT * FROM sync_runs WHERE chain_id = ? ORDER BY id DESC LIMIT ?
	`, chainID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync runs: %w", err)
	}

	return runs, nil
}
