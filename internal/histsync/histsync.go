package histsync

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"

	icommon "github.com/Openmesh-Network/openrd-indexer/internal/common"
	"github.com/Openmesh-Network/openrd-indexer/internal/config"
	"github.com/Openmesh-Network/openrd-indexer/internal/logger"
	"github.com/Openmesh-Network/openrd-indexer/internal/metrics"
	"github.com/Openmesh-Network/openrd-indexer/internal/rpc"
	"github.com/Openmesh-Network/openrd-indexer/internal/watcher"
)

// HistorySync replays a historical block range through the same per-log
// processing path the live watcher uses. Logs are fed strictly one at a time
// in block and log-index order; dependent events rely on causally-prior
// events having already materialized the entities they reference.
type HistorySync struct {
	cfg      config.HistorySyncConfig
	clients  map[uint64]rpc.EthClient
	watchers *watcher.MultichainWatcher
	ledger   *Ledger
	log      *logger.Logger
}

// New creates a history sync. ledger may be nil when no durable run record
// is wanted.
func New(
	cfg config.HistorySyncConfig,
	clients map[uint64]rpc.EthClient,
	watchers *watcher.MultichainWatcher,
	ledger *Ledger,
	log *logger.Logger,
) *HistorySync {
	cfg.ApplyDefaults()

	return &HistorySync{
		cfg:      cfg,
		clients:  clients,
		watchers: watchers,
		ledger:   ledger,
		log:      log.WithComponent(icommon.ComponentHistorySync),
	}
}

// Run replays [fromBlock, toBlock] on one chain. An empty addresses slice
// means every contract the chain's watcher is registered for.
func (h *HistorySync) Run(
	ctx context.Context,
	chainID uint64,
	fromBlock, toBlock uint64,
	addresses []common.Address,
) error {
	if fromBlock > toBlock {
		return fmt.Errorf("invalid block range %d-%d", fromBlock, toBlock)
	}

	client, ok := h.clients[chainID]
	if !ok {
		return fmt.Errorf("no RPC client for chain %d", chainID)
	}

	w, err := h.watchers.Watcher(chainID)
	if err != nil {
		return err
	}

	query := w.FilterQuery()
	if len(addresses) == 0 {
		addresses = query.Addresses
	}

	log := h.log.WithChain(chainID)
	log.Infof("starting history sync from block %d to %d over %d contracts",
		fromBlock, toBlock, len(addresses))

	var run *SyncRun
	if h.ledger != nil {
		if run, err = h.ledger.BeginRun(chainID, fromBlock, toBlock); err != nil {
			return err
		}
	}

	var processed uint64
	for from := fromBlock; from <= toBlock; {
		to := from + h.cfg.ChunkSize - 1
		if to > toBlock {
			to = toBlock
		}

		logs, coveredTo, err := h.fetchLogsWithRetry(ctx, client, from, to, addresses, query.Topics)
		if err != nil {
			return fmt.Errorf("failed to fetch logs for range %d-%d: %w", from, to, err)
		}

		if err := h.replayChunk(ctx, client, w, chainID, logs); err != nil {
			return err
		}

		processed += uint64(len(logs))
		log.Debugf("replayed %d logs for range %d-%d", len(logs), from, coveredTo)

		from = coveredTo + 1

		if from <= toBlock {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(h.cfg.Pacing.Duration):
			}
		}
	}

	if run != nil {
		run.LogsProcessed = processed
		if err := h.ledger.FinishRun(run); err != nil {
			return err
		}
	}

	log.Infof("history sync complete: %d logs replayed", processed)

	return nil
}

// replayChunk prefetches the chunk's block timestamps in one batched call,
// then feeds each log through the watcher path individually.
func (h *HistorySync) replayChunk(
	ctx context.Context,
	client rpc.EthClient,
	w *watcher.ContractWatcher,
	chainID uint64,
	logs []ethtypes.Log,
) error {
	if len(logs) == 0 {
		return nil
	}

	sort.SliceStable(logs, func(i, j int) bool {
		if logs[i].BlockNumber != logs[j].BlockNumber {
			return logs[i].BlockNumber < logs[j].BlockNumber
		}
		return logs[i].Index < logs[j].Index
	})

	if err := h.primeTimestamps(ctx, client, w, logs); err != nil {
		return err
	}

	for _, lg := range logs {
		if err := w.ProcessLogs(ctx, []ethtypes.Log{lg}); err != nil {
			return fmt.Errorf("failed to replay log %s:%d: %w", lg.TxHash.Hex(), lg.Index, err)
		}

		metrics.BackfillLogsProcessed.WithLabelValues(fmt.Sprintf("%d", chainID)).Inc()
	}

	return nil
}

func (h *HistorySync) primeTimestamps(
	ctx context.Context,
	client rpc.EthClient,
	w *watcher.ContractWatcher,
	logs []ethtypes.Log,
) error {
	unique := make(map[uint64]struct{})
	for _, lg := range logs {
		unique[lg.BlockNumber] = struct{}{}
	}

	blockNums := make([]uint64, 0, len(unique))
	for blockNum := range unique {
		blockNums = append(blockNums, blockNum)
	}
	sort.Slice(blockNums, func(i, j int) bool { return blockNums[i] < blockNums[j] })

	headers, err := client.BatchGetBlockHeaders(ctx, blockNums)
	if err != nil {
		return fmt.Errorf("failed to batch fetch %d block headers: %w", len(blockNums), err)
	}

	timestamps := make(map[uint64]int64, len(headers))
	for _, header := range headers {
		if header != nil {
			timestamps[header.Number.Uint64()] = int64(header.Time)
		}
	}

	w.PrimeTimestamps(timestamps)

	return nil
}

// fetchLogsWithRetry fetches logs and retries with a narrower range when the
// provider rejects the query for returning too many results. It returns the
// range actually covered so the caller can continue from there.
func (h *HistorySync) fetchLogsWithRetry(
	ctx context.Context,
	client rpc.EthClient,
	fromBlock, toBlock uint64,
	addresses []common.Address,
	topics [][]common.Hash,
) ([]ethtypes.Log, uint64, error) {
	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(toBlock),
		Addresses: addresses,
		Topics:    topics,
	}

	logs, err := client.GetLogs(ctx, query)
	if err != nil {
		ok, errData := rpc.IsTooManyResultsError(err)
		if !ok {
			return nil, 0, err
		}

		var newFrom, newTo uint64
		if suggestedFrom, suggestedTo, ok := rpc.ParseSuggestedBlockRange(errData); ok {
			h.log.Infof("too many logs, retrying with suggested block range %d-%d (original %d-%d)",
				suggestedFrom, suggestedTo, fromBlock, toBlock)
			newFrom, newTo = suggestedFrom, suggestedTo
		} else {
			mid := (fromBlock + toBlock) / 2
			if mid == fromBlock {
				return nil, 0, fmt.Errorf("cannot split range further, single block %d has too many logs", fromBlock)
			}

			h.log.Infof("too many logs, retrying with halved block range %d-%d (original %d-%d)",
				fromBlock, mid, fromBlock, toBlock)
			newFrom, newTo = fromBlock, mid
		}

		return h.fetchLogsWithRetry(ctx, client, newFrom, newTo, addresses, topics)
	}

	return logs, toBlock, nil
}
