// Package watcher subscribes to contract logs, decodes them into typed events
// and dispatches them to registered handlers.
package watcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"golang.org/x/sync/errgroup"

	icommon "github.com/Openmesh-Network/openrd-indexer/internal/common"
	"github.com/Openmesh-Network/openrd-indexer/internal/config"
	"github.com/Openmesh-Network/openrd-indexer/internal/contracts"
	"github.com/Openmesh-Network/openrd-indexer/internal/events"
	"github.com/Openmesh-Network/openrd-indexer/internal/logger"
	"github.com/Openmesh-Network/openrd-indexer/internal/metrics"
	"github.com/Openmesh-Network/openrd-indexer/internal/rpc"
	"github.com/Openmesh-Network/openrd-indexer/internal/types"
)

// Handler processes one decoded, stamped event.
type Handler func(ctx context.Context, ev events.Event) error

// Checkpoint persists the highest block a chain's watcher has seen.
type Checkpoint interface {
	SaveLastSeen(chainID uint64, block uint64) error
}

// timestampCacheLimit bounds the per-watcher block timestamp cache. Entries
// are dropped wholesale when the limit is hit; a dropped entry only costs one
// extra header fetch.
const timestampCacheLimit = 4096

// subscriptionBuffer is the live log channel capacity.
const subscriptionBuffer = 256

// ContractWatcher watches one chain. Handlers are registered per
// (contract address, event topic) pair; logs delivered by the subscription or
// fed in through ProcessLogs are routed to the handler registered for their
// address and first topic.
type ContractWatcher struct {
	chainID    uint64
	client     rpc.EthClient
	checkpoint Checkpoint
	retry      *config.RetryConfig
	log        *logger.Logger

	mu       sync.RWMutex
	handlers map[common.Address]map[common.Hash]Handler

	tsMu       sync.Mutex
	timestamps map[uint64]int64

	seenMu   sync.Mutex
	lastSeen uint64
}

// NewContractWatcher creates a watcher for one chain. checkpoint may be nil
// when no durable watch state is wanted (tests, offline replay).
func NewContractWatcher(
	chainID uint64,
	client rpc.EthClient,
	checkpoint Checkpoint,
	retry *config.RetryConfig,
	log *logger.Logger,
) *ContractWatcher {
	if retry == nil {
		retry = &config.RetryConfig{}
	}
	retry.ApplyDefaults()

	return &ContractWatcher{
		chainID:    chainID,
		client:     client,
		checkpoint: checkpoint,
		retry:      retry,
		log:        log.WithComponent(icommon.ComponentWatcher).WithChain(chainID),
		handlers:   make(map[common.Address]map[common.Hash]Handler),
		timestamps: make(map[uint64]int64),
	}
}

// ChainID returns the chain this watcher is bound to.
func (w *ContractWatcher) ChainID() uint64 {
	return w.chainID
}

// Register routes logs emitted by address with the given first topic to
// handler. Registering the same pair twice replaces the previous handler.
func (w *ContractWatcher) Register(address common.Address, topic common.Hash, handler Handler) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.handlers[address]; !ok {
		w.handlers[address] = make(map[common.Hash]Handler)
	}

	w.handlers[address][topic] = handler
}

// RegisterAll routes every watched event topic of the deployment's contracts
// to handler. This is the standard wiring: one reducer engine handles the
// full event union.
func (w *ContractWatcher) RegisterAll(deployment contracts.Deployment, handler Handler) {
	topics := contracts.WatchedTopics()
	for _, address := range deployment.Addresses() {
		for _, topic := range topics {
			w.Register(address, topic, handler)
		}
	}
}

// FilterQuery builds the log filter covering every registered handler. The
// live subscription and history sync both derive their queries from it.
func (w *ContractWatcher) FilterQuery() ethereum.FilterQuery {
	w.mu.RLock()
	defer w.mu.RUnlock()

	addresses := make([]common.Address, 0, len(w.handlers))
	topicSet := make(map[common.Hash]struct{})

	for address, byTopic := range w.handlers {
		addresses = append(addresses, address)
		for topic := range byTopic {
			topicSet[topic] = struct{}{}
		}
	}

	topics := make([]common.Hash, 0, len(topicSet))
	for topic := range topicSet {
		topics = append(topics, topic)
	}

	return ethereum.FilterQuery{
		Addresses: addresses,
		Topics:    [][]common.Hash{topics},
	}
}

func (w *ContractWatcher) handlerFor(lg ethtypes.Log) Handler {
	if len(lg.Topics) == 0 {
		return nil
	}

	w.mu.RLock()
	defer w.mu.RUnlock()

	byTopic, ok := w.handlers[lg.Address]
	if !ok {
		return nil
	}

	return byTopic[lg.Topics[0]]
}

// Watch runs the live subscription loop until ctx is cancelled. Dropped
// subscriptions are re-established with exponential backoff.
func (w *ContractWatcher) Watch(ctx context.Context) error {
	backoff := w.retry.InitialBackoff.Duration

	for {
		err := w.watchOnce(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		w.log.Warnf("subscription dropped, reconnecting in %s: %v", backoff, err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		backoff = time.Duration(float64(backoff) * w.retry.BackoffMultiplier)
		if backoff > w.retry.MaxBackoff.Duration {
			backoff = w.retry.MaxBackoff.Duration
		}
	}
}

// watchOnce holds one subscription open, forming delivery batches by draining
// the channel without blocking, until the subscription or the context fails.
func (w *ContractWatcher) watchOnce(ctx context.Context) error {
	ch := make(chan ethtypes.Log, subscriptionBuffer)

	sub, err := w.client.SubscribeFilterLogs(ctx, w.FilterQuery(), ch)
	if err != nil {
		return fmt.Errorf("failed to subscribe to logs: %w", err)
	}
	defer sub.Unsubscribe()

	w.log.Info("log subscription established")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-sub.Err():
			return fmt.Errorf("subscription error: %w", err)
		case lg := <-ch:
			batch := []ethtypes.Log{lg}
		drain:
			for {
				select {
				case more := <-ch:
					batch = append(batch, more)
				default:
					break drain
				}
			}

			if err := w.ProcessLogs(ctx, batch); err != nil {
				return fmt.Errorf("failed to process log batch: %w", err)
			}
		}
	}
}

// ProcessLogs decodes, stamps and dispatches a batch of logs. Logs within the
// batch are handled concurrently; the batch is done only when every handler
// has returned. A decode mismatch drops that single log; a handler error
// fails the batch.
func (w *ContractWatcher) ProcessLogs(ctx context.Context, logs []ethtypes.Log) error {
	if len(logs) == 0 {
		return nil
	}

	timestamps, err := w.blockTimestamps(ctx, logs)
	if err != nil {
		return fmt.Errorf("failed to resolve block timestamps: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	var maxBlock uint64
	for _, lg := range logs {
		if lg.Removed {
			continue
		}
		if lg.BlockNumber > maxBlock {
			maxBlock = lg.BlockNumber
		}

		handler := w.handlerFor(lg)
		if handler == nil {
			continue
		}

		lg := lg
		g.Go(func() error {
			ev, err := contracts.DecodeLog(lg)
			if err != nil {
				metrics.DecodeFailures.WithLabelValues(fmt.Sprintf("%d", w.chainID)).Inc()
				w.log.Warnw("rejecting log that does not match any expected event shape",
					"address", lg.Address.Hex(),
					"txHash", lg.TxHash.Hex(),
					"logIndex", lg.Index,
					"error", err,
				)
				return nil
			}

			events.Stamp(ev, types.EventIdentifier{
				ChainID:         w.chainID,
				TransactionHash: lg.TxHash,
				LogIndex:        lg.Index,
			}, lg.BlockNumber, lg.Address, timestamps[lg.BlockNumber])

			return handler(gctx, ev)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	w.noteBlock(maxBlock)

	return nil
}

// blockTimestamps resolves the timestamp of every unique block in the batch,
// fetching each uncached header exactly once.
func (w *ContractWatcher) blockTimestamps(ctx context.Context, logs []ethtypes.Log) (map[uint64]int64, error) {
	unique := make(map[uint64]struct{})
	for _, lg := range logs {
		if !lg.Removed {
			unique[lg.BlockNumber] = struct{}{}
		}
	}

	resolved := make(map[uint64]int64, len(unique))
	var missing []uint64

	w.tsMu.Lock()
	for blockNum := range unique {
		if ts, ok := w.timestamps[blockNum]; ok {
			resolved[blockNum] = ts
		} else {
			missing = append(missing, blockNum)
		}
	}
	w.tsMu.Unlock()

	for _, blockNum := range missing {
		header, err := w.client.GetBlockHeader(ctx, blockNum)
		if err != nil {
			return nil, fmt.Errorf("failed to get header for block %d: %w", blockNum, err)
		}

		resolved[blockNum] = int64(header.Time)
	}

	if len(missing) > 0 {
		w.cacheTimestamps(resolved)
	}

	return resolved, nil
}

// PrimeTimestamps seeds the block timestamp cache. History sync uses this
// after a batched header fetch so per-log processing never refetches headers.
func (w *ContractWatcher) PrimeTimestamps(timestamps map[uint64]int64) {
	w.cacheTimestamps(timestamps)
}

func (w *ContractWatcher) cacheTimestamps(timestamps map[uint64]int64) {
	w.tsMu.Lock()
	defer w.tsMu.Unlock()

	if len(w.timestamps)+len(timestamps) > timestampCacheLimit {
		w.timestamps = make(map[uint64]int64, len(timestamps))
	}

	for blockNum, ts := range timestamps {
		w.timestamps[blockNum] = ts
	}
}

// noteBlock advances the last seen block marker, the gauge and the durable
// checkpoint. The marker never moves backwards.
func (w *ContractWatcher) noteBlock(blockNum uint64) {
	if blockNum == 0 {
		return
	}

	w.seenMu.Lock()
	advanced := blockNum > w.lastSeen
	if advanced {
		w.lastSeen = blockNum
	}
	w.seenMu.Unlock()

	if !advanced {
		return
	}

	metrics.LastSeenBlock.WithLabelValues(fmt.Sprintf("%d", w.chainID)).Set(float64(blockNum))

	if w.checkpoint != nil {
		if err := w.checkpoint.SaveLastSeen(w.chainID, blockNum); err != nil {
			w.log.Warnf("failed to persist watch checkpoint for block %d: %v", blockNum, err)
		}
	}
}

// LastSeenBlock returns the highest block number this watcher has processed.
func (w *ContractWatcher) LastSeenBlock() uint64 {
	w.seenMu.Lock()
	defer w.seenMu.Unlock()

	return w.lastSeen
}
