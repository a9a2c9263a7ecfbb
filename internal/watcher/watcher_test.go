package watcher

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"

	icommon "github.com/Openmesh-Network/openrd-indexer/internal/common"
	"github.com/Openmesh-Network/openrd-indexer/internal/config"
	"github.com/Openmesh-Network/openrd-indexer/internal/contracts"
	"github.com/Openmesh-Network/openrd-indexer/internal/events"
	"github.com/Openmesh-Network/openrd-indexer/internal/logger"
	"github.com/Openmesh-Network/openrd-indexer/internal/rpc"
)

type stubSubscription struct {
	errCh chan error
}

func newStubSubscription() *stubSubscription {
	return &stubSubscription{errCh: make(chan error, 1)}
}

func (s *stubSubscription) Unsubscribe()      {}
func (s *stubSubscription) Err() <-chan error { return s.errCh }

type stubClient struct {
	rpc.EthClient

	mu           sync.Mutex
	headerCalls  int
	headerTime   uint64
	subscribe    func(ctx context.Context, query ethereum.FilterQuery, ch chan<- ethtypes.Log) (ethereum.Subscription, error)
	headerFailed bool
}

func (c *stubClient) GetBlockHeader(_ context.Context, blockNum uint64) (*ethtypes.Header, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.headerFailed {
		return nil, errors.New("header fetch failed")
	}

	c.headerCalls++

	return &ethtypes.Header{
		Number: big.NewInt(int64(blockNum)),
		Time:   c.headerTime + blockNum,
	}, nil
}

func (c *stubClient) SubscribeFilterLogs(
	ctx context.Context,
	query ethereum.FilterQuery,
	ch chan<- ethtypes.Log,
) (ethereum.Subscription, error) {
	if c.subscribe == nil {
		return nil, errors.New("subscriptions not supported")
	}

	return c.subscribe(ctx, query, ch)
}

func (c *stubClient) headerCallCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.headerCalls
}

type recordingCheckpoint struct {
	mu     sync.Mutex
	blocks []uint64
}

func (c *recordingCheckpoint) SaveLastSeen(_ uint64, block uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.blocks = append(c.blocks, block)

	return nil
}

func (c *recordingCheckpoint) saved() []uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]uint64(nil), c.blocks...)
}

type eventRecorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *eventRecorder) handle(_ context.Context, ev events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events = append(r.events, ev)

	return nil
}

func (r *eventRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.events)
}

func quickRetry() *config.RetryConfig {
	return &config.RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    icommon.NewDuration(time.Millisecond),
		MaxBackoff:        icommon.NewDuration(5 * time.Millisecond),
		BackoffMultiplier: 2.0,
	}
}

func taskCancelledLog(address common.Address, taskID int64, blockNum uint64, logIndex uint) ethtypes.Log {
	return ethtypes.Log{
		Address:     address,
		Topics:      []common.Hash{contracts.TasksABI.Events["TaskCancelled"].ID, common.BigToHash(big.NewInt(taskID))},
		BlockNumber: blockNum,
		TxHash:      common.HexToHash(fmt.Sprintf("0x%02x", blockNum)),
		Index:       logIndex,
	}
}

func newTestWatcher(t *testing.T, client *stubClient, checkpoint Checkpoint) *ContractWatcher {
	t.Helper()

	return NewContractWatcher(5, client, checkpoint, quickRetry(), logger.NewNopLogger())
}

func TestContractWatcher_ProcessLogsDispatchesStampedEvents(t *testing.T) {
	tasksAddr := contracts.DefaultTasksAddress
	client := &stubClient{headerTime: 1700000000}
	recorder := &eventRecorder{}

	w := newTestWatcher(t, client, nil)
	w.Register(tasksAddr, contracts.TasksABI.Events["TaskCancelled"].ID, recorder.handle)

	logs := []ethtypes.Log{
		taskCancelledLog(tasksAddr, 1, 100, 0),
		taskCancelledLog(tasksAddr, 2, 100, 1),
		taskCancelledLog(tasksAddr, 3, 101, 0),
	}

	require.NoError(t, w.ProcessLogs(context.Background(), logs))
	require.Equal(t, 3, recorder.count())

	// One header fetch per unique block in the batch.
	require.Equal(t, 2, client.headerCallCount())

	byTask := make(map[string]*events.TaskCancelled)
	for _, ev := range recorder.events {
		cancelled, ok := ev.(*events.TaskCancelled)
		require.True(t, ok)
		byTask[cancelled.TaskID.String()] = cancelled
	}

	first := byTask["1"]
	require.NotNil(t, first)
	require.Equal(t, uint64(5), first.Identifier().ChainID)
	require.Equal(t, uint(0), first.Identifier().LogIndex)
	require.Equal(t, tasksAddr, first.Address)
	require.Equal(t, uint64(100), first.BlockNumber)
	require.Equal(t, int64(1700000100), first.Timestamp)

	third := byTask["3"]
	require.NotNil(t, third)
	require.Equal(t, int64(1700000101), third.Timestamp)

	require.Equal(t, uint64(101), w.LastSeenBlock())
}

func TestContractWatcher_DecodeMismatchDropsSingleLog(t *testing.T) {
	tasksAddr := contracts.DefaultTasksAddress
	client := &stubClient{}
	recorder := &eventRecorder{}

	w := newTestWatcher(t, client, nil)
	w.RegisterAll(contracts.DefaultDeployment(), recorder.handle)

	// TaskCreated carries non-indexed data; garbage data fails the unpack.
	malformed := ethtypes.Log{
		Address:     tasksAddr,
		Topics:      []common.Hash{contracts.TasksABI.Events["TaskCreated"].ID, common.BigToHash(big.NewInt(9))},
		Data:        []byte{0x01, 0x02},
		BlockNumber: 50,
	}

	logs := []ethtypes.Log{
		malformed,
		taskCancelledLog(tasksAddr, 4, 50, 1),
	}

	require.NoError(t, w.ProcessLogs(context.Background(), logs))
	require.Equal(t, 1, recorder.count())
	require.Equal(t, uint64(50), w.LastSeenBlock())
}

func TestContractWatcher_IgnoresUnregisteredAndRemovedLogs(t *testing.T) {
	tasksAddr := contracts.DefaultTasksAddress
	client := &stubClient{}
	recorder := &eventRecorder{}

	w := newTestWatcher(t, client, nil)
	w.Register(tasksAddr, contracts.TasksABI.Events["TaskCancelled"].ID, recorder.handle)

	unknownAddr := common.HexToAddress("0x00000000000000000000000000000000000000AA")
	removed := taskCancelledLog(tasksAddr, 1, 60, 0)
	removed.Removed = true

	logs := []ethtypes.Log{
		removed,
		taskCancelledLog(unknownAddr, 2, 60, 1),
		{Address: tasksAddr, BlockNumber: 60}, // no topics
	}

	require.NoError(t, w.ProcessLogs(context.Background(), logs))
	require.Equal(t, 0, recorder.count())
}

func TestContractWatcher_HandlerErrorFailsBatch(t *testing.T) {
	tasksAddr := contracts.DefaultTasksAddress
	client := &stubClient{}

	w := newTestWatcher(t, client, nil)
	w.Register(tasksAddr, contracts.TasksABI.Events["TaskCancelled"].ID,
		func(context.Context, events.Event) error {
			return errors.New("reducer exploded")
		})

	err := w.ProcessLogs(context.Background(), []ethtypes.Log{taskCancelledLog(tasksAddr, 1, 70, 0)})
	require.ErrorContains(t, err, "reducer exploded")

	// A failed batch does not advance the last seen block.
	require.Equal(t, uint64(0), w.LastSeenBlock())
}

func TestContractWatcher_TimestampCacheSpansBatches(t *testing.T) {
	tasksAddr := contracts.DefaultTasksAddress
	client := &stubClient{}
	recorder := &eventRecorder{}

	w := newTestWatcher(t, client, nil)
	w.Register(tasksAddr, contracts.TasksABI.Events["TaskCancelled"].ID, recorder.handle)

	require.NoError(t, w.ProcessLogs(context.Background(), []ethtypes.Log{taskCancelledLog(tasksAddr, 1, 80, 0)}))
	require.NoError(t, w.ProcessLogs(context.Background(), []ethtypes.Log{taskCancelledLog(tasksAddr, 2, 80, 1)}))

	require.Equal(t, 1, client.headerCallCount())
	require.Equal(t, 2, recorder.count())
}

func TestContractWatcher_PrimeTimestampsSkipsHeaderFetch(t *testing.T) {
	tasksAddr := contracts.DefaultTasksAddress
	client := &stubClient{headerFailed: true}
	recorder := &eventRecorder{}

	w := newTestWatcher(t, client, nil)
	w.Register(tasksAddr, contracts.TasksABI.Events["TaskCancelled"].ID, recorder.handle)
	w.PrimeTimestamps(map[uint64]int64{90: 1700000500})

	require.NoError(t, w.ProcessLogs(context.Background(), []ethtypes.Log{taskCancelledLog(tasksAddr, 1, 90, 0)}))
	require.Equal(t, 1, recorder.count())

	cancelled := recorder.events[0].(*events.TaskCancelled)
	require.Equal(t, int64(1700000500), cancelled.Timestamp)
}

func TestContractWatcher_HeaderFetchFailureFailsBatch(t *testing.T) {
	tasksAddr := contracts.DefaultTasksAddress
	client := &stubClient{headerFailed: true}

	w := newTestWatcher(t, client, nil)
	w.Register(tasksAddr, contracts.TasksABI.Events["TaskCancelled"].ID,
		func(context.Context, events.Event) error { return nil })

	err := w.ProcessLogs(context.Background(), []ethtypes.Log{taskCancelledLog(tasksAddr, 1, 95, 0)})
	require.ErrorContains(t, err, "block timestamps")
}

func TestContractWatcher_CheckpointAdvancesMonotonically(t *testing.T) {
	tasksAddr := contracts.DefaultTasksAddress
	client := &stubClient{}
	checkpoint := &recordingCheckpoint{}
	recorder := &eventRecorder{}

	w := newTestWatcher(t, client, checkpoint)
	w.Register(tasksAddr, contracts.TasksABI.Events["TaskCancelled"].ID, recorder.handle)

	require.NoError(t, w.ProcessLogs(context.Background(), []ethtypes.Log{taskCancelledLog(tasksAddr, 1, 200, 0)}))
	require.NoError(t, w.ProcessLogs(context.Background(), []ethtypes.Log{taskCancelledLog(tasksAddr, 2, 150, 0)}))
	require.NoError(t, w.ProcessLogs(context.Background(), []ethtypes.Log{taskCancelledLog(tasksAddr, 3, 250, 0)}))

	require.Equal(t, []uint64{200, 250}, checkpoint.saved())
	require.Equal(t, uint64(250), w.LastSeenBlock())
}

func TestContractWatcher_WatchReconnectsAfterSubscriptionError(t *testing.T) {
	tasksAddr := contracts.DefaultTasksAddress
	recorder := &eventRecorder{}
	delivered := make(chan struct{})

	var subscribes int
	client := &stubClient{}
	client.subscribe = func(_ context.Context, _ ethereum.FilterQuery, ch chan<- ethtypes.Log) (ethereum.Subscription, error) {
		subscribes++
		sub := newStubSubscription()

		if subscribes == 1 {
			sub.errCh <- errors.New("connection reset")
			return sub, nil
		}

		go func() {
			ch <- taskCancelledLog(tasksAddr, 1, 300, 0)
			close(delivered)
		}()

		return sub, nil
	}

	w := newTestWatcher(t, client, nil)
	w.Register(tasksAddr, contracts.TasksABI.Events["TaskCancelled"].ID, recorder.handle)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Watch(ctx) }()

	select {
	case <-delivered:
	case <-time.After(5 * time.Second):
		t.Fatal("log was never delivered after reconnect")
	}

	require.Eventually(t, func() bool { return recorder.count() == 1 }, 5*time.Second, 10*time.Millisecond)

	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("watch loop did not stop on cancellation")
	}

	require.Equal(t, 2, subscribes)
}

func TestContractWatcher_FilterQueryCoversRegistrations(t *testing.T) {
	client := &stubClient{}
	w := newTestWatcher(t, client, nil)
	w.RegisterAll(contracts.DefaultDeployment(), func(context.Context, events.Event) error { return nil })

	query := w.FilterQuery()
	require.ElementsMatch(t, contracts.DefaultDeployment().Addresses(), query.Addresses)
	require.Len(t, query.Topics, 1)
	require.ElementsMatch(t, contracts.WatchedTopics(), query.Topics[0])
}
