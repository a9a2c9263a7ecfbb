package api

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/Openmesh-Network/openrd-indexer/internal/config"
	"github.com/Openmesh-Network/openrd-indexer/internal/events"
	"github.com/Openmesh-Network/openrd-indexer/internal/logger"
	"github.com/Openmesh-Network/openrd-indexer/internal/storage"
	"github.com/Openmesh-Network/openrd-indexer/internal/types"
)

type resyncCall struct {
	chainID   uint64
	fromBlock uint64
	toBlock   uint64
	addresses []common.Address
}

type stubResyncer struct {
	calls chan resyncCall
	err   error
}

func newStubResyncer() *stubResyncer {
	return &stubResyncer{calls: make(chan resyncCall, 1)}
}

func (s *stubResyncer) Run(
	_ context.Context, chainID uint64, fromBlock, toBlock uint64, addresses []common.Address,
) error {
	s.calls <- resyncCall{chainID: chainID, fromBlock: fromBlock, toBlock: toBlock, addresses: addresses}
	return s.err
}

type stubProgress struct {
	blocks map[uint64]uint64
}

func (s *stubProgress) LastSeen(chainID uint64) (uint64, error) {
	return s.blocks[chainID], nil
}

type apiFixture struct {
	storage *storage.Storage
	resync  *stubResyncer
	router  http.Handler
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	store := storage.New(storage.NewMemoryBackend())
	resync := newStubResyncer()
	progress := &stubProgress{blocks: map[uint64]uint64{1: 100, 137: 250}}

	handler := NewHandler(store, resync, progress, []uint64{1, 137}, logger.NewNopLogger())
	server := NewServer(config.APIConfig{Enabled: true}, handler, logger.NewNopLogger())

	return &apiFixture{
		storage: store,
		resync:  resync,
		router:  server.Handler(),
	}
}

func (f *apiFixture) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *apiFixture) post(t *testing.T, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decodeResponse[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()

	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestHealth(t *testing.T) {
	t.Parallel()

	f := newAPIFixture(t)

	w := f.get(t, "/health")
	require.Equal(t, http.StatusOK, w.Code)

	resp := decodeResponse[HealthResponse](t, w)
	require.Equal(t, "ok", resp.Status)
	require.Len(t, resp.Chains, 2)
	require.Equal(t, ChainStatus{ChainID: 1, LastSeenBlock: 100}, resp.Chains[0])
	require.Equal(t, ChainStatus{ChainID: 137, LastSeenBlock: 250}, resp.Chains[1])
}

func TestGetTask(t *testing.T) {
	t.Parallel()

	f := newAPIFixture(t)

	err := f.storage.Tasks.Update(func(tasks storage.TasksCollection) {
		task := tasks.Ensure(1, types.FromBig(big.NewInt(7)))
		task.Metadata = "ipfs://task-7"
		task.USDValue = 42.5
	})
	require.NoError(t, err)

	tests := []struct {
		name           string
		path           string
		expectedStatus int
	}{
		{
			name:           "existing task",
			path:           "/api/v1/tasks/1/7",
			expectedStatus: http.StatusOK,
		},
		{
			name:           "unknown task id",
			path:           "/api/v1/tasks/1/8",
			expectedStatus: http.StatusNotFound,
		},
		{
			name:           "unknown chain",
			path:           "/api/v1/tasks/5/7",
			expectedStatus: http.StatusNotFound,
		},
		{
			name:           "invalid chain id",
			path:           "/api/v1/tasks/abc/7",
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "invalid task id",
			path:           "/api/v1/tasks/1/xyz",
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			w := f.get(t, tt.path)
			require.Equal(t, tt.expectedStatus, w.Code)

			if tt.expectedStatus == http.StatusOK {
				var task types.Task
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &task))
				require.Equal(t, "ipfs://task-7", task.Metadata)
				require.InDelta(t, 42.5, task.USDValue, 0.0001)
			}
		})
	}
}

func TestGetTaskSerializesWithConcurrentUpdates(t *testing.T) {
	t.Parallel()

	f := newAPIFixture(t)

	taskID := types.FromBig(big.NewInt(7))
	err := f.storage.Tasks.Update(func(tasks storage.TasksCollection) {
		tasks.Ensure(1, taskID).Metadata = "ipfs://task-7"
	})
	require.NoError(t, err)

	// Reads must encode under the store lock: a reducer updating the same
	// task while a response is being built must never be observed mid-write.
	done := make(chan struct{})
	var (
		wg        sync.WaitGroup
		updateErr error
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; ; i++ {
			select {
			case <-done:
				return
			default:
			}
			updateErr = f.storage.Tasks.Update(func(tasks storage.TasksCollection) {
				task := tasks.Ensure(1, taskID)
				task.Metadata = fmt.Sprintf("ipfs://task-7-rev-%d", i)
				task.LastUpdated = int64(i)
			})
			if updateErr != nil {
				return
			}
		}
	}()

	for i := 0; i < 200; i++ {
		w := f.get(t, "/api/v1/tasks/1/7")
		require.Equal(t, http.StatusOK, w.Code)

		var task types.Task
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &task))
		require.True(t, strings.HasPrefix(task.Metadata, "ipfs://task-7"))
	}

	close(done)
	wg.Wait()
	require.NoError(t, updateErr)
}

func TestGetTaskDisputes(t *testing.T) {
	t.Parallel()

	f := newAPIFixture(t)

	taskID := types.FromBig(big.NewInt(3))
	err := f.storage.Disputes.Update(func(disputes storage.DisputesCollection) {
		disputes.Append(1, taskID, &types.Dispute{
			ProposalID: types.FromBig(big.NewInt(12)),
		})
	})
	require.NoError(t, err)

	w := f.get(t, "/api/v1/tasks/1/3/disputes")
	require.Equal(t, http.StatusOK, w.Code)

	resp := decodeResponse[[]*types.Dispute](t, w)
	require.Len(t, resp, 1)
	require.Equal(t, "12", resp[0].ProposalID.String())

	// A task without disputes yields an empty array, not null.
	w = f.get(t, "/api/v1/tasks/1/99/disputes")
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, "[]", w.Body.String())
}

func TestGetEvent(t *testing.T) {
	t.Parallel()

	f := newAPIFixture(t)

	txHash := common.HexToHash("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	id := types.EventIdentifier{ChainID: 1, TransactionHash: txHash, LogIndex: 4}

	ev := &events.TaskCancelled{TaskID: types.FromBig(big.NewInt(3))}
	events.Stamp(ev, id, 120, common.HexToAddress("0x1111111111111111111111111111111111111111"), 1700000000)

	err := f.storage.TaskEvents.Update(func(log storage.EventsCollection) {
		log.Add(ev)
	})
	require.NoError(t, err)

	w := f.get(t, "/api/v1/events/1/"+txHash.Hex()+"/4")
	require.Equal(t, http.StatusOK, w.Code)

	resp := decodeResponse[map[string]any](t, w)
	require.Equal(t, "TaskCancelled", resp["type"])

	tests := []struct {
		name           string
		path           string
		expectedStatus int
	}{
		{
			name:           "unknown log index",
			path:           "/api/v1/events/1/" + txHash.Hex() + "/5",
			expectedStatus: http.StatusNotFound,
		},
		{
			name:           "unknown chain",
			path:           "/api/v1/events/10/" + txHash.Hex() + "/4",
			expectedStatus: http.StatusNotFound,
		},
		{
			name:           "malformed hash",
			path:           "/api/v1/events/1/nothash/4",
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "malformed log index",
			path:           "/api/v1/events/1/" + txHash.Hex() + "/four",
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			w := f.get(t, tt.path)
			require.Equal(t, tt.expectedStatus, w.Code)
		})
	}
}

func TestGetEventSearchesRFPLog(t *testing.T) {
	t.Parallel()

	f := newAPIFixture(t)

	txHash := common.HexToHash("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	id := types.EventIdentifier{ChainID: 1, TransactionHash: txHash, LogIndex: 0}

	ev := &events.RFPEmptied{RFPID: types.FromBig(big.NewInt(2))}
	events.Stamp(ev, id, 50, common.HexToAddress("0x2222222222222222222222222222222222222222"), 1700000000)

	err := f.storage.RFPEvents.Update(func(log storage.EventsCollection) {
		log.Add(ev)
	})
	require.NoError(t, err)

	w := f.get(t, "/api/v1/events/1/"+txHash.Hex()+"/0")
	require.Equal(t, http.StatusOK, w.Code)

	resp := decodeResponse[map[string]any](t, w)
	require.Equal(t, "RFPEmptied", resp["type"])
}

func TestGetUser(t *testing.T) {
	t.Parallel()

	f := newAPIFixture(t)

	address := common.HexToAddress("0x3333333333333333333333333333333333333333")
	err := f.storage.Users.Update(func(users storage.UsersCollection) {
		user := users.Ensure(address)
		user.Metadata = "ipfs://user"
	})
	require.NoError(t, err)

	w := f.get(t, "/api/v1/users/"+address.Hex())
	require.Equal(t, http.StatusOK, w.Code)

	resp := decodeResponse[types.User](t, w)
	require.Equal(t, "ipfs://user", resp.Metadata)

	w = f.get(t, "/api/v1/users/0x4444444444444444444444444444444444444444")
	require.Equal(t, http.StatusNotFound, w.Code)

	w = f.get(t, "/api/v1/users/notanaddress")
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetDrafts(t *testing.T) {
	t.Parallel()

	f := newAPIFixture(t)

	dao := common.HexToAddress("0x5555555555555555555555555555555555555555")
	err := f.storage.Drafts.Update(func(drafts storage.DraftsCollection) {
		drafts.Append(137, dao, &types.Draft{Metadata: "ipfs://draft"})
	})
	require.NoError(t, err)

	w := f.get(t, "/api/v1/drafts/137/"+dao.Hex())
	require.Equal(t, http.StatusOK, w.Code)

	resp := decodeResponse[[]*types.Draft](t, w)
	require.Len(t, resp, 1)
	require.Equal(t, "ipfs://draft", resp[0].Metadata)

	// A DAO without drafts yields an empty array.
	w = f.get(t, "/api/v1/drafts/1/"+dao.Hex())
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, "[]", w.Body.String())
}

func TestGetRFP(t *testing.T) {
	t.Parallel()

	f := newAPIFixture(t)

	err := f.storage.RFPs.Update(func(rfps storage.RFPsCollection) {
		rfp := rfps.Ensure(1, types.FromBig(big.NewInt(2)))
		rfp.Metadata = "ipfs://rfp-2"
	})
	require.NoError(t, err)

	w := f.get(t, "/api/v1/rfps/1/2")
	require.Equal(t, http.StatusOK, w.Code)

	resp := decodeResponse[types.RFP](t, w)
	require.Equal(t, "ipfs://rfp-2", resp.Metadata)

	w = f.get(t, "/api/v1/rfps/1/3")
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetStats(t *testing.T) {
	t.Parallel()

	f := newAPIFixture(t)

	err := f.storage.Tasks.Update(func(tasks storage.TasksCollection) {
		tasks.Ensure(1, types.FromBig(big.NewInt(1))).USDValue = 10.5
		tasks.Ensure(137, types.FromBig(big.NewInt(1))).USDValue = 2
	})
	require.NoError(t, err)

	err = f.storage.RFPs.Update(func(rfps storage.RFPsCollection) {
		rfps.Ensure(1, types.FromBig(big.NewInt(1)))
	})
	require.NoError(t, err)

	txHash := common.HexToHash("0xcccccccccccccccccccccccccccccccccccccccccccccccccccccccccccccccc")
	err = f.storage.TaskEvents.Update(func(log storage.EventsCollection) {
		for i := uint(0); i < 3; i++ {
			ev := &events.TaskCancelled{TaskID: types.FromBig(big.NewInt(1))}
			id := types.EventIdentifier{ChainID: 1, TransactionHash: txHash, LogIndex: i}
			events.Stamp(ev, id, 10, common.Address{}, 0)
			log.Add(ev)
		}
	})
	require.NoError(t, err)

	err = f.storage.Users.Update(func(users storage.UsersCollection) {
		users.Ensure(common.HexToAddress("0x6666666666666666666666666666666666666666"))
	})
	require.NoError(t, err)

	w := f.get(t, "/api/v1/stats")
	require.Equal(t, http.StatusOK, w.Code)

	resp := decodeResponse[StatsResponse](t, w)
	require.Equal(t, 2, resp.TotalTasks)
	require.Equal(t, 1, resp.TotalRFPs)
	require.Equal(t, 3, resp.TotalEvents)
	require.Equal(t, 1, resp.TotalUsers)
	require.InDelta(t, 12.5, resp.TotalUSDValue, 0.0001)
}

func TestResync(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		body           string
		expectedStatus int
	}{
		{
			name:           "valid request",
			body:           `{"chainId":1,"fromBlock":100,"toBlock":200}`,
			expectedStatus: http.StatusAccepted,
		},
		{
			name:           "valid request with addresses",
			body:           `{"chainId":1,"fromBlock":0,"toBlock":10,"addresses":["0x1111111111111111111111111111111111111111"]}`,
			expectedStatus: http.StatusAccepted,
		},
		{
			name:           "malformed body",
			body:           `{"chainId":`,
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "missing chain id",
			body:           `{"fromBlock":100,"toBlock":200}`,
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "inverted range",
			body:           `{"chainId":1,"fromBlock":200,"toBlock":100}`,
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "invalid address",
			body:           `{"chainId":1,"fromBlock":1,"toBlock":2,"addresses":["nope"]}`,
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newAPIFixture(t)

			w := f.post(t, "/api/v1/resync", tt.body)
			require.Equal(t, tt.expectedStatus, w.Code)

			if tt.expectedStatus != http.StatusAccepted {
				return
			}

			resp := decodeResponse[ResyncResponse](t, w)
			require.Equal(t, "started", resp.Status)
			require.Equal(t, uint64(1), resp.ChainID)

			// The replay runs detached from the request.
			select {
			case call := <-f.resync.calls:
				require.Equal(t, uint64(1), call.chainID)
				require.Equal(t, resp.FromBlock, call.fromBlock)
				require.Equal(t, resp.ToBlock, call.toBlock)
			case <-time.After(2 * time.Second):
				t.Fatal("resync was not started")
			}
		})
	}
}

func TestResyncUnavailable(t *testing.T) {
	t.Parallel()

	store := storage.New(storage.NewMemoryBackend())
	handler := NewHandler(store, nil, nil, nil, logger.NewNopLogger())
	server := NewServer(config.APIConfig{Enabled: true}, handler, logger.NewNopLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/resync",
		strings.NewReader(`{"chainId":1,"fromBlock":1,"toBlock":2}`))
	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestGetSchema(t *testing.T) {
	t.Parallel()

	f := newAPIFixture(t)

	for _, collection := range []string{
		storage.CollectionTasks,
		storage.CollectionTaskEvents,
		storage.CollectionUsers,
		storage.CollectionDisputes,
		storage.CollectionDrafts,
		storage.CollectionRFPs,
		storage.CollectionRFPEvents,
	} {
		w := f.get(t, "/api/v1/schemas/"+collection)
		require.Equal(t, http.StatusOK, w.Code, collection)

		resp := decodeResponse[map[string]any](t, w)
		require.Contains(t, resp, "$schema")
	}

	w := f.get(t, "/api/v1/schemas/unknown")
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestRespondJSONEncodingError(t *testing.T) {
	t.Parallel()

	w := httptest.NewRecorder()
	respondJSON(w, http.StatusOK, make(chan int))

	require.Equal(t, http.StatusInternalServerError, w.Code)
	require.Contains(t, w.Body.String(), "failed to encode response")
}
