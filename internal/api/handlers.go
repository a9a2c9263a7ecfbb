package api

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/invopop/jsonschema"

	"github.com/Openmesh-Network/openrd-indexer/internal/events"
	"github.com/Openmesh-Network/openrd-indexer/internal/logger"
	"github.com/Openmesh-Network/openrd-indexer/internal/storage"
	"github.com/Openmesh-Network/openrd-indexer/internal/types"
)

// Resyncer starts a historical replay over a block range. Implemented by
// histsync.HistorySync.
type Resyncer interface {
	Run(ctx context.Context, chainID uint64, fromBlock, toBlock uint64, addresses []common.Address) error
}

// ChainProgress reports the latest checkpointed block per chain. Implemented
// by histsync.Ledger.
type ChainProgress interface {
	LastSeen(chainID uint64) (uint64, error)
}

// Handler serves the read API over the materialized collections.
type Handler struct {
	storage  *storage.Storage
	resync   Resyncer
	progress ChainProgress
	chainIDs []uint64
	log      *logger.Logger
}

// NewHandler creates an API handler. resync and progress may be nil; the
// corresponding endpoints then degrade gracefully.
func NewHandler(
	store *storage.Storage,
	resync Resyncer,
	progress ChainProgress,
	chainIDs []uint64,
	log *logger.Logger,
) *Handler {
	return &Handler{
		storage:  store,
		resync:   resync,
		progress: progress,
		chainIDs: chainIDs,
		log:      log,
	}
}

// Health reports liveness and per-chain watch progress.
// @Summary Health check
// @Tags System
// @Produce json
// @Success 200 {object} HealthResponse
// @Router /health [get]
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC(),
	}

	if h.progress != nil {
		for _, chainID := range h.chainIDs {
			block, err := h.progress.LastSeen(chainID)
			if err != nil {
				h.log.Errorf("failed to read watch checkpoint for chain %d: %v", chainID, err)
				continue
			}

			response.Chains = append(response.Chains, ChainStatus{
				ChainID:       chainID,
				LastSeenBlock: block,
			})
		}
	}

	respondJSON(w, http.StatusOK, response)
}

// GetTask returns one task.
// @Summary Get a task
// @Tags Tasks
// @Produce json
// @Param chainId path integer true "Chain id"
// @Param taskId path string true "Task id (decimal)"
// @Success 200 {object} types.Task
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /tasks/{chainId}/{taskId} [get]
func (h *Handler) GetTask(w http.ResponseWriter, r *http.Request) {
	chainID, ok := parseChainID(w, r)
	if !ok {
		return
	}

	taskID, ok := parseEntityID(w, r, "taskId")
	if !ok {
		return
	}

	// Entities are encoded inside the view so the live object never escapes
	// the store lock.
	var (
		body      []byte
		encodeErr error
	)
	err := h.storage.Tasks.View(func(tasks storage.TasksCollection) {
		if task := tasks.Get(chainID, taskID); task != nil {
			body, encodeErr = json.Marshal(task)
		}
	})
	if err != nil {
		h.internalError(w, "failed to read tasks", err)
		return
	}
	if encodeErr != nil {
		h.internalError(w, "failed to encode task", encodeErr)
		return
	}

	if body == nil {
		respondError(w, http.StatusNotFound, "task not found")
		return
	}

	respondRaw(w, http.StatusOK, body)
}

// GetTaskDisputes returns the disputes raised against one task.
// @Summary Get a task's disputes
// @Tags Tasks
// @Produce json
// @Param chainId path integer true "Chain id"
// @Param taskId path string true "Task id (decimal)"
// @Success 200 {array} types.Dispute
// @Failure 400 {object} ErrorResponse
// @Router /tasks/{chainId}/{taskId}/disputes [get]
func (h *Handler) GetTaskDisputes(w http.ResponseWriter, r *http.Request) {
	chainID, ok := parseChainID(w, r)
	if !ok {
		return
	}

	taskID, ok := parseEntityID(w, r, "taskId")
	if !ok {
		return
	}

	var (
		body      []byte
		encodeErr error
	)
	err := h.storage.Disputes.View(func(all storage.DisputesCollection) {
		disputes := []*types.Dispute{}
		if byTask, exists := all[chainID]; exists {
			disputes = append(disputes, byTask[taskID.String()]...)
		}
		body, encodeErr = json.Marshal(disputes)
	})
	if err != nil {
		h.internalError(w, "failed to read disputes", err)
		return
	}
	if encodeErr != nil {
		h.internalError(w, "failed to encode disputes", encodeErr)
		return
	}

	respondRaw(w, http.StatusOK, body)
}

// GetEvent returns one consumed event by its identifier.
// @Summary Get an event
// @Tags Events
// @Produce json
// @Param chainId path integer true "Chain id"
// @Param txHash path string true "Transaction hash"
// @Param logIndex path integer true "Log index"
// @Success 200 {object} events.Envelope
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /events/{chainId}/{txHash}/{logIndex} [get]
func (h *Handler) GetEvent(w http.ResponseWriter, r *http.Request) {
	chainID, ok := parseChainID(w, r)
	if !ok {
		return
	}

	txHash := r.PathValue("txHash")
	if !isHexHash(txHash) {
		respondError(w, http.StatusBadRequest, "txHash is not a valid transaction hash")
		return
	}

	logIndex, err := strconv.ParseUint(r.PathValue("logIndex"), 10, 32)
	if err != nil {
		respondError(w, http.StatusBadRequest, "logIndex is not a valid number")
		return
	}

	id := types.EventIdentifier{
		ChainID:         chainID,
		TransactionHash: common.HexToHash(txHash),
		LogIndex:        uint(logIndex),
	}

	var (
		body      []byte
		encodeErr error
	)
	lookup := func(log storage.EventsCollection) {
		if found, exists := log[id.Key()]; exists && body == nil && encodeErr == nil {
			body, encodeErr = json.Marshal(found)
		}
	}

	if err := h.storage.TaskEvents.View(lookup); err != nil {
		h.internalError(w, "failed to read task events", err)
		return
	}
	if err := h.storage.RFPEvents.View(lookup); err != nil {
		h.internalError(w, "failed to read rfp events", err)
		return
	}
	if encodeErr != nil {
		h.internalError(w, "failed to encode event", encodeErr)
		return
	}

	if body == nil {
		respondError(w, http.StatusNotFound, "event not found")
		return
	}

	respondRaw(w, http.StatusOK, body)
}

// GetUser returns one user's role index.
// @Summary Get a user
// @Tags Users
// @Produce json
// @Param address path string true "User address"
// @Success 200 {object} types.User
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /users/{address} [get]
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	address, ok := parseAddress(w, r, "address")
	if !ok {
		return
	}

	var (
		body      []byte
		encodeErr error
	)
	err := h.storage.Users.View(func(users storage.UsersCollection) {
		if user := users[address]; user != nil {
			body, encodeErr = json.Marshal(user)
		}
	})
	if err != nil {
		h.internalError(w, "failed to read users", err)
		return
	}
	if encodeErr != nil {
		h.internalError(w, "failed to encode user", encodeErr)
		return
	}

	if body == nil {
		respondError(w, http.StatusNotFound, "user not found")
		return
	}

	respondRaw(w, http.StatusOK, body)
}

// GetDrafts returns the task drafts proposed to one DAO.
// @Summary Get a DAO's task drafts
// @Tags Drafts
// @Produce json
// @Param chainId path integer true "Chain id"
// @Param dao path string true "DAO address"
// @Success 200 {array} types.Draft
// @Failure 400 {object} ErrorResponse
// @Router /drafts/{chainId}/{dao} [get]
func (h *Handler) GetDrafts(w http.ResponseWriter, r *http.Request) {
	chainID, ok := parseChainID(w, r)
	if !ok {
		return
	}

	dao, ok := parseAddress(w, r, "dao")
	if !ok {
		return
	}

	var (
		body      []byte
		encodeErr error
	)
	err := h.storage.Drafts.View(func(all storage.DraftsCollection) {
		drafts := []*types.Draft{}
		if byDAO, exists := all[chainID]; exists {
			drafts = append(drafts, byDAO[dao]...)
		}
		body, encodeErr = json.Marshal(drafts)
	})
	if err != nil {
		h.internalError(w, "failed to read drafts", err)
		return
	}
	if encodeErr != nil {
		h.internalError(w, "failed to encode drafts", encodeErr)
		return
	}

	respondRaw(w, http.StatusOK, body)
}

// GetRFP returns one RFP.
// @Summary Get an RFP
// @Tags RFPs
// @Produce json
// @Param chainId path integer true "Chain id"
// @Param rfpId path string true "RFP id (decimal)"
// @Success 200 {object} types.RFP
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /rfps/{chainId}/{rfpId} [get]
func (h *Handler) GetRFP(w http.ResponseWriter, r *http.Request) {
	chainID, ok := parseChainID(w, r)
	if !ok {
		return
	}

	rfpID, ok := parseEntityID(w, r, "rfpId")
	if !ok {
		return
	}

	var (
		body      []byte
		encodeErr error
	)
	err := h.storage.RFPs.View(func(rfps storage.RFPsCollection) {
		if rfp := rfps.Get(chainID, rfpID); rfp != nil {
			body, encodeErr = json.Marshal(rfp)
		}
	})
	if err != nil {
		h.internalError(w, "failed to read rfps", err)
		return
	}
	if encodeErr != nil {
		h.internalError(w, "failed to encode rfp", encodeErr)
		return
	}

	if body == nil {
		respondError(w, http.StatusNotFound, "rfp not found")
		return
	}

	respondRaw(w, http.StatusOK, body)
}

// GetStats returns aggregate counters across all chains.
// @Summary Get aggregate statistics
// @Tags System
// @Produce json
// @Success 200 {object} StatsResponse
// @Router /stats [get]
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	var stats StatsResponse

	err := h.storage.Tasks.View(func(tasks storage.TasksCollection) {
		for _, chainTasks := range tasks {
			stats.TotalTasks += len(chainTasks)
			for _, task := range chainTasks {
				stats.TotalUSDValue += task.USDValue
			}
		}
	})
	if err != nil {
		h.internalError(w, "failed to read tasks", err)
		return
	}

	err = h.storage.RFPs.View(func(rfps storage.RFPsCollection) {
		for _, chainRFPs := range rfps {
			stats.TotalRFPs += len(chainRFPs)
		}
	})
	if err != nil {
		h.internalError(w, "failed to read rfps", err)
		return
	}

	countEvents := func(log storage.EventsCollection) { stats.TotalEvents += len(log) }
	if err := h.storage.TaskEvents.View(countEvents); err != nil {
		h.internalError(w, "failed to read task events", err)
		return
	}
	if err := h.storage.RFPEvents.View(countEvents); err != nil {
		h.internalError(w, "failed to read rfp events", err)
		return
	}

	err = h.storage.Users.View(func(users storage.UsersCollection) {
		stats.TotalUsers = len(users)
	})
	if err != nil {
		h.internalError(w, "failed to read users", err)
		return
	}

	respondJSON(w, http.StatusOK, stats)
}

// Resync starts a background historical replay.
// @Summary Replay a historical block range
// @Tags System
// @Accept json
// @Produce json
// @Param request body ResyncRequest true "Range to replay"
// @Success 202 {object} ResyncResponse
// @Failure 400 {object} ErrorResponse
// @Failure 503 {object} ErrorResponse
// @Router /resync [post]
func (h *Handler) Resync(w http.ResponseWriter, r *http.Request) {
	if h.resync == nil {
		respondError(w, http.StatusServiceUnavailable, "resync is not available")
		return
	}

	var req ResyncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	if req.ChainID == 0 {
		respondError(w, http.StatusBadRequest, "chainId is required")
		return
	}
	if req.FromBlock > req.ToBlock {
		respondError(w, http.StatusBadRequest, "fromBlock must not exceed toBlock")
		return
	}

	addresses := make([]common.Address, 0, len(req.Addresses))
	for _, hex := range req.Addresses {
		if !common.IsHexAddress(hex) {
			respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid address '%s'", hex))
			return
		}
		addresses = append(addresses, common.HexToAddress(hex))
	}

	// Detached from the request: a replay runs to completion.
	go func() {
		if err := h.resync.Run(context.Background(), req.ChainID, req.FromBlock, req.ToBlock, addresses); err != nil {
			h.log.Errorf("resync of chain %d range %d-%d failed: %v",
				req.ChainID, req.FromBlock, req.ToBlock, err)
		}
	}()

	respondJSON(w, http.StatusAccepted, ResyncResponse{
		Status:    "started",
		ChainID:   req.ChainID,
		FromBlock: req.FromBlock,
		ToBlock:   req.ToBlock,
	})
}

// schemaTypes maps collection names to the entity type their records hold.
var schemaTypes = map[string]any{
	storage.CollectionTasks:      &types.Task{},
	storage.CollectionTaskEvents: &events.Envelope{},
	storage.CollectionUsers:      &types.User{},
	storage.CollectionDisputes:   &types.Dispute{},
	storage.CollectionDrafts:     &types.Draft{},
	storage.CollectionRFPs:       &types.RFP{},
	storage.CollectionRFPEvents:  &events.Envelope{},
}

// GetSchema returns the JSON schema of a collection's entity type.
// @Summary Get a collection's JSON schema
// @Tags System
// @Produce json
// @Param collection path string true "Collection name"
// @Success 200 {object} map[string]any
// @Failure 404 {object} ErrorResponse
// @Router /schemas/{collection} [get]
func (h *Handler) GetSchema(w http.ResponseWriter, r *http.Request) {
	collection := r.PathValue("collection")

	entity, ok := schemaTypes[collection]
	if !ok {
		respondError(w, http.StatusNotFound, fmt.Sprintf("unknown collection '%s'", collection))
		return
	}

	respondJSON(w, http.StatusOK, jsonschema.Reflect(entity))
}

func (h *Handler) internalError(w http.ResponseWriter, message string, err error) {
	h.log.Errorf("%s: %v", message, err)
	respondError(w, http.StatusInternalServerError, message)
}

func parseChainID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	chainID, err := strconv.ParseUint(r.PathValue("chainId"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "chainId is not a valid number")
		return 0, false
	}

	return chainID, true
}

func parseEntityID(w http.ResponseWriter, r *http.Request, name string) (*types.BigInt, bool) {
	raw := r.PathValue(name)

	value, ok := new(big.Int).SetString(raw, 10)
	if !ok || value.Sign() < 0 {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("%s is not a valid id", name))
		return nil, false
	}

	return types.FromBig(value), true
}

func parseAddress(w http.ResponseWriter, r *http.Request, name string) (common.Address, bool) {
	raw := r.PathValue(name)
	if !common.IsHexAddress(raw) {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("%s is not a valid address", name))
		return common.Address{}, false
	}

	return common.HexToAddress(raw), true
}

func isHexHash(s string) bool {
	if len(s) != 66 || s[0] != '0' || (s[1] != 'x' && s[1] != 'X') {
		return false
	}

	for _, c := range s[2:] {
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'f', c >= 'A' && c <= 'F':
		default:
			return false
		}
	}

	return true
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	// Encode before writing the status so a marshal failure can still become
	// a clean 500.
	encoded, err := json.Marshal(data)
	if err != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
		return
	}

	respondRaw(w, status, encoded)
}

func respondRaw(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, ErrorResponse{Error: message, Code: status})
}
