// Package reducer turns decoded contract events into mutations of the
// materialized entity collections. One reducer per event type, each following
// the same three-phase protocol: idempotency gate, structural apply,
// best-effort enrichment.
package reducer

import (
	"context"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/Openmesh-Network/openrd-indexer/internal/contracts"
	"github.com/Openmesh-Network/openrd-indexer/internal/events"
	"github.com/Openmesh-Network/openrd-indexer/internal/logger"
	"github.com/Openmesh-Network/openrd-indexer/internal/metrics"
	"github.com/Openmesh-Network/openrd-indexer/internal/storage"
	"github.com/Openmesh-Network/openrd-indexer/internal/types"
)

// MetadataFetcher resolves a metadata content hash to its document.
type MetadataFetcher interface {
	Fetch(ctx context.Context, hash string) (string, error)
}

// PriceSource values a budget in USD.
type PriceSource interface {
	BudgetValue(ctx context.Context, chainID uint64, nativeBudget *types.BigInt, budget []types.ERC20Transfer) (float64, error)
}

// BalanceSource reads the actual escrow balances behind a budget.
type BalanceSource interface {
	EscrowBudget(ctx context.Context, chainID uint64, escrow common.Address, budget []types.ERC20Transfer) ([]types.ERC20Transfer, error)
}

// ReceiptSource fetches transaction receipts, used to resolve the companion
// governance log of dispute and draft events.
type ReceiptSource interface {
	GetTransactionReceipt(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error)
}

// Engine applies decoded events to the entity stores. Apply is safe to call
// concurrently; the stores serialize every update internally.
type Engine struct {
	storage     *storage.Storage
	receipts    map[uint64]ReceiptSource
	deployments map[uint64]contracts.Deployment
	metadata    MetadataFetcher
	prices      PriceSource
	balances    BalanceSource
	log         *logger.Logger

	now   func() int64
	spawn func(fn func())
}

// NewEngine creates a reducer engine over the given stores and enrichment
// collaborators. receipts and deployments are keyed by chain id; chains absent
// from deployments fall back to the default contract addresses.
func NewEngine(
	store *storage.Storage,
	receipts map[uint64]ReceiptSource,
	deployments map[uint64]contracts.Deployment,
	metadata MetadataFetcher,
	prices PriceSource,
	balances BalanceSource,
	log *logger.Logger,
) *Engine {
	return &Engine{
		storage:     store,
		receipts:    receipts,
		deployments: deployments,
		metadata:    metadata,
		prices:      prices,
		balances:    balances,
		log:         log,
		now:         func() int64 { return time.Now().Unix() },
		spawn:       func(fn func()) { go fn() },
	}
}

// Apply routes one decoded event to its reducer.
func (e *Engine) Apply(ctx context.Context, ev events.Event) error {
	switch ev := ev.(type) {
	case *events.TaskCreated:
		return e.applyTaskCreated(ctx, ev)
	case *events.ApplicationCreated:
		return e.applyApplicationCreated(ctx, ev)
	case *events.ApplicationAccepted:
		return e.applyApplicationAccepted(ctx, ev)
	case *events.TaskTaken:
		return e.applyTaskTaken(ctx, ev)
	case *events.SubmissionCreated:
		return e.applySubmissionCreated(ctx, ev)
	case *events.SubmissionReviewed:
		return e.applySubmissionReviewed(ctx, ev)
	case *events.TaskCompleted:
		return e.applyTaskCompleted(ctx, ev)
	case *events.CancelTaskRequested:
		return e.applyCancelTaskRequested(ctx, ev)
	case *events.TaskCancelled:
		return e.applyTaskCancelled(ctx, ev)
	case *events.RequestAccepted:
		return e.applyRequestAccepted(ctx, ev)
	case *events.RequestExecuted:
		return e.applyRequestExecuted(ctx, ev)
	case *events.DeadlineChanged:
		return e.applyDeadlineChanged(ctx, ev)
	case *events.BudgetChanged:
		return e.applyBudgetChanged(ctx, ev)
	case *events.RewardIncreased:
		return e.applyRewardIncreased(ctx, ev)
	case *events.MetadataChanged:
		return e.applyMetadataChanged(ctx, ev)
	case *events.ManagerChanged:
		return e.applyManagerChanged(ctx, ev)
	case *events.PartialPayment:
		return e.applyPartialPayment(ctx, ev)
	case *events.DisputeCreated:
		return e.applyDisputeCreated(ctx, ev)
	case *events.DraftCreated:
		return e.applyDraftCreated(ctx, ev)
	case *events.RFPCreated:
		return e.applyRFPCreated(ctx, ev)
	case *events.ProjectSubmitted:
		return e.applyProjectSubmitted(ctx, ev)
	case *events.ProjectAccepted:
		return e.applyProjectAccepted(ctx, ev)
	case *events.RFPEmptied:
		return e.applyRFPEmptied(ctx, ev)
	default:
		return fmt.Errorf("no reducer for event type %s", ev.EventType())
	}
}

// consumeTaskEvent runs the idempotency gate against the task event log.
// It reports whether the event is fresh; a duplicate short-circuits silently.
// The insert is persisted before any structural effect starts.
func (e *Engine) consumeTaskEvent(ev events.Event) (bool, error) {
	return e.consume(e.storage.TaskEvents, ev)
}

// consumeRFPEvent is the RFP-side idempotency gate.
func (e *Engine) consumeRFPEvent(ev events.Event) (bool, error) {
	return e.consume(e.storage.RFPEvents, ev)
}

func (e *Engine) consume(log *storage.Store[storage.EventsCollection], ev events.Event) (bool, error) {
	duplicate := false
	err := log.Update(func(c storage.EventsCollection) {
		if c.Has(ev.Identifier()) {
			duplicate = true
			return
		}
		c.Add(ev)
	})
	if err != nil {
		return false, fmt.Errorf("failed to record event %s: %w", ev.Identifier(), err)
	}

	chain := strconv.FormatUint(ev.Identifier().ChainID, 10)
	if duplicate {
		metrics.DuplicateEvents.WithLabelValues(chain).Inc()
		e.log.Debugw("duplicate event skipped", "event", ev.Identifier().Key(), "type", ev.EventType())
		return false, nil
	}

	metrics.EventsProcessed.WithLabelValues(chain, string(ev.EventType())).Inc()
	return true, nil
}

// recordTaskEvent appends the event to the task's trail and bumps lastUpdated.
func (e *Engine) recordTaskEvent(task *types.Task, ev events.Event) {
	if task.CreatedAt == 0 {
		task.CreatedAt = e.now()
	}
	task.Events = append(task.Events, ev.Identifier())
	task.LastUpdated = e.now()
}

// recordRFPEvent appends the event to the RFP's trail and bumps lastUpdated.
func (e *Engine) recordRFPEvent(rfp *types.RFP, ev events.Event) {
	if rfp.CreatedAt == 0 {
		rfp.CreatedAt = e.now()
	}
	rfp.Events = append(rfp.Events, ev.Identifier())
	rfp.LastUpdated = e.now()
}

// warn logs a recovered referential anomaly.
func (e *Engine) warn(ev events.Event, msg string, keysAndValues ...any) {
	metrics.ReducerWarnings.WithLabelValues(string(ev.EventType())).Inc()
	e.log.Warnw(msg, append([]any{"event", ev.Identifier().Key()}, keysAndValues...)...)
}

// enrich runs a best-effort enrichment step in the background. Failures are
// logged and counted, never propagated.
func (e *Engine) enrich(ctx context.Context, kind string, fn func(context.Context) error) {
	e.spawn(func() {
		if err := fn(ctx); err != nil {
			metrics.EnrichmentFailures.WithLabelValues(kind).Inc()
			e.log.Warnw("enrichment failed", "kind", kind, "error", err)
		}
	})
}

// deployment returns the contract addresses for a chain.
func (e *Engine) deployment(chainID uint64) contracts.Deployment {
	if d, ok := e.deployments[chainID]; ok {
		return d
	}
	return contracts.DefaultDeployment()
}

// grantRole adds a role to a user's index for one task.
func grantRole(users storage.UsersCollection, address common.Address, chainID uint64, taskID string, role types.TaskRole) {
	user := users.Ensure(address)
	chain, ok := user.Tasks[chainID]
	if !ok {
		chain = make(map[string][]types.TaskRole)
		user.Tasks[chainID] = chain
	}
	chain[taskID] = append(chain[taskID], role)
}

// revokeRole removes one instance of a role from a user's index. It reports
// whether the role was present.
func revokeRole(users storage.UsersCollection, address common.Address, chainID uint64, taskID string, role types.TaskRole) bool {
	user, ok := users[address]
	if !ok {
		return false
	}
	roles, ok := user.Tasks[chainID][taskID]
	if !ok {
		return false
	}
	for i, r := range roles {
		if r == role {
			user.Tasks[chainID][taskID] = append(roles[:i], roles[i+1:]...)
			return true
		}
	}
	return false
}

// accumulateAt adds amount into the accumulator at position i, growing the
// slice with zeroes as needed.
func accumulateAt(acc []*types.BigInt, i int, amount *big.Int) []*types.BigInt {
	for len(acc) <= i {
		acc = append(acc, new(types.BigInt))
	}
	acc[i].Add(&acc[i].Int, amount)
	return acc
}
