package storage

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Openmesh-Network/openrd-indexer/internal/events"
	"github.com/Openmesh-Network/openrd-indexer/internal/types"
)

// TasksCollection holds every indexed task, keyed by chain id then by the
// task id's decimal string form.
type TasksCollection map[uint64]map[string]*types.Task

// Ensure returns the task at (chainID, taskID), materializing a default task
// with empty nested collections when it does not exist yet. All reducer access
// goes through here so the default shape cannot drift between call sites.
func (c TasksCollection) Ensure(chainID uint64, taskID *types.BigInt) *types.Task {
	chain, ok := c[chainID]
	if !ok {
		chain = make(map[string]*types.Task)
		c[chainID] = chain
	}

	key := taskID.String()
	task, ok := chain[key]
	if !ok {
		task = &types.Task{
			Deadline:           new(types.BigInt),
			NativeBudget:       new(types.BigInt),
			Budget:             []types.ERC20Transfer{},
			Applications:       make(map[uint16]*types.Application),
			Submissions:        make(map[uint8]*types.Submission),
			CancelTaskRequests: make(map[uint8]*types.CancelTaskRequest),
			Events:             []types.EventIdentifier{},
			NativePaidOut:      []*types.BigInt{},
			PaidOut:            []*types.BigInt{},
		}
		chain[key] = task
	}
	return task
}

// Get returns the task at (chainID, taskID) or nil.
func (c TasksCollection) Get(chainID uint64, taskID *types.BigInt) *types.Task {
	return c[chainID][taskID.String()]
}

// EventsCollection is an event log keyed by the EventIdentifier string form.
// It doubles as the deduplication index: presence of a key means the event was
// consumed.
type EventsCollection map[string]events.Envelope

// Has reports whether the identifier was already consumed.
func (c EventsCollection) Has(id types.EventIdentifier) bool {
	_, ok := c[id.Key()]
	return ok
}

// Add records an event under its identifier.
func (c EventsCollection) Add(ev events.Event) {
	c[ev.Identifier().Key()] = events.Envelope{Event: ev}
}

// UsersCollection holds the per-address reverse index, keyed by checksummed
// address.
type UsersCollection map[common.Address]*types.User

// Ensure returns the user record for an address, materializing an empty one
// when absent.
func (c UsersCollection) Ensure(address common.Address) *types.User {
	user, ok := c[address]
	if !ok {
		user = &types.User{Tasks: make(map[uint64]map[string][]types.TaskRole)}
		c[address] = user
	}
	return user
}

// DisputesCollection holds indexed disputes, keyed by chain id then the target
// task id's decimal string form. Disputes append in arrival order.
type DisputesCollection map[uint64]map[string][]*types.Dispute

// Append adds a dispute under its target task.
func (c DisputesCollection) Append(chainID uint64, taskID *types.BigInt, dispute *types.Dispute) {
	chain, ok := c[chainID]
	if !ok {
		chain = make(map[string][]*types.Dispute)
		c[chainID] = chain
	}
	key := taskID.String()
	chain[key] = append(chain[key], dispute)
}

// DraftsCollection holds indexed draft tasks, keyed by chain id then the DAO
// address the draft was proposed to.
type DraftsCollection map[uint64]map[common.Address][]*types.Draft

// Append adds a draft under its DAO.
func (c DraftsCollection) Append(chainID uint64, dao common.Address, draft *types.Draft) {
	chain, ok := c[chainID]
	if !ok {
		chain = make(map[common.Address][]*types.Draft)
		c[chainID] = chain
	}
	chain[dao] = append(chain[dao], draft)
}

// RFPsCollection holds every indexed RFP, keyed by chain id then the RFP id's
// decimal string form.
type RFPsCollection map[uint64]map[string]*types.RFP

// Ensure returns the RFP at (chainID, rfpID), materializing a default RFP with
// empty nested collections when absent.
func (c RFPsCollection) Ensure(chainID uint64, rfpID *types.BigInt) *types.RFP {
	chain, ok := c[chainID]
	if !ok {
		chain = make(map[string]*types.RFP)
		c[chainID] = chain
	}

	key := rfpID.String()
	rfp, ok := chain[key]
	if !ok {
		rfp = &types.RFP{
			Deadline:     new(types.BigInt),
			NativeBudget: new(types.BigInt),
			Budget:       []types.ERC20Transfer{},
			Projects:     make(map[uint16]*types.Project),
			Events:       []types.EventIdentifier{},
		}
		chain[key] = rfp
	}
	return rfp
}

// Get returns the RFP at (chainID, rfpID) or nil.
func (c RFPsCollection) Get(chainID uint64, rfpID *types.BigInt) *types.RFP {
	return c[chainID][rfpID.String()]
}

// Collection names double as the record keys in the durable backend.
const (
	CollectionTasks      = "tasks"
	CollectionTaskEvents = "task-events"
	CollectionUsers      = "users"
	CollectionDisputes   = "disputes"
	CollectionDrafts     = "drafts"
	CollectionRFPs       = "rfps"
	CollectionRFPEvents  = "rfp-events"
)

// Storage bundles the stores over every collection of the materialized view.
// Each store serializes its own updates; consistency across stores is eventual.
type Storage struct {
	Tasks      *Store[TasksCollection]
	TaskEvents *Store[EventsCollection]
	Users      *Store[UsersCollection]
	Disputes   *Store[DisputesCollection]
	Drafts     *Store[DraftsCollection]
	RFPs       *Store[RFPsCollection]
	RFPEvents  *Store[EventsCollection]
}

// New creates the full set of stores over one backend.
func New(backend Backend) *Storage {
	return &Storage{
		Tasks: NewStore(CollectionTasks, backend, func() TasksCollection {
			return make(TasksCollection)
		}),
		TaskEvents: NewStore(CollectionTaskEvents, backend, func() EventsCollection {
			return make(EventsCollection)
		}),
		Users: NewStore(CollectionUsers, backend, func() UsersCollection {
			return make(UsersCollection)
		}),
		Disputes: NewStore(CollectionDisputes, backend, func() DisputesCollection {
			return make(DisputesCollection)
		}),
		Drafts: NewStore(CollectionDrafts, backend, func() DraftsCollection {
			return make(DraftsCollection)
		}),
		RFPs: NewStore(CollectionRFPs, backend, func() RFPsCollection {
			return make(RFPsCollection)
		}),
		RFPEvents: NewStore(CollectionRFPEvents, backend, func() EventsCollection {
			return make(EventsCollection)
		}),
	}
}

// Flush re-persists every loaded collection. Collected errors are joined so a
// single failing collection does not hide the others.
func (s *Storage) Flush() error {
	return errors.Join(
		s.Tasks.Flush(),
		s.TaskEvents.Flush(),
		s.Users.Flush(),
		s.Disputes.Flush(),
		s.Drafts.Flush(),
		s.RFPs.Flush(),
		s.RFPEvents.Flush(),
	)
}
