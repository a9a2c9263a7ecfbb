package reducer

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Openmesh-Network/openrd-indexer/internal/events"
	"github.com/Openmesh-Network/openrd-indexer/internal/storage"
	"github.com/Openmesh-Network/openrd-indexer/internal/types"
)

func (e *Engine) applyRFPCreated(ctx context.Context, ev *events.RFPCreated) error {
	fresh, err := e.consumeRFPEvent(ev)
	if err != nil || !fresh {
		return err
	}

	err = e.storage.RFPs.Update(func(rfps storage.RFPsCollection) {
		rfp := rfps.Ensure(ev.ChainID, ev.RFPID)
		rfp.Metadata = ev.Metadata
		rfp.Deadline = ev.Deadline
		rfp.Escrow = ev.Escrow
		rfp.Creator = ev.Creator
		rfp.TasksManager = ev.TasksManager
		rfp.DisputeManager = ev.DisputeManager
		rfp.Manager = ev.Manager
		rfp.NativeBudget = ev.NativeBudget
		// The event amounts are requested transfers; the balance enrichment
		// fills in what the escrow actually holds.
		budget := make([]types.ERC20Transfer, len(ev.Budget))
		for i, entry := range ev.Budget {
			budget[i] = types.ERC20Transfer{TokenContract: entry.TokenContract, Amount: new(types.BigInt)}
		}
		rfp.Budget = budget
		e.recordRFPEvent(rfp, ev)
	})
	if err != nil {
		return err
	}

	e.enrich(ctx, "metadata", func(ctx context.Context) error {
		metadata, err := e.metadata.Fetch(ctx, ev.Metadata)
		if err != nil {
			return err
		}
		return e.storage.RFPs.Update(func(rfps storage.RFPsCollection) {
			if rfp := rfps.Get(ev.ChainID, ev.RFPID); rfp != nil {
				rfp.CachedMetadata = metadata
			}
		})
	})
	e.enrich(ctx, "price", func(ctx context.Context) error {
		value, err := e.prices.BudgetValue(ctx, ev.ChainID, ev.NativeBudget, ev.Budget)
		if err != nil {
			return err
		}
		return e.storage.RFPs.Update(func(rfps storage.RFPsCollection) {
			if rfp := rfps.Get(ev.ChainID, ev.RFPID); rfp != nil {
				rfp.USDValue = value
			}
		})
	})
	e.enrichRFPBudget(ctx, ev.ChainID, ev.RFPID, ev.Escrow, ev.Budget)

	return nil
}

func (e *Engine) applyProjectSubmitted(ctx context.Context, ev *events.ProjectSubmitted) error {
	fresh, err := e.consumeRFPEvent(ev)
	if err != nil || !fresh {
		return err
	}

	err = e.storage.RFPs.Update(func(rfps storage.RFPsCollection) {
		rfp := rfps.Ensure(ev.ChainID, ev.RFPID)
		project := ensureProject(rfp, ev.ProjectID)
		project.Metadata = ev.Metadata
		project.Representative = ev.Representative
		project.Deadline = ev.Deadline
		project.NativeReward = append([]types.NativeReward(nil), ev.NativeReward...)
		project.Reward = append([]types.Reward(nil), ev.Reward...)
		e.recordRFPEvent(rfp, ev)
	})
	if err != nil {
		return err
	}

	e.enrich(ctx, "metadata", func(ctx context.Context) error {
		metadata, err := e.metadata.Fetch(ctx, ev.Metadata)
		if err != nil {
			return err
		}
		return e.storage.RFPs.Update(func(rfps storage.RFPsCollection) {
			rfp := rfps.Get(ev.ChainID, ev.RFPID)
			if rfp == nil {
				return
			}
			if project, ok := rfp.Projects[ev.ProjectID]; ok {
				project.CachedMetadata = metadata
			}
		})
	})

	return nil
}

func (e *Engine) applyProjectAccepted(ctx context.Context, ev *events.ProjectAccepted) error {
	fresh, err := e.consumeRFPEvent(ev)
	if err != nil || !fresh {
		return err
	}

	var escrow common.Address
	var tracked []types.ERC20Transfer
	err = e.storage.RFPs.Update(func(rfps storage.RFPsCollection) {
		rfp := rfps.Ensure(ev.ChainID, ev.RFPID)
		project := ensureProject(rfp, ev.ProjectID)
		project.Accepted = true
		project.TaskID = ev.TaskID
		escrow = rfp.Escrow
		tracked = append([]types.ERC20Transfer(nil), rfp.Budget...)
		e.recordRFPEvent(rfp, ev)
	})
	if err != nil {
		return err
	}

	// Funding the accepted project's task drained the escrow.
	e.enrichRFPBudget(ctx, ev.ChainID, ev.RFPID, escrow, tracked)

	return nil
}

func (e *Engine) applyRFPEmptied(ctx context.Context, ev *events.RFPEmptied) error {
	fresh, err := e.consumeRFPEvent(ev)
	if err != nil || !fresh {
		return err
	}

	var escrow common.Address
	var tracked []types.ERC20Transfer
	err = e.storage.RFPs.Update(func(rfps storage.RFPsCollection) {
		rfp := rfps.Ensure(ev.ChainID, ev.RFPID)
		escrow = rfp.Escrow
		tracked = append([]types.ERC20Transfer(nil), rfp.Budget...)
		e.recordRFPEvent(rfp, ev)
	})
	if err != nil {
		return err
	}

	e.enrichRFPBudget(ctx, ev.ChainID, ev.RFPID, escrow, tracked)

	return nil
}

// enrichRFPBudget re-reads the escrow balances behind an RFP budget in the
// background.
func (e *Engine) enrichRFPBudget(ctx context.Context, chainID uint64, rfpID *types.BigInt, escrow common.Address, budget []types.ERC20Transfer) {
	e.enrich(ctx, "balance", func(ctx context.Context) error {
		fresh, err := e.balances.EscrowBudget(ctx, chainID, escrow, budget)
		if err != nil {
			return err
		}
		return e.storage.RFPs.Update(func(rfps storage.RFPsCollection) {
			if rfp := rfps.Get(chainID, rfpID); rfp != nil {
				rfp.Budget = fresh
			}
		})
	})
}

func ensureProject(rfp *types.RFP, id uint16) *types.Project {
	project, ok := rfp.Projects[id]
	if !ok {
		project = &types.Project{
			NativeReward: []types.NativeReward{},
			Reward:       []types.Reward{},
		}
		rfp.Projects[id] = project
	}
	return project
}
