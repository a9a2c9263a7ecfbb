package reducer

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Openmesh-Network/openrd-indexer/internal/contracts"
	"github.com/Openmesh-Network/openrd-indexer/internal/events"
	"github.com/Openmesh-Network/openrd-indexer/internal/storage"
	"github.com/Openmesh-Network/openrd-indexer/internal/types"
)

// applyDisputeCreated resolves the dispute payload from the companion
// governance proposal log in the same transaction. Resolution failures warn
// and skip: the event stays consumed, since redelivering an unresolvable
// companion log cannot succeed either.
func (e *Engine) applyDisputeCreated(ctx context.Context, ev *events.DisputeCreated) error {
	fresh, err := e.consumeTaskEvent(ev)
	if err != nil || !fresh {
		return err
	}

	info, ok := resolveProposal(ctx, e, ev, ev.GovernancePlugin, &ev.ProposalID.Int,
		func(actions []contracts.ProposalAction) (*types.DisputeInfo, error) {
			return contracts.ExtractDisputeInfo(actions, e.deployment(ev.ChainID).Disputes)
		})
	if !ok {
		return nil
	}

	err = e.storage.Tasks.Update(func(tasks storage.TasksCollection) {
		task := tasks.Ensure(ev.ChainID, info.TaskID)
		// A proposal to a DAO without dispute permission on this task is not
		// part of the task's history.
		if ev.DAO == task.DisputeManager {
			e.recordTaskEvent(task, ev)
		} else {
			e.warn(ev, "dispute proposed to a dao that is not the task's dispute manager",
				"task_id", info.TaskID.String(), "dao", ev.DAO.Hex())
		}
	})
	if err != nil {
		return err
	}

	return e.storage.Disputes.Update(func(disputes storage.DisputesCollection) {
		disputes.Append(ev.ChainID, info.TaskID, &types.Dispute{
			PartialNativeReward: info.PartialNativeReward,
			PartialReward:       info.PartialReward,
			GovernancePlugin:    ev.GovernancePlugin,
			ProposalID:          ev.ProposalID,
		})
	})
}

// applyDraftCreated mirrors applyDisputeCreated for draft task proposals.
func (e *Engine) applyDraftCreated(ctx context.Context, ev *events.DraftCreated) error {
	fresh, err := e.consumeTaskEvent(ev)
	if err != nil || !fresh {
		return err
	}

	info, ok := resolveProposal(ctx, e, ev, ev.GovernancePlugin, &ev.ProposalID.Int,
		func(actions []contracts.ProposalAction) (*types.DraftInfo, error) {
			return contracts.ExtractDraftInfo(actions, e.deployment(ev.ChainID).Drafts)
		})
	if !ok {
		return nil
	}

	var draftIndex int
	err = e.storage.Drafts.Update(func(drafts storage.DraftsCollection) {
		drafts.Append(ev.ChainID, ev.DAO, &types.Draft{
			Metadata:         info.Metadata,
			Deadline:         info.Deadline,
			Manager:          info.Manager,
			DisputeManager:   info.DisputeManager,
			NativeBudget:     info.NativeBudget,
			Budget:           info.Budget,
			Preapproved:      info.Preapproved,
			GovernancePlugin: ev.GovernancePlugin,
			ProposalID:       ev.ProposalID,
		})
		draftIndex = len(drafts[ev.ChainID][ev.DAO]) - 1
	})
	if err != nil {
		return err
	}

	e.enrich(ctx, "metadata", func(ctx context.Context) error {
		metadata, err := e.metadata.Fetch(ctx, info.Metadata)
		if err != nil {
			return err
		}
		return e.storage.Drafts.Update(func(drafts storage.DraftsCollection) {
			dao := drafts[ev.ChainID][ev.DAO]
			if draftIndex < len(dao) {
				dao[draftIndex].CachedMetadata = metadata
			}
		})
	})

	return nil
}

// resolveProposal fetches the transaction receipt, locates the
// ProposalCreated companion log for (governancePlugin, proposalID) and
// extracts the typed payload from its actions. Any failure warns and reports
// false.
func resolveProposal[T any](
	ctx context.Context,
	e *Engine,
	ev events.Event,
	governancePlugin common.Address,
	proposalID *big.Int,
	extract func(actions []contracts.ProposalAction) (T, error),
) (T, bool) {
	var zero T
	chainID := ev.Identifier().ChainID

	client, ok := e.receipts[chainID]
	if !ok {
		e.warn(ev, "no rpc client to resolve proposal receipt", "chain_id", chainID)
		return zero, false
	}

	receipt, err := client.GetTransactionReceipt(ctx, ev.Identifier().TransactionHash)
	if err != nil {
		e.warn(ev, "failed to fetch proposal receipt", "error", err)
		return zero, false
	}

	actions, err := contracts.FindProposalActions(receipt, governancePlugin, proposalID)
	if err != nil {
		e.warn(ev, "failed to locate proposal actions", "error", err)
		return zero, false
	}

	info, err := extract(actions)
	if err != nil {
		e.warn(ev, "failed to extract proposal payload", "error", err)
		return zero, false
	}

	return info, true
}
