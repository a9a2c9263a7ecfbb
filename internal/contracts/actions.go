package contracts

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/Openmesh-Network/openrd-indexer/internal/types"
)

// ErrProposalNotFound is returned when the transaction receipt carries no
// matching ProposalCreated log.
var ErrProposalNotFound = errors.New("no matching ProposalCreated log in receipt")

// ErrActionNotFound is returned when none of the proposal actions calls the
// expected contract with the expected function.
var ErrActionNotFound = errors.New("no matching action in proposal")

// ProposalAction is one call a governance proposal executes.
type ProposalAction struct {
	To    common.Address
	Value *big.Int
	Data  []byte
}

// FindProposalActions locates the ProposalCreated log emitted by the given
// governance plugin for the given proposal id within a transaction receipt
// and returns its decoded action list.
func FindProposalActions(
	receipt *ethtypes.Receipt,
	governancePlugin common.Address,
	proposalID *big.Int,
) ([]ProposalAction, error) {
	topic := GovernanceABI.Events["ProposalCreated"].ID

	for _, lg := range receipt.Logs {
		if lg.Address != governancePlugin {
			continue
		}
		if len(lg.Topics) == 0 || lg.Topics[0] != topic {
			continue
		}

		var raw struct {
			ProposalId      *big.Int
			Creator         common.Address
			StartDate       uint64
			EndDate         uint64
			Metadata        []byte
			Actions         []proposalActionRaw
			AllowFailureMap *big.Int
		}
		if err := unpackLog(GovernanceABI, &raw, "ProposalCreated", *lg); err != nil {
			return nil, err
		}

		if raw.ProposalId.Cmp(proposalID) != 0 {
			continue
		}

		actions := make([]ProposalAction, len(raw.Actions))
		for i, a := range raw.Actions {
			actions[i] = ProposalAction{To: a.To, Value: a.Value, Data: a.Data}
		}

		return actions, nil
	}

	return nil, ErrProposalNotFound
}

type proposalActionRaw struct {
	To    common.Address
	Value *big.Int
	Data  []byte
}

// ExtractDisputeInfo scans proposal actions for a createDispute call targeting
// the disputes contract and decodes its payload.
func ExtractDisputeInfo(actions []ProposalAction, target common.Address) (*types.DisputeInfo, error) {
	method := DisputesABI.Methods["createDispute"]

	args, err := findCall(actions, target, method)
	if err != nil {
		return nil, err
	}

	type disputeRaw struct {
		TaskId              *big.Int
		PartialNativeReward []*big.Int
		PartialReward       []*big.Int
	}

	raw := *abi.ConvertType(args[0], new(disputeRaw)).(*disputeRaw)

	return &types.DisputeInfo{
		TaskID:              types.FromBig(raw.TaskId),
		PartialNativeReward: toBigInts(raw.PartialNativeReward),
		PartialReward:       toBigInts(raw.PartialReward),
	}, nil
}

// ExtractDraftInfo scans proposal actions for a createDraftTask call targeting
// the drafts contract and decodes its payload.
func ExtractDraftInfo(actions []ProposalAction, target common.Address) (*types.DraftInfo, error) {
	method := DraftsABI.Methods["createDraftTask"]

	args, err := findCall(actions, target, method)
	if err != nil {
		return nil, err
	}

	type preapprovedRaw struct {
		Applicant    common.Address
		NativeReward []nativeRewardRaw
		Reward       []rewardRaw
	}
	type draftRaw struct {
		Metadata       string
		Deadline       *big.Int
		Manager        common.Address
		DisputeManager common.Address
		NativeBudget   *big.Int
		Budget         []erc20TransferRaw
		Preapproved    []preapprovedRaw
	}

	raw := *abi.ConvertType(args[0], new(draftRaw)).(*draftRaw)

	preapproved := make([]types.PreapprovedApplication, len(raw.Preapproved))
	for i, p := range raw.Preapproved {
		preapproved[i] = types.PreapprovedApplication{
			Applicant:    p.Applicant,
			NativeReward: toNativeRewards(p.NativeReward),
			Reward:       toRewards(p.Reward),
		}
	}

	return &types.DraftInfo{
		Metadata:       raw.Metadata,
		Deadline:       types.FromBig(raw.Deadline),
		Manager:        raw.Manager,
		DisputeManager: raw.DisputeManager,
		NativeBudget:   types.FromBig(raw.NativeBudget),
		Budget:         toERC20Transfers(raw.Budget),
		Preapproved:    preapproved,
	}, nil
}

// findCall returns the unpacked arguments of the first action calling the
// given method on the given contract.
func findCall(actions []ProposalAction, target common.Address, method abi.Method) ([]any, error) {
	for _, action := range actions {
		if action.To != target {
			continue
		}
		if len(action.Data) < 4 || !bytes.Equal(action.Data[:4], method.ID) {
			continue
		}

		args, err := method.Inputs.Unpack(action.Data[4:])
		if err != nil {
			return nil, fmt.Errorf("failed to unpack %s calldata: %w", method.Name, err)
		}

		return args, nil
	}

	return nil, ErrActionNotFound
}
