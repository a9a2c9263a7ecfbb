package contracts

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/Openmesh-Network/openrd-indexer/internal/events"
	"github.com/Openmesh-Network/openrd-indexer/internal/types"
)

// ErrUnknownEvent is returned for logs whose first topic matches none of the
// watched events.
var ErrUnknownEvent = errors.New("unknown event topic")

// Raw tuple shapes as the abi package unpacks them. Field names follow the
// capitalized ABI argument names so reflection-based copying lines up.
type erc20TransferRaw struct {
	TokenContract common.Address
	Amount        *big.Int
}

type nativeRewardRaw struct {
	To     common.Address
	Amount *big.Int
}

type rewardRaw struct {
	NextToken bool
	To        common.Address
	Amount    *big.Int
}

type decodeFunc func(ethtypes.Log) (events.Event, error)

var decoders map[common.Hash]decodeFunc

func init() {
	decoders = map[common.Hash]decodeFunc{
		TasksABI.Events["TaskCreated"].ID:         decodeTaskCreated,
		TasksABI.Events["ApplicationCreated"].ID:  decodeApplicationCreated,
		TasksABI.Events["ApplicationAccepted"].ID: decodeApplicationAccepted,
		TasksABI.Events["TaskTaken"].ID:           decodeTaskTaken,
		TasksABI.Events["SubmissionCreated"].ID:   decodeSubmissionCreated,
		TasksABI.Events["SubmissionReviewed"].ID:  decodeSubmissionReviewed,
		TasksABI.Events["TaskCompleted"].ID:       decodeTaskCompleted,
		TasksABI.Events["CancelTaskRequested"].ID: decodeCancelTaskRequested,
		TasksABI.Events["TaskCancelled"].ID:       decodeTaskCancelled,
		TasksABI.Events["RequestAccepted"].ID:     decodeRequestAccepted,
		TasksABI.Events["RequestExecuted"].ID:     decodeRequestExecuted,
		TasksABI.Events["DeadlineChanged"].ID:     decodeDeadlineChanged,
		TasksABI.Events["BudgetChanged"].ID:       decodeBudgetChanged,
		TasksABI.Events["RewardIncreased"].ID:     decodeRewardIncreased,
		TasksABI.Events["MetadataChanged"].ID:     decodeMetadataChanged,
		TasksABI.Events["ManagerChanged"].ID:      decodeManagerChanged,
		TasksABI.Events["PartialPayment"].ID:      decodePartialPayment,

		DisputesABI.Events["DisputeCreated"].ID: decodeDisputeCreated,
		DraftsABI.Events["TaskDraftCreated"].ID: decodeDraftCreated,

		RFPsABI.Events["RFPCreated"].ID:       decodeRFPCreated,
		RFPsABI.Events["ProjectSubmitted"].ID: decodeProjectSubmitted,
		RFPsABI.Events["ProjectAccepted"].ID:  decodeProjectAccepted,
		RFPsABI.Events["RFPEmptied"].ID:       decodeRFPEmptied,
	}
}

// WatchedTopics returns the first-topic hashes of every decodable event.
func WatchedTopics() []common.Hash {
	topics := make([]common.Hash, 0, len(decoders))
	for topic := range decoders {
		topics = append(topics, topic)
	}

	return topics
}

// DecodeLog maps a raw log to its typed event. Decoding is strict: a known
// topic with a malformed payload is an error, not a partial event.
func DecodeLog(lg ethtypes.Log) (events.Event, error) {
	if len(lg.Topics) == 0 {
		return nil, ErrUnknownEvent
	}

	decode, ok := decoders[lg.Topics[0]]
	if !ok {
		return nil, ErrUnknownEvent
	}

	return decode(lg)
}

// unpackLog unpacks both the data section and the indexed topics of a log
// into out.
func unpackLog(contractABI abi.ABI, out any, name string, lg ethtypes.Log) error {
	ev, ok := contractABI.Events[name]
	if !ok {
		return fmt.Errorf("event %s not in ABI", name)
	}

	if len(lg.Topics) == 0 || lg.Topics[0] != ev.ID {
		return fmt.Errorf("log topic does not match event %s", name)
	}

	if len(lg.Data) > 0 {
		if err := contractABI.UnpackIntoInterface(out, name, lg.Data); err != nil {
			return fmt.Errorf("failed to unpack %s data: %w", name, err)
		}
	}

	var indexed abi.Arguments
	for _, arg := range ev.Inputs {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}

	if err := abi.ParseTopics(out, indexed, lg.Topics[1:]); err != nil {
		return fmt.Errorf("failed to parse %s topics: %w", name, err)
	}

	return nil
}

func toERC20Transfers(raw []erc20TransferRaw) []types.ERC20Transfer {
	out := make([]types.ERC20Transfer, len(raw))
	for i, t := range raw {
		out[i] = types.ERC20Transfer{TokenContract: t.TokenContract, Amount: types.FromBig(t.Amount)}
	}

	return out
}

func toNativeRewards(raw []nativeRewardRaw) []types.NativeReward {
	out := make([]types.NativeReward, len(raw))
	for i, r := range raw {
		out[i] = types.NativeReward{To: r.To, Amount: types.FromBig(r.Amount)}
	}

	return out
}

func toRewards(raw []rewardRaw) []types.Reward {
	out := make([]types.Reward, len(raw))
	for i, r := range raw {
		out[i] = types.Reward{NextToken: r.NextToken, To: r.To, Amount: types.FromBig(r.Amount)}
	}

	return out
}

func toBigInts(raw []*big.Int) []*types.BigInt {
	out := make([]*types.BigInt, len(raw))
	for i, x := range raw {
		out[i] = types.FromBig(x)
	}

	return out
}

func decodeTaskCreated(lg ethtypes.Log) (events.Event, error) {
	var raw struct {
		TaskId         *big.Int
		Metadata       string
		Deadline       *big.Int
		Manager        common.Address
		DisputeManager common.Address
		Creator        common.Address
		NativeBudget   *big.Int
		Budget         []erc20TransferRaw
		Escrow         common.Address
	}
	if err := unpackLog(TasksABI, &raw, "TaskCreated", lg); err != nil {
		return nil, err
	}

	return &events.TaskCreated{
		TaskID:         types.FromBig(raw.TaskId),
		Metadata:       raw.Metadata,
		Deadline:       types.FromBig(raw.Deadline),
		Manager:        raw.Manager,
		DisputeManager: raw.DisputeManager,
		Creator:        raw.Creator,
		NativeBudget:   types.FromBig(raw.NativeBudget),
		Budget:         toERC20Transfers(raw.Budget),
		Escrow:         raw.Escrow,
	}, nil
}

func decodeApplicationCreated(lg ethtypes.Log) (events.Event, error) {
	var raw struct {
		TaskId        *big.Int
		ApplicationId uint16
		Metadata      string
		Applicant     common.Address
		NativeReward  []nativeRewardRaw
		Reward        []rewardRaw
	}
	if err := unpackLog(TasksABI, &raw, "ApplicationCreated", lg); err != nil {
		return nil, err
	}

	return &events.ApplicationCreated{
		TaskID:        types.FromBig(raw.TaskId),
		ApplicationID: raw.ApplicationId,
		Metadata:      raw.Metadata,
		Applicant:     raw.Applicant,
		NativeReward:  toNativeRewards(raw.NativeReward),
		Reward:        toRewards(raw.Reward),
	}, nil
}

func decodeApplicationAccepted(lg ethtypes.Log) (events.Event, error) {
	var raw struct {
		TaskId        *big.Int
		ApplicationId uint16
	}
	if err := unpackLog(TasksABI, &raw, "ApplicationAccepted", lg); err != nil {
		return nil, err
	}

	return &events.ApplicationAccepted{
		TaskID:        types.FromBig(raw.TaskId),
		ApplicationID: raw.ApplicationId,
	}, nil
}

func decodeTaskTaken(lg ethtypes.Log) (events.Event, error) {
	var raw struct {
		TaskId        *big.Int
		ApplicationId uint16
	}
	if err := unpackLog(TasksABI, &raw, "TaskTaken", lg); err != nil {
		return nil, err
	}

	return &events.TaskTaken{
		TaskID:        types.FromBig(raw.TaskId),
		ApplicationID: raw.ApplicationId,
	}, nil
}

func decodeSubmissionCreated(lg ethtypes.Log) (events.Event, error) {
	var raw struct {
		TaskId       *big.Int
		SubmissionId uint8
		Metadata     string
	}
	if err := unpackLog(TasksABI, &raw, "SubmissionCreated", lg); err != nil {
		return nil, err
	}

	return &events.SubmissionCreated{
		TaskID:       types.FromBig(raw.TaskId),
		SubmissionID: raw.SubmissionId,
		Metadata:     raw.Metadata,
	}, nil
}

func decodeSubmissionReviewed(lg ethtypes.Log) (events.Event, error) {
	var raw struct {
		TaskId       *big.Int
		SubmissionId uint8
		Judgement    uint8
		Feedback     string
	}
	if err := unpackLog(TasksABI, &raw, "SubmissionReviewed", lg); err != nil {
		return nil, err
	}

	return &events.SubmissionReviewed{
		TaskID:       types.FromBig(raw.TaskId),
		SubmissionID: raw.SubmissionId,
		Judgement:    types.SubmissionJudgement(raw.Judgement),
		Feedback:     raw.Feedback,
	}, nil
}

func decodeTaskCompleted(lg ethtypes.Log) (events.Event, error) {
	var raw struct {
		TaskId *big.Int
		Source uint8
	}
	if err := unpackLog(TasksABI, &raw, "TaskCompleted", lg); err != nil {
		return nil, err
	}

	return &events.TaskCompleted{
		TaskID: types.FromBig(raw.TaskId),
		Source: types.TaskCompletionSource(raw.Source),
	}, nil
}

func decodeCancelTaskRequested(lg ethtypes.Log) (events.Event, error) {
	var raw struct {
		TaskId    *big.Int
		RequestId uint8
		Metadata  string
	}
	if err := unpackLog(TasksABI, &raw, "CancelTaskRequested", lg); err != nil {
		return nil, err
	}

	return &events.CancelTaskRequested{
		TaskID:    types.FromBig(raw.TaskId),
		RequestID: raw.RequestId,
		Metadata:  raw.Metadata,
	}, nil
}

func decodeTaskCancelled(lg ethtypes.Log) (events.Event, error) {
	var raw struct {
		TaskId *big.Int
	}
	if err := unpackLog(TasksABI, &raw, "TaskCancelled", lg); err != nil {
		return nil, err
	}

	return &events.TaskCancelled{TaskID: types.FromBig(raw.TaskId)}, nil
}

func decodeRequestAccepted(lg ethtypes.Log) (events.Event, error) {
	var raw struct {
		TaskId      *big.Int
		RequestType uint8
		RequestId   uint8
	}
	if err := unpackLog(TasksABI, &raw, "RequestAccepted", lg); err != nil {
		return nil, err
	}

	return &events.RequestAccepted{
		TaskID:      types.FromBig(raw.TaskId),
		RequestType: types.RequestType(raw.RequestType),
		RequestID:   raw.RequestId,
	}, nil
}

func decodeRequestExecuted(lg ethtypes.Log) (events.Event, error) {
	var raw struct {
		TaskId      *big.Int
		RequestType uint8
		RequestId   uint8
		By          common.Address
	}
	if err := unpackLog(TasksABI, &raw, "RequestExecuted", lg); err != nil {
		return nil, err
	}

	return &events.RequestExecuted{
		TaskID:      types.FromBig(raw.TaskId),
		RequestType: types.RequestType(raw.RequestType),
		RequestID:   raw.RequestId,
		By:          raw.By,
	}, nil
}

func decodeDeadlineChanged(lg ethtypes.Log) (events.Event, error) {
	var raw struct {
		TaskId      *big.Int
		NewDeadline *big.Int
	}
	if err := unpackLog(TasksABI, &raw, "DeadlineChanged", lg); err != nil {
		return nil, err
	}

	return &events.DeadlineChanged{
		TaskID:      types.FromBig(raw.TaskId),
		NewDeadline: types.FromBig(raw.NewDeadline),
	}, nil
}

func decodeBudgetChanged(lg ethtypes.Log) (events.Event, error) {
	var raw struct {
		TaskId *big.Int
	}
	if err := unpackLog(TasksABI, &raw, "BudgetChanged", lg); err != nil {
		return nil, err
	}

	return &events.BudgetChanged{TaskID: types.FromBig(raw.TaskId)}, nil
}

func decodeRewardIncreased(lg ethtypes.Log) (events.Event, error) {
	var raw struct {
		TaskId         *big.Int
		ApplicationId  uint16
		NativeIncrease []*big.Int
		Increase       []*big.Int
	}
	if err := unpackLog(TasksABI, &raw, "RewardIncreased", lg); err != nil {
		return nil, err
	}

	return &events.RewardIncreased{
		TaskID:         types.FromBig(raw.TaskId),
		ApplicationID:  raw.ApplicationId,
		NativeIncrease: toBigInts(raw.NativeIncrease),
		Increase:       toBigInts(raw.Increase),
	}, nil
}

func decodeMetadataChanged(lg ethtypes.Log) (events.Event, error) {
	var raw struct {
		TaskId      *big.Int
		NewMetadata string
	}
	if err := unpackLog(TasksABI, &raw, "MetadataChanged", lg); err != nil {
		return nil, err
	}

	return &events.MetadataChanged{
		TaskID:      types.FromBig(raw.TaskId),
		NewMetadata: raw.NewMetadata,
	}, nil
}

func decodeManagerChanged(lg ethtypes.Log) (events.Event, error) {
	var raw struct {
		TaskId     *big.Int
		NewManager common.Address
	}
	if err := unpackLog(TasksABI, &raw, "ManagerChanged", lg); err != nil {
		return nil, err
	}

	return &events.ManagerChanged{
		TaskID:     types.FromBig(raw.TaskId),
		NewManager: raw.NewManager,
	}, nil
}

func decodePartialPayment(lg ethtypes.Log) (events.Event, error) {
	var raw struct {
		TaskId              *big.Int
		PartialNativeReward []*big.Int
		PartialReward       []*big.Int
	}
	if err := unpackLog(TasksABI, &raw, "PartialPayment", lg); err != nil {
		return nil, err
	}

	return &events.PartialPayment{
		TaskID:              types.FromBig(raw.TaskId),
		PartialNativeReward: toBigInts(raw.PartialNativeReward),
		PartialReward:       toBigInts(raw.PartialReward),
	}, nil
}

func decodeDisputeCreated(lg ethtypes.Log) (events.Event, error) {
	var raw struct {
		Dao              common.Address
		GovernancePlugin common.Address
		ProposalId       *big.Int
	}
	if err := unpackLog(DisputesABI, &raw, "DisputeCreated", lg); err != nil {
		return nil, err
	}

	return &events.DisputeCreated{
		DAO:              raw.Dao,
		GovernancePlugin: raw.GovernancePlugin,
		ProposalID:       types.FromBig(raw.ProposalId),
	}, nil
}

func decodeDraftCreated(lg ethtypes.Log) (events.Event, error) {
	var raw struct {
		Dao              common.Address
		GovernancePlugin common.Address
		ProposalId       *big.Int
	}
	if err := unpackLog(DraftsABI, &raw, "TaskDraftCreated", lg); err != nil {
		return nil, err
	}

	return &events.DraftCreated{
		DAO:              raw.Dao,
		GovernancePlugin: raw.GovernancePlugin,
		ProposalID:       types.FromBig(raw.ProposalId),
	}, nil
}

func decodeRFPCreated(lg ethtypes.Log) (events.Event, error) {
	var raw struct {
		RfpId          *big.Int
		Metadata       string
		Deadline       *big.Int
		NativeBudget   *big.Int
		Budget         []erc20TransferRaw
		Creator        common.Address
		TasksManager   common.Address
		DisputeManager common.Address
		Manager        common.Address
		Escrow         common.Address
	}
	if err := unpackLog(RFPsABI, &raw, "RFPCreated", lg); err != nil {
		return nil, err
	}

	return &events.RFPCreated{
		RFPID:          types.FromBig(raw.RfpId),
		Metadata:       raw.Metadata,
		Deadline:       types.FromBig(raw.Deadline),
		NativeBudget:   types.FromBig(raw.NativeBudget),
		Budget:         toERC20Transfers(raw.Budget),
		Creator:        raw.Creator,
		TasksManager:   raw.TasksManager,
		DisputeManager: raw.DisputeManager,
		Manager:        raw.Manager,
		Escrow:         raw.Escrow,
	}, nil
}

func decodeProjectSubmitted(lg ethtypes.Log) (events.Event, error) {
	var raw struct {
		RfpId          *big.Int
		ProjectId      uint16
		Metadata       string
		Representative common.Address
		Deadline       *big.Int
		NativeReward   []nativeRewardRaw
		Reward         []rewardRaw
	}
	if err := unpackLog(RFPsABI, &raw, "ProjectSubmitted", lg); err != nil {
		return nil, err
	}

	return &events.ProjectSubmitted{
		RFPID:          types.FromBig(raw.RfpId),
		ProjectID:      raw.ProjectId,
		Metadata:       raw.Metadata,
		Representative: raw.Representative,
		Deadline:       types.FromBig(raw.Deadline),
		NativeReward:   toNativeRewards(raw.NativeReward),
		Reward:         toRewards(raw.Reward),
	}, nil
}

func decodeProjectAccepted(lg ethtypes.Log) (events.Event, error) {
	var raw struct {
		RfpId        *big.Int
		ProjectId    uint16
		NativeReward []*big.Int
		Reward       []*big.Int
		TaskId       *big.Int
	}
	if err := unpackLog(RFPsABI, &raw, "ProjectAccepted", lg); err != nil {
		return nil, err
	}

	return &events.ProjectAccepted{
		RFPID:        types.FromBig(raw.RfpId),
		ProjectID:    raw.ProjectId,
		NativeReward: toBigInts(raw.NativeReward),
		Reward:       toBigInts(raw.Reward),
		TaskID:       types.FromBig(raw.TaskId),
	}, nil
}

func decodeRFPEmptied(lg ethtypes.Log) (events.Event, error) {
	var raw struct {
		RfpId *big.Int
	}
	if err := unpackLog(RFPsABI, &raw, "RFPEmptied", lg); err != nil {
		return nil, err
	}

	return &events.RFPEmptied{RFPID: types.FromBig(raw.RfpId)}, nil
}
