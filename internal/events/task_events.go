package events

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/Openmesh-Network/openrd-indexer/internal/types"
)

// TaskCreated announces a new task with its full initial configuration.
type TaskCreated struct {
	Base
	TaskID         *types.BigInt         `json:"taskId"`
	Metadata       string                `json:"metadata"`
	Deadline       *types.BigInt         `json:"deadline"`
	Manager        common.Address        `json:"manager"`
	DisputeManager common.Address        `json:"disputeManager"`
	Creator        common.Address        `json:"creator"`
	NativeBudget   *types.BigInt         `json:"nativeBudget"`
	Budget         []types.ERC20Transfer `json:"budget"`
	Escrow         common.Address        `json:"escrow"`
}

func (*TaskCreated) EventType() Type { return TypeTaskCreated }

type ApplicationCreated struct {
	Base
	TaskID        *types.BigInt        `json:"taskId"`
	ApplicationID uint16               `json:"applicationId"`
	Metadata      string               `json:"metadata"`
	Applicant     common.Address       `json:"applicant"`
	NativeReward  []types.NativeReward `json:"nativeReward"`
	Reward        []types.Reward       `json:"reward"`
}

func (*ApplicationCreated) EventType() Type { return TypeApplicationCreated }

type ApplicationAccepted struct {
	Base
	TaskID        *types.BigInt `json:"taskId"`
	ApplicationID uint16        `json:"applicationId"`
}

func (*ApplicationAccepted) EventType() Type { return TypeApplicationAccepted }

type TaskTaken struct {
	Base
	TaskID        *types.BigInt `json:"taskId"`
	ApplicationID uint16        `json:"applicationId"`
}

func (*TaskTaken) EventType() Type { return TypeTaskTaken }

type SubmissionCreated struct {
	Base
	TaskID       *types.BigInt `json:"taskId"`
	SubmissionID uint8         `json:"submissionId"`
	Metadata     string        `json:"metadata"`
}

func (*SubmissionCreated) EventType() Type { return TypeSubmissionCreated }

type SubmissionReviewed struct {
	Base
	TaskID       *types.BigInt             `json:"taskId"`
	SubmissionID uint8                     `json:"submissionId"`
	Judgement    types.SubmissionJudgement `json:"judgement"`
	Feedback     string                    `json:"feedback"`
}

func (*SubmissionReviewed) EventType() Type { return TypeSubmissionReviewed }

type TaskCompleted struct {
	Base
	TaskID *types.BigInt              `json:"taskId"`
	Source types.TaskCompletionSource `json:"source"`
}

func (*TaskCompleted) EventType() Type { return TypeTaskCompleted }

type CancelTaskRequested struct {
	Base
	TaskID    *types.BigInt `json:"taskId"`
	RequestID uint8         `json:"requestId"`
	Metadata  string        `json:"metadata"`
}

func (*CancelTaskRequested) EventType() Type { return TypeCancelTaskRequested }

type TaskCancelled struct {
	Base
	TaskID *types.BigInt `json:"taskId"`
}

func (*TaskCancelled) EventType() Type { return TypeTaskCancelled }

type RequestAccepted struct {
	Base
	TaskID      *types.BigInt     `json:"taskId"`
	RequestType types.RequestType `json:"requestType"`
	RequestID   uint8             `json:"requestId"`
}

func (*RequestAccepted) EventType() Type { return TypeRequestAccepted }

type RequestExecuted struct {
	Base
	TaskID      *types.BigInt     `json:"taskId"`
	RequestType types.RequestType `json:"requestType"`
	RequestID   uint8             `json:"requestId"`
	By          common.Address    `json:"by"`
}

func (*RequestExecuted) EventType() Type { return TypeRequestExecuted }

type DeadlineChanged struct {
	Base
	TaskID      *types.BigInt `json:"taskId"`
	NewDeadline *types.BigInt `json:"newDeadline"`
}

func (*DeadlineChanged) EventType() Type { return TypeDeadlineChanged }

// BudgetChanged carries no payload; the new budget is read back from the
// escrow on chain.
type BudgetChanged struct {
	Base
	TaskID *types.BigInt `json:"taskId"`
}

func (*BudgetChanged) EventType() Type { return TypeBudgetChanged }

type RewardIncreased struct {
	Base
	TaskID         *types.BigInt   `json:"taskId"`
	ApplicationID  uint16          `json:"applicationId"`
	NativeIncrease []*types.BigInt `json:"nativeIncrease"`
	Increase       []*types.BigInt `json:"increase"`
}

func (*RewardIncreased) EventType() Type { return TypeRewardIncreased }

type MetadataChanged struct {
	Base
	TaskID      *types.BigInt `json:"taskId"`
	NewMetadata string        `json:"newMetadata"`
}

func (*MetadataChanged) EventType() Type { return TypeMetadataChanged }

type ManagerChanged struct {
	Base
	TaskID     *types.BigInt  `json:"taskId"`
	NewManager common.Address `json:"newManager"`
}

func (*ManagerChanged) EventType() Type { return TypeManagerChanged }

type PartialPayment struct {
	Base
	TaskID              *types.BigInt   `json:"taskId"`
	PartialNativeReward []*types.BigInt `json:"partialNativeReward"`
	PartialReward       []*types.BigInt `json:"partialReward"`
}

func (*PartialPayment) EventType() Type { return TypePartialPayment }

// DisputeCreated only announces that a dispute proposal exists; the dispute
// payload itself sits in the calldata of the companion governance proposal log
// and is resolved by the reducer from the transaction receipt.
type DisputeCreated struct {
	Base
	DAO              common.Address `json:"dao"`
	GovernancePlugin common.Address `json:"governancePlugin"`
	ProposalID       *types.BigInt  `json:"proposalId"`
}

func (*DisputeCreated) EventType() Type { return TypeDisputeCreated }

// DraftCreated mirrors DisputeCreated: the draft task payload is resolved from
// the companion proposal log's calldata.
type DraftCreated struct {
	Base
	DAO              common.Address `json:"dao"`
	GovernancePlugin common.Address `json:"governancePlugin"`
	ProposalID       *types.BigInt  `json:"proposalId"`
}

func (*DraftCreated) EventType() Type { return TypeDraftCreated }
