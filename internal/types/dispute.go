package types

import (
	"github.com/ethereum/go-ethereum/common"
)

// DisputeInfo is the calldata payload of a dispute proposal: which task it
// targets and the partial payout its execution would trigger.
type DisputeInfo struct {
	TaskID              *BigInt   `json:"taskId"`
	PartialNativeReward []*BigInt `json:"partialNativeReward"`
	PartialReward       []*BigInt `json:"partialReward"`
}

// Dispute is one indexed dispute raised against a task through a governance
// proposal.
type Dispute struct {
	PartialNativeReward []*BigInt `json:"partialNativeReward"`
	PartialReward       []*BigInt `json:"partialReward"`

	GovernancePlugin common.Address `json:"governancePlugin"`
	ProposalID       *BigInt        `json:"proposalId"`
}

// PreapprovedApplication is an application a draft pre-accepts on creation.
type PreapprovedApplication struct {
	Applicant    common.Address `json:"applicant"`
	NativeReward []NativeReward `json:"nativeReward"`
	Reward       []Reward       `json:"reward"`
}

// DraftInfo is the calldata payload of a draft-task proposal.
type DraftInfo struct {
	Metadata       string                   `json:"metadata"`
	Deadline       *BigInt                  `json:"deadline"`
	Manager        common.Address           `json:"manager"`
	DisputeManager common.Address           `json:"disputeManager"`
	NativeBudget   *BigInt                  `json:"nativeBudget"`
	Budget         []ERC20Transfer          `json:"budget"`
	Preapproved    []PreapprovedApplication `json:"preapproved"`
}

// Draft is one indexed draft task proposed to a DAO.
type Draft struct {
	Metadata       string                   `json:"metadata"`
	Deadline       *BigInt                  `json:"deadline"`
	Manager        common.Address           `json:"manager"`
	DisputeManager common.Address           `json:"disputeManager"`
	NativeBudget   *BigInt                  `json:"nativeBudget"`
	Budget         []ERC20Transfer          `json:"budget"`
	Preapproved    []PreapprovedApplication `json:"preapproved"`

	GovernancePlugin common.Address `json:"governancePlugin"`
	ProposalID       *BigInt        `json:"proposalId"`

	CachedMetadata string `json:"cachedMetadata"`
}
