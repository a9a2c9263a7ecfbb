// Package contracts holds the ABIs of the watched contracts and strict
// decoders from raw chain logs to typed events.
package contracts

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// tasksABIJSON covers the task lifecycle events.
const tasksABIJSON = `[
{"anonymous":false,"inputs":[{"indexed":true,"name":"taskId","type":"uint256"},{"indexed":false,"name":"metadata","type":"string"},{"indexed":false,"name":"deadline","type":"uint256"},{"indexed":false,"name":"manager","type":"address"},{"indexed":false,"name":"disputeManager","type":"address"},{"indexed":false,"name":"creator","type":"address"},{"indexed":false,"name":"nativeBudget","type":"uint256"},{"indexed":false,"name":"budget","type":"tuple[]","components":[{"name":"tokenContract","type":"address"},{"name":"amount","type":"uint256"}]},{"indexed":false,"name":"escrow","type":"address"}],"name":"TaskCreated","type":"event"},
{"anonymous":false,"inputs":[{"indexed":true,"name":"taskId","type":"uint256"},{"indexed":false,"name":"applicationId","type":"uint16"},{"indexed":false,"name":"metadata","type":"string"},{"indexed":false,"name":"applicant","type":"address"},{"indexed":false,"name":"nativeReward","type":"tuple[]","components":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}]},{"indexed":false,"name":"reward","type":"tuple[]","components":[{"name":"nextToken","type":"bool"},{"name":"to","type":"address"},{"name":"amount","type":"uint256"}]}],"name":"ApplicationCreated","type":"event"},
{"anonymous":false,"inputs":[{"indexed":true,"name":"taskId","type":"uint256"},{"indexed":false,"name":"applicationId","type":"uint16"}],"name":"ApplicationAccepted","type":"event"},
{"anonymous":false,"inputs":[{"indexed":true,"name":"taskId","type":"uint256"},{"indexed":false,"name":"applicationId","type":"uint16"}],"name":"TaskTaken","type":"event"},
{"anonymous":false,"inputs":[{"indexed":true,"name":"taskId","type":"uint256"},{"indexed":false,"name":"submissionId","type":"uint8"},{"indexed":false,"name":"metadata","type":"string"}],"name":"SubmissionCreated","type":"event"},
{"anonymous":false,"inputs":[{"indexed":true,"name":"taskId","type":"uint256"},{"indexed":false,"name":"submissionId","type":"uint8"},{"indexed":false,"name":"judgement","type":"uint8"},{"indexed":false,"name":"feedback","type":"string"}],"name":"SubmissionReviewed","type":"event"},
{"anonymous":false,"inputs":[{"indexed":true,"name":"taskId","type":"uint256"},{"indexed":false,"name":"source","type":"uint8"}],"name":"TaskCompleted","type":"event"},
{"anonymous":false,"inputs":[{"indexed":true,"name":"taskId","type":"uint256"},{"indexed":false,"name":"requestId","type":"uint8"},{"indexed":false,"name":"metadata","type":"string"}],"name":"CancelTaskRequested","type":"event"},
{"anonymous":false,"inputs":[{"indexed":true,"name":"taskId","type":"uint256"}],"name":"TaskCancelled","type":"event"},
{"anonymous":false,"inputs":[{"indexed":true,"name":"taskId","type":"uint256"},{"indexed":false,"name":"requestType","type":"uint8"},{"indexed":false,"name":"requestId","type":"uint8"}],"name":"RequestAccepted","type":"event"},
{"anonymous":false,"inputs":[{"indexed":true,"name":"taskId","type":"uint256"},{"indexed":false,"name":"requestType","type":"uint8"},{"indexed":false,"name":"requestId","type":"uint8"},{"indexed":false,"name":"by","type":"address"}],"name":"RequestExecuted","type":"event"},
{"anonymous":false,"inputs":[{"indexed":true,"name":"taskId","type":"uint256"},{"indexed":false,"name":"newDeadline","type":"uint256"}],"name":"DeadlineChanged","type":"event"},
{"anonymous":false,"inputs":[{"indexed":true,"name":"taskId","type":"uint256"}],"name":"BudgetChanged","type":"event"},
{"anonymous":false,"inputs":[{"indexed":true,"name":"taskId","type":"uint256"},{"indexed":false,"name":"applicationId","type":"uint16"},{"indexed":false,"name":"nativeIncrease","type":"uint256[]"},{"indexed":false,"name":"increase","type":"uint256[]"}],"name":"RewardIncreased","type":"event"},
{"anonymous":false,"inputs":[{"indexed":true,"name":"taskId","type":"uint256"},{"indexed":false,"name":"newMetadata","type":"string"}],"name":"MetadataChanged","type":"event"},
{"anonymous":false,"inputs":[{"indexed":true,"name":"taskId","type":"uint256"},{"indexed":false,"name":"newManager","type":"address"}],"name":"ManagerChanged","type":"event"},
{"anonymous":false,"inputs":[{"indexed":true,"name":"taskId","type":"uint256"},{"indexed":false,"name":"partialNativeReward","type":"uint256[]"},{"indexed":false,"name":"partialReward","type":"uint256[]"}],"name":"PartialPayment","type":"event"}
]`

// disputesABIJSON covers the dispute extension. The DisputeCreated log only
// announces the governance proposal; the dispute payload travels in the
// createDispute calldata embedded in the proposal actions.
const disputesABIJSON = `[
{"anonymous":false,"inputs":[{"indexed":true,"name":"dao","type":"address"},{"indexed":false,"name":"governancePlugin","type":"address"},{"indexed":false,"name":"proposalId","type":"uint256"}],"name":"DisputeCreated","type":"event"},
{"inputs":[{"name":"dispute","type":"tuple","components":[{"name":"taskId","type":"uint256"},{"name":"partialNativeReward","type":"uint256[]"},{"name":"partialReward","type":"uint256[]"}]}],"name":"createDispute","outputs":[],"stateMutability":"nonpayable","type":"function"}
]`

// draftsABIJSON covers the draft-task extension, companion-log shaped like the
// disputes extension.
const draftsABIJSON = `[
{"anonymous":false,"inputs":[{"indexed":true,"name":"dao","type":"address"},{"indexed":false,"name":"governancePlugin","type":"address"},{"indexed":false,"name":"proposalId","type":"uint256"}],"name":"TaskDraftCreated","type":"event"},
{"inputs":[{"name":"draft","type":"tuple","components":[{"name":"metadata","type":"string"},{"name":"deadline","type":"uint256"},{"name":"manager","type":"address"},{"name":"disputeManager","type":"address"},{"name":"nativeBudget","type":"uint256"},{"name":"budget","type":"tuple[]","components":[{"name":"tokenContract","type":"address"},{"name":"amount","type":"uint256"}]},{"name":"preapproved","type":"tuple[]","components":[{"name":"applicant","type":"address"},{"name":"nativeReward","type":"tuple[]","components":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}]},{"name":"reward","type":"tuple[]","components":[{"name":"nextToken","type":"bool"},{"name":"to","type":"address"},{"name":"amount","type":"uint256"}]}]}]}],"name":"createDraftTask","outputs":[],"stateMutability":"nonpayable","type":"function"}
]`

// rfpsABIJSON covers the request-for-proposals lifecycle.
const rfpsABIJSON = `[
{"anonymous":false,"inputs":[{"indexed":true,"name":"rfpId","type":"uint256"},{"indexed":false,"name":"metadata","type":"string"},{"indexed":false,"name":"deadline","type":"uint256"},{"indexed":false,"name":"nativeBudget","type":"uint256"},{"indexed":false,"name":"budget","type":"tuple[]","components":[{"name":"tokenContract","type":"address"},{"name":"amount","type":"uint256"}]},{"indexed":false,"name":"creator","type":"address"},{"indexed":false,"name":"tasksManager","type":"address"},{"indexed":false,"name":"disputeManager","type":"address"},{"indexed":false,"name":"manager","type":"address"},{"indexed":false,"name":"escrow","type":"address"}],"name":"RFPCreated","type":"event"},
{"anonymous":false,"inputs":[{"indexed":true,"name":"rfpId","type":"uint256"},{"indexed":false,"name":"projectId","type":"uint16"},{"indexed":false,"name":"metadata","type":"string"},{"indexed":false,"name":"representative","type":"address"},{"indexed":false,"name":"deadline","type":"uint256"},{"indexed":false,"name":"nativeReward","type":"tuple[]","components":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}]},{"indexed":false,"name":"reward","type":"tuple[]","components":[{"name":"nextToken","type":"bool"},{"name":"to","type":"address"},{"name":"amount","type":"uint256"}]}],"name":"ProjectSubmitted","type":"event"},
{"anonymous":false,"inputs":[{"indexed":true,"name":"rfpId","type":"uint256"},{"indexed":false,"name":"projectId","type":"uint16"},{"indexed":false,"name":"nativeReward","type":"uint256[]"},{"indexed":false,"name":"reward","type":"uint256[]"},{"indexed":false,"name":"taskId","type":"uint256"}],"name":"ProjectAccepted","type":"event"},
{"anonymous":false,"inputs":[{"indexed":true,"name":"rfpId","type":"uint256"}],"name":"RFPEmptied","type":"event"}
]`

// governanceABIJSON is the Aragon OSx proposal surface, needed to locate the
// companion log carrying dispute and draft calldata.
const governanceABIJSON = `[
{"anonymous":false,"inputs":[{"indexed":true,"name":"proposalId","type":"uint256"},{"indexed":true,"name":"creator","type":"address"},{"indexed":false,"name":"startDate","type":"uint64"},{"indexed":false,"name":"endDate","type":"uint64"},{"indexed":false,"name":"metadata","type":"bytes"},{"indexed":false,"name":"actions","type":"tuple[]","components":[{"name":"to","type":"address"},{"name":"value","type":"uint256"},{"name":"data","type":"bytes"}]},{"indexed":false,"name":"allowFailureMap","type":"uint256"}],"name":"ProposalCreated","type":"event"}
]`

// erc20ABIJSON is the minimal token surface the enrichment layer calls.
const erc20ABIJSON = `[
{"inputs":[{"name":"account","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
{"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"stateMutability":"view","type":"function"}
]`

var (
	TasksABI      = mustParse(tasksABIJSON)
	DisputesABI   = mustParse(disputesABIJSON)
	DraftsABI     = mustParse(draftsABIJSON)
	RFPsABI       = mustParse(rfpsABIJSON)
	GovernanceABI = mustParse(governanceABIJSON)
	ERC20ABI      = mustParse(erc20ABIJSON)
)

func mustParse(abiJSON string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(abiJSON))
	if err != nil {
		panic(err)
	}

	return parsed
}

// Default deployment addresses. The contracts deploy deterministically to the
// same address on every supported chain; per-chain config can override them.
var (
	DefaultTasksAddress    = common.HexToAddress("0x76c71F1703Fbf19FFdcF3051E1e684Cb9934510f")
	DefaultDisputesAddress = common.HexToAddress("0x7aC61b993B2aE0e47b8C9A84e09f2bfb9bf6111e")
	DefaultDraftsAddress   = common.HexToAddress("0x8f8e3AD070206d3c5B0171a918a52b36ddE25Ffd")
	DefaultRFPsAddress     = common.HexToAddress("0x182F28C2C69BF0432C1d1Df34b6B84e771A37dB4")
)

// Deployment is the resolved set of contract addresses on one chain.
type Deployment struct {
	Tasks    common.Address
	Disputes common.Address
	Drafts   common.Address
	RFPs     common.Address
}

// DefaultDeployment returns the deterministic deployment addresses.
func DefaultDeployment() Deployment {
	return Deployment{
		Tasks:    DefaultTasksAddress,
		Disputes: DefaultDisputesAddress,
		Drafts:   DefaultDraftsAddress,
		RFPs:     DefaultRFPsAddress,
	}
}

// Addresses returns all deployment addresses in a stable order.
func (d Deployment) Addresses() []common.Address {
	return []common.Address{d.Tasks, d.Disputes, d.Drafts, d.RFPs}
}
