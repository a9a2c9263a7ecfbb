package types

import (
	"github.com/ethereum/go-ethereum/common"
)

// TaskState tracks the on-chain lifecycle of a task. Closure and cancellation
// are state transitions, never removal.
type TaskState uint8

const (
	TaskStateOpen TaskState = iota
	TaskStateTaken
	TaskStateClosed
)

// TaskCompletionSource records what closed a task.
type TaskCompletionSource uint8

const (
	CompletionSourceSubmissionAccepted TaskCompletionSource = iota
	CompletionSourceDispute
)

// SubmissionJudgement is the manager's verdict on a submission.
type SubmissionJudgement uint8

const (
	JudgementNone SubmissionJudgement = iota
	JudgementAccepted
	JudgementRejected
)

// RequestType tags the open set of task request kinds. Only CancelTask exists
// today; unknown values received from chain are warned about and skipped.
type RequestType uint8

const (
	RequestTypeCancelTask RequestType = iota
)

// ERC20Transfer is a token contract plus an amount.
type ERC20Transfer struct {
	TokenContract common.Address `json:"tokenContract"`
	Amount        *BigInt        `json:"amount"`
}

// NativeReward is a native-currency payout line of an application.
type NativeReward struct {
	To     common.Address `json:"to"`
	Amount *BigInt        `json:"amount"`
}

// Reward is an ERC20 payout line. NextToken advances the budget token index
// the line draws from.
type Reward struct {
	NextToken bool           `json:"nextToken"`
	To        common.Address `json:"to"`
	Amount    *BigInt        `json:"amount"`
}

// Application is a worker's offer on a task, addressed by a small integer id
// local to the task.
type Application struct {
	Metadata     string         `json:"metadata"`
	Applicant    common.Address `json:"applicant"`
	Accepted     bool           `json:"accepted"`
	NativeReward []NativeReward `json:"nativeReward"`
	Reward       []Reward       `json:"reward"`

	CachedMetadata string `json:"cachedMetadata"`
}

// Submission is delivered work awaiting or carrying a review.
type Submission struct {
	Metadata  string              `json:"metadata"`
	Feedback  string              `json:"feedback"`
	Judgement SubmissionJudgement `json:"judgement"`

	CachedMetadata string `json:"cachedMetadata"`
	CachedFeedback string `json:"cachedFeedback"`
}

// Request is the accepted/executed pair shared by all request kinds.
type Request struct {
	Accepted bool `json:"accepted"`
	Executed bool `json:"executed"`
}

// CancelTaskRequest is an executor's request to cancel a taken task.
type CancelTaskRequest struct {
	Request  Request `json:"request"`
	Metadata string  `json:"metadata"`

	CachedMetadata string `json:"cachedMetadata"`
}

// Task is the materialized view of one on-chain task. On-chain-derived fields
// are mutated by reducers; the remaining fields are indexer-only.
type Task struct {
	Metadata            string          `json:"metadata"`
	Deadline            *BigInt         `json:"deadline"`
	ExecutorApplication uint16          `json:"executorApplication"`
	Manager             common.Address  `json:"manager"`
	DisputeManager      common.Address  `json:"disputeManager"`
	Creator             common.Address  `json:"creator"`
	State               TaskState       `json:"state"`
	Escrow              common.Address  `json:"escrow"`
	NativeBudget        *BigInt         `json:"nativeBudget"`
	Budget              []ERC20Transfer `json:"budget"`

	Applications       map[uint16]*Application      `json:"applications"`
	Submissions        map[uint8]*Submission        `json:"submissions"`
	CancelTaskRequests map[uint8]*CancelTaskRequest `json:"cancelTaskRequests"`

	CompletionSource *TaskCompletionSource `json:"completionSource,omitempty"`

	CreatedAt   int64             `json:"createdAt"`
	LastUpdated int64             `json:"lastUpdated"`
	Events      []EventIdentifier `json:"events"`

	CachedMetadata string    `json:"cachedMetadata"`
	USDValue       float64   `json:"usdValue"`
	NativePaidOut  []*BigInt `json:"nativePaidOut"`
	PaidOut        []*BigInt `json:"paidOut"`
}
