package types

import (
	"github.com/ethereum/go-ethereum/common"
)

// Project is one proposed project under an RFP, addressed by a small integer
// id local to the RFP.
type Project struct {
	Metadata       string         `json:"metadata"`
	Representative common.Address `json:"representative"`
	Deadline       *BigInt        `json:"deadline"`
	Accepted       bool           `json:"accepted"`
	NativeReward   []NativeReward `json:"nativeReward"`
	Reward         []Reward       `json:"reward"`

	TaskID         *BigInt `json:"taskId"`
	CachedMetadata string  `json:"cachedMetadata"`
	USDValue       float64 `json:"usdValue"`
}

// RFP is the materialized view of one on-chain request for proposals.
type RFP struct {
	Metadata       string          `json:"metadata"`
	Deadline       *BigInt         `json:"deadline"`
	Escrow         common.Address  `json:"escrow"`
	Creator        common.Address  `json:"creator"`
	TasksManager   common.Address  `json:"tasksManager"`
	DisputeManager common.Address  `json:"disputeManager"`
	Manager        common.Address  `json:"manager"`
	NativeBudget   *BigInt         `json:"nativeBudget"`
	Budget         []ERC20Transfer `json:"budget"`

	Projects map[uint16]*Project `json:"projects"`

	CreatedAt   int64             `json:"createdAt"`
	LastUpdated int64             `json:"lastUpdated"`
	Events      []EventIdentifier `json:"events"`

	CachedMetadata string  `json:"cachedMetadata"`
	USDValue       float64 `json:"usdValue"`
}
