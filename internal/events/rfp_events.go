package events

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/Openmesh-Network/openrd-indexer/internal/types"
)

type RFPCreated struct {
	Base
	RFPID          *types.BigInt         `json:"rfpId"`
	Metadata       string                `json:"metadata"`
	Deadline       *types.BigInt         `json:"deadline"`
	NativeBudget   *types.BigInt         `json:"nativeBudget"`
	Budget         []types.ERC20Transfer `json:"budget"`
	Creator        common.Address        `json:"creator"`
	TasksManager   common.Address        `json:"tasksManager"`
	DisputeManager common.Address        `json:"disputeManager"`
	Manager        common.Address        `json:"manager"`
	Escrow         common.Address        `json:"escrow"`
}

func (*RFPCreated) EventType() Type { return TypeRFPCreated }

type ProjectSubmitted struct {
	Base
	RFPID          *types.BigInt        `json:"rfpId"`
	ProjectID      uint16               `json:"projectId"`
	Metadata       string               `json:"metadata"`
	Representative common.Address       `json:"representative"`
	Deadline       *types.BigInt        `json:"deadline"`
	NativeReward   []types.NativeReward `json:"nativeReward"`
	Reward         []types.Reward       `json:"reward"`
}

func (*ProjectSubmitted) EventType() Type { return TypeProjectSubmitted }

type ProjectAccepted struct {
	Base
	RFPID        *types.BigInt   `json:"rfpId"`
	ProjectID    uint16          `json:"projectId"`
	NativeReward []*types.BigInt `json:"nativeReward"`
	Reward       []*types.BigInt `json:"reward"`
	TaskID       *types.BigInt   `json:"taskId"`
}

func (*ProjectAccepted) EventType() Type { return TypeProjectAccepted }

type RFPEmptied struct {
	Base
	RFPID *types.BigInt `json:"rfpId"`
}

func (*RFPEmptied) EventType() Type { return TypeRFPEmptied }
