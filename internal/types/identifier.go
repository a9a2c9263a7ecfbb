package types

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// EventIdentifier uniquely and permanently identifies one on-chain occurrence.
// It is the idempotency key for the whole system: the same log redelivered by a
// restarted subscription or a manual backfill carries the same identifier.
type EventIdentifier struct {
	ChainID         uint64      `json:"chainId"`
	TransactionHash common.Hash `json:"transactionHash"`
	LogIndex        uint        `json:"logIndex"`
}

// Key returns the string form used as map key in the event-log collections.
func (e EventIdentifier) Key() string {
	return fmt.Sprintf("%d-%s-%d", e.ChainID, e.TransactionHash.Hex(), e.LogIndex)
}

func (e EventIdentifier) String() string {
	return e.Key()
}
