// Package events defines the closed set of decoded contract event payloads
// the reducers consume, plus the JSON envelope that round-trips them through
// the event-log collections with their concrete type preserved.
package events

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/Openmesh-Network/openrd-indexer/internal/types"
)

// Type tags one contract event variant.
type Type string

const (
	TypeTaskCreated         Type = "TaskCreated"
	TypeApplicationCreated  Type = "ApplicationCreated"
	TypeApplicationAccepted Type = "ApplicationAccepted"
	TypeTaskTaken           Type = "TaskTaken"
	TypeSubmissionCreated   Type = "SubmissionCreated"
	TypeSubmissionReviewed  Type = "SubmissionReviewed"
	TypeTaskCompleted       Type = "TaskCompleted"
	TypeCancelTaskRequested Type = "CancelTaskRequested"
	TypeTaskCancelled       Type = "TaskCancelled"
	TypeRequestAccepted     Type = "RequestAccepted"
	TypeRequestExecuted     Type = "RequestExecuted"
	TypeDeadlineChanged     Type = "DeadlineChanged"
	TypeBudgetChanged       Type = "BudgetChanged"
	TypeRewardIncreased     Type = "RewardIncreased"
	TypeMetadataChanged     Type = "MetadataChanged"
	TypeManagerChanged      Type = "ManagerChanged"
	TypePartialPayment      Type = "PartialPayment"
	TypeDisputeCreated      Type = "DisputeCreated"
	TypeDraftCreated        Type = "DraftCreated"

	TypeRFPCreated       Type = "RFPCreated"
	TypeProjectSubmitted Type = "ProjectSubmitted"
	TypeProjectAccepted  Type = "ProjectAccepted"
	TypeRFPEmptied       Type = "RFPEmptied"
)

// Event is the closed union of decoded contract events.
type Event interface {
	EventType() Type
	Identifier() types.EventIdentifier
	base() *Base
}

// Base carries the fields every decoded event shares. The embedded
// EventIdentifier is the idempotency key; Timestamp is the block timestamp
// stamped by the watcher.
type Base struct {
	types.EventIdentifier
	Type        Type           `json:"type"`
	BlockNumber uint64         `json:"blockNumber"`
	Address     common.Address `json:"address"`
	Timestamp   int64          `json:"timestamp"`
}

func (b *Base) Identifier() types.EventIdentifier { return b.EventIdentifier }
func (b *Base) base() *Base                       { return b }

// Stamp fills in the delivery-side fields of an event after decoding.
func Stamp(ev Event, id types.EventIdentifier, blockNumber uint64, address common.Address, timestamp int64) {
	b := ev.base()
	b.EventIdentifier = id
	b.Type = ev.EventType()
	b.BlockNumber = blockNumber
	b.Address = address
	b.Timestamp = timestamp
}

// variants maps every type tag to a constructor of its zero payload. It is the
// single dispatch table the envelope and the decoders share; adding an event
// means adding it here, to the decoder table, and to the reducer switch.
var variants = map[Type]func() Event{
	TypeTaskCreated:         func() Event { return new(TaskCreated) },
	TypeApplicationCreated:  func() Event { return new(ApplicationCreated) },
	TypeApplicationAccepted: func() Event { return new(ApplicationAccepted) },
	TypeTaskTaken:           func() Event { return new(TaskTaken) },
	TypeSubmissionCreated:   func() Event { return new(SubmissionCreated) },
	TypeSubmissionReviewed:  func() Event { return new(SubmissionReviewed) },
	TypeTaskCompleted:       func() Event { return new(TaskCompleted) },
	TypeCancelTaskRequested: func() Event { return new(CancelTaskRequested) },
	TypeTaskCancelled:       func() Event { return new(TaskCancelled) },
	TypeRequestAccepted:     func() Event { return new(RequestAccepted) },
	TypeRequestExecuted:     func() Event { return new(RequestExecuted) },
	TypeDeadlineChanged:     func() Event { return new(DeadlineChanged) },
	TypeBudgetChanged:       func() Event { return new(BudgetChanged) },
	TypeRewardIncreased:     func() Event { return new(RewardIncreased) },
	TypeMetadataChanged:     func() Event { return new(MetadataChanged) },
	TypeManagerChanged:      func() Event { return new(ManagerChanged) },
	TypePartialPayment:      func() Event { return new(PartialPayment) },
	TypeDisputeCreated:      func() Event { return new(DisputeCreated) },
	TypeDraftCreated:        func() Event { return new(DraftCreated) },
	TypeRFPCreated:          func() Event { return new(RFPCreated) },
	TypeProjectSubmitted:    func() Event { return new(ProjectSubmitted) },
	TypeProjectAccepted:     func() Event { return new(ProjectAccepted) },
	TypeRFPEmptied:          func() Event { return new(RFPEmptied) },
}

// Envelope wraps an Event for storage in a JSON collection, preserving the
// concrete payload type through the "type" tag.
type Envelope struct {
	Event Event
}

func (e Envelope) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.Event)
}

func (e *Envelope) UnmarshalJSON(data []byte) error {
	var probe struct {
		Type Type `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}
	mk, ok := variants[probe.Type]
	if !ok {
		return fmt.Errorf("unknown event type %q", probe.Type)
	}
	ev := mk()
	if err := json.Unmarshal(data, ev); err != nil {
		return err
	}
	e.Event = ev
	return nil
}
