// Package events defines the domain events exchanged between the order API
// and the fulfillment worker, and their JSON wire format.
package events

import (
	"strconv"
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	TypeOrderCreated          Type = "order.created"
	TypeOrderStatusChanged    Type = "order.status_changed"
	TypeOrderCancelled        Type = "order.cancelled"
	TypeInventoryReserved     Type = "inventory.reserved"
	TypeInventoryReleased     Type = "inventory.released"
	TypeDeliveryAssigned      Type = "delivery.assigned"
	TypeDeliveryPickedUp      Type = "delivery.picked_up"
	TypeDeliveryCompleted     Type = "delivery.completed"
	TypeDeliveryStatusChanged Type = "delivery.status_changed"
)

// Types returns every event type this build knows how to decode.
func Types() []Type {
	return []Type{
		TypeOrderCreated,
		TypeOrderStatusChanged,
		TypeOrderCancelled,
		TypeInventoryReserved,
		TypeInventoryReleased,
		TypeDeliveryAssigned,
		TypeDeliveryPickedUp,
		TypeDeliveryCompleted,
		TypeDeliveryStatusChanged,
	}
}

// Metadata is shared by every event. EventID is the deduplication key and
// must survive publisher retries unchanged.
type Metadata struct {
	EventID       string `json:"eventId"`
	Timestamp     int64  `json:"timestamp"`
	Source        string `json:"source"`
	CorrelationID string `json:"correlationId,omitempty"`
}

// Payload is implemented by every event variant.
type Payload interface {
	EventType() Type
}

type Event struct {
	Type     Type
	Payload  Payload
	Metadata Metadata
}

// New builds an event with a fresh id and the current time.
func New(payload Payload, source, correlationID string) Event {
	return NewWithID(uuid.NewString(), time.Now(), payload, source, correlationID)
}

// NewWithID builds an event with an explicit id, for republishing an
// occurrence that already has one.
func NewWithID(eventID string, at time.Time, payload Payload, source, correlationID string) Event {
	return Event{
		Type:    payload.EventType(),
		Payload: payload,
		Metadata: Metadata{
			EventID:       eventID,
			Timestamp:     at.UnixMilli(),
			Source:        source,
			CorrelationID: correlationID,
		},
	}
}

func (e Event) ID() string {
	return e.Metadata.EventID
}

func (e Event) OccurredAt() time.Time {
	return time.UnixMilli(e.Metadata.Timestamp)
}

// OrderCorrelation is the correlation id used for every event in an
// order's causal chain.
func OrderCorrelation(orderID int64) string {
	return strconv.FormatInt(orderID, 10)
}
