package events

import (
	"encoding/json"
	"errors"
	"fmt"
)

var ErrMalformed = errors.New("malformed event")

type wireEvent struct {
	Type     Type            `json:"type"`
	Payload  json.RawMessage `json:"payload"`
	Metadata Metadata        `json:"metadata"`
}

var decoders = map[Type]func(json.RawMessage) (Payload, error){
	TypeOrderCreated:          decode[OrderCreated],
	TypeOrderStatusChanged:    decode[OrderStatusChanged],
	TypeOrderCancelled:        decode[OrderCancelled],
	TypeInventoryReserved:     decode[InventoryReserved],
	TypeInventoryReleased:     decode[InventoryReleased],
	TypeDeliveryAssigned:      decode[DeliveryAssigned],
	TypeDeliveryPickedUp:      decode[DeliveryPickedUp],
	TypeDeliveryCompleted:     decode[DeliveryCompleted],
	TypeDeliveryStatusChanged: decode[DeliveryStatusChanged],
}

func decode[T Payload](raw json.RawMessage) (Payload, error) {
	var p T
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, err
	}
	return p, nil
}

// Marshal encodes e in the transport-neutral wire format.
func Marshal(e Event) ([]byte, error) {
	if e.Payload == nil {
		return nil, fmt.Errorf("%w: nil payload", ErrMalformed)
	}
	if e.Metadata.EventID == "" {
		return nil, fmt.Errorf("%w: missing eventId", ErrMalformed)
	}

	typ := e.Type
	if typ == "" {
		typ = e.Payload.EventType()
	}

	var payload json.RawMessage
	if u, ok := e.Payload.(Unknown); ok {
		payload = u.Raw
	} else {
		data, err := json.Marshal(e.Payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s payload: %w", typ, err)
		}
		payload = data
	}

	return json.Marshal(wireEvent{Type: typ, Payload: payload, Metadata: e.Metadata})
}

// Unmarshal decodes the wire format. Unrecognised types decode into an
// Unknown payload rather than failing.
func Unmarshal(data []byte) (Event, error) {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if w.Type == "" {
		return Event{}, fmt.Errorf("%w: missing type", ErrMalformed)
	}
	if w.Metadata.EventID == "" {
		return Event{}, fmt.Errorf("%w: missing eventId", ErrMalformed)
	}

	dec, ok := decoders[w.Type]
	if !ok {
		return Event{Type: w.Type, Payload: Unknown{Kind: w.Type, Raw: w.Payload}, Metadata: w.Metadata}, nil
	}

	payload, err := dec(w.Payload)
	if err != nil {
		return Event{}, fmt.Errorf("%w: %s payload: %v", ErrMalformed, w.Type, err)
	}
	return Event{Type: w.Type, Payload: payload, Metadata: w.Metadata}, nil
}

// IsKnown reports whether typ has a decoder.
func IsKnown(typ Type) bool {
	_, ok := decoders[typ]
	return ok
}
