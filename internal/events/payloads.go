package events

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

type LineItem struct {
	ProductID int64           `json:"productId"`
	VariantID *int64          `json:"variantId,omitempty"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
}

type OrderCreated struct {
	OrderID        int64           `json:"orderId"`
	CustomerID     int64           `json:"customerId"`
	Items          []LineItem      `json:"items"`
	SubtotalAmount decimal.Decimal `json:"subtotalAmount"`
	DiscountAmount decimal.Decimal `json:"discountAmount"`
	DeliveryFee    decimal.Decimal `json:"deliveryFee"`
	TaxAmount      decimal.Decimal `json:"taxAmount"`
	TotalAmount    decimal.Decimal `json:"totalAmount"`
}

func (OrderCreated) EventType() Type { return TypeOrderCreated }

type OrderStatusChanged struct {
	OrderID        int64  `json:"orderId"`
	PreviousStatus string `json:"previousStatus"`
	NewStatus      string `json:"newStatus"`
}

func (OrderStatusChanged) EventType() Type { return TypeOrderStatusChanged }

type OrderCancelled struct {
	OrderID        int64  `json:"orderId"`
	PreviousStatus string `json:"previousStatus"`
	Reason         string `json:"reason,omitempty"`
}

func (OrderCancelled) EventType() Type { return TypeOrderCancelled }

type InventoryReserved struct {
	ReservationID int64     `json:"reservationId"`
	OrderID       int64     `json:"orderId"`
	ProductID     int64     `json:"productId"`
	VariantID     *int64    `json:"variantId,omitempty"`
	Quantity      int       `json:"quantity"`
	ExpiresAt     time.Time `json:"expiresAt"`
}

func (InventoryReserved) EventType() Type { return TypeInventoryReserved }

type InventoryReleased struct {
	ReservationID int64  `json:"reservationId"`
	OrderID       int64  `json:"orderId"`
	ProductID     int64  `json:"productId"`
	VariantID     *int64 `json:"variantId,omitempty"`
	Quantity      int    `json:"quantity"`
	Reason        string `json:"reason,omitempty"`
}

func (InventoryReleased) EventType() Type { return TypeInventoryReleased }

type DeliveryAssigned struct {
	AssignmentID int64     `json:"assignmentId"`
	OrderID      int64     `json:"orderId"`
	CourierID    int64     `json:"courierId"`
	PickupETA    time.Time `json:"pickupEta"`
	DeliveryETA  time.Time `json:"deliveryEta"`
}

func (DeliveryAssigned) EventType() Type { return TypeDeliveryAssigned }

type DeliveryPickedUp struct {
	AssignmentID int64     `json:"assignmentId"`
	OrderID      int64     `json:"orderId"`
	CourierID    int64     `json:"courierId"`
	PickedUpAt   time.Time `json:"pickedUpAt"`
}

func (DeliveryPickedUp) EventType() Type { return TypeDeliveryPickedUp }

type DeliveryCompleted struct {
	AssignmentID int64     `json:"assignmentId"`
	OrderID      int64     `json:"orderId"`
	CourierID    int64     `json:"courierId"`
	DeliveredAt  time.Time `json:"deliveredAt"`
}

func (DeliveryCompleted) EventType() Type { return TypeDeliveryCompleted }

// DeliveryStatusChanged covers assignment transitions that have no
// dedicated event (accept, reject, in transit, cancel).
type DeliveryStatusChanged struct {
	AssignmentID   int64  `json:"assignmentId"`
	OrderID        int64  `json:"orderId"`
	CourierID      int64  `json:"courierId"`
	PreviousStatus string `json:"previousStatus"`
	NewStatus      string `json:"newStatus"`
	Reason         string `json:"reason,omitempty"`
}

func (DeliveryStatusChanged) EventType() Type { return TypeDeliveryStatusChanged }

// Unknown holds the raw payload of an event type this build does not know.
type Unknown struct {
	Kind Type
	Raw  json.RawMessage
}

func (u Unknown) EventType() Type { return u.Kind }
