package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderConfirmed OrderStatus = "confirmed"
	OrderPicking   OrderStatus = "picking"
	OrderReady     OrderStatus = "ready"
	OrderAssigned  OrderStatus = "assigned"
	OrderPickedUp  OrderStatus = "picked_up"
	OrderInTransit OrderStatus = "in_transit"
	OrderDelivered OrderStatus = "delivered"
	OrderCancelled OrderStatus = "cancelled"
)

// orderTransitions is the fixed order lifecycle table. Statuses with an
// empty set are terminal.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderPending:   {OrderConfirmed, OrderCancelled},
	OrderConfirmed: {OrderPicking, OrderCancelled},
	OrderPicking:   {OrderReady, OrderCancelled},
	OrderReady:     {OrderAssigned, OrderCancelled},
	OrderAssigned:  {OrderPickedUp, OrderCancelled},
	OrderPickedUp:  {OrderInTransit, OrderCancelled},
	OrderInTransit: {OrderDelivered, OrderCancelled},
	OrderDelivered: {},
	OrderCancelled: {},
}

// orderHappyPath is the order of statuses an uncancelled order moves through.
var orderHappyPath = []OrderStatus{
	OrderPending,
	OrderConfirmed,
	OrderPicking,
	OrderReady,
	OrderAssigned,
	OrderPickedUp,
	OrderInTransit,
	OrderDelivered,
}

// OrderStatuses returns every known order status.
func OrderStatuses() []OrderStatus {
	return append(append([]OrderStatus{}, orderHappyPath...), OrderCancelled)
}

func (s OrderStatus) Valid() bool {
	_, ok := orderTransitions[s]
	return ok
}

// CanTransitionTo reports whether next is in the allowed set for s.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// CourierStage reports whether s is reached through courier progress
// rather than warehouse work.
func (s OrderStatus) CourierStage() bool {
	return s.Rank() >= OrderAssigned.Rank()
}

func (s OrderStatus) IsTerminal() bool {
	allowed, ok := orderTransitions[s]
	return ok && len(allowed) == 0
}

// Rank is the position of s on the happy path, or -1 for cancelled and
// unknown statuses.
func (s OrderStatus) Rank() int {
	for i, st := range orderHappyPath {
		if st == s {
			return i
		}
	}
	return -1
}

// PathTo returns the happy-path steps after s up to and including target.
// It returns nil when target is not ahead of s.
func (s OrderStatus) PathTo(target OrderStatus) []OrderStatus {
	from, to := s.Rank(), target.Rank()
	if from < 0 || to < 0 || to <= from {
		return nil
	}
	return append([]OrderStatus{}, orderHappyPath[from+1:to+1]...)
}

type Order struct {
	ID             int64           `json:"id"`
	CustomerID     int64           `json:"customer_id"`
	Status         OrderStatus     `json:"status"`
	SubtotalAmount decimal.Decimal `json:"subtotal_amount"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	DeliveryFee    decimal.Decimal `json:"delivery_fee"`
	TaxAmount      decimal.Decimal `json:"tax_amount"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	CancelReason   string          `json:"cancel_reason,omitempty"`
	Items          []OrderItem     `json:"items"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	DeletedAt      *time.Time      `json:"deleted_at,omitempty"`
}

type OrderItem struct {
	ID        int64           `json:"id"`
	OrderID   int64           `json:"order_id"`
	ProductID int64           `json:"product_id"`
	VariantID *int64          `json:"variant_id,omitempty"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// LineTotal is quantity times unit price.
func (i OrderItem) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type CreateOrderRequest struct {
	CustomerID     int64                    `json:"customer_id"`
	Items          []CreateOrderItemRequest `json:"items" binding:"required"`
	SubtotalAmount *decimal.Decimal         `json:"subtotal_amount"`
	DiscountAmount decimal.Decimal          `json:"discount_amount"`
	DeliveryFee    decimal.Decimal          `json:"delivery_fee"`
	TaxAmount      decimal.Decimal          `json:"tax_amount"`
}

type CreateOrderItemRequest struct {
	ProductID int64           `json:"product_id" binding:"required"`
	VariantID *int64          `json:"variant_id"`
	Quantity  int             `json:"quantity" binding:"required"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}
