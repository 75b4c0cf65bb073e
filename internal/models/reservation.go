package models

import "time"

type ReservationStatus string

const (
	ReservationReserved  ReservationStatus = "reserved"
	ReservationReleased  ReservationStatus = "released"
	ReservationFulfilled ReservationStatus = "fulfilled"
)

// Terminal reservations are never mutated again.
func (s ReservationStatus) IsTerminal() bool {
	return s == ReservationReleased || s == ReservationFulfilled
}

// InventoryReservation is a soft, time-bounded hold against stock. It does
// not guarantee physical availability.
type InventoryReservation struct {
	ID            int64             `json:"id"`
	OrderID       int64             `json:"order_id"`
	ProductID     int64             `json:"product_id"`
	VariantID     *int64            `json:"variant_id,omitempty"`
	Quantity      int               `json:"quantity"`
	Status        ReservationStatus `json:"status"`
	ExpiresAt     time.Time         `json:"expires_at"`
	ReleaseReason string            `json:"release_reason,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
	DeletedAt     *time.Time        `json:"deleted_at,omitempty"`
}

// Active reports whether r still holds stock.
func (r InventoryReservation) Active() bool {
	return r.Status == ReservationReserved && r.DeletedAt == nil
}

// Matches reports whether r holds the given product/variant.
func (r InventoryReservation) Matches(productID int64, variantID *int64) bool {
	if r.ProductID != productID {
		return false
	}
	if r.VariantID == nil || variantID == nil {
		return r.VariantID == nil && variantID == nil
	}
	return *r.VariantID == *variantID
}
