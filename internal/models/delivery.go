package models

import "time"

type DeliveryStatus string

const (
	DeliveryAssigned  DeliveryStatus = "assigned"
	DeliveryAccepted  DeliveryStatus = "accepted"
	DeliveryRejected  DeliveryStatus = "rejected"
	DeliveryPickedUp  DeliveryStatus = "picked_up"
	DeliveryInTransit DeliveryStatus = "in_transit"
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryCancelled DeliveryStatus = "cancelled"
)

// deliveryTransitions mirrors the order table for courier assignments.
// A courier may pick up without an explicit accept.
var deliveryTransitions = map[DeliveryStatus][]DeliveryStatus{
	DeliveryAssigned:  {DeliveryAccepted, DeliveryRejected, DeliveryPickedUp, DeliveryCancelled},
	DeliveryAccepted:  {DeliveryPickedUp, DeliveryCancelled},
	DeliveryPickedUp:  {DeliveryInTransit, DeliveryDelivered, DeliveryCancelled},
	DeliveryInTransit: {DeliveryDelivered, DeliveryCancelled},
	DeliveryRejected:  {},
	DeliveryDelivered: {},
	DeliveryCancelled: {},
}

func (s DeliveryStatus) Valid() bool {
	_, ok := deliveryTransitions[s]
	return ok
}

func (s DeliveryStatus) CanTransitionTo(next DeliveryStatus) bool {
	for _, allowed := range deliveryTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s DeliveryStatus) IsTerminal() bool {
	allowed, ok := deliveryTransitions[s]
	return ok && len(allowed) == 0
}

type DeliveryAssignment struct {
	ID          int64          `json:"id"`
	OrderID     int64          `json:"order_id"`
	CourierID   int64          `json:"courier_id"`
	Status      DeliveryStatus `json:"status"`
	PickupETA   time.Time      `json:"pickup_eta"`
	DeliveryETA time.Time      `json:"delivery_eta"`
	Reason      string         `json:"reason,omitempty"`
	AssignedAt  time.Time      `json:"assigned_at"`
	AcceptedAt  *time.Time     `json:"accepted_at,omitempty"`
	RejectedAt  *time.Time     `json:"rejected_at,omitempty"`
	PickedUpAt  *time.Time     `json:"picked_up_at,omitempty"`
	InTransitAt *time.Time     `json:"in_transit_at,omitempty"`
	DeliveredAt *time.Time     `json:"delivered_at,omitempty"`
	CancelledAt *time.Time     `json:"cancelled_at,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   *time.Time     `json:"deleted_at,omitempty"`
}

// Stamp records the transition time for status on a.
func (a *DeliveryAssignment) Stamp(status DeliveryStatus, at time.Time) {
	t := at
	switch status {
	case DeliveryAssigned:
		a.AssignedAt = at
	case DeliveryAccepted:
		a.AcceptedAt = &t
	case DeliveryRejected:
		a.RejectedAt = &t
	case DeliveryPickedUp:
		a.PickedUpAt = &t
	case DeliveryInTransit:
		a.InTransitAt = &t
	case DeliveryDelivered:
		a.DeliveredAt = &t
	case DeliveryCancelled:
		a.CancelledAt = &t
	}
	a.Status = status
	a.UpdatedAt = at
}

// ActiveDeliveryStatuses are the statuses of an assignment still in progress.
func ActiveDeliveryStatuses() []DeliveryStatus {
	return []DeliveryStatus{DeliveryAssigned, DeliveryAccepted, DeliveryPickedUp, DeliveryInTransit}
}

func (s DeliveryStatus) Active() bool {
	return s.Valid() && !s.IsTerminal()
}
