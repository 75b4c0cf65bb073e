package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prudhivi99/Distributed-Systems/orderflow/internal/events"
	"github.com/prudhivi99/Distributed-Systems/orderflow/internal/models"
)

type AssignInput struct {
	OrderID     int64
	CourierID   int64
	PickupETA   time.Time
	DeliveryETA time.Time
}

// DeliveryService owns courier assignments. Couriers are only assigned to
// ready orders. Status changes follow the delivery transition table;
// repeating the current status is a no-op.
type DeliveryService struct {
	emitter
	repo   DeliveryRepository
	orders OrderReader
	now    func() time.Time
}

func NewDeliveryService(repo DeliveryRepository, orders OrderReader, publisher Publisher, source string) *DeliveryService {
	return &DeliveryService{repo: repo, orders: orders, emitter: emitter{publisher: publisher, source: source}, now: time.Now}
}

func (s *DeliveryService) AssignDelivery(ctx context.Context, in AssignInput) (int64, error) {
	if in.OrderID <= 0 || in.CourierID <= 0 {
		return 0, validationf("order and courier are required")
	}
	if in.DeliveryETA.Before(in.PickupETA) {
		return 0, validationf("delivery ETA is before pickup ETA")
	}

	order, err := s.orders.GetByID(ctx, in.OrderID)
	if err != nil {
		return 0, err
	}
	if order.Status != models.OrderReady {
		return 0, fmt.Errorf("%w: order %d is %s, not ready for a courier", ErrInvalidTransition, order.ID, order.Status)
	}

	now := s.now().UTC()
	a := &models.DeliveryAssignment{
		OrderID:     in.OrderID,
		CourierID:   in.CourierID,
		Status:      models.DeliveryAssigned,
		PickupETA:   in.PickupETA.UTC(),
		DeliveryETA: in.DeliveryETA.UTC(),
		AssignedAt:  now,
	}
	if err := s.repo.Create(ctx, a); err != nil {
		return 0, fmt.Errorf("failed to assign delivery: %w", err)
	}
	slog.Info("🛵 Courier assigned", "assignment_id", a.ID, "order_id", a.OrderID, "courier_id", a.CourierID)

	err = s.publish(ctx, a.OrderID, events.DeliveryAssigned{
		AssignmentID: a.ID,
		OrderID:      a.OrderID,
		CourierID:    a.CourierID,
		PickupETA:    a.PickupETA,
		DeliveryETA:  a.DeliveryETA,
	})
	return a.ID, err
}

func (s *DeliveryService) Accept(ctx context.Context, id int64) (*models.DeliveryAssignment, error) {
	return s.transition(ctx, id, models.DeliveryAccepted, "")
}

func (s *DeliveryService) Reject(ctx context.Context, id int64, reason string) (*models.DeliveryAssignment, error) {
	return s.transition(ctx, id, models.DeliveryRejected, reason)
}

func (s *DeliveryService) MarkPickedUp(ctx context.Context, id int64) (*models.DeliveryAssignment, error) {
	return s.transition(ctx, id, models.DeliveryPickedUp, "")
}

func (s *DeliveryService) MarkInTransit(ctx context.Context, id int64) (*models.DeliveryAssignment, error) {
	return s.transition(ctx, id, models.DeliveryInTransit, "")
}

func (s *DeliveryService) MarkCompleted(ctx context.Context, id int64) (*models.DeliveryAssignment, error) {
	return s.transition(ctx, id, models.DeliveryDelivered, "")
}

func (s *DeliveryService) Cancel(ctx context.Context, id int64, reason string) (*models.DeliveryAssignment, error) {
	return s.transition(ctx, id, models.DeliveryCancelled, reason)
}

func (s *DeliveryService) ActiveAssignmentForOrder(ctx context.Context, orderID int64) (*models.DeliveryAssignment, error) {
	return s.repo.ActiveForOrder(ctx, orderID)
}

func (s *DeliveryService) transition(ctx context.Context, id int64, next models.DeliveryStatus, reason string) (*models.DeliveryAssignment, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.Status == next {
		return a, nil
	}
	if !a.Status.CanTransitionTo(next) {
		return nil, fmt.Errorf("%w: delivery %d %s -> %s", ErrInvalidTransition, id, a.Status, next)
	}

	prev := a.Status
	at := s.now().UTC()
	a.Stamp(next, at)
	if reason != "" {
		a.Reason = reason
	}
	if err := s.repo.Update(ctx, a, prev); err != nil {
		return nil, err
	}
	slog.Info("🔄 Delivery status changed", "assignment_id", id, "order_id", a.OrderID, "from", prev, "to", next)

	var payload events.Payload
	switch next {
	case models.DeliveryPickedUp:
		payload = events.DeliveryPickedUp{AssignmentID: a.ID, OrderID: a.OrderID, CourierID: a.CourierID, PickedUpAt: at}
	case models.DeliveryDelivered:
		payload = events.DeliveryCompleted{AssignmentID: a.ID, OrderID: a.OrderID, CourierID: a.CourierID, DeliveredAt: at}
	default:
		payload = events.DeliveryStatusChanged{
			AssignmentID:   a.ID,
			OrderID:        a.OrderID,
			CourierID:      a.CourierID,
			PreviousStatus: string(prev),
			NewStatus:      string(next),
			Reason:         reason,
		}
	}
	return a, s.publish(ctx, a.OrderID, payload)
}
