package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prudhivi99/Distributed-Systems/orderflow/internal/consumer"
	"github.com/prudhivi99/Distributed-Systems/orderflow/internal/events"
	"github.com/prudhivi99/Distributed-Systems/orderflow/internal/models"
	"github.com/prudhivi99/Distributed-Systems/orderflow/internal/service"
)

type OrderManager interface {
	GetOrder(ctx context.Context, id int64) (*models.Order, error)
	AdvanceOrder(ctx context.Context, id int64, target models.OrderStatus) (*models.Order, error)
}

type InventoryManager interface {
	ReserveInventory(ctx context.Context, in service.ReserveInput) (int64, error)
	ListOrderReservations(ctx context.Context, orderID int64) ([]models.InventoryReservation, error)
	ReleaseOrderReservations(ctx context.Context, orderID int64, reason string) (int, error)
	FulfillOrderReservations(ctx context.Context, orderID int64) (int, error)
}

type DeliveryManager interface {
	AssignDelivery(ctx context.Context, in service.AssignInput) (int64, error)
	ActiveAssignmentForOrder(ctx context.Context, orderID int64) (*models.DeliveryAssignment, error)
	Cancel(ctx context.Context, id int64, reason string) (*models.DeliveryAssignment, error)
}

// CourierPicker chooses a courier for an order that became ready. ok is
// false when no courier is available yet.
type CourierPicker interface {
	Pick(ctx context.Context, orderID int64) (in service.AssignInput, ok bool, err error)
}

// Handlers reacts to domain events by calling the domain services. Every
// handler re-reads persisted state first, so replays and out-of-order
// deliveries are harmless.
type Handlers struct {
	orders     OrderManager
	inventory  InventoryManager
	deliveries DeliveryManager
	picker     CourierPicker
}

func NewHandlers(orders OrderManager, inventory InventoryManager, deliveries DeliveryManager, picker CourierPicker) *Handlers {
	return &Handlers{orders: orders, inventory: inventory, deliveries: deliveries, picker: picker}
}

// Table returns the dispatch table for every known event type.
func (h *Handlers) Table() map[events.Type]HandlerFunc {
	return map[events.Type]HandlerFunc{
		events.TypeOrderCreated:          on(h.orderCreated),
		events.TypeOrderStatusChanged:    on(h.orderStatusChanged),
		events.TypeOrderCancelled:        on(h.orderCancelled),
		events.TypeInventoryReserved:     on(h.inventoryReserved),
		events.TypeInventoryReleased:     on(h.inventoryReleased),
		events.TypeDeliveryAssigned:      on(h.deliveryAssigned),
		events.TypeDeliveryPickedUp:      on(h.deliveryPickedUp),
		events.TypeDeliveryCompleted:     on(h.deliveryCompleted),
		events.TypeDeliveryStatusChanged: on(h.deliveryStatusChanged),
	}
}

func on[T events.Payload](fn func(context.Context, T) error) HandlerFunc {
	return func(ctx context.Context, evt events.Event) error {
		p, ok := evt.Payload.(T)
		if !ok {
			return consumer.Permanent(fmt.Errorf("%w: %s carries %T", events.ErrMalformed, evt.Type, evt.Payload))
		}
		return fn(ctx, p)
	}
}

func (h *Handlers) orderCreated(ctx context.Context, p events.OrderCreated) error {
	order, err := h.orders.GetOrder(ctx, p.OrderID)
	if err != nil {
		return err
	}
	if order.Status == models.OrderCancelled {
		slog.Info("⏭️ Order already cancelled, nothing to reserve", "order_id", p.OrderID)
		return nil
	}

	existing, err := h.inventory.ListOrderReservations(ctx, p.OrderID)
	if err != nil {
		return err
	}

	used := make([]bool, len(existing))
	for _, item := range p.Items {
		if claimHold(existing, used, item) {
			continue
		}
		_, err := h.inventory.ReserveInventory(ctx, service.ReserveInput{
			OrderID:   p.OrderID,
			ProductID: item.ProductID,
			VariantID: item.VariantID,
			Quantity:  item.Quantity,
		})
		if err != nil {
			return fmt.Errorf("failed to reserve product %d for order %d: %w", item.ProductID, p.OrderID, err)
		}
	}

	_, err = h.orders.AdvanceOrder(ctx, p.OrderID, models.OrderConfirmed)
	return err
}

// claimHold marks the first unused active reservation matching item.
func claimHold(existing []models.InventoryReservation, used []bool, item events.LineItem) bool {
	for i, res := range existing {
		if used[i] || !res.Active() || res.Quantity != item.Quantity || !res.Matches(item.ProductID, item.VariantID) {
			continue
		}
		used[i] = true
		return true
	}
	return false
}

func (h *Handlers) orderStatusChanged(ctx context.Context, p events.OrderStatusChanged) error {
	slog.Info("🔔 Order status changed", "order_id", p.OrderID, "from", p.PreviousStatus, "to", p.NewStatus)

	if models.OrderStatus(p.NewStatus) != models.OrderReady || h.picker == nil {
		return nil
	}

	order, err := h.orders.GetOrder(ctx, p.OrderID)
	if err != nil {
		return err
	}
	if order.Status != models.OrderReady {
		slog.Info("⏭️ Order no longer ready, skipping courier", "order_id", p.OrderID, "status", order.Status)
		return nil
	}

	_, err = h.deliveries.ActiveAssignmentForOrder(ctx, p.OrderID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return err
	}

	in, ok, err := h.picker.Pick(ctx, p.OrderID)
	if err != nil {
		return err
	}
	if !ok {
		slog.Warn("🛵 No courier available", "order_id", p.OrderID)
		return nil
	}
	in.OrderID = p.OrderID

	_, err = h.deliveries.AssignDelivery(ctx, in)
	if errors.Is(err, models.ErrAlreadyAssigned) {
		return nil
	}
	return err
}

func (h *Handlers) orderCancelled(ctx context.Context, p events.OrderCancelled) error {
	released, err := h.inventory.ReleaseOrderReservations(ctx, p.OrderID, service.ReleaseReasonCancelled)
	if err != nil {
		return err
	}
	slog.Info("🚫 Order cancelled", "order_id", p.OrderID, "released", released, "reason", p.Reason)

	a, err := h.deliveries.ActiveAssignmentForOrder(ctx, p.OrderID)
	if errors.Is(err, models.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	_, err = h.deliveries.Cancel(ctx, a.ID, service.ReleaseReasonCancelled)
	return err
}

// Reservation events need no follow-up today; they are logged so the
// stream stays observable from the worker.
func (h *Handlers) inventoryReserved(_ context.Context, p events.InventoryReserved) error {
	slog.Info("📥 Inventory reserved", "reservation_id", p.ReservationID, "order_id", p.OrderID, "expires_at", p.ExpiresAt)
	return nil
}

func (h *Handlers) inventoryReleased(_ context.Context, p events.InventoryReleased) error {
	slog.Info("📥 Inventory released", "reservation_id", p.ReservationID, "order_id", p.OrderID, "reason", p.Reason)
	return nil
}

func (h *Handlers) deliveryAssigned(ctx context.Context, p events.DeliveryAssigned) error {
	_, err := h.advance(ctx, p.OrderID, models.OrderAssigned)
	return err
}

func (h *Handlers) deliveryPickedUp(ctx context.Context, p events.DeliveryPickedUp) error {
	_, err := h.advance(ctx, p.OrderID, models.OrderPickedUp)
	return err
}

// deliveryCompleted fulfils holds only for delivered orders. A cancelled
// order keeps its holds for the order.cancelled handler to release.
func (h *Handlers) deliveryCompleted(ctx context.Context, p events.DeliveryCompleted) error {
	order, err := h.advance(ctx, p.OrderID, models.OrderDelivered)
	if err != nil {
		return err
	}
	if order.Status != models.OrderDelivered {
		return nil
	}
	_, err = h.inventory.FulfillOrderReservations(ctx, p.OrderID)
	return err
}

func (h *Handlers) deliveryStatusChanged(ctx context.Context, p events.DeliveryStatusChanged) error {
	switch models.DeliveryStatus(p.NewStatus) {
	case models.DeliveryInTransit:
		_, err := h.advance(ctx, p.OrderID, models.OrderInTransit)
		return err
	case models.DeliveryRejected, models.DeliveryCancelled:
		slog.Warn("🛵 Delivery ended without completion", "assignment_id", p.AssignmentID, "order_id", p.OrderID, "status", p.NewStatus, "reason", p.Reason)
	default:
		slog.Info("🛵 Delivery status changed", "assignment_id", p.AssignmentID, "order_id", p.OrderID, "status", p.NewStatus)
	}
	return nil
}

func (h *Handlers) advance(ctx context.Context, orderID int64, target models.OrderStatus) (*models.Order, error) {
	order, err := h.orders.AdvanceOrder(ctx, orderID, target)
	if err != nil {
		return nil, err
	}
	if order.Status == models.OrderCancelled {
		slog.Warn("⏭️ Event for cancelled order ignored", "order_id", orderID, "target", target)
	}
	return order, nil
}
