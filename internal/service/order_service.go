package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prudhivi99/Distributed-Systems/orderflow/internal/events"
	"github.com/prudhivi99/Distributed-Systems/orderflow/internal/models"
	"github.com/shopspring/decimal"
)

// OrderService is the only writer of order status.
type OrderService struct {
	emitter
	repo OrderRepository
}

func NewOrderService(repo OrderRepository, publisher Publisher, source string) *OrderService {
	return &OrderService{repo: repo, emitter: emitter{publisher: publisher, source: source}}
}

// CreateOrder validates and persists a pending order with its items, then
// publishes order.created. If publishing fails the saved order is returned
// together with a *PublishError.
func (s *OrderService) CreateOrder(ctx context.Context, req models.CreateOrderRequest) (*models.Order, error) {
	order, err := buildOrder(req)
	if err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, order); err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}
	slog.Info("📦 Order created", "order_id", order.ID, "items", len(order.Items), "total", order.TotalAmount.String())

	if err := s.publish(ctx, order.ID, orderCreatedPayload(order)); err != nil {
		return order, err
	}
	return order, nil
}

func (s *OrderService) GetOrder(ctx context.Context, id int64) (*models.Order, error) {
	return s.repo.GetByID(ctx, id)
}

// UpdateOrderStatus applies one transition from the order table.
func (s *OrderService) UpdateOrderStatus(ctx context.Context, id int64, newStatus models.OrderStatus) (*models.Order, error) {
	if !newStatus.Valid() {
		return nil, validationf("unknown order status %q", newStatus)
	}

	order, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !order.Status.CanTransitionTo(newStatus) {
		return nil, fmt.Errorf("%w: order %d %s -> %s", ErrInvalidTransition, id, order.Status, newStatus)
	}

	return s.transition(ctx, order, newStatus, "")
}

// CancelOrder is a no-op for an order that is already cancelled.
func (s *OrderService) CancelOrder(ctx context.Context, id int64, reason string) (*models.Order, error) {
	order, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if order.Status == models.OrderCancelled {
		return order, nil
	}
	if !order.Status.CanTransitionTo(models.OrderCancelled) {
		return nil, fmt.Errorf("%w: order %d is %s", ErrInvalidTransition, id, order.Status)
	}

	return s.transition(ctx, order, models.OrderCancelled, reason)
}

// AdvanceOrder moves the order forward along the happy path until it
// reaches target, one validated step at a time. Only courier stages may be
// passed through on the way, so a late or out-of-order delivery event can
// catch up but warehouse steps are never skipped. Orders already at or
// past target, and cancelled orders, are returned unchanged.
func (s *OrderService) AdvanceOrder(ctx context.Context, id int64, target models.OrderStatus) (*models.Order, error) {
	if target.Rank() < 0 {
		return nil, validationf("cannot advance to %q", target)
	}

	order, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	path := order.Status.PathTo(target)
	for _, step := range path[:max(len(path)-1, 0)] {
		if !step.CourierStage() {
			return nil, fmt.Errorf("%w: order %d cannot move from %s to %s without passing %s", ErrInvalidTransition, id, order.Status, target, step)
		}
	}

	for _, step := range path {
		order, err = s.transition(ctx, order, step, "")
		if err != nil {
			return order, err
		}
	}
	return order, nil
}

func (s *OrderService) transition(ctx context.Context, order *models.Order, next models.OrderStatus, reason string) (*models.Order, error) {
	prev := order.Status
	updated, err := s.repo.UpdateStatus(ctx, order.ID, prev, next, reason)
	if err != nil {
		return nil, err
	}
	slog.Info("🔄 Order status changed", "order_id", order.ID, "from", prev, "to", next)

	if err := s.publish(ctx, order.ID, events.OrderStatusChanged{
		OrderID:        order.ID,
		PreviousStatus: string(prev),
		NewStatus:      string(next),
	}); err != nil {
		return updated, err
	}

	if next == models.OrderCancelled {
		if err := s.publish(ctx, order.ID, events.OrderCancelled{
			OrderID:        order.ID,
			PreviousStatus: string(prev),
			Reason:         reason,
		}); err != nil {
			return updated, err
		}
	}
	return updated, nil
}

func buildOrder(req models.CreateOrderRequest) (*models.Order, error) {
	if len(req.Items) == 0 {
		return nil, validationf("order must have at least one item")
	}
	for _, amount := range []decimal.Decimal{req.DiscountAmount, req.DeliveryFee, req.TaxAmount} {
		if amount.IsNegative() {
			return nil, validationf("discount, delivery fee and tax must not be negative")
		}
	}

	order := &models.Order{
		CustomerID:     req.CustomerID,
		Status:         models.OrderPending,
		DiscountAmount: req.DiscountAmount,
		DeliveryFee:    req.DeliveryFee,
		TaxAmount:      req.TaxAmount,
	}

	subtotal := decimal.Zero
	for i, item := range req.Items {
		if item.Quantity <= 0 {
			return nil, validationf("item %d: quantity must be positive", i)
		}
		if item.UnitPrice.IsNegative() {
			return nil, validationf("item %d: unit price must not be negative", i)
		}
		line := models.OrderItem{
			ProductID: item.ProductID,
			VariantID: item.VariantID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		}
		subtotal = subtotal.Add(line.LineTotal())
		order.Items = append(order.Items, line)
	}

	order.SubtotalAmount = subtotal
	if req.SubtotalAmount != nil {
		if req.SubtotalAmount.IsNegative() {
			return nil, validationf("subtotal must not be negative")
		}
		order.SubtotalAmount = *req.SubtotalAmount
	}

	order.TotalAmount = order.SubtotalAmount.
		Sub(order.DiscountAmount).
		Add(order.DeliveryFee).
		Add(order.TaxAmount)
	if !order.TotalAmount.IsPositive() {
		return nil, validationf("total amount must be positive, got %s", order.TotalAmount)
	}

	return order, nil
}

func orderCreatedPayload(order *models.Order) events.OrderCreated {
	payload := events.OrderCreated{
		OrderID:        order.ID,
		CustomerID:     order.CustomerID,
		SubtotalAmount: order.SubtotalAmount,
		DiscountAmount: order.DiscountAmount,
		DeliveryFee:    order.DeliveryFee,
		TaxAmount:      order.TaxAmount,
		TotalAmount:    order.TotalAmount,
	}
	for _, item := range order.Items {
		payload.Items = append(payload.Items, events.LineItem{
			ProductID: item.ProductID,
			VariantID: item.VariantID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}
	return payload
}
