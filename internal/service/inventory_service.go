package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prudhivi99/Distributed-Systems/orderflow/internal/events"
	"github.com/prudhivi99/Distributed-Systems/orderflow/internal/models"
)

const (
	DefaultReservationTTL = 15 * time.Minute

	ReleaseReasonExpired   = "expired"
	ReleaseReasonCancelled = "order_cancelled"
)

type ReserveInput struct {
	OrderID   int64
	ProductID int64
	VariantID *int64
	Quantity  int
}

// InventoryService manages soft holds against stock. It does not check
// availability; a reservation only records intent until it expires.
type InventoryService struct {
	emitter
	repo ReservationRepository
	ttl  time.Duration
	now  func() time.Time
}

func NewInventoryService(repo ReservationRepository, publisher Publisher, source string, ttl time.Duration) *InventoryService {
	if ttl <= 0 {
		ttl = DefaultReservationTTL
	}
	return &InventoryService{repo: repo, emitter: emitter{publisher: publisher, source: source}, ttl: ttl, now: time.Now}
}

// ReserveInventory always creates a new reservation row.
func (s *InventoryService) ReserveInventory(ctx context.Context, in ReserveInput) (int64, error) {
	if in.OrderID <= 0 || in.ProductID <= 0 {
		return 0, validationf("order and product are required")
	}
	if in.Quantity <= 0 {
		return 0, validationf("quantity must be positive")
	}

	res := &models.InventoryReservation{
		OrderID:   in.OrderID,
		ProductID: in.ProductID,
		VariantID: in.VariantID,
		Quantity:  in.Quantity,
		Status:    models.ReservationReserved,
		ExpiresAt: s.now().Add(s.ttl).UTC(),
	}
	if err := s.repo.Create(ctx, res); err != nil {
		return 0, fmt.Errorf("failed to reserve inventory: %w", err)
	}
	slog.Info("🔒 Inventory reserved", "reservation_id", res.ID, "order_id", res.OrderID, "product_id", res.ProductID, "quantity", res.Quantity)

	err := s.publish(ctx, res.OrderID, events.InventoryReserved{
		ReservationID: res.ID,
		OrderID:       res.OrderID,
		ProductID:     res.ProductID,
		VariantID:     res.VariantID,
		Quantity:      res.Quantity,
		ExpiresAt:     res.ExpiresAt,
	})
	return res.ID, err
}

// ReleaseReservation reports whether this call moved the reservation to
// released. Releasing a reservation that is already released or fulfilled
// succeeds without effect.
func (s *InventoryService) ReleaseReservation(ctx context.Context, id int64, reason string) (bool, error) {
	res, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return false, err
	}
	if res.Status != models.ReservationReserved {
		return false, nil
	}

	changed, err := s.repo.UpdateStatus(ctx, id, models.ReservationReserved, models.ReservationReleased, reason)
	if err != nil || !changed {
		return false, err
	}
	slog.Info("🔓 Inventory released", "reservation_id", id, "order_id", res.OrderID, "reason", reason)

	err = s.publish(ctx, res.OrderID, events.InventoryReleased{
		ReservationID: res.ID,
		OrderID:       res.OrderID,
		ProductID:     res.ProductID,
		VariantID:     res.VariantID,
		Quantity:      res.Quantity,
		Reason:        reason,
	})
	return true, err
}

func (s *InventoryService) ListOrderReservations(ctx context.Context, orderID int64) ([]models.InventoryReservation, error) {
	return s.repo.ListByOrder(ctx, orderID)
}

// ReleaseOrderReservations releases every active reservation of the order
// and returns how many changed.
func (s *InventoryService) ReleaseOrderReservations(ctx context.Context, orderID int64, reason string) (int, error) {
	list, err := s.repo.ListByOrder(ctx, orderID)
	if err != nil {
		return 0, err
	}

	released := 0
	for _, res := range list {
		if !res.Active() {
			continue
		}
		changed, err := s.ReleaseReservation(ctx, res.ID, reason)
		if changed {
			released++
		}
		if err != nil {
			return released, err
		}
	}
	return released, nil
}

// FulfillOrderReservations converts the order's active holds into
// fulfilled ones once the goods have left.
func (s *InventoryService) FulfillOrderReservations(ctx context.Context, orderID int64) (int, error) {
	list, err := s.repo.ListByOrder(ctx, orderID)
	if err != nil {
		return 0, err
	}

	fulfilled := 0
	for _, res := range list {
		if !res.Active() {
			continue
		}
		changed, err := s.repo.UpdateStatus(ctx, res.ID, models.ReservationReserved, models.ReservationFulfilled, "")
		if err != nil {
			return fulfilled, fmt.Errorf("failed to fulfill reservation %d: %w", res.ID, err)
		}
		if changed {
			fulfilled++
		}
	}
	if fulfilled > 0 {
		slog.Info("✅ Reservations fulfilled", "order_id", orderID, "count", fulfilled)
	}
	return fulfilled, nil
}

// ReleaseExpired releases up to limit reservations whose hold has run out.
func (s *InventoryService) ReleaseExpired(ctx context.Context, limit int) (int, error) {
	due, err := s.repo.ListExpired(ctx, s.now(), limit)
	if err != nil {
		return 0, fmt.Errorf("failed to list expired reservations: %w", err)
	}

	released := 0
	for _, res := range due {
		changed, err := s.ReleaseReservation(ctx, res.ID, ReleaseReasonExpired)
		if changed {
			released++
		}
		if err != nil {
			return released, err
		}
	}
	return released, nil
}
