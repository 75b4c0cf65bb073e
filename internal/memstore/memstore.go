// Package memstore holds in-memory repositories with the same contracts as
// the Postgres ones. They back DB_DRIVER=memory and the service tests.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/prudhivi99/Distributed-Systems/orderflow/internal/models"
)

type OrderRepository struct {
	mu     sync.Mutex
	nextID int64
	itemID int64
	orders map[int64]models.Order
}

func NewOrderRepository() *OrderRepository {
	return &OrderRepository{orders: make(map[int64]models.Order)}
}

func (r *OrderRepository) Create(_ context.Context, order *models.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	now := time.Now().UTC()
	order.ID = r.nextID
	order.CreatedAt = now
	order.UpdatedAt = now
	for i := range order.Items {
		r.itemID++
		order.Items[i].ID = r.itemID
		order.Items[i].OrderID = order.ID
	}
	r.orders[order.ID] = copyOrder(*order)
	return nil
}

func (r *OrderRepository) GetByID(_ context.Context, id int64) (*models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.orders[id]
	if !ok || o.DeletedAt != nil {
		return nil, fmt.Errorf("order %d: %w", id, models.ErrNotFound)
	}
	out := copyOrder(o)
	return &out, nil
}

func (r *OrderRepository) UpdateStatus(_ context.Context, id int64, from, to models.OrderStatus, reason string) (*models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.orders[id]
	if !ok || o.DeletedAt != nil {
		return nil, fmt.Errorf("order %d: %w", id, models.ErrNotFound)
	}
	if o.Status != from {
		return nil, fmt.Errorf("order %d is no longer %s: %w", id, from, models.ErrStatusConflict)
	}

	o.Status = to
	if reason != "" {
		o.CancelReason = reason
	}
	o.UpdatedAt = time.Now().UTC()
	r.orders[id] = o

	out := copyOrder(o)
	return &out, nil
}

func copyOrder(o models.Order) models.Order {
	o.Items = append([]models.OrderItem(nil), o.Items...)
	return o
}

type ReservationRepository struct {
	mu           sync.Mutex
	nextID       int64
	reservations map[int64]models.InventoryReservation
}

func NewReservationRepository() *ReservationRepository {
	return &ReservationRepository{reservations: make(map[int64]models.InventoryReservation)}
}

func (r *ReservationRepository) Create(_ context.Context, res *models.InventoryReservation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	now := time.Now().UTC()
	res.ID = r.nextID
	res.CreatedAt = now
	res.UpdatedAt = now
	r.reservations[res.ID] = *res
	return nil
}

func (r *ReservationRepository) GetByID(_ context.Context, id int64) (*models.InventoryReservation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	res, ok := r.reservations[id]
	if !ok || res.DeletedAt != nil {
		return nil, fmt.Errorf("reservation %d: %w", id, models.ErrNotFound)
	}
	return &res, nil
}

func (r *ReservationRepository) ListByOrder(_ context.Context, orderID int64) ([]models.InventoryReservation, error) {
	return r.filter(func(res models.InventoryReservation) bool {
		return res.OrderID == orderID
	}, func(a, b models.InventoryReservation) bool { return a.ID < b.ID }, 0), nil
}

func (r *ReservationRepository) ListExpired(_ context.Context, before time.Time, limit int) ([]models.InventoryReservation, error) {
	return r.filter(func(res models.InventoryReservation) bool {
		return res.Status == models.ReservationReserved && res.ExpiresAt.Before(before)
	}, func(a, b models.InventoryReservation) bool { return a.ExpiresAt.Before(b.ExpiresAt) }, limit), nil
}

func (r *ReservationRepository) UpdateStatus(_ context.Context, id int64, from, to models.ReservationStatus, reason string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	res, ok := r.reservations[id]
	if !ok || res.DeletedAt != nil {
		return false, fmt.Errorf("reservation %d: %w", id, models.ErrNotFound)
	}
	if res.Status != from {
		return false, nil
	}

	res.Status = to
	if reason != "" {
		res.ReleaseReason = reason
	}
	res.UpdatedAt = time.Now().UTC()
	r.reservations[id] = res
	return true, nil
}

func (r *ReservationRepository) filter(keep func(models.InventoryReservation) bool, less func(a, b models.InventoryReservation) bool, limit int) []models.InventoryReservation {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []models.InventoryReservation
	for _, res := range r.reservations {
		if res.DeletedAt == nil && keep(res) {
			out = append(out, res)
		}
	}
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

type DeliveryRepository struct {
	mu          sync.Mutex
	nextID      int64
	assignments map[int64]models.DeliveryAssignment
}

func NewDeliveryRepository() *DeliveryRepository {
	return &DeliveryRepository{assignments: make(map[int64]models.DeliveryAssignment)}
}

func (r *DeliveryRepository) Create(_ context.Context, a *models.DeliveryAssignment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.assignments {
		if existing.OrderID == a.OrderID && existing.Status.Active() && existing.DeletedAt == nil {
			return fmt.Errorf("order %d: %w", a.OrderID, models.ErrAlreadyAssigned)
		}
	}

	r.nextID++
	now := time.Now().UTC()
	a.ID = r.nextID
	a.CreatedAt = now
	a.UpdatedAt = now
	r.assignments[a.ID] = *a
	return nil
}

func (r *DeliveryRepository) GetByID(_ context.Context, id int64) (*models.DeliveryAssignment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.assignments[id]
	if !ok || a.DeletedAt != nil {
		return nil, fmt.Errorf("delivery assignment %d: %w", id, models.ErrNotFound)
	}
	return &a, nil
}

func (r *DeliveryRepository) ActiveForOrder(_ context.Context, orderID int64) (*models.DeliveryAssignment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var found *models.DeliveryAssignment
	for _, a := range r.assignments {
		if a.OrderID == orderID && a.Status.Active() && a.DeletedAt == nil {
			if found == nil || a.ID > found.ID {
				a := a
				found = &a
			}
		}
	}
	if found == nil {
		return nil, fmt.Errorf("active delivery for order %d: %w", orderID, models.ErrNotFound)
	}
	return found, nil
}

func (r *DeliveryRepository) Update(_ context.Context, a *models.DeliveryAssignment, from models.DeliveryStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.assignments[a.ID]
	if !ok || current.DeletedAt != nil {
		return fmt.Errorf("delivery assignment %d: %w", a.ID, models.ErrNotFound)
	}
	if current.Status != from {
		return fmt.Errorf("delivery assignment %d is no longer %s: %w", a.ID, from, models.ErrStatusConflict)
	}

	a.UpdatedAt = time.Now().UTC()
	r.assignments[a.ID] = *a
	return nil
}
