package service

import (
	"context"
	"time"

	"github.com/prudhivi99/Distributed-Systems/orderflow/internal/events"
	"github.com/prudhivi99/Distributed-Systems/orderflow/internal/models"
)

type Publisher interface {
	Publish(ctx context.Context, evt events.Event) error
}

// OrderRepository is satisfied by db.OrderRepository and
// memstore.OrderRepository. UpdateStatus is a compare-and-set on from.
type OrderRepository interface {
	Create(ctx context.Context, order *models.Order) error
	GetByID(ctx context.Context, id int64) (*models.Order, error)
	UpdateStatus(ctx context.Context, id int64, from, to models.OrderStatus, reason string) (*models.Order, error)
}

type ReservationRepository interface {
	Create(ctx context.Context, res *models.InventoryReservation) error
	GetByID(ctx context.Context, id int64) (*models.InventoryReservation, error)
	ListByOrder(ctx context.Context, orderID int64) ([]models.InventoryReservation, error)
	ListExpired(ctx context.Context, before time.Time, limit int) ([]models.InventoryReservation, error)
	UpdateStatus(ctx context.Context, id int64, from, to models.ReservationStatus, reason string) (bool, error)
}

// OrderReader is the read side of OrderRepository.
type OrderReader interface {
	GetByID(ctx context.Context, id int64) (*models.Order, error)
}

type DeliveryRepository interface {
	Create(ctx context.Context, a *models.DeliveryAssignment) error
	GetByID(ctx context.Context, id int64) (*models.DeliveryAssignment, error)
	ActiveForOrder(ctx context.Context, orderID int64) (*models.DeliveryAssignment, error)
	Update(ctx context.Context, a *models.DeliveryAssignment, from models.DeliveryStatus) error
}
