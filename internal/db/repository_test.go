package db

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/prudhivi99/Distributed-Systems/orderflow/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *PostgresDB {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	driver := os.Getenv("TEST_DATABASE_DRIVER")

	database, err := NewPostgresDB(context.Background(), driver, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	return database
}

func newOrder() *models.Order {
	variant := int64(4)
	return &models.Order{
		CustomerID:     77,
		Status:         models.OrderPending,
		SubtotalAmount: decimal.NewFromInt(20),
		TotalAmount:    decimal.NewFromInt(20),
		Items: []models.OrderItem{
			{ProductID: 1, Quantity: 2, UnitPrice: decimal.NewFromInt(5)},
			{ProductID: 2, VariantID: &variant, Quantity: 1, UnitPrice: decimal.NewFromInt(10)},
		},
	}
}

func TestOrderRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewOrderRepository(openTestDB(t))

	order := newOrder()
	require.NoError(t, repo.Create(ctx, order))
	require.NotZero(t, order.ID)

	got, err := repo.GetByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderPending, got.Status)
	assert.True(t, got.TotalAmount.Equal(decimal.NewFromInt(20)))
	require.Len(t, got.Items, 2)
	require.NotNil(t, got.Items[1].VariantID)
	assert.EqualValues(t, 4, *got.Items[1].VariantID)

	updated, err := repo.UpdateStatus(ctx, order.ID, models.OrderPending, models.OrderConfirmed, "")
	require.NoError(t, err)
	assert.Equal(t, models.OrderConfirmed, updated.Status)

	_, err = repo.UpdateStatus(ctx, order.ID, models.OrderPending, models.OrderConfirmed, "")
	assert.ErrorIs(t, err, models.ErrStatusConflict)

	_, err = repo.UpdateStatus(ctx, -1, models.OrderPending, models.OrderConfirmed, "")
	assert.ErrorIs(t, err, models.ErrNotFound)

	cancelled, err := repo.UpdateStatus(ctx, order.ID, models.OrderConfirmed, models.OrderCancelled, "out of stock")
	require.NoError(t, err)
	assert.Equal(t, "out of stock", cancelled.CancelReason)
}

func TestReservationRepository(t *testing.T) {
	ctx := context.Background()
	database := openTestDB(t)
	orders := NewOrderRepository(database)
	repo := NewReservationRepository(database)

	order := newOrder()
	require.NoError(t, orders.Create(ctx, order))

	expired := &models.InventoryReservation{OrderID: order.ID, ProductID: 1, Quantity: 2, Status: models.ReservationReserved, ExpiresAt: time.Now().Add(-time.Minute)}
	live := &models.InventoryReservation{OrderID: order.ID, ProductID: 1, Quantity: 2, Status: models.ReservationReserved, ExpiresAt: time.Now().Add(time.Hour)}
	require.NoError(t, repo.Create(ctx, expired))
	require.NoError(t, repo.Create(ctx, live))
	assert.NotEqual(t, expired.ID, live.ID)

	list, err := repo.ListByOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	due, err := repo.ListExpired(ctx, time.Now(), 100)
	require.NoError(t, err)
	var ids []int64
	for _, r := range due {
		ids = append(ids, r.ID)
	}
	assert.Contains(t, ids, expired.ID)
	assert.NotContains(t, ids, live.ID)

	changed, err := repo.UpdateStatus(ctx, live.ID, models.ReservationReserved, models.ReservationReleased, "cancelled")
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = repo.UpdateStatus(ctx, live.ID, models.ReservationReserved, models.ReservationReleased, "cancelled")
	require.NoError(t, err)
	assert.False(t, changed)

	got, err := repo.GetByID(ctx, live.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReservationReleased, got.Status)
	assert.Equal(t, "cancelled", got.ReleaseReason)

	_, err = repo.UpdateStatus(ctx, -1, models.ReservationReserved, models.ReservationReleased, "")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestDeliveryRepository(t *testing.T) {
	ctx := context.Background()
	database := openTestDB(t)
	orders := NewOrderRepository(database)
	repo := NewDeliveryRepository(database)

	order := newOrder()
	require.NoError(t, orders.Create(ctx, order))

	now := time.Now().UTC().Truncate(time.Second)
	a := &models.DeliveryAssignment{OrderID: order.ID, CourierID: 3, Status: models.DeliveryAssigned, PickupETA: now, DeliveryETA: now.Add(time.Hour), AssignedAt: now}
	require.NoError(t, repo.Create(ctx, a))

	second := &models.DeliveryAssignment{OrderID: order.ID, CourierID: 4, Status: models.DeliveryAssigned, PickupETA: now, DeliveryETA: now, AssignedAt: now}
	assert.ErrorIs(t, repo.Create(ctx, second), models.ErrAlreadyAssigned)

	active, err := repo.ActiveForOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, a.ID, active.ID)

	active.Stamp(models.DeliveryPickedUp, now)
	require.NoError(t, repo.Update(ctx, active, models.DeliveryAssigned))

	stale := *active
	stale.Stamp(models.DeliveryDelivered, now)
	assert.ErrorIs(t, repo.Update(ctx, &stale, models.DeliveryAssigned), models.ErrStatusConflict)

	got, err := repo.GetByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DeliveryPickedUp, got.Status)
	require.NotNil(t, got.PickedUpAt)

	active.Stamp(models.DeliveryDelivered, now)
	require.NoError(t, repo.Update(ctx, active, models.DeliveryPickedUp))
	_, err = repo.ActiveForOrder(ctx, order.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, isUniqueViolation(&pq.Error{Code: "23505"}))
	assert.True(t, isUniqueViolation(&pgconn.PgError{Code: "23505"}))
	assert.False(t, isUniqueViolation(&pq.Error{Code: "23503"}))
	assert.False(t, isUniqueViolation(errors.New("boom")))
	assert.False(t, isUniqueViolation(nil))
}

func TestNewPostgresDBRejectsUnknownDriver(t *testing.T) {
	_, err := NewPostgresDB(context.Background(), "sqlite", "file::memory:")
	assert.Error(t, err)
}
