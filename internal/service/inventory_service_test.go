package service

import (
	"context"
	"testing"
	"time"

	"github.com/prudhivi99/Distributed-Systems/orderflow/internal/events"
	"github.com/prudhivi99/Distributed-Systems/orderflow/internal/memstore"
	"github.com/prudhivi99/Distributed-Systems/orderflow/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newInventoryService(t *testing.T) (*InventoryService, *memstore.ReservationRepository, *recordingPublisher) {
	t.Helper()
	repo := memstore.NewReservationRepository()
	pub := &recordingPublisher{}
	return NewInventoryService(repo, pub, "fulfillment-worker", 0), repo, pub
}

func TestReserveInventory(t *testing.T) {
	svc, repo, pub := newInventoryService(t)
	now := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	id, err := svc.ReserveInventory(context.Background(), ReserveInput{OrderID: 5, ProductID: 8, Quantity: 3})
	require.NoError(t, err)

	res, err := repo.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, models.ReservationReserved, res.Status)
	assert.Equal(t, now.Add(DefaultReservationTTL), res.ExpiresAt)

	require.Len(t, pub.events, 1)
	payload := payloadOf[events.InventoryReserved](t, pub.events[0])
	assert.Equal(t, id, payload.ReservationID)
	assert.Equal(t, 3, payload.Quantity)
}

func TestReserveSameProductTwiceCreatesTwoRows(t *testing.T) {
	svc, _, pub := newInventoryService(t)
	in := ReserveInput{OrderID: 5, ProductID: 8, Quantity: 1}

	first, err := svc.ReserveInventory(context.Background(), in)
	require.NoError(t, err)
	second, err := svc.ReserveInventory(context.Background(), in)
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	list, err := svc.ListOrderReservations(context.Background(), 5)
	require.NoError(t, err)
	assert.Len(t, list, 2)
	assert.Len(t, pub.events, 2)
}

func TestReserveInventoryValidation(t *testing.T) {
	svc, _, pub := newInventoryService(t)

	_, err := svc.ReserveInventory(context.Background(), ReserveInput{OrderID: 5, ProductID: 8, Quantity: 0})
	assert.ErrorIs(t, err, ErrValidation)
	_, err = svc.ReserveInventory(context.Background(), ReserveInput{ProductID: 8, Quantity: 1})
	assert.ErrorIs(t, err, ErrValidation)
	assert.Empty(t, pub.events)
}

func TestDoubleReleaseChangesOnce(t *testing.T) {
	svc, repo, pub := newInventoryService(t)
	id, err := svc.ReserveInventory(context.Background(), ReserveInput{OrderID: 5, ProductID: 8, Quantity: 1})
	require.NoError(t, err)
	pub.reset()

	released, err := svc.ReleaseReservation(context.Background(), id, "customer changed mind")
	require.NoError(t, err)
	assert.True(t, released)

	released, err = svc.ReleaseReservation(context.Background(), id, "again")
	require.NoError(t, err)
	assert.False(t, released)

	res, err := repo.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, models.ReservationReleased, res.Status)
	assert.Equal(t, "customer changed mind", res.ReleaseReason)
	assert.Equal(t, []events.Type{events.TypeInventoryReleased}, pub.types())
}

func TestReleaseUnknownReservation(t *testing.T) {
	svc, _, _ := newInventoryService(t)
	_, err := svc.ReleaseReservation(context.Background(), 42, "x")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReleaseAndFulfillOrderReservations(t *testing.T) {
	svc, _, pub := newInventoryService(t)
	ctx := context.Background()
	for _, product := range []int64{1, 2, 3} {
		_, err := svc.ReserveInventory(ctx, ReserveInput{OrderID: 9, ProductID: product, Quantity: 1})
		require.NoError(t, err)
	}
	_, err := svc.ReserveInventory(ctx, ReserveInput{OrderID: 10, ProductID: 1, Quantity: 1})
	require.NoError(t, err)

	list, err := svc.ListOrderReservations(ctx, 9)
	require.NoError(t, err)
	_, err = svc.ReleaseReservation(ctx, list[0].ID, "manual")
	require.NoError(t, err)

	fulfilled, err := svc.FulfillOrderReservations(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, 2, fulfilled)

	pub.reset()
	released, err := svc.ReleaseOrderReservations(ctx, 9, ReleaseReasonCancelled)
	require.NoError(t, err)
	assert.Zero(t, released, "fulfilled and released holds stay put")
	assert.Empty(t, pub.events)

	released, err = svc.ReleaseOrderReservations(ctx, 10, ReleaseReasonCancelled)
	require.NoError(t, err)
	assert.Equal(t, 1, released)
}

func TestReleaseExpiredOnlyTouchesExpired(t *testing.T) {
	svc, repo, pub := newInventoryService(t)
	ctx := context.Background()
	start := time.Now()
	svc.now = func() time.Time { return start }

	old, err := svc.ReserveInventory(ctx, ReserveInput{OrderID: 1, ProductID: 1, Quantity: 1})
	require.NoError(t, err)

	svc.now = func() time.Time { return start.Add(10 * time.Minute) }
	fresh, err := svc.ReserveInventory(ctx, ReserveInput{OrderID: 2, ProductID: 1, Quantity: 1})
	require.NoError(t, err)
	pub.reset()

	svc.now = func() time.Time { return start.Add(20 * time.Minute) }
	released, err := svc.ReleaseExpired(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, 1, released)

	oldRes, err := repo.GetByID(ctx, old)
	require.NoError(t, err)
	assert.Equal(t, models.ReservationReleased, oldRes.Status)
	assert.Equal(t, ReleaseReasonExpired, oldRes.ReleaseReason)

	freshRes, err := repo.GetByID(ctx, fresh)
	require.NoError(t, err)
	assert.Equal(t, models.ReservationReserved, freshRes.Status)

	require.Len(t, pub.events, 1)
	assert.Equal(t, ReleaseReasonExpired, payloadOf[events.InventoryReleased](t, pub.events[0]).Reason)
}
