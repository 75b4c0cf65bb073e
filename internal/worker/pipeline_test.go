package worker

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prudhivi99/Distributed-Systems/orderflow/internal/consumer"
	"github.com/prudhivi99/Distributed-Systems/orderflow/internal/dedup"
	"github.com/prudhivi99/Distributed-Systems/orderflow/internal/memstore"
	"github.com/prudhivi99/Distributed-Systems/orderflow/internal/messaging"
	"github.com/prudhivi99/Distributed-Systems/orderflow/internal/metrics"
	"github.com/prudhivi99/Distributed-Systems/orderflow/internal/models"
	"github.com/prudhivi99/Distributed-Systems/orderflow/internal/publisher"
	"github.com/prudhivi99/Distributed-Systems/orderflow/internal/service"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestPipeline runs an order through the in-memory broker: the API side
// publishes, the worker consumes, and the worker's own events feed back in.
func TestPipeline(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	broker := messaging.NewMemory()
	pub := publisher.NewEventPublisher(broker, publisher.DefaultStream)

	orderRepo := memstore.NewOrderRepository()
	orders := service.NewOrderService(orderRepo, pub, "order-service")
	inventory := service.NewInventoryService(memstore.NewReservationRepository(), pub, "worker", time.Hour)
	deliveries := service.NewDeliveryService(memstore.NewDeliveryRepository(), orderRepo, pub, "worker")

	m := metrics.NewWorkerMetrics(prometheus.NewRegistry())
	router := NewRouter(NewHandlers(orders, inventory, deliveries, &fixedPicker{}).Table(),
		WithRetryPolicy(fastPolicy), WithMetrics(m))

	c, err := consumer.NewEventConsumer(broker, dedup.NewMemoryStore(time.Hour), consumer.Config{
		Stream:   publisher.DefaultStream,
		Group:    "fulfillment",
		Consumer: "worker-1",
		Block:    20 * time.Millisecond,
	}, m)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- c.Consume(ctx, router) }()

	order, err := orders.CreateOrder(ctx, models.CreateOrderRequest{
		CustomerID: 9,
		Items:      []models.CreateOrderItemRequest{{ProductID: 1, Quantity: 3, UnitPrice: decimal.NewFromInt(4)}},
	})
	require.NoError(t, err)

	statusOf := func() models.OrderStatus {
		o, err := orders.GetOrder(ctx, order.ID)
		if err != nil {
			return ""
		}
		return o.Status
	}

	assert.Eventually(t, func() bool { return statusOf() == models.OrderConfirmed }, 2*time.Second, 10*time.Millisecond)

	for _, step := range []models.OrderStatus{models.OrderPicking, models.OrderReady} {
		_, err = orders.UpdateOrderStatus(ctx, order.ID, step)
		require.NoError(t, err)
	}

	// ready -> courier picked -> delivery.assigned -> order assigned
	assert.Eventually(t, func() bool { return statusOf() == models.OrderAssigned }, 2*time.Second, 10*time.Millisecond)

	a, err := deliveries.ActiveAssignmentForOrder(ctx, order.ID)
	require.NoError(t, err)
	_, err = deliveries.MarkCompleted(ctx, a.ID)
	require.ErrorIs(t, err, models.ErrInvalidTransition)
	_, err = deliveries.MarkPickedUp(ctx, a.ID)
	require.NoError(t, err)
	_, err = deliveries.MarkCompleted(ctx, a.ID)
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return statusOf() == models.OrderDelivered }, 2*time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool { return broker.Pending(publisher.DefaultStream, "fulfillment") == 0 }, 2*time.Second, 10*time.Millisecond)
	assert.Empty(t, broker.Entries(messaging.DeadLetterStream(publisher.DefaultStream)))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not stop")
	}
}
