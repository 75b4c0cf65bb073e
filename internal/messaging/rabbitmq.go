package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// RabbitMQ implements Transport with a fanout exchange per stream and a
// durable queue per consumer group bound to it. Publishes wait for broker
// confirms; Nack requeues.
type RabbitMQ struct {
	conn     *amqp.Connection
	pubCh    *amqp.Channel
	subCh    *amqp.Channel
	prefetch int

	pubMu     sync.Mutex
	mu        sync.Mutex
	exchanges map[string]bool
	consumers map[string]<-chan amqp.Delivery
}

func NewRabbitMQ(url string, prefetch int) (*RabbitMQ, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	pubCh, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	if err := pubCh.Confirm(false); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to enable publisher confirms: %w", err)
	}

	subCh, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	if prefetch > 0 {
		if err := subCh.Qos(prefetch, 0, false); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to set prefetch: %w", err)
		}
	}

	slog.Info("✅ Connected to RabbitMQ")

	return &RabbitMQ{
		conn:      conn,
		pubCh:     pubCh,
		subCh:     subCh,
		prefetch:  prefetch,
		exchanges: make(map[string]bool),
		consumers: make(map[string]<-chan amqp.Delivery),
	}, nil
}

// Append publishes a persistent message and waits for the broker confirm.
// The returned id is the publish sequence number.
func (r *RabbitMQ) Append(ctx context.Context, stream string, data []byte) (string, error) {
	if err := r.declareExchange(stream); err != nil {
		return "", err
	}

	r.pubMu.Lock()
	confirm, err := r.pubCh.PublishWithDeferredConfirmWithContext(ctx,
		stream, // exchange
		"",     // routing key (ignored by fanout)
		false,  // mandatory
		false,  // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
			Body:         data,
		},
	)
	r.pubMu.Unlock()
	if err != nil {
		return "", fmt.Errorf("failed to publish to %s: %w", stream, err)
	}

	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		return "", fmt.Errorf("failed waiting for confirm on %s: %w", stream, err)
	}
	if !acked {
		return "", fmt.Errorf("broker nacked publish to %s", stream)
	}
	return strconv.FormatUint(confirm.DeliveryTag, 10), nil
}

// EnsureGroup declares the stream exchange and the group's durable queue.
func (r *RabbitMQ) EnsureGroup(_ context.Context, stream, group string) error {
	if err := r.declareExchange(stream); err != nil {
		return err
	}

	queue := queueName(stream, group)
	_, err := r.subCh.QueueDeclare(
		queue, // queue name
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}
	if err := r.subCh.QueueBind(queue, "", stream, false, nil); err != nil {
		return fmt.Errorf("failed to bind queue %s: %w", queue, err)
	}

	slog.Info("✅ Queue declared", "queue", queue, "exchange", stream)
	return nil
}

func (r *RabbitMQ) ReadGroup(ctx context.Context, stream, group, consumer string, count int, block time.Duration) ([]Entry, error) {
	deliveries, err := r.consume(stream, group, consumer)
	if err != nil {
		return nil, err
	}

	var timeout <-chan time.Time
	if block > 0 {
		timer := time.NewTimer(block)
		defer timer.Stop()
		timeout = timer.C
	} else {
		expired := make(chan time.Time)
		close(expired)
		timeout = expired
	}

	var entries []Entry
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timeout:
		return nil, nil
	case d, ok := <-deliveries:
		if !ok {
			r.dropConsumer(stream, group)
			return nil, errors.New("rabbitmq delivery channel closed")
		}
		entries = append(entries, deliveryEntry(d))
	}

	for len(entries) < count {
		select {
		case d, ok := <-deliveries:
			if !ok {
				return entries, nil
			}
			entries = append(entries, deliveryEntry(d))
		default:
			return entries, nil
		}
	}
	return entries, nil
}

func (r *RabbitMQ) Ack(_ context.Context, _, _, id string) error {
	tag, err := strconv.ParseUint(id, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid delivery tag %q: %w", id, err)
	}
	if err := r.subCh.Ack(tag, false); err != nil {
		return fmt.Errorf("failed to ack delivery %d: %w", tag, err)
	}
	return nil
}

// Nack requeues the delivery on the group's queue.
func (r *RabbitMQ) Nack(_ context.Context, _, _, id string) error {
	tag, err := strconv.ParseUint(id, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid delivery tag %q: %w", id, err)
	}
	if err := r.subCh.Nack(tag, false, true); err != nil {
		return fmt.Errorf("failed to nack delivery %d: %w", tag, err)
	}
	return nil
}

func (r *RabbitMQ) Close() error {
	var errs []error
	if r.subCh != nil {
		errs = append(errs, r.subCh.Close())
	}
	if r.pubCh != nil {
		errs = append(errs, r.pubCh.Close())
	}
	if r.conn != nil {
		errs = append(errs, r.conn.Close())
	}
	return errors.Join(errs...)
}

func (r *RabbitMQ) declareExchange(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.exchanges[name] {
		return nil
	}

	err := r.pubCh.ExchangeDeclare(
		name,     // name
		"fanout", // kind
		true,     // durable
		false,    // auto-delete
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare exchange %s: %w", name, err)
	}
	r.exchanges[name] = true
	return nil
}

func (r *RabbitMQ) consume(stream, group, consumer string) (<-chan amqp.Delivery, error) {
	queue := queueName(stream, group)

	r.mu.Lock()
	defer r.mu.Unlock()
	if d, ok := r.consumers[queue]; ok {
		return d, nil
	}

	deliveries, err := r.subCh.Consume(
		queue,    // queue name
		consumer, // consumer tag
		false,    // auto-ack (false = manual ack)
		false,    // exclusive
		false,    // no-local
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		return nil, fmt.Errorf("failed to consume messages: %w", err)
	}

	slog.Info("👂 Listening on queue", "queue", queue)
	r.consumers[queue] = deliveries
	return deliveries, nil
}

func (r *RabbitMQ) dropConsumer(stream, group string) {
	r.mu.Lock()
	delete(r.consumers, queueName(stream, group))
	r.mu.Unlock()
}

// RetainsForBoundGroupsOnly is always true: an exchange with no bound
// queue drops what is published to it.
func (r *RabbitMQ) RetainsForBoundGroupsOnly() bool { return true }

func queueName(stream, group string) string {
	return stream + "." + group
}

func deliveryEntry(d amqp.Delivery) Entry {
	return Entry{ID: strconv.FormatUint(d.DeliveryTag, 10), Data: d.Body}
}
