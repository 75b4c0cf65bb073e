package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	kafkaGo "github.com/segmentio/kafka-go"
)

// Kafka implements Transport with one topic per stream and one consumer
// group per group. Offsets are committed in order, so ReadGroup hands out a
// single message at a time and Nack reopens the reader to rewind to the
// last committed offset.
type Kafka struct {
	brokers []string
	writer  *kafkaGo.Writer

	mu      sync.Mutex
	readers map[string]*kafkaReader
}

type kafkaReader struct {
	reader  *kafkaGo.Reader
	pending map[string]kafkaGo.Message
}

func NewKafka(brokers []string) *Kafka {
	slog.Info("✅ Kafka transport configured", "brokers", strings.Join(brokers, ","))
	return &Kafka{
		brokers: brokers,
		writer: &kafkaGo.Writer{
			Addr:                   kafkaGo.TCP(brokers...),
			Balancer:               &kafkaGo.LeastBytes{},
			RequiredAcks:           kafkaGo.RequireAll,
			AllowAutoTopicCreation: true,
		},
		readers: make(map[string]*kafkaReader),
	}
}

// Append writes synchronously with acks from all in-sync replicas. Kafka
// does not report the assigned offset to the writer, so the id is empty.
func (k *Kafka) Append(ctx context.Context, stream string, data []byte) (string, error) {
	if err := k.writer.WriteMessages(ctx, kafkaGo.Message{Topic: stream, Value: data}); err != nil {
		return "", fmt.Errorf("failed to write to topic %s: %w", stream, err)
	}
	return "", nil
}

// EnsureGroup opens the group reader; the broker creates the group on join.
func (k *Kafka) EnsureGroup(_ context.Context, stream, group string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.readerLocked(stream, group)
	return nil
}

func (k *Kafka) ReadGroup(ctx context.Context, stream, group, _ string, _ int, block time.Duration) ([]Entry, error) {
	k.mu.Lock()
	r := k.readerLocked(stream, group)
	k.mu.Unlock()

	fetchCtx := ctx
	if block > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, block)
		defer cancel()
	}

	msg, err := r.reader.FetchMessage(fetchCtx)
	if err != nil {
		if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to fetch from topic %s: %w", stream, err)
	}

	id := kafkaID(msg)
	k.mu.Lock()
	r.pending[id] = msg
	k.mu.Unlock()

	return []Entry{{ID: id, Data: msg.Value}}, nil
}

func (k *Kafka) Ack(ctx context.Context, stream, group, id string) error {
	k.mu.Lock()
	r, ok := k.readers[readerKey(stream, group)]
	var msg kafkaGo.Message
	if ok {
		msg, ok = r.pending[id]
	}
	k.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown kafka entry %s for group %s", id, group)
	}

	if err := r.reader.CommitMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to commit %s on %s: %w", id, stream, err)
	}

	k.mu.Lock()
	delete(r.pending, id)
	k.mu.Unlock()
	return nil
}

// Nack drops the group reader so the next read resumes from the last
// committed offset, which redelivers the failed message.
func (k *Kafka) Nack(_ context.Context, stream, group, id string) error {
	key := readerKey(stream, group)

	k.mu.Lock()
	r, ok := k.readers[key]
	delete(k.readers, key)
	k.mu.Unlock()

	if !ok {
		return nil
	}
	slog.Warn("↩️ Rewinding kafka reader", "topic", stream, "group", group, "entry", id)
	return r.reader.Close()
}

func (k *Kafka) Close() error {
	k.mu.Lock()
	defer k.mu.Unlock()

	var errs []error
	for key, r := range k.readers {
		errs = append(errs, r.reader.Close())
		delete(k.readers, key)
	}
	errs = append(errs, k.writer.Close())
	return errors.Join(errs...)
}

func (k *Kafka) readerLocked(stream, group string) *kafkaReader {
	key := readerKey(stream, group)
	if r, ok := k.readers[key]; ok {
		return r
	}
	r := &kafkaReader{
		reader: kafkaGo.NewReader(kafkaGo.ReaderConfig{
			Brokers:     k.brokers,
			Topic:       stream,
			GroupID:     group,
			StartOffset: kafkaGo.FirstOffset,
		}),
		pending: make(map[string]kafkaGo.Message),
	}
	k.readers[key] = r
	return r
}

func readerKey(stream, group string) string {
	return stream + "/" + group
}

func kafkaID(msg kafkaGo.Message) string {
	return strconv.Itoa(msg.Partition) + "-" + strconv.FormatInt(msg.Offset, 10)
}
