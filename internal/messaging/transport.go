// Package messaging provides the durable, ordered, group-consumed log that
// carries domain events between processes.
package messaging

import (
	"context"
	"time"
)

// Entry is one record read from a stream.
type Entry struct {
	ID   string
	Data []byte
}

// Transport is the append/read/ack contract every driver implements.
//
// Append returns only after the backend has durably accepted the record.
// ReadGroup returns unacknowledged entries for the group, waiting at most
// block for new ones; an empty slice with a nil error means nothing arrived.
// An entry that is never acked is handed out again later.
type Transport interface {
	Append(ctx context.Context, stream string, data []byte) (string, error)
	EnsureGroup(ctx context.Context, stream, group string) error
	ReadGroup(ctx context.Context, stream, group, consumer string, count int, block time.Duration) ([]Entry, error)
	Ack(ctx context.Context, stream, group, id string) error
	Close() error
}

// Nacker is implemented by transports that can hand a failed entry back
// for redelivery immediately instead of waiting for a claim window.
type Nacker interface {
	Nack(ctx context.Context, stream, group, id string) error
}

// GroupRetained is implemented by transports that only keep an appended
// entry for groups bound before the append, like an AMQP exchange that
// drops messages no queue is bound to. Consumers bind their group to the
// dead-letter stream on such transports so dead letters are kept.
type GroupRetained interface {
	RetainsForBoundGroupsOnly() bool
}

// DeadLetterStream is the stream that receives entries a group gave up on.
func DeadLetterStream(stream string) string {
	return stream + ".dead-letter"
}
