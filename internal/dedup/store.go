// Package dedup records which events a consumer group has already handled.
package dedup

import (
	"context"
	"time"
)

// DefaultTTL outlives any realistic redelivery window.
const DefaultTTL = 7 * 24 * time.Hour

// Store is shared by every instance of a group so a redelivered event is
// recognised no matter which instance handled it first.
type Store interface {
	Seen(ctx context.Context, group, eventID string) (bool, error)
	Mark(ctx context.Context, group, eventID string) error
}

// Purger is implemented by stores that need explicit expiry.
type Purger interface {
	Purge(ctx context.Context) (int64, error)
}

func key(group, eventID string) string {
	return "dedup:" + group + ":" + eventID
}
