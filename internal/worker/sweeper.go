package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/prudhivi99/Distributed-Systems/orderflow/internal/dedup"
)

type ExpiryReleaser interface {
	ReleaseExpired(ctx context.Context, limit int) (int, error)
}

// Sweeper periodically releases reservations whose hold has run out and,
// when the dedup store needs it, purges old dedup records.
type Sweeper struct {
	inventory ExpiryReleaser
	purger    dedup.Purger
	interval  time.Duration
	batch     int
}

func NewSweeper(inventory ExpiryReleaser, purger dedup.Purger, interval time.Duration, batch int) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	if batch <= 0 {
		batch = 100
	}
	return &Sweeper{inventory: inventory, purger: purger, interval: interval, batch: batch}
}

// Run sweeps on every tick until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	slog.Info("🧹 Expiry sweeper started", "interval", s.interval)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
				slog.Error("❌ Expiry sweep failed", "err", err)
			}
		}
	}
}

// Sweep releases expired reservations in batches until none are left.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	total := 0
	for {
		n, err := s.inventory.ReleaseExpired(ctx, s.batch)
		total += n
		if err != nil {
			return total, err
		}
		if n < s.batch {
			break
		}
	}
	if total > 0 {
		slog.Info("🧹 Released expired reservations", "count", total)
	}

	if s.purger != nil {
		purged, err := s.purger.Purge(ctx)
		if err != nil {
			return total, err
		}
		if purged > 0 {
			slog.Info("🧹 Purged dedup records", "count", purged)
		}
	}
	return total, nil
}
