package dedup

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// PostgresStore uses the processed_events inbox table.
type PostgresStore struct {
	db  *sql.DB
	ttl time.Duration
}

func NewPostgresStore(db *sql.DB, ttl time.Duration) *PostgresStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &PostgresStore{db: db, ttl: ttl}
}

func (s *PostgresStore) Seen(ctx context.Context, group, eventID string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM processed_events
			WHERE consumer_group = $1 AND event_id = $2 AND processed_at > $3
		)
	`
	var seen bool
	err := s.db.QueryRowContext(ctx, query, group, eventID, time.Now().Add(-s.ttl)).Scan(&seen)
	if err != nil {
		return false, fmt.Errorf("failed to check processed event: %w", err)
	}
	return seen, nil
}

func (s *PostgresStore) Mark(ctx context.Context, group, eventID string) error {
	query := `
		INSERT INTO processed_events (consumer_group, event_id, processed_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (consumer_group, event_id) DO UPDATE SET processed_at = EXCLUDED.processed_at
	`
	if _, err := s.db.ExecContext(ctx, query, group, eventID); err != nil {
		return fmt.Errorf("failed to record processed event: %w", err)
	}
	return nil
}

// Purge deletes rows older than the TTL.
func (s *PostgresStore) Purge(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM processed_events WHERE processed_at < $1`, time.Now().Add(-s.ttl))
	if err != nil {
		return 0, fmt.Errorf("failed to purge processed events: %w", err)
	}
	return res.RowsAffected()
}
