package db

import (
	"context"
	"database/sql"
)

const schema = `
	CREATE TABLE IF NOT EXISTS orders (
		id BIGSERIAL PRIMARY KEY,
		customer_id BIGINT NOT NULL,
		status VARCHAR(32) NOT NULL DEFAULT 'pending',
		subtotal_amount NUMERIC(14,2) NOT NULL DEFAULT 0,
		discount_amount NUMERIC(14,2) NOT NULL DEFAULT 0,
		delivery_fee NUMERIC(14,2) NOT NULL DEFAULT 0,
		tax_amount NUMERIC(14,2) NOT NULL DEFAULT 0,
		total_amount NUMERIC(14,2) NOT NULL,
		cancel_reason TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		deleted_at TIMESTAMPTZ
	);

	CREATE TABLE IF NOT EXISTS order_items (
		id BIGSERIAL PRIMARY KEY,
		order_id BIGINT NOT NULL REFERENCES orders(id),
		product_id BIGINT NOT NULL,
		variant_id BIGINT,
		quantity INT NOT NULL CHECK (quantity > 0),
		unit_price NUMERIC(14,2) NOT NULL CHECK (unit_price >= 0),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		deleted_at TIMESTAMPTZ
	);
	CREATE INDEX IF NOT EXISTS idx_order_items_order ON order_items(order_id);

	CREATE TABLE IF NOT EXISTS inventory_reservations (
		id BIGSERIAL PRIMARY KEY,
		order_id BIGINT NOT NULL,
		product_id BIGINT NOT NULL,
		variant_id BIGINT,
		quantity INT NOT NULL CHECK (quantity > 0),
		status VARCHAR(32) NOT NULL DEFAULT 'reserved',
		expires_at TIMESTAMPTZ NOT NULL,
		release_reason TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		deleted_at TIMESTAMPTZ
	);
	CREATE INDEX IF NOT EXISTS idx_reservations_order ON inventory_reservations(order_id);
	CREATE INDEX IF NOT EXISTS idx_reservations_expiry ON inventory_reservations(expires_at) WHERE status = 'reserved';

	CREATE TABLE IF NOT EXISTS delivery_assignments (
		id BIGSERIAL PRIMARY KEY,
		order_id BIGINT NOT NULL,
		courier_id BIGINT NOT NULL,
		status VARCHAR(32) NOT NULL DEFAULT 'assigned',
		pickup_eta TIMESTAMPTZ NOT NULL,
		delivery_eta TIMESTAMPTZ NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		assigned_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		accepted_at TIMESTAMPTZ,
		rejected_at TIMESTAMPTZ,
		picked_up_at TIMESTAMPTZ,
		in_transit_at TIMESTAMPTZ,
		delivered_at TIMESTAMPTZ,
		cancelled_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		deleted_at TIMESTAMPTZ
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_delivery_active_order ON delivery_assignments(order_id)
		WHERE status IN ('assigned', 'accepted', 'picked_up', 'in_transit') AND deleted_at IS NULL;

	CREATE TABLE IF NOT EXISTS processed_events (
		consumer_group VARCHAR(255) NOT NULL,
		event_id VARCHAR(255) NOT NULL,
		processed_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (consumer_group, event_id)
	);
`

// Migrate creates any missing tables. It is safe to run on every start.
func Migrate(ctx context.Context, conn *sql.DB) error {
	_, err := conn.ExecContext(ctx, schema)
	return err
}
