package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/prudhivi99/Distributed-Systems/orderflow/internal/models"
)

type OrderRepository struct {
	db *sql.DB
}

func NewOrderRepository(database *PostgresDB) *OrderRepository {
	return &OrderRepository{db: database.Conn}
}

// Create inserts an order and its items in one transaction and fills in
// the generated ids and timestamps.
func (r *OrderRepository) Create(ctx context.Context, order *models.Order) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	orderQuery := `
		INSERT INTO orders (customer_id, status, subtotal_amount, discount_amount, delivery_fee, tax_amount, total_amount)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`
	err = tx.QueryRowContext(ctx, orderQuery,
		order.CustomerID,
		order.Status,
		order.SubtotalAmount,
		order.DiscountAmount,
		order.DeliveryFee,
		order.TaxAmount,
		order.TotalAmount,
	).Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}

	itemQuery := `
		INSERT INTO order_items (order_id, product_id, variant_id, quantity, unit_price)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`
	for i := range order.Items {
		order.Items[i].OrderID = order.ID
		err = tx.QueryRowContext(ctx, itemQuery,
			order.ID,
			order.Items[i].ProductID,
			order.Items[i].VariantID,
			order.Items[i].Quantity,
			order.Items[i].UnitPrice,
		).Scan(&order.Items[i].ID)
		if err != nil {
			return fmt.Errorf("failed to insert order item: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetByID returns a live order with its items.
func (r *OrderRepository) GetByID(ctx context.Context, id int64) (*models.Order, error) {
	orderQuery := `
		SELECT id, customer_id, status, subtotal_amount, discount_amount, delivery_fee, tax_amount,
		       total_amount, cancel_reason, created_at, updated_at, deleted_at
		FROM orders WHERE id = $1 AND deleted_at IS NULL
	`
	var order models.Order
	err := r.db.QueryRowContext(ctx, orderQuery, id).Scan(
		&order.ID,
		&order.CustomerID,
		&order.Status,
		&order.SubtotalAmount,
		&order.DiscountAmount,
		&order.DeliveryFee,
		&order.TaxAmount,
		&order.TotalAmount,
		&order.CancelReason,
		&order.CreatedAt,
		&order.UpdatedAt,
		&order.DeletedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("order %d: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}

	itemsQuery := `
		SELECT id, order_id, product_id, variant_id, quantity, unit_price
		FROM order_items WHERE order_id = $1 AND deleted_at IS NULL ORDER BY id
	`
	rows, err := r.db.QueryContext(ctx, itemsQuery, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item models.OrderItem
		err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.VariantID, &item.Quantity, &item.UnitPrice)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order item: %w", err)
		}
		order.Items = append(order.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read order items: %w", err)
	}

	return &order, nil
}

// UpdateStatus moves the order from one status to another only if it is
// still in from. A non-empty reason is stored as the cancel reason.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id int64, from, to models.OrderStatus, reason string) (*models.Order, error) {
	query := `
		UPDATE orders
		SET status = $1, cancel_reason = COALESCE(NULLIF($2, ''), cancel_reason), updated_at = NOW()
		WHERE id = $3 AND status = $4 AND deleted_at IS NULL
	`
	result, err := r.db.ExecContext(ctx, query, to, reason, id, from)
	if err != nil {
		return nil, fmt.Errorf("failed to update order: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to update order: %w", err)
	}
	if rowsAffected == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("order %d is no longer %s: %w", id, from, models.ErrStatusConflict)
	}

	return r.GetByID(ctx, id)
}
