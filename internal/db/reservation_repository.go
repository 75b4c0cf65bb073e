package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/prudhivi99/Distributed-Systems/orderflow/internal/models"
)

const reservationColumns = `
	id, order_id, product_id, variant_id, quantity, status, expires_at, release_reason,
	created_at, updated_at, deleted_at
`

type ReservationRepository struct {
	db *sql.DB
}

func NewReservationRepository(database *PostgresDB) *ReservationRepository {
	return &ReservationRepository{db: database.Conn}
}

func (r *ReservationRepository) Create(ctx context.Context, res *models.InventoryReservation) error {
	query := `
		INSERT INTO inventory_reservations (order_id, product_id, variant_id, quantity, status, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRowContext(ctx, query,
		res.OrderID,
		res.ProductID,
		res.VariantID,
		res.Quantity,
		res.Status,
		res.ExpiresAt,
	).Scan(&res.ID, &res.CreatedAt, &res.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert reservation: %w", err)
	}
	return nil
}

func (r *ReservationRepository) GetByID(ctx context.Context, id int64) (*models.InventoryReservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM inventory_reservations WHERE id = $1 AND deleted_at IS NULL`

	res, err := scanReservation(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("reservation %d: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get reservation: %w", err)
	}
	return res, nil
}

func (r *ReservationRepository) ListByOrder(ctx context.Context, orderID int64) ([]models.InventoryReservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM inventory_reservations WHERE order_id = $1 AND deleted_at IS NULL ORDER BY id`
	return r.list(ctx, query, orderID)
}

// ListExpired returns reserved rows whose hold ran out before the given time,
// oldest first.
func (r *ReservationRepository) ListExpired(ctx context.Context, before time.Time, limit int) ([]models.InventoryReservation, error) {
	query := `SELECT ` + reservationColumns + `
		FROM inventory_reservations
		WHERE status = 'reserved' AND expires_at < $1 AND deleted_at IS NULL
		ORDER BY expires_at LIMIT $2`
	return r.list(ctx, query, before, limit)
}

// UpdateStatus reports false when the reservation exists but is no longer
// in from.
func (r *ReservationRepository) UpdateStatus(ctx context.Context, id int64, from, to models.ReservationStatus, reason string) (bool, error) {
	query := `
		UPDATE inventory_reservations
		SET status = $1, release_reason = COALESCE(NULLIF($2, ''), release_reason), updated_at = NOW()
		WHERE id = $3 AND status = $4 AND deleted_at IS NULL
	`
	result, err := r.db.ExecContext(ctx, query, to, reason, id, from)
	if err != nil {
		return false, fmt.Errorf("failed to update reservation: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to update reservation: %w", err)
	}
	if rowsAffected == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return false, err
		}
		return false, nil
	}
	return true, nil
}

func (r *ReservationRepository) list(ctx context.Context, query string, args ...any) ([]models.InventoryReservation, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query reservations: %w", err)
	}
	defer rows.Close()

	var out []models.InventoryReservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reservation: %w", err)
		}
		out = append(out, *res)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReservation(row rowScanner) (*models.InventoryReservation, error) {
	var res models.InventoryReservation
	err := row.Scan(
		&res.ID,
		&res.OrderID,
		&res.ProductID,
		&res.VariantID,
		&res.Quantity,
		&res.Status,
		&res.ExpiresAt,
		&res.ReleaseReason,
		&res.CreatedAt,
		&res.UpdatedAt,
		&res.DeletedAt,
	)
	if err != nil {
		return nil, err
	}
	return &res, nil
}
