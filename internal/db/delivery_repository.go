package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/prudhivi99/Distributed-Systems/orderflow/internal/models"
)

const assignmentColumns = `
	id, order_id, courier_id, status, pickup_eta, delivery_eta, reason, assigned_at,
	accepted_at, rejected_at, picked_up_at, in_transit_at, delivered_at, cancelled_at,
	created_at, updated_at, deleted_at
`

type DeliveryRepository struct {
	db *sql.DB
}

func NewDeliveryRepository(database *PostgresDB) *DeliveryRepository {
	return &DeliveryRepository{db: database.Conn}
}

// Create fails with ErrAlreadyAssigned when the order has an assignment
// still in progress.
func (r *DeliveryRepository) Create(ctx context.Context, a *models.DeliveryAssignment) error {
	query := `
		INSERT INTO delivery_assignments (order_id, courier_id, status, pickup_eta, delivery_eta, assigned_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRowContext(ctx, query,
		a.OrderID,
		a.CourierID,
		a.Status,
		a.PickupETA,
		a.DeliveryETA,
		a.AssignedAt,
	).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("order %d: %w", a.OrderID, models.ErrAlreadyAssigned)
	}
	if err != nil {
		return fmt.Errorf("failed to insert delivery assignment: %w", err)
	}
	return nil
}

func (r *DeliveryRepository) GetByID(ctx context.Context, id int64) (*models.DeliveryAssignment, error) {
	query := `SELECT ` + assignmentColumns + ` FROM delivery_assignments WHERE id = $1 AND deleted_at IS NULL`

	a, err := scanAssignment(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("delivery assignment %d: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get delivery assignment: %w", err)
	}
	return a, nil
}

// ActiveForOrder returns the order's in-progress assignment or ErrNotFound.
func (r *DeliveryRepository) ActiveForOrder(ctx context.Context, orderID int64) (*models.DeliveryAssignment, error) {
	query := `SELECT ` + assignmentColumns + `
		FROM delivery_assignments
		WHERE order_id = $1 AND status IN ('assigned', 'accepted', 'picked_up', 'in_transit') AND deleted_at IS NULL
		ORDER BY id DESC LIMIT 1`

	a, err := scanAssignment(r.db.QueryRowContext(ctx, query, orderID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("active delivery for order %d: %w", orderID, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active delivery assignment: %w", err)
	}
	return a, nil
}

// Update writes status, reason and transition timestamps if the row is
// still in from.
func (r *DeliveryRepository) Update(ctx context.Context, a *models.DeliveryAssignment, from models.DeliveryStatus) error {
	query := `
		UPDATE delivery_assignments
		SET status = $1, reason = $2, accepted_at = $3, rejected_at = $4, picked_up_at = $5,
		    in_transit_at = $6, delivered_at = $7, cancelled_at = $8, updated_at = NOW()
		WHERE id = $9 AND status = $10 AND deleted_at IS NULL
		RETURNING updated_at
	`
	err := r.db.QueryRowContext(ctx, query,
		a.Status,
		a.Reason,
		a.AcceptedAt,
		a.RejectedAt,
		a.PickedUpAt,
		a.InTransitAt,
		a.DeliveredAt,
		a.CancelledAt,
		a.ID,
		from,
	).Scan(&a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		if _, err := r.GetByID(ctx, a.ID); err != nil {
			return err
		}
		return fmt.Errorf("delivery assignment %d is no longer %s: %w", a.ID, from, models.ErrStatusConflict)
	}
	if err != nil {
		return fmt.Errorf("failed to update delivery assignment: %w", err)
	}
	return nil
}

func scanAssignment(row rowScanner) (*models.DeliveryAssignment, error) {
	var a models.DeliveryAssignment
	err := row.Scan(
		&a.ID,
		&a.OrderID,
		&a.CourierID,
		&a.Status,
		&a.PickupETA,
		&a.DeliveryETA,
		&a.Reason,
		&a.AssignedAt,
		&a.AcceptedAt,
		&a.RejectedAt,
		&a.PickedUpAt,
		&a.InTransitAt,
		&a.DeliveredAt,
		&a.CancelledAt,
		&a.CreatedAt,
		&a.UpdatedAt,
		&a.DeletedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}
