package models

import "errors"

var (
	ErrValidation        = errors.New("validation failed")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrNotFound          = errors.New("not found")
	// ErrStatusConflict means a compare-and-set update found a different
	// status than the caller read.
	ErrStatusConflict = errors.New("status changed concurrently")
	// ErrAlreadyAssigned means the order already has an active delivery.
	ErrAlreadyAssigned = errors.New("order already has an active delivery assignment")
)
