package service

import (
	"fmt"

	"github.com/prudhivi99/Distributed-Systems/orderflow/internal/models"
)

// Re-exported so callers of the services need not import models for
// error checks.
var (
	ErrValidation        = models.ErrValidation
	ErrInvalidTransition = models.ErrInvalidTransition
	ErrNotFound          = models.ErrNotFound
	ErrStatusConflict    = models.ErrStatusConflict
	ErrAlreadyAssigned   = models.ErrAlreadyAssigned
)

func validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// PublishError is returned when state was persisted but the follow-up
// event could not be published. The persisted state is authoritative.
type PublishError struct {
	Err error
}

func (e *PublishError) Error() string { return "event not published: " + e.Err.Error() }
func (e *PublishError) Unwrap() error { return e.Err }
