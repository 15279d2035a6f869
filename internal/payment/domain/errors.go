package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidAmount                  = errors.New("invalid_amount")
	ErrInvalidMethod                  = errors.New("invalid_method")
	ErrInvalidState                   = errors.New("invalid_state")
	ErrInvalidID                      = errors.New("invalid_id")
	ErrAccountNotOwned                = errors.New("account_not_owned")
	ErrInvalidTransition              = errors.New("invalid_transition")
	ErrPermissionDenied               = errors.New("permission_denied")
	ErrUnknownOrConsumedControlNumber = errors.New("unknown_or_consumed_control_number")
	ErrAmountBelowOutstanding         = errors.New("amount_below_outstanding")
	ErrAlreadyCompleted               = errors.New("already_completed")
	ErrRejectionReasonRequired        = errors.New("rejection_reason_required")
	ErrNotFound                       = errors.New("not_found")

	// ErrTokenCollision never leaves the service; it is retried until ErrGenerationFailed.
	ErrTokenCollision     = errors.New("token_collision")
	ErrGenerationFailed   = errors.New("generation_failed")
	ErrConcurrencyTimeout = errors.New("concurrency_timeout")
)

// FieldError attributes a validation failure to a request field.
type FieldError struct {
	Field string
	Err   error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %v", e.Field, e.Err)
}

func (e *FieldError) Unwrap() error { return e.Err }

func FieldErr(field string, err error) error {
	return &FieldError{Field: field, Err: err}
}
