package domain

import "errors"

var (
	ErrNotFound           = errors.New("not_found")
	ErrInvalidID          = errors.New("invalid_id")
	ErrInvalidOwner       = errors.New("invalid_owner")
	ErrInvalidAmount      = errors.New("invalid_amount")
	ErrInvalidStatus      = errors.New("invalid_status")
	ErrPermissionDenied   = errors.New("permission_denied")
	ErrConcurrencyTimeout = errors.New("concurrency_timeout")
)
