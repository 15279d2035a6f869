package domain

import "errors"

var (
	ErrInvalidName          = errors.New("invalid_name")
	ErrInvalidID            = errors.New("invalid_id")
	ErrInvalidDefaultAmount = errors.New("invalid_default_amount")
	ErrDuplicateName        = errors.New("duplicate_name")
	ErrNotFound             = errors.New("not_found")
	ErrNoDefaultCategory    = errors.New("no_default_category")
	ErrPermissionDenied     = errors.New("permission_denied")
)
