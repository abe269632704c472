package domain

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrRateLimited        = errors.New("rate limited")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrInvalidInput       = errors.New("invalid input")
	ErrMissingCredentials = errors.New("builder credentials not configured")
	ErrInvalidAddress     = errors.New("invalid address")
	ErrLockHeld           = errors.New("lock held")
)
