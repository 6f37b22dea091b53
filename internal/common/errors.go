package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")

	// Validation errors.
	ErrorValidation = errors.New("validation error")

	// Ledger errors.
	ErrorInsufficientBalance = errors.New("insufficient balance")
	ErrorAlreadyRecorded     = errors.New("transaction already recorded")
)
