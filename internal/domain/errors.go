package domain

import "errors"

var (
	// ErrValidation rejects input before it reaches the store
	ErrValidation = errors.New("validation error")

	// ErrStoreUnavailable wraps any store connection or query failure
	ErrStoreUnavailable = errors.New("stoppage store unavailable")

	// ErrConfiguration is fatal at startup
	ErrConfiguration = errors.New("configuration error")

	// ErrDivisionByZero is returned when expected production is zero
	ErrDivisionByZero = errors.New("division by zero")
)
