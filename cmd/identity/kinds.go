package identity

import "errors"

// Sentinel error kinds. Stable for errors.Is and for the HTTP layer's
// status-code mapping.
var (
	ErrInvalidInput = errors.New("invalid_input")
	ErrNotFound     = errors.New("not_found")
	ErrConflict     = errors.New("conflict")
	ErrNotActive    = errors.New("not_active")
)
