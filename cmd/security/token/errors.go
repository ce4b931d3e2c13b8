package token

import "errors"

// Stable errors surfaced during startup key validation.
var (
	ErrHMACKeyMissing  = errors.New("token HMAC key missing")
	ErrHMACKeyTooShort = errors.New("token HMAC key too short")
)
