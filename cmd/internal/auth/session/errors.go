package session

import "errors"

var (
	// ErrInvalidToken is returned when an access token fails verification or validation.
	ErrInvalidToken = errors.New("invalid token")

	// ErrUnauthorized is returned when a refresh token does not match any
	// session, or the session was cleanly terminated (logout, revoke).
	// Distinct from ErrTokenReuseDetected: nothing suspicious happened.
	ErrUnauthorized = errors.New("session not active")

	// ErrTokenExpired is returned when the session's refresh lifetime has lapsed.
	ErrTokenExpired = errors.New("session expired")

	// ErrSessionRevoked is returned by access-token validation when the
	// backing session or device has been revoked.
	ErrSessionRevoked = errors.New("session revoked")

	// ErrTokenReuseDetected is returned when an already-rotated refresh
	// token is presented again. The device's live session has been revoked
	// as a side effect; the caller must force re-authentication.
	ErrTokenReuseDetected = errors.New("refresh token reuse detected")

	// ErrDeviceNotFound is returned when a device does not exist or does
	// not belong to the calling owner.
	ErrDeviceNotFound = errors.New("device not found")

	// ErrPersistence is returned after the single registry-boundary retry
	// has been exhausted. Never surfaced to clients with internal detail.
	ErrPersistence = errors.New("persistence failure")

	// ErrSerialization marks a retryable transaction conflict. Stores map
	// their backend's contention signal to this; the service retries once.
	ErrSerialization = errors.New("serialization conflict")

	// ErrConfig is returned for invalid configuration.
	ErrConfig = errors.New("invalid config")
)
