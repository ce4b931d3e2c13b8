// Package identity implements the platform's identity foundation.
//
// It contains security primitives (ULID, password hashing, token hashing)
// and the user store consumed by the credential verifier, the HTTP layer,
// and the websocket gateway.
//
// This package is intentionally dependency-light and security-first.
package identity
