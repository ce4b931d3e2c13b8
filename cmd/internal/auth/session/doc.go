// Package session implements the device session registry and the refresh
// token lifecycle.
//
// It provides a per-device session model with refresh-token rotation,
// reuse detection, and per-device / all-but-current revocation. At most one
// non-revoked session exists per device; rotation revokes the presented
// session and inserts a successor linked via rotated_from_id.
//
// Access tokens are issued as PASETO v4.public and are short-lived.
// Refresh tokens are opaque random strings and are stored hashed
// (HMAC-SHA256 when BEAUTY_TOKEN_HMAC_KEY is set; otherwise SHA-256 for
// dev/back-compat). Revocation and token validation share one transactional
// store, so a committed revoke is observable by the very next refresh or
// validate call.
//
// Transport (HTTP/WS) integration is intentionally out of scope here.
package session
