// Package mfa implements the second factor of authentication: TOTP
// (RFC 6238) plus single-use backup codes.
//
// Secrets are versioned. Re-running setup replaces the secret and the
// backup-code set atomically under a new version; consumed code hashes
// from older versions are retained so a code can never come back to life.
package mfa
