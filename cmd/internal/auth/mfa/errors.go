package mfa

import "errors"

var (
	// ErrInvalidFormat is returned for input that cannot be a TOTP code
	// (not exactly six digits). Such input consumes no verification budget.
	ErrInvalidFormat = errors.New("code must be six digits")

	// ErrVerificationFailed is returned when a well-formed code does not
	// verify. Deliberately uninformative.
	ErrVerificationFailed = errors.New("verification failed")

	// ErrBackupCodeReused is returned when a backup code that was already
	// consumed is presented again.
	ErrBackupCodeReused = errors.New("backup code already used")

	// ErrSetupFailed is returned when secret generation did not produce a
	// usable secret.
	ErrSetupFailed = errors.New("mfa setup failed")

	// ErrNotConfigured is returned when the owner has no provisioned secret.
	ErrNotConfigured = errors.New("mfa not configured")
)
