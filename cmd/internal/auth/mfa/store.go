package mfa

import (
	"context"
	"time"
)

// Secret is the persisted TOTP state for one owner.
type Secret struct {
	OwnerID      string
	SecretBase32 string
	Version      int
	ConfirmedAt  *time.Time
	CreatedAt    time.Time
}

// Store abstracts MFA persistence.
type Store interface {
	// ReplaceSecret installs a new secret and backup-code hash set under
	// the next version, atomically. Hashes of consumed codes from earlier
	// versions are kept.
	ReplaceSecret(ctx context.Context, now time.Time, ownerID, secretBase32 string, codeHashes []string) (version int, err error)

	// GetSecret returns the owner's current secret.
	// Returns ErrNotConfigured when none exists.
	GetSecret(ctx context.Context, ownerID string) (Secret, error)

	// ConfirmSecret records that the owner proved possession of the
	// current secret.
	ConfirmSecret(ctx context.Context, now time.Time, ownerID string) error

	// ConsumeBackupCode marks the hash used, atomically. Exactly one of
	// two concurrent submissions succeeds. Returns ErrBackupCodeReused
	// when the hash was already consumed (any version) and
	// ErrVerificationFailed when it is unknown or belongs to a stale
	// version.
	ConsumeBackupCode(ctx context.Context, now time.Time, ownerID, codeHash string) error

	// UnusedBackupCodes reports how many codes remain for the current
	// version.
	UnusedBackupCodes(ctx context.Context, ownerID string) (int, error)
}
