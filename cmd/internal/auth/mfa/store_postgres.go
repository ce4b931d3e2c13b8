package mfa

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store on beauty.mfa_secrets / beauty.backup_codes.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a Postgres-backed MFA store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// ReplaceSecret bumps the version, swaps the secret, and installs the new
// hashes, all in one transaction. Old rows are never deleted: stale
// versions fail verification via the version check in ConsumeBackupCode,
// and consumed hashes keep reporting reuse.
func (s *PostgresStore) ReplaceSecret(ctx context.Context, now time.Time, ownerID, secretBase32 string, codeHashes []string) (int, error) {
	var version int

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			INSERT INTO beauty.mfa_secrets (owner_id, secret_base32, version, confirmed_at, created_at)
			VALUES ($1, $2, 1, NULL, $3)
			ON CONFLICT (owner_id) DO UPDATE SET
				secret_base32 = EXCLUDED.secret_base32,
				version = beauty.mfa_secrets.version + 1,
				confirmed_at = NULL,
				created_at = EXCLUDED.created_at
			RETURNING version
		`, ownerID, secretBase32, now).Scan(&version)
		if err != nil {
			return err
		}

		for _, h := range codeHashes {
			if _, err := tx.Exec(ctx, `
				INSERT INTO beauty.backup_codes (owner_id, secret_version, code_hash, used_at, created_at)
				VALUES ($1, $2, $3, NULL, $4)
			`, ownerID, version, h, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return version, nil
}

func (s *PostgresStore) GetSecret(ctx context.Context, ownerID string) (Secret, error) {
	var sec Secret
	err := s.pool.QueryRow(ctx, `
		SELECT owner_id, secret_base32, version, confirmed_at, created_at
		FROM beauty.mfa_secrets
		WHERE owner_id = $1
	`, ownerID).Scan(&sec.OwnerID, &sec.SecretBase32, &sec.Version, &sec.ConfirmedAt, &sec.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Secret{}, ErrNotConfigured
	}
	if err != nil {
		return Secret{}, err
	}
	return sec, nil
}

func (s *PostgresStore) ConfirmSecret(ctx context.Context, now time.Time, ownerID string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE beauty.mfa_secrets
		SET confirmed_at = $2
		WHERE owner_id = $1
	`, ownerID, now)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotConfigured
	}
	return nil
}

// ConsumeBackupCode relies on the conditional UPDATE for atomicity: of two
// concurrent submissions of one code, exactly one matches used_at IS NULL.
func (s *PostgresStore) ConsumeBackupCode(ctx context.Context, now time.Time, ownerID, codeHash string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE beauty.backup_codes bc
		SET used_at = $3
		FROM beauty.mfa_secrets ms
		WHERE ms.owner_id = bc.owner_id
			AND bc.owner_id = $1
			AND bc.code_hash = $2
			AND bc.secret_version = ms.version
			AND bc.used_at IS NULL
	`, ownerID, codeHash, now)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	// Distinguish replay from garbage without leaking which it was to the
	// client; callers log reuse, the user just sees a failure.
	var used bool
	err = s.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM beauty.backup_codes
			WHERE owner_id = $1 AND code_hash = $2 AND used_at IS NOT NULL
		)
	`, ownerID, codeHash).Scan(&used)
	if err != nil {
		return err
	}
	if used {
		return ErrBackupCodeReused
	}
	return ErrVerificationFailed
}

func (s *PostgresStore) UnusedBackupCodes(ctx context.Context, ownerID string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM beauty.backup_codes bc
		JOIN beauty.mfa_secrets ms ON ms.owner_id = bc.owner_id
		WHERE bc.owner_id = $1 AND bc.secret_version = ms.version AND bc.used_at IS NULL
	`, ownerID).Scan(&n)
	return n, err
}
