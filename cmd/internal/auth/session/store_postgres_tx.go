package session

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
)

// pgTx implements Tx over an open pgx transaction. Row locks taken via
// FOR UPDATE serialize concurrent rotation attempts on the same lineage.
type pgTx struct {
	tx pgx.Tx
}

func (p *pgTx) FindDeviceByFingerprintForUpdate(ctx context.Context, ownerID, fingerprint string) (Device, error) {
	d, err := scanDevice(p.tx.QueryRow(ctx, `
		SELECT`+deviceColumns+`
		FROM beauty.devices d
		WHERE owner_id = $1 AND fingerprint = $2
		FOR UPDATE
	`, ownerID, fingerprint))
	if errors.Is(err, pgx.ErrNoRows) {
		return Device{}, ErrDeviceNotFound
	}
	if err != nil {
		return Device{}, err
	}
	return d, nil
}

func (p *pgTx) GetDeviceForUpdate(ctx context.Context, ownerID, deviceID string) (Device, error) {
	d, err := scanDevice(p.tx.QueryRow(ctx, `
		SELECT`+deviceColumns+`
		FROM beauty.devices d
		WHERE id = $1 AND owner_id = $2
		FOR UPDATE
	`, deviceID, ownerID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Device{}, ErrDeviceNotFound
	}
	if err != nil {
		return Device{}, err
	}
	return d, nil
}

func (p *pgTx) CreateDevice(ctx context.Context, d Device) error {
	_, err := p.tx.Exec(ctx, `
		INSERT INTO beauty.devices (
			id, owner_id, tenant_id, fingerprint,
			name, user_agent, last_ip,
			is_active, last_used_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, d.ID, d.OwnerID, d.TenantID, d.Fingerprint,
		d.Name, d.UserAgent, d.LastIP,
		d.IsActive, d.LastUsedAt, d.CreatedAt)
	return err
}

func (p *pgTx) ReviveDevice(ctx context.Context, now time.Time, deviceID string, meta RequestMeta) error {
	_, err := p.tx.Exec(ctx, `
		UPDATE beauty.devices
		SET is_active = TRUE,
			last_used_at = $2,
			user_agent = COALESCE(NULLIF($3, ''), user_agent),
			last_ip = COALESCE($4, last_ip)
		WHERE id = $1
	`, deviceID, now, meta.UserAgent, meta.IP)
	return err
}

func (p *pgTx) DeactivateDevice(ctx context.Context, now time.Time, deviceID string) error {
	_, err := p.tx.Exec(ctx, `
		UPDATE beauty.devices
		SET is_active = FALSE, last_used_at = $2
		WHERE id = $1 AND is_active
	`, deviceID, now)
	return err
}

func (p *pgTx) DeactivateDevicesExcept(ctx context.Context, now time.Time, ownerID, keepDeviceID string) error {
	_, err := p.tx.Exec(ctx, `
		UPDATE beauty.devices
		SET is_active = FALSE, last_used_at = $2
		WHERE owner_id = $1 AND id <> $3 AND is_active
	`, ownerID, now, keepDeviceID)
	return err
}

func (p *pgTx) GetSessionByRefreshHashForUpdate(ctx context.Context, refreshHash string) (Session, error) {
	sess, err := scanSession(p.tx.QueryRow(ctx, `
		SELECT`+sessionColumns+`
		FROM beauty.sessions
		WHERE refresh_token_hash = $1
		FOR UPDATE
	`, refreshHash))
	if errors.Is(err, pgx.ErrNoRows) {
		return Session{}, ErrUnauthorized
	}
	if err != nil {
		return Session{}, err
	}
	return sess, nil
}

func (p *pgTx) HasSuccessor(ctx context.Context, sessionID string) (bool, error) {
	var exists bool
	err := p.tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM beauty.sessions WHERE rotated_from_id = $1
		)
	`, sessionID).Scan(&exists)
	return exists, err
}

func (p *pgTx) CreateSession(ctx context.Context, sess Session) error {
	_, err := p.tx.Exec(ctx, `
		INSERT INTO beauty.sessions (
			id, device_id, owner_id, refresh_token_hash,
			issued_at, expires_at,
			rotated_from_id, revoked_at, revocation_reason
		) VALUES ($1, $2, $3, $4, $5, $6, $7, NULL, NULL)
	`, sess.ID, sess.DeviceID, sess.OwnerID, sess.RefreshTokenHash,
		sess.IssuedAt, sess.ExpiresAt, sess.RotatedFromID)
	return err
}

func (p *pgTx) MarkRotated(ctx context.Context, now time.Time, sessionID string) error {
	_, err := p.tx.Exec(ctx, `
		UPDATE beauty.sessions
		SET revoked_at = $2, revocation_reason = $3
		WHERE id = $1 AND revoked_at IS NULL
	`, sessionID, now, ReasonRotation)
	return err
}

func (p *pgTx) RevokeSessionsForDevice(ctx context.Context, now time.Time, deviceID, reason string) error {
	_, err := p.tx.Exec(ctx, `
		UPDATE beauty.sessions
		SET revoked_at = $2, revocation_reason = $3
		WHERE device_id = $1 AND revoked_at IS NULL
	`, deviceID, now, reason)
	return err
}

func (p *pgTx) RevokeSessionsExcept(ctx context.Context, now time.Time, ownerID, keepDeviceID, reason string) error {
	_, err := p.tx.Exec(ctx, `
		UPDATE beauty.sessions
		SET revoked_at = $2, revocation_reason = $3
		WHERE owner_id = $1 AND device_id <> $4 AND revoked_at IS NULL
	`, ownerID, now, reason, keepDeviceID)
	return err
}
