package session

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store on beauty.devices / beauty.sessions.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a Postgres-backed device/session store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const deviceColumns = `
	id, owner_id, tenant_id, fingerprint,
	name, user_agent, last_ip,
	is_active, last_used_at, created_at`

const sessionColumns = `
	id, device_id, owner_id, refresh_token_hash,
	issued_at, expires_at,
	rotated_from_id, revoked_at, revocation_reason`

func scanDevice(row pgx.Row) (Device, error) {
	var d Device
	err := row.Scan(
		&d.ID, &d.OwnerID, &d.TenantID, &d.Fingerprint,
		&d.Name, &d.UserAgent, &d.LastIP,
		&d.IsActive, &d.LastUsedAt, &d.CreatedAt,
	)
	return d, err
}

func scanSession(row pgx.Row) (Session, error) {
	var sess Session
	err := row.Scan(
		&sess.ID, &sess.DeviceID, &sess.OwnerID, &sess.RefreshTokenHash,
		&sess.IssuedAt, &sess.ExpiresAt,
		&sess.RotatedFromID, &sess.RevokedAt, &sess.RevocationReason,
	)
	return sess, err
}

// isRetryable reports whether err is a transaction conflict worth one retry.
// 40001 = serialization_failure, 40P01 = deadlock_detected.
func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}

// InTx runs fn inside a transaction, mapping backend contention to
// ErrSerialization so the service can apply its retry policy.
func (s *PostgresStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(&pgTx{tx: tx})
	})
	if isRetryable(err) {
		return ErrSerialization
	}
	return err
}

// ListDevices returns the owner's devices, most recently used first, with
// the live-session count derived in the same query.
func (s *PostgresStore) ListDevices(ctx context.Context, ownerID string) ([]DeviceListing, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT`+deviceColumns+`,
			(SELECT COUNT(*) FROM beauty.sessions se
			 WHERE se.device_id = d.id AND se.revoked_at IS NULL AND se.expires_at > NOW())
		FROM beauty.devices d
		WHERE owner_id = $1
		ORDER BY last_used_at DESC, id DESC
	`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DeviceListing
	for rows.Next() {
		var l DeviceListing
		if err := rows.Scan(
			&l.ID, &l.OwnerID, &l.TenantID, &l.Fingerprint,
			&l.Name, &l.UserAgent, &l.LastIP,
			&l.IsActive, &l.LastUsedAt, &l.CreatedAt,
			&l.ActiveSessions,
		); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// GetDeviceByID loads a device row.
func (s *PostgresStore) GetDeviceByID(ctx context.Context, deviceID string) (Device, error) {
	d, err := scanDevice(s.pool.QueryRow(ctx, `
		SELECT`+deviceColumns+`
		FROM beauty.devices d
		WHERE id = $1
	`, deviceID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Device{}, ErrDeviceNotFound
	}
	if err != nil {
		return Device{}, err
	}
	return d, nil
}

// GetSessionByID loads a session row. Returns ErrUnauthorized when absent;
// callers treat a missing session the same as a terminated one.
func (s *PostgresStore) GetSessionByID(ctx context.Context, sessionID string) (Session, error) {
	sess, err := scanSession(s.pool.QueryRow(ctx, `
		SELECT`+sessionColumns+`
		FROM beauty.sessions
		WHERE id = $1
	`, sessionID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Session{}, ErrUnauthorized
	}
	if err != nil {
		return Session{}, err
	}
	return sess, nil
}

// TouchDevice refreshes last_used_at / last_ip. Best-effort: a missing
// device is not an error.
func (s *PostgresStore) TouchDevice(ctx context.Context, now time.Time, deviceID string, ip net.IP) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE beauty.devices
		SET last_used_at = $2, last_ip = COALESCE($3, last_ip)
		WHERE id = $1
	`, deviceID, now, ip)
	return err
}
