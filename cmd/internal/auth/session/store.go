package session

import (
	"context"
	"net"
	"time"
)

// Device is a logical client identity tracked across logins. Devices are
// deactivated on revoke, never hard-deleted.
type Device struct {
	ID          string
	OwnerID     string
	TenantID    string
	Fingerprint string

	Name      string
	UserAgent string
	LastIP    net.IP

	IsActive   bool
	LastUsedAt time.Time
	CreatedAt  time.Time
}

// Session is one member of a device's refresh-token lineage.
// RotatedFromID is a back-reference used only to detect replay; it is not
// an ownership link.
type Session struct {
	ID               string
	DeviceID         string
	OwnerID          string
	RefreshTokenHash string

	IssuedAt  time.Time
	ExpiresAt time.Time

	RotatedFromID    *string
	RevokedAt        *time.Time
	RevocationReason *string
}

// DeviceListing is a Device plus the derived active-session count
// (0 or 1 given the one-live-session-per-device invariant; exposed as a
// count for UI compatibility).
type DeviceListing struct {
	Device
	ActiveSessions int
}

// RequestMeta carries the client signals captured on an authenticated request.
type RequestMeta struct {
	Name       string
	UserAgent  string
	IP         net.IP
	ClientHint string
	Language   string
}

// Revocation reasons recorded on session rows.
const (
	ReasonLogout     = "logout"
	ReasonRevoked    = "revoked"
	ReasonRotation   = "rotation"
	ReasonSuperseded = "superseded"
	ReasonReuse      = "reuse_detected"
)

// Tx is the transactional view used by the service's composite operations.
// Every method observes and mutates uncommitted state; InTx commits or
// rolls back as a unit.
type Tx interface {
	// FindDeviceByFingerprintForUpdate locks the owner's device row for the
	// fingerprint. Returns ErrDeviceNotFound when absent.
	FindDeviceByFingerprintForUpdate(ctx context.Context, ownerID, fingerprint string) (Device, error)

	// GetDeviceForUpdate locks a device owned by ownerID.
	// Returns ErrDeviceNotFound when missing or owned by someone else.
	GetDeviceForUpdate(ctx context.Context, ownerID, deviceID string) (Device, error)

	CreateDevice(ctx context.Context, d Device) error

	// ReviveDevice reactivates a device and refreshes its metadata on login.
	ReviveDevice(ctx context.Context, now time.Time, deviceID string, meta RequestMeta) error

	// DeactivateDevice marks a device inactive (idempotent).
	DeactivateDevice(ctx context.Context, now time.Time, deviceID string) error

	// DeactivateDevicesExcept marks every device of the owner except keep
	// inactive, in one set-based statement.
	DeactivateDevicesExcept(ctx context.Context, now time.Time, ownerID, keepDeviceID string) error

	// GetSessionByRefreshHashForUpdate locks the session row holding the
	// refresh hash. Returns ErrUnauthorized when absent.
	GetSessionByRefreshHashForUpdate(ctx context.Context, refreshHash string) (Session, error)

	// HasSuccessor reports whether any session points at sessionID via
	// rotated_from_id (replay detection).
	HasSuccessor(ctx context.Context, sessionID string) (bool, error)

	CreateSession(ctx context.Context, s Session) error

	// MarkRotated revokes the presented session with reason "rotation".
	MarkRotated(ctx context.Context, now time.Time, sessionID string) error

	// RevokeSessionsForDevice revokes the device's live sessions (idempotent).
	RevokeSessionsForDevice(ctx context.Context, now time.Time, deviceID, reason string) error

	// RevokeSessionsExcept revokes every live session of the owner except
	// those of keepDeviceID, in one set-based statement.
	RevokeSessionsExcept(ctx context.Context, now time.Time, ownerID, keepDeviceID, reason string) error
}

// Store abstracts persistence for device/session state.
//
// InTx is the single transactional boundary: revocation and rotation run
// inside it, and the plain readers observe only committed state, which is
// what makes revocation immediately visible to validation.
type Store interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error

	// ListDevices returns the owner's devices ordered by last_used_at
	// descending, carrying the derived active-session count.
	ListDevices(ctx context.Context, ownerID string) ([]DeviceListing, error)

	GetDeviceByID(ctx context.Context, deviceID string) (Device, error)

	GetSessionByID(ctx context.Context, sessionID string) (Session, error)

	// TouchDevice updates last_used_at / last_ip (best-effort).
	TouchDevice(ctx context.Context, now time.Time, deviceID string, ip net.IP) error
}
