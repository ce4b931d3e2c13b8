package session

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"beauty/cmd/security/token"
)

// Service implements the high-level device/session operations.
//
// It registers devices on login, lists and revokes them, validates access
// tokens against live session state, and performs refresh rotation with
// reuse detection under a strict transactional model.
type Service struct {
	cfg    Config
	tokens AccessTokenManager
	store  Store

	fingerprintKey []byte

	// onRevoke fires after a revocation commits; deviceID is empty for
	// bulk revokes. Used to propagate logouts to connected clients.
	onRevoke func(ownerID, deviceID string)
}

// Option configures optional Service behavior.
type Option func(*Service)

// WithRevocationHook registers a callback invoked after a device
// revocation commits.
func WithRevocationHook(fn func(ownerID, deviceID string)) Option {
	return func(s *Service) {
		if s == nil || fn == nil {
			return
		}
		s.onRevoke = fn
	}
}

// Issued is the result of issuing or rotating a session.
// It includes a short-lived access token and an opaque refresh token.
type Issued struct {
	DeviceID     string
	SessionID    string
	AccessToken  string
	AccessExp    time.Time
	RefreshToken string
	RefreshExp   time.Time
}

// NewService constructs a Service with the provided configuration, store,
// and token manager.
func NewService(cfg Config, store Store, tokens AccessTokenManager, opts ...Option) (*Service, error) {
	key, err := hex.DecodeString(cfg.FingerprintKeyHex)
	if err != nil || len(key) < 16 {
		return nil, ErrConfig
	}

	s := &Service{cfg: cfg, store: store, tokens: tokens, fingerprintKey: key}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(s)
	}
	return s, nil
}

// inTx runs fn transactionally with the single registry-boundary retry on
// serialization conflicts. A second conflict is a persistence failure.
func (s *Service) inTx(ctx context.Context, fn func(tx Tx) error) error {
	err := s.store.InTx(ctx, fn)
	if !errors.Is(err, ErrSerialization) {
		return err
	}
	if err = s.store.InTx(ctx, fn); errors.Is(err, ErrSerialization) {
		return fmt.Errorf("%w: retry exhausted", ErrPersistence)
	}
	return err
}

// LoginDevice registers (or revives) the device matching the request's
// fingerprint and opens a fresh session for it, all in one transaction.
//
// The fingerprint is unique per (owner, fingerprint); a login from a known
// fingerprint never creates a duplicate device row. Any previous live
// session of the device is superseded, preserving the one-live-session
// invariant.
func (s *Service) LoginDevice(ctx context.Context, now time.Time, ownerID, tenantID string, meta RequestMeta) (Device, Issued, error) {
	fingerprint := DeriveFingerprint(s.fingerprintKey, meta)

	refreshPlain, refreshHash, err := newOpaqueRefreshToken(s.cfg.RefreshTokenBytes)
	if err != nil {
		return Device{}, Issued{}, err
	}
	refreshExp := now.Add(s.cfg.RefreshTTL)

	var dev Device
	var sessionID string

	err = s.inTx(ctx, func(tx Tx) error {
		found, err := tx.FindDeviceByFingerprintForUpdate(ctx, ownerID, fingerprint)
		switch {
		case errors.Is(err, ErrDeviceNotFound):
			id, idErr := newID(now)
			if idErr != nil {
				return idErr
			}
			dev = Device{
				ID:          id,
				OwnerID:     ownerID,
				TenantID:    tenantID,
				Fingerprint: fingerprint,
				Name:        deviceName(meta),
				UserAgent:   meta.UserAgent,
				LastIP:      meta.IP,
				IsActive:    true,
				LastUsedAt:  now,
				CreatedAt:   now,
			}
			if err := tx.CreateDevice(ctx, dev); err != nil {
				return err
			}
		case err != nil:
			return err
		default:
			dev = found
			if err := tx.ReviveDevice(ctx, now, dev.ID, meta); err != nil {
				return err
			}
			dev.IsActive = true
			dev.LastUsedAt = now
			dev.UserAgent = meta.UserAgent
			dev.LastIP = meta.IP
			// Same fingerprint, same device: the previous lineage ends here.
			if err := tx.RevokeSessionsForDevice(ctx, now, dev.ID, ReasonSuperseded); err != nil {
				return err
			}
		}

		id, err := newID(now)
		if err != nil {
			return err
		}
		sessionID = id
		return tx.CreateSession(ctx, Session{
			ID:               sessionID,
			DeviceID:         dev.ID,
			OwnerID:          ownerID,
			RefreshTokenHash: refreshHash,
			IssuedAt:         now,
			ExpiresAt:        refreshExp,
		})
	})
	if err != nil {
		return Device{}, Issued{}, err
	}

	accessToken, accessExp, err := s.tokens.Issue(AccessClaims{
		UserID:    ownerID,
		TenantID:  tenantID,
		SessionID: sessionID,
		DeviceID:  dev.ID,
	}, now)
	if err != nil {
		return Device{}, Issued{}, err
	}

	return dev, Issued{
		DeviceID:     dev.ID,
		SessionID:    sessionID,
		AccessToken:  accessToken,
		AccessExp:    accessExp,
		RefreshToken: refreshPlain,
		RefreshExp:   refreshExp,
	}, nil
}

// ListDevices returns the owner's devices, most recently used first.
func (s *Service) ListDevices(ctx context.Context, ownerID string) ([]DeviceListing, error) {
	return s.store.ListDevices(ctx, ownerID)
}

// RevokeDevice marks the device inactive and revokes its session in one
// atomic step. Revoking an already-revoked device succeeds with no state
// change. Returns ErrDeviceNotFound when the device does not belong to
// the caller.
func (s *Service) RevokeDevice(ctx context.Context, now time.Time, ownerID, deviceID string) error {
	return s.revokeDevice(ctx, now, ownerID, deviceID, ReasonRevoked)
}

// Logout revokes the caller's own device/session pair.
func (s *Service) Logout(ctx context.Context, now time.Time, ownerID, deviceID string) error {
	return s.revokeDevice(ctx, now, ownerID, deviceID, ReasonLogout)
}

func (s *Service) revokeDevice(ctx context.Context, now time.Time, ownerID, deviceID, reason string) error {
	err := s.inTx(ctx, func(tx Tx) error {
		dev, err := tx.GetDeviceForUpdate(ctx, ownerID, deviceID)
		if err != nil {
			return err
		}
		if err := tx.RevokeSessionsForDevice(ctx, now, dev.ID, reason); err != nil {
			return err
		}
		if dev.IsActive {
			return tx.DeactivateDevice(ctx, now, dev.ID)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if s.onRevoke != nil {
		s.onRevoke(ownerID, deviceID)
	}
	return nil
}

// RevokeAllExceptCurrent revokes every other device of the owner in one
// atomic batch; the current device is untouched. Set-based updates keep
// the operation all-or-nothing under concurrent writers.
func (s *Service) RevokeAllExceptCurrent(ctx context.Context, now time.Time, ownerID, currentDeviceID string) error {
	err := s.inTx(ctx, func(tx Tx) error {
		if err := tx.RevokeSessionsExcept(ctx, now, ownerID, currentDeviceID, ReasonRevoked); err != nil {
			return err
		}
		return tx.DeactivateDevicesExcept(ctx, now, ownerID, currentDeviceID)
	})
	if err != nil {
		return err
	}
	if s.onRevoke != nil {
		s.onRevoke(ownerID, "")
	}
	return nil
}

// ValidateAccessToken verifies an access token and ensures the backing
// session is still live. The session row is re-read on every call — no
// cache may serve a stale "active" verdict after a revoke commits.
func (s *Service) ValidateAccessToken(ctx context.Context, token string, now time.Time) (AccessClaims, error) {
	claims, err := s.tokens.Verify(token, now)
	if err != nil {
		return AccessClaims{}, err
	}

	row, err := s.store.GetSessionByID(ctx, claims.SessionID)
	if err != nil {
		if errors.Is(err, ErrUnauthorized) {
			return AccessClaims{}, ErrInvalidToken
		}
		return AccessClaims{}, err
	}

	if row.OwnerID != claims.UserID || row.DeviceID != claims.DeviceID {
		return AccessClaims{}, ErrInvalidToken
	}
	if row.RevokedAt != nil {
		return AccessClaims{}, ErrSessionRevoked
	}
	if !row.ExpiresAt.After(now) {
		return AccessClaims{}, ErrTokenExpired
	}

	return claims, nil
}

// TouchDevice updates last_used_at / last_ip for a device (best-effort).
func (s *Service) TouchDevice(ctx context.Context, now time.Time, deviceID string, meta RequestMeta) error {
	return s.store.TouchDevice(ctx, now, deviceID, meta.IP)
}

// RotateRefresh performs refresh rotation with reuse detection.
//
// Security model:
//   - Lock the session row by refresh hash (SELECT ... FOR UPDATE).
//   - A token whose session already has a successor is reuse: the device's
//     live session is revoked and the device deactivated — token theft is
//     assumed in progress — and ErrTokenReuseDetected is reported. The
//     punitive revocation commits even though the call fails.
//   - A token revoked without a successor was cleanly terminated
//     (logout/revoke): ErrUnauthorized, nothing suspicious.
//   - Otherwise, insert the successor session (rotated_from_id = old id,
//     same device), revoke the old one, extend expiry.
//
// Rotation is all-or-nothing at the transaction boundary; a client
// disconnect mid-call leaves no half-rotated state.
func (s *Service) RotateRefresh(ctx context.Context, now time.Time, refreshTokenPlain string, meta RequestMeta) (Issued, error) {
	refreshTokenPlain = strings.TrimSpace(refreshTokenPlain)
	// Basic sanity bounds to avoid pathological inputs.
	if refreshTokenPlain == "" || len(refreshTokenPlain) > 4096 {
		return Issued{}, ErrUnauthorized
	}

	// Hash refresh token in-memory (never persist the plain token).
	refreshHash := token.HashRefreshTokenHex(refreshTokenPlain)

	newPlain, newHash, err := newOpaqueRefreshToken(s.cfg.RefreshTokenBytes)
	if err != nil {
		return Issued{}, err
	}

	var (
		reuse        bool
		ownerID      string
		tenantID     string
		deviceID     string
		newSessionID string
		newExp       time.Time
	)

	err = s.inTx(ctx, func(tx Tx) error {
		reuse = false

		row, err := tx.GetSessionByRefreshHashForUpdate(ctx, refreshHash)
		if err != nil {
			return err
		}
		ownerID = row.OwnerID
		deviceID = row.DeviceID

		if !row.ExpiresAt.After(now) {
			return ErrTokenExpired
		}

		if row.RevokedAt != nil {
			rotated, err := tx.HasSuccessor(ctx, row.ID)
			if err != nil {
				return err
			}
			if !rotated {
				return ErrUnauthorized
			}
			// Reuse of a rotated token: kill the live lineage. Returning nil
			// commits the punitive revocation.
			reuse = true
			if err := tx.RevokeSessionsForDevice(ctx, now, row.DeviceID, ReasonReuse); err != nil {
				return err
			}
			return tx.DeactivateDevice(ctx, now, row.DeviceID)
		}

		id, err := newID(now)
		if err != nil {
			return err
		}
		newSessionID = id
		newExp = now.Add(s.cfg.RefreshTTL)

		// Revoke before insert: the one-live-session-per-device index is
		// enforced per statement.
		oldID := row.ID
		if err := tx.MarkRotated(ctx, now, oldID); err != nil {
			return err
		}
		if err := tx.CreateSession(ctx, Session{
			ID:               newSessionID,
			DeviceID:         row.DeviceID,
			OwnerID:          row.OwnerID,
			RefreshTokenHash: newHash,
			IssuedAt:         now,
			ExpiresAt:        newExp,
			RotatedFromID:    &oldID,
		}); err != nil {
			return err
		}
		return tx.ReviveDevice(ctx, now, row.DeviceID, meta)
	})
	if err != nil {
		return Issued{}, err
	}
	if reuse {
		if s.onRevoke != nil {
			s.onRevoke(ownerID, deviceID)
		}
		return Issued{}, ErrTokenReuseDetected
	}

	dev, err := s.store.GetDeviceByID(ctx, deviceID)
	if err == nil {
		tenantID = dev.TenantID
	}

	accessToken, accessExp, err := s.tokens.Issue(AccessClaims{
		UserID:    ownerID,
		TenantID:  tenantID,
		SessionID: newSessionID,
		DeviceID:  deviceID,
	}, now)
	if err != nil {
		return Issued{}, err
	}

	return Issued{
		DeviceID:     deviceID,
		SessionID:    newSessionID,
		AccessToken:  accessToken,
		AccessExp:    accessExp,
		RefreshToken: newPlain,
		RefreshExp:   newExp,
	}, nil
}

func deviceName(meta RequestMeta) string {
	if name := strings.TrimSpace(meta.Name); name != "" {
		return name
	}
	if ua := strings.TrimSpace(meta.UserAgent); ua != "" {
		if i := strings.IndexAny(ua, " /"); i > 0 {
			return ua[:i]
		}
		return ua
	}
	return "unknown device"
}
