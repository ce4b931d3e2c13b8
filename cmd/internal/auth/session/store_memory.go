package session

import (
	"context"
	"net"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store used in dev mode and unit tests.
// Transactions copy-on-write the whole state under one mutex, so rollback
// is a discard and commit is a pointer swap. Fine for small device counts;
// not intended for production.
type MemoryStore struct {
	mu       sync.Mutex
	devices  map[string]Device
	sessions map[string]Session
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		devices:  make(map[string]Device),
		sessions: make(map[string]Session),
	}
}

type memTx struct {
	devices  map[string]Device
	sessions map[string]Session
}

func cloneDevices(src map[string]Device) map[string]Device {
	out := make(map[string]Device, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

func cloneSessions(src map[string]Session) map[string]Session {
	out := make(map[string]Session, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

// InTx holds the store lock for the whole function, which gives the same
// isolation the row locks give the Postgres store.
func (m *MemoryStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &memTx{
		devices:  cloneDevices(m.devices),
		sessions: cloneSessions(m.sessions),
	}
	if err := fn(tx); err != nil {
		return err
	}

	m.devices = tx.devices
	m.sessions = tx.sessions
	return nil
}

func (m *MemoryStore) ListDevices(ctx context.Context, ownerID string) ([]DeviceListing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	var out []DeviceListing
	for _, d := range m.devices {
		if d.OwnerID != ownerID {
			continue
		}
		l := DeviceListing{Device: d}
		for _, sess := range m.sessions {
			if sess.DeviceID == d.ID && sess.RevokedAt == nil && sess.ExpiresAt.After(now) {
				l.ActiveSessions++
			}
		}
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastUsedAt.Equal(out[j].LastUsedAt) {
			return out[i].LastUsedAt.After(out[j].LastUsedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (m *MemoryStore) GetDeviceByID(ctx context.Context, deviceID string) (Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.devices[deviceID]
	if !ok {
		return Device{}, ErrDeviceNotFound
	}
	return d, nil
}

func (m *MemoryStore) GetSessionByID(ctx context.Context, sessionID string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[sessionID]
	if !ok {
		return Session{}, ErrUnauthorized
	}
	return sess, nil
}

func (m *MemoryStore) TouchDevice(ctx context.Context, now time.Time, deviceID string, ip net.IP) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.devices[deviceID]
	if !ok {
		return nil
	}
	d.LastUsedAt = now
	if ip != nil {
		d.LastIP = ip
	}
	m.devices[deviceID] = d
	return nil
}

func (t *memTx) FindDeviceByFingerprintForUpdate(ctx context.Context, ownerID, fingerprint string) (Device, error) {
	for _, d := range t.devices {
		if d.OwnerID == ownerID && d.Fingerprint == fingerprint {
			return d, nil
		}
	}
	return Device{}, ErrDeviceNotFound
}

func (t *memTx) GetDeviceForUpdate(ctx context.Context, ownerID, deviceID string) (Device, error) {
	d, ok := t.devices[deviceID]
	if !ok || d.OwnerID != ownerID {
		return Device{}, ErrDeviceNotFound
	}
	return d, nil
}

func (t *memTx) CreateDevice(ctx context.Context, d Device) error {
	t.devices[d.ID] = d
	return nil
}

func (t *memTx) ReviveDevice(ctx context.Context, now time.Time, deviceID string, meta RequestMeta) error {
	d, ok := t.devices[deviceID]
	if !ok {
		return ErrDeviceNotFound
	}
	d.IsActive = true
	d.LastUsedAt = now
	if meta.UserAgent != "" {
		d.UserAgent = meta.UserAgent
	}
	if meta.IP != nil {
		d.LastIP = meta.IP
	}
	t.devices[deviceID] = d
	return nil
}

func (t *memTx) DeactivateDevice(ctx context.Context, now time.Time, deviceID string) error {
	d, ok := t.devices[deviceID]
	if !ok || !d.IsActive {
		return nil
	}
	d.IsActive = false
	d.LastUsedAt = now
	t.devices[deviceID] = d
	return nil
}

func (t *memTx) DeactivateDevicesExcept(ctx context.Context, now time.Time, ownerID, keepDeviceID string) error {
	for id, d := range t.devices {
		if d.OwnerID != ownerID || id == keepDeviceID || !d.IsActive {
			continue
		}
		d.IsActive = false
		d.LastUsedAt = now
		t.devices[id] = d
	}
	return nil
}

func (t *memTx) GetSessionByRefreshHashForUpdate(ctx context.Context, refreshHash string) (Session, error) {
	for _, sess := range t.sessions {
		if sess.RefreshTokenHash == refreshHash {
			return sess, nil
		}
	}
	return Session{}, ErrUnauthorized
}

func (t *memTx) HasSuccessor(ctx context.Context, sessionID string) (bool, error) {
	for _, sess := range t.sessions {
		if sess.RotatedFromID != nil && *sess.RotatedFromID == sessionID {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) CreateSession(ctx context.Context, sess Session) error {
	t.sessions[sess.ID] = sess
	return nil
}

func (t *memTx) MarkRotated(ctx context.Context, now time.Time, sessionID string) error {
	sess, ok := t.sessions[sessionID]
	if !ok || sess.RevokedAt != nil {
		return nil
	}
	reason := ReasonRotation
	sess.RevokedAt = &now
	sess.RevocationReason = &reason
	t.sessions[sessionID] = sess
	return nil
}

func (t *memTx) RevokeSessionsForDevice(ctx context.Context, now time.Time, deviceID, reason string) error {
	for id, sess := range t.sessions {
		if sess.DeviceID != deviceID || sess.RevokedAt != nil {
			continue
		}
		r := reason
		at := now
		sess.RevokedAt = &at
		sess.RevocationReason = &r
		t.sessions[id] = sess
	}
	return nil
}

func (t *memTx) RevokeSessionsExcept(ctx context.Context, now time.Time, ownerID, keepDeviceID, reason string) error {
	for id, sess := range t.sessions {
		if sess.OwnerID != ownerID || sess.DeviceID == keepDeviceID || sess.RevokedAt != nil {
			continue
		}
		r := reason
		at := now
		sess.RevokedAt = &at
		sess.RevocationReason = &r
		t.sessions[id] = sess
	}
	return nil
}
