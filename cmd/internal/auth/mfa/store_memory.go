package mfa

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for dev mode and unit tests.
type MemoryStore struct {
	mu      sync.Mutex
	secrets map[string]Secret
	codes   map[string][]memCode // keyed by ownerID
}

type memCode struct {
	version int
	hash    string
	usedAt  *time.Time
}

// NewMemoryStore returns an empty in-memory MFA store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		secrets: make(map[string]Secret),
		codes:   make(map[string][]memCode),
	}
}

func (m *MemoryStore) ReplaceSecret(ctx context.Context, now time.Time, ownerID, secretBase32 string, codeHashes []string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	version := 1
	if prev, ok := m.secrets[ownerID]; ok {
		version = prev.Version + 1
	}
	m.secrets[ownerID] = Secret{
		OwnerID:      ownerID,
		SecretBase32: secretBase32,
		Version:      version,
		CreatedAt:    now,
	}

	for _, h := range codeHashes {
		m.codes[ownerID] = append(m.codes[ownerID], memCode{version: version, hash: h})
	}
	return version, nil
}

func (m *MemoryStore) GetSecret(ctx context.Context, ownerID string) (Secret, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sec, ok := m.secrets[ownerID]
	if !ok {
		return Secret{}, ErrNotConfigured
	}
	return sec, nil
}

func (m *MemoryStore) ConfirmSecret(ctx context.Context, now time.Time, ownerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sec, ok := m.secrets[ownerID]
	if !ok {
		return ErrNotConfigured
	}
	at := now
	sec.ConfirmedAt = &at
	m.secrets[ownerID] = sec
	return nil
}

func (m *MemoryStore) ConsumeBackupCode(ctx context.Context, now time.Time, ownerID, codeHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sec, ok := m.secrets[ownerID]
	if !ok {
		return ErrNotConfigured
	}

	var seenUsed bool
	for i, c := range m.codes[ownerID] {
		if c.hash != codeHash {
			continue
		}
		if c.usedAt != nil {
			seenUsed = true
			continue
		}
		if c.version != sec.Version {
			continue
		}
		at := now
		m.codes[ownerID][i].usedAt = &at
		return nil
	}
	if seenUsed {
		return ErrBackupCodeReused
	}
	return ErrVerificationFailed
}

func (m *MemoryStore) UnusedBackupCodes(ctx context.Context, ownerID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sec, ok := m.secrets[ownerID]
	if !ok {
		return 0, ErrNotConfigured
	}
	var n int
	for _, c := range m.codes[ownerID] {
		if c.version == sec.Version && c.usedAt == nil {
			n++
		}
	}
	return n, nil
}
