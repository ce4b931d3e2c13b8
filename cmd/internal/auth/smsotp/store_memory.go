package smsotp

import (
	"context"
	"sync"
	"time"
)

// MemoryStore holds pending codes in process memory for dev mode and
// tests. Expiry is lazy on read.
type MemoryStore struct {
	mu    sync.Mutex
	codes map[string]memCode
}

type memCode struct {
	hash     string
	deadline time.Time
}

// NewMemoryStore returns an empty in-memory code store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{codes: make(map[string]memCode)}
}

func (m *MemoryStore) SaveCode(ctx context.Context, phone, codeHash string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.codes[phone] = memCode{hash: codeHash, deadline: time.Now().Add(ttl)}
	return nil
}

func (m *MemoryStore) LoadCodeHash(ctx context.Context, phone string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.codes[phone]
	if !ok || time.Now().After(c.deadline) {
		delete(m.codes, phone)
		return "", ErrCodeExpired
	}
	return c.hash, nil
}

func (m *MemoryStore) DeleteCode(ctx context.Context, phone string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.codes, phone)
	return nil
}
