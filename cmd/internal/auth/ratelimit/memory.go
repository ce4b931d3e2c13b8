package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryLimiter implements Limiter in process memory. Entries expire
// lazily on read; a background sweeper reclaims abandoned keys so the map
// does not grow without bound between reads.
type MemoryLimiter struct {
	mu      sync.Mutex
	entries map[string]*memEntry

	stop     chan struct{}
	stopOnce sync.Once
}

type memEntry struct {
	count    int
	deadline time.Time
}

// NewMemoryLimiter creates an in-memory limiter and starts its sweeper.
// Call Close when done.
func NewMemoryLimiter() *MemoryLimiter {
	l := &MemoryLimiter{
		entries: make(map[string]*memEntry),
		stop:    make(chan struct{}),
	}
	go l.sweep()
	return l
}

// Close stops the sweeper goroutine.
func (l *MemoryLimiter) Close() {
	l.stopOnce.Do(func() { close(l.stop) })
}

func (l *MemoryLimiter) sweep() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case now := <-ticker.C:
			l.mu.Lock()
			for k, e := range l.entries {
				if now.After(e.deadline) {
					delete(l.entries, k)
				}
			}
			l.mu.Unlock()
		}
	}
}

// live returns the entry for k, dropping it first if its window lapsed.
func (l *MemoryLimiter) live(k string, now time.Time) *memEntry {
	e, ok := l.entries[k]
	if !ok {
		return nil
	}
	if now.After(e.deadline) {
		delete(l.entries, k)
		return nil
	}
	return e
}

func (l *MemoryLimiter) CheckAndConsume(ctx context.Context, key Key, limit int, window time.Duration) (Decision, error) {
	if err := ctx.Err(); err != nil {
		return Decision{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	k := key.String()

	e := l.live(k, now)
	if e == nil {
		e = &memEntry{deadline: now.Add(window)}
		l.entries[k] = e
	}
	e.count++

	if e.count > limit {
		return Decision{Allowed: false, Remaining: 0, RetryAfter: time.Until(e.deadline)}, nil
	}
	return Decision{Allowed: true, Remaining: limit - e.count}, nil
}

func (l *MemoryLimiter) Check(ctx context.Context, key Key, limit int) (Decision, error) {
	if err := ctx.Err(); err != nil {
		return Decision{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	e := l.live(key.String(), time.Now())
	if e == nil {
		return Decision{Allowed: true, Remaining: limit}, nil
	}
	if e.count >= limit {
		return Decision{Allowed: false, Remaining: 0, RetryAfter: time.Until(e.deadline)}, nil
	}
	return Decision{Allowed: true, Remaining: limit - e.count}, nil
}

func (l *MemoryLimiter) Reset(ctx context.Context, key Key) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, key.String())
	return nil
}
