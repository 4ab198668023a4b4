package lock

import (
	"context"
	"sync"
	"time"
)

const memorySweepInterval = 30 * time.Second

// MemoryLocker keeps locks in process memory. It only coordinates work
// inside one server.
type MemoryLocker struct {
	mu      sync.Mutex
	expires map[string]time.Time
	now     func() time.Time

	done     chan struct{}
	stopOnce sync.Once
}

// NewMemoryLocker creates a MemoryLocker. Call Stop to end its sweeper.
func NewMemoryLocker() *MemoryLocker {
	m := &MemoryLocker{
		expires: make(map[string]time.Time),
		now:     time.Now,
		done:    make(chan struct{}),
	}
	go m.sweep()
	return m
}

func (m *MemoryLocker) sweep() {
	ticker := time.NewTicker(memorySweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.mu.Lock()
			for key := range m.expires {
				m.liveLocked(key)
			}
			m.mu.Unlock()
		}
	}
}

// Stop ends the sweeper. Locks keep working afterwards.
func (m *MemoryLocker) Stop() {
	m.stopOnce.Do(func() { close(m.done) })
}

// liveLocked reports whether key is held, dropping it once expired.
func (m *MemoryLocker) liveLocked(key string) bool {
	exp, ok := m.expires[key]
	if ok && m.now().After(exp) {
		delete(m.expires, key)
		return false
	}
	return ok
}

func (m *MemoryLocker) with(ctx context.Context, fn func() bool) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(), nil
}

// Acquire takes key unless it is live.
func (m *MemoryLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return m.with(ctx, func() bool {
		if m.liveLocked(key) {
			return false
		}
		m.expires[key] = m.now().Add(ttl)
		return true
	})
}

// Release drops key.
func (m *MemoryLocker) Release(ctx context.Context, key string) (bool, error) {
	return m.with(ctx, func() bool {
		_, ok := m.expires[key]
		delete(m.expires, key)
		return ok
	})
}

// Extend moves the expiry of a live key.
func (m *MemoryLocker) Extend(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return m.with(ctx, func() bool {
		if !m.liveLocked(key) {
			return false
		}
		m.expires[key] = m.now().Add(ttl)
		return true
	})
}

// IsHeld reports whether key is live.
func (m *MemoryLocker) IsHeld(ctx context.Context, key string) (bool, error) {
	return m.with(ctx, func() bool { return m.liveLocked(key) })
}

var _ Locker = (*MemoryLocker)(nil)
