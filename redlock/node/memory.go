package node

import (
	"context"
	"sync"
	"time"

	"go.uber.org/atomic"
	"k8s.io/utils/clock"
)

type entry struct {
	value     string
	expiresAt time.Time
}

// Memory is a Node backed by process memory. Expiry is evaluated lazily
// against the injected clock, so a fake clock fully controls it.
type Memory struct {
	name  string
	clock clock.PassiveClock

	mu      sync.Mutex
	entries map[string]entry

	sets    atomic.Int64
	deletes atomic.Int64
}

// NewMemory creates an in-memory node, a nil clock means the real clock.
func NewMemory(name string, c clock.PassiveClock) *Memory {
	if c == nil {
		c = clock.RealClock{}
	}
	return &Memory{
		name:    name,
		clock:   c,
		entries: make(map[string]entry),
	}
}

func (m *Memory) Name() string {
	return m.name
}

func (m *Memory) SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if ttl < time.Millisecond {
		return false, ErrInvalidTTL
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.clock.Now()
	if e, ok := m.entries[key]; ok && now.Before(e.expiresAt) {
		return false, nil
	}
	m.entries[key] = entry{value: value, expiresAt: now.Add(ttl)}
	m.sets.Inc()
	return true, nil
}

func (m *Memory) CompareAndDelete(ctx context.Context, key, value string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return false, nil
	}
	if !m.clock.Now().Before(e.expiresAt) {
		delete(m.entries, key)
		return false, nil
	}
	if e.value != value {
		return false, nil
	}
	delete(m.entries, key)
	m.deletes.Inc()
	return true, nil
}

// Get returns the live value stored under key.
func (m *Memory) Get(key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok || !m.clock.Now().Before(e.expiresAt) {
		return "", false
	}
	return e.value, true
}

// Sets returns how many keys were newly set.
func (m *Memory) Sets() int64 {
	return m.sets.Load()
}

// Deletes returns how many keys were deleted by CompareAndDelete.
func (m *Memory) Deletes() int64 {
	return m.deletes.Load()
}
