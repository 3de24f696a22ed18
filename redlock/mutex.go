package redlock

import (
	"context"
	"sync"
	"time"
)

// Mutex binds a Manager to one resource and remembers the lock it holds.
type Mutex struct {
	manager *Manager

	// rwmu is used to protect lock field
	rwmu sync.RWMutex
	lock *Lock

	key     string
	timeout time.Duration
}

// NewMutex creates a Mutex over key, each lock it takes lives for timeout.
func (m *Manager) NewMutex(key string, timeout time.Duration) *Mutex {
	return &Mutex{
		manager: m,
		key:     key,
		timeout: timeout,
	}
}

// ID returns the token of the held lock, or an empty string.
func (mu *Mutex) ID() string {
	mu.rwmu.RLock()
	defer mu.rwmu.RUnlock()
	if mu.lock == nil {
		return ""
	}
	return mu.lock.Token()
}

// Key returns the locked resource name.
func (mu *Mutex) Key() string {
	return mu.key
}

// Timeout returns the ttl requested for every lock.
func (mu *Mutex) Timeout() time.Duration {
	return mu.timeout
}

// IsLocked returns true while the held lock is inside its validity window.
func (mu *Mutex) IsLocked() bool {
	mu.rwmu.RLock()
	defer mu.rwmu.RUnlock()
	return mu.lock != nil && !mu.lock.Expired(mu.manager.opts.Clock.Now())
}

// TryLock acquires the resource, it returns ErrLockHeld if this Mutex
// already holds a live lock.
func (mu *Mutex) TryLock(ctx context.Context) error {
	if mu.IsLocked() {
		return ErrLockHeld
	}
	lock, err := mu.manager.Acquire(ctx, mu.key, mu.timeout)
	if err != nil {
		return err
	}

	mu.rwmu.Lock()
	defer mu.rwmu.Unlock()
	mu.lock = lock
	return nil
}

// Release releases the held lock. It will return ErrNotLockHolder if the
// Mutex holds nothing, an expired lock is still released on the nodes.
func (mu *Mutex) Release(ctx context.Context) error {
	mu.rwmu.Lock()
	if mu.lock == nil {
		mu.rwmu.Unlock()
		return ErrNotLockHolder
	}
	lock := mu.lock
	mu.lock = nil
	mu.rwmu.Unlock()

	return mu.manager.Release(ctx, lock)
}
