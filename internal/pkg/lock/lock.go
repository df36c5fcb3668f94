// Package lock provides keyed in-process locking. The engine serializes all
// transitions of one session behind its session lock, and balance-affecting
// operations behind per-user locks, so unrelated sessions and users never
// contend on a shared mutex.
package lock

import (
	"context"
	"sync"
	"time"
)

// entry wraps a mutex with reference counting for cleanup.
type entry struct {
	mu       sync.Mutex
	refCount int
}

// Keyed provides per-key locking for any comparable key type.
type Keyed[K comparable] struct {
	locks sync.Map // map[K]*entry
	pool  sync.Pool
}

// NewKeyed creates a new Keyed lock set.
func NewKeyed[K comparable]() *Keyed[K] {
	return &Keyed[K]{
		pool: sync.Pool{
			New: func() any {
				return &entry{}
			},
		},
	}
}

// get retrieves or creates the entry for key.
func (k *Keyed[K]) get(key K) *entry {
	if v, ok := k.locks.Load(key); ok {
		return v.(*entry)
	}

	newEntry := k.pool.Get().(*entry)
	newEntry.refCount = 0

	actual, loaded := k.locks.LoadOrStore(key, newEntry)
	if loaded {
		// Another goroutine created the entry first, return ours to pool
		k.pool.Put(newEntry)
	}
	return actual.(*entry)
}

// Lock acquires the lock for key.
func (k *Keyed[K]) Lock(key K) {
	e := k.get(key)
	e.mu.Lock()
	e.refCount++
}

// Unlock releases the lock for key.
func (k *Keyed[K]) Unlock(key K) {
	if v, ok := k.locks.Load(key); ok {
		e := v.(*entry)
		e.refCount--
		e.mu.Unlock()
	}
}

// TryLock attempts to acquire the lock without blocking.
// Returns true if the lock was acquired.
func (k *Keyed[K]) TryLock(key K) bool {
	e := k.get(key)
	if e.mu.TryLock() {
		e.refCount++
		return true
	}
	return false
}

// LockWithTimeout attempts to acquire the lock within timeout.
// Returns true if the lock was acquired, false on timeout.
func (k *Keyed[K]) LockWithTimeout(ctx context.Context, key K, timeout time.Duration) bool {
	e := k.get(key)

	done := make(chan struct{})
	go func() {
		e.mu.Lock()
		close(done)
	}()

	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	select {
	case <-done:
		e.refCount++
		return true
	case <-timeoutCtx.Done():
		// The waiting goroutine will eventually acquire the mutex; release
		// it again so the lock is not held by a goroutine nobody owns.
		go func() {
			<-done
			e.mu.Unlock()
		}()
		return false
	}
}

// WithLock executes fn while holding the lock for key.
func (k *Keyed[K]) WithLock(key K, fn func() error) error {
	k.Lock(key)
	defer k.Unlock(key)
	return fn()
}

// WithLockContext executes fn while holding the lock for key, failing with
// ErrLockTimeout if the lock cannot be acquired within timeout.
func (k *Keyed[K]) WithLockContext(ctx context.Context, key K, timeout time.Duration, fn func() error) error {
	if !k.LockWithTimeout(ctx, key, timeout) {
		return ErrLockTimeout
	}
	defer k.Unlock(key)

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return fn()
	}
}

// IsLocked checks if key currently has an active lock.
// This is a point-in-time check and may change immediately after.
func (k *Keyed[K]) IsLocked(key K) bool {
	if v, ok := k.locks.Load(key); ok {
		e := v.(*entry)
		if e.mu.TryLock() {
			e.mu.Unlock()
			return false
		}
		return true
	}
	return false
}

// UserLock locks by user ID.
type UserLock = Keyed[int64]

// NewUserLock creates a new user lock set.
func NewUserLock() *UserLock {
	return NewKeyed[int64]()
}

// SessionLock locks by session ID.
type SessionLock = Keyed[string]

// NewSessionLock creates a new session lock set.
func NewSessionLock() *SessionLock {
	return NewKeyed[string]()
}
