package concurrency

import (
	"runtime"
	"sync/atomic"
)

// SpinMutex is a test-and-set spin lock guarding a value of type T.
//
// It does not touch the interrupt flag. Data that an interrupt handler may
// also lock must only be locked from normal context inside
// hal.WithoutInterrupts, otherwise a handler that fires while the lock is
// held spins forever on a single core.
type SpinMutex[T any] struct {
	locked atomic.Bool
	value  T
}

// SpinGuard grants access to the value of a locked SpinMutex.
type SpinGuard[T any] struct {
	m *SpinMutex[T]
}

// NewSpinMutex returns an unlocked mutex holding v.
func NewSpinMutex[T any](v T) *SpinMutex[T] {
	return &SpinMutex[T]{value: v}
}

// Lock spins until the lock is acquired.
func (m *SpinMutex[T]) Lock() SpinGuard[T] {
	for !m.locked.CompareAndSwap(false, true) {
		for m.locked.Load() {
			runtime.Gosched()
		}
	}
	return SpinGuard[T]{m: m}
}

// TryLock acquires the lock only if it is free.
func (m *SpinMutex[T]) TryLock() (SpinGuard[T], bool) {
	if m.locked.CompareAndSwap(false, true) {
		return SpinGuard[T]{m: m}, true
	}
	return SpinGuard[T]{}, false
}

// With runs fn while holding the lock.
func (m *SpinMutex[T]) With(fn func(v *T)) {
	g := m.Lock()
	defer g.Unlock()
	fn(g.Value())
}

// IsLocked reports the current lock state. The answer may be stale by the
// time the caller looks at it.
func (m *SpinMutex[T]) IsLocked() bool { return m.locked.Load() }

// ForceUnlock releases the lock regardless of who holds it.
//
// This is not memory safe: the previous holder may still be mid-update. It
// exists for the panic path, where the kernel is terminating and a wedged
// console lock would swallow the final diagnostic.
func (m *SpinMutex[T]) ForceUnlock() { m.locked.Store(false) }

// Value returns the guarded value. It must not be retained after Unlock.
func (g SpinGuard[T]) Value() *T { return &g.m.value }

// Unlock releases the lock.
func (g SpinGuard[T]) Unlock() {
	if g.m == nil {
		return
	}
	g.m.locked.Store(false)
}
