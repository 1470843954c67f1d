// Package wsync provides the low-level synchronization primitives used by
// the async client engine: a spin lock for short critical sections, a
// counting semaphore with split lock/consume semantics, and a generic
// lockable value wrapper.
package wsync

import "sync/atomic"

// SpinLock is a test-and-set mutex for short, low-contention critical
// sections such as message buffer access. It busy-waits rather than
// parking the goroutine, which is cheap here because callers hold it only
// across O(bytes copied) operations.
type SpinLock struct {
	held atomic.Bool
}

// Lock blocks until the spin lock is acquired.
func (s *SpinLock) Lock() {
	for !s.held.CompareAndSwap(false, true) {
	}
}

// Unlock releases the spin lock.
func (s *SpinLock) Unlock() {
	s.held.Store(false)
}

// TryLock attempts to acquire the lock without blocking.
func (s *SpinLock) TryLock() bool {
	return s.held.CompareAndSwap(false, true)
}
