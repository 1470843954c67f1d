package wsync

import "sync"

// Semaphore is a counting semaphore with split wait/consume semantics.
//
// Lock blocks until the count is greater than zero but does NOT decrement
// it; the caller must call Consume explicitly once it has processed one
// unit of work. This lets a single Notify wake a worker that then drains
// every buffered unit in one pass, rather than forcing one wakeup per
// unit — the writer goroutine in the async client engine relies on this
// to flush an entire backlog of pushed messages per wakeup.
type Semaphore struct {
	mu    sync.Mutex
	cond  *sync.Cond
	count int
}

// New returns a ready-to-use Semaphore with count zero.
func New() *Semaphore {
	s := &Semaphore{}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Lock blocks until the count is greater than zero. It does not decrement
// the count; pair it with Consume.
func (s *Semaphore) Lock() {
	s.mu.Lock()
	for s.count == 0 {
		s.cond.Wait()
	}
	s.mu.Unlock()
}

// Notify increments the count and wakes one waiter.
func (s *Semaphore) Notify() {
	s.mu.Lock()
	s.count++
	s.mu.Unlock()
	s.cond.Signal()
}

// Consume decrements the count if it is greater than zero. It is a no-op
// otherwise, so it is safe to call speculatively.
func (s *Semaphore) Consume() {
	s.mu.Lock()
	if s.count > 0 {
		s.count--
	}
	s.mu.Unlock()
}

// Count returns the current count, for diagnostics and tests.
func (s *Semaphore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}
