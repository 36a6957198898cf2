// internal/scheduler/scheduler.go
package scheduler

import (
	"sync"
	"time"
)

// Clock supplies the current time
type Clock interface {
	Now() time.Time
}

// Token identifies a scheduled task. The zero Token never refers to a task.
type Token uint64

// Scheduler runs functions after a delay and lets callers cancel them
// before they fire. Debounce and retry backoff are built on it so they can
// be driven by a virtual clock in tests.
type Scheduler interface {
	Clock
	Schedule(delay time.Duration, fn func()) Token
	Cancel(Token) bool
}

// RealScheduler uses wall-clock timers. Each task runs on its own goroutine.
type RealScheduler struct {
	mu     sync.Mutex
	next   Token
	timers map[Token]*time.Timer
}

// NewRealScheduler creates a wall-clock scheduler
func NewRealScheduler() *RealScheduler {
	return &RealScheduler{timers: make(map[Token]*time.Timer)}
}

// Now returns the wall-clock time
func (s *RealScheduler) Now() time.Time {
	return time.Now()
}

// Schedule runs fn after delay
func (s *RealScheduler) Schedule(delay time.Duration, fn func()) Token {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.next++
	tok := s.next
	s.timers[tok] = time.AfterFunc(delay, func() {
		s.mu.Lock()
		_, live := s.timers[tok]
		delete(s.timers, tok)
		s.mu.Unlock()
		if live {
			fn()
		}
	})
	return tok
}

// Cancel stops a task that has not fired yet
func (s *RealScheduler) Cancel(tok Token) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.timers[tok]
	if !ok {
		return false
	}
	delete(s.timers, tok)
	return t.Stop()
}

// Pending returns how many tasks are waiting to fire
func (s *RealScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// SystemClock reads the wall clock
type SystemClock struct{}

// Now returns time.Now()
func (SystemClock) Now() time.Time {
	return time.Now()
}
