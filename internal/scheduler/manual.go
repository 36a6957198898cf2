// internal/scheduler/manual.go
package scheduler

import (
	"sort"
	"sync"
	"time"
)

type manualTask struct {
	tok Token
	due time.Time
	fn  func()
}

// ManualScheduler is a virtual clock. Time only moves when Advance is
// called, and due tasks run synchronously on the caller's goroutine.
type ManualScheduler struct {
	mu    sync.Mutex
	now   time.Time
	next  Token
	tasks map[Token]*manualTask
}

// NewManualScheduler creates a virtual clock starting at start
func NewManualScheduler(start time.Time) *ManualScheduler {
	return &ManualScheduler{
		now:   start,
		tasks: make(map[Token]*manualTask),
	}
}

// Now returns the virtual time
func (m *ManualScheduler) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Schedule queues fn to run once the virtual time reaches now+delay
func (m *ManualScheduler) Schedule(delay time.Duration, fn func()) Token {
	m.mu.Lock()
	defer m.mu.Unlock()

	if delay < 0 {
		delay = 0
	}
	m.next++
	m.tasks[m.next] = &manualTask{tok: m.next, due: m.now.Add(delay), fn: fn}
	return m.next
}

// Cancel drops a queued task
func (m *ManualScheduler) Cancel(tok Token) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.tasks[tok]; !ok {
		return false
	}
	delete(m.tasks, tok)
	return true
}

// Advance moves the clock forward by d, firing every task due on the way
// in (due time, scheduling order). Tasks scheduled by a firing task run too
// if they fall inside the window.
func (m *ManualScheduler) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now.Add(d)
	m.mu.Unlock()

	for {
		task := m.popDue(target)
		if task == nil {
			break
		}
		task.fn()
	}

	m.mu.Lock()
	if m.now.Before(target) {
		m.now = target
	}
	m.mu.Unlock()
}

// Pending returns the number of queued tasks
func (m *ManualScheduler) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tasks)
}

// NextDue returns the delay until the earliest queued task
func (m *ManualScheduler) NextDue() (time.Duration, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ordered := m.ordered()
	if len(ordered) == 0 {
		return 0, false
	}
	return ordered[0].due.Sub(m.now), true
}

func (m *ManualScheduler) popDue(target time.Time) *manualTask {
	m.mu.Lock()
	defer m.mu.Unlock()

	ordered := m.ordered()
	if len(ordered) == 0 || ordered[0].due.After(target) {
		return nil
	}
	task := ordered[0]
	delete(m.tasks, task.tok)
	if task.due.After(m.now) {
		m.now = task.due
	}
	return task
}

// ordered must be called with mu held
func (m *ManualScheduler) ordered() []*manualTask {
	out := make([]*manualTask, 0, len(m.tasks))
	for _, t := range m.tasks {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].due.Equal(out[j].due) {
			return out[i].due.Before(out[j].due)
		}
		return out[i].tok < out[j].tok
	})
	return out
}
