package api

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// maxSessions caps how many session buckets are tracked at once
const maxSessions = 10000

type sessionBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter throttles navigation events per session. Each session gets
// its own token bucket; buckets idle for longer than idleAfter are dropped
// once the table is full.
type RateLimiter struct {
	mu                sync.Mutex
	sessions          map[string]*sessionBucket
	requestsPerSecond float64
	burstSize         int
	idleAfter         time.Duration
	now               func() time.Time
}

// NewRateLimiter allows each session requestsPerSecond events with bursts
// of burstSize
func NewRateLimiter(requestsPerSecond float64, burstSize int) *RateLimiter {
	return &RateLimiter{
		sessions:          make(map[string]*sessionBucket),
		requestsPerSecond: requestsPerSecond,
		burstSize:         burstSize,
		idleAfter:         10 * time.Minute,
		now:               time.Now,
	}
}

// Allow spends one token from session's bucket
func (rl *RateLimiter) Allow(session string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	b, ok := rl.sessions[session]
	if !ok {
		if len(rl.sessions) >= maxSessions {
			rl.pruneLocked(now)
		}
		b = &sessionBucket{limiter: rate.NewLimiter(rate.Limit(rl.requestsPerSecond), rl.burstSize)}
		rl.sessions[session] = b
	}
	b.lastSeen = now
	return b.limiter.AllowN(now, 1)
}

// Sessions returns how many session buckets are tracked
func (rl *RateLimiter) Sessions() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.sessions)
}

// pruneLocked drops idle buckets, or every bucket when none is idle.
// Must be called with mu held.
func (rl *RateLimiter) pruneLocked(now time.Time) {
	for id, b := range rl.sessions {
		if now.Sub(b.lastSeen) > rl.idleAfter {
			delete(rl.sessions, id)
		}
	}
	if len(rl.sessions) >= maxSessions {
		rl.sessions = make(map[string]*sessionBucket)
	}
}
