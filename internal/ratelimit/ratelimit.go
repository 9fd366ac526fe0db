package ratelimit

import (
	"sync"
	"time"
)

// Token bucket limiter
type Limiter struct {
	rate       float64
	burst      int
	tokens     float64
	lastUpdate time.Time
	now        func() time.Time
	mu         sync.Mutex
}

func NewLimiter(rate float64, burst int) *Limiter {
	return newLimiter(rate, burst, time.Now)
}

func newLimiter(rate float64, burst int, now func() time.Time) *Limiter {
	return &Limiter{
		rate:       rate,
		burst:      burst,
		tokens:     float64(burst),
		lastUpdate: now(),
		now:        now,
	}
}

func (l *Limiter) Allow() bool {
	return l.AllowN(1)
}

func (l *Limiter) AllowN(n int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.refill()

	if l.tokens >= float64(n) {
		l.tokens -= float64(n)
		return true
	}

	return false
}

func (l *Limiter) refill() {
	now := l.now()
	elapsed := now.Sub(l.lastUpdate).Seconds()
	l.lastUpdate = now

	l.tokens += elapsed * l.rate
	if l.tokens > float64(l.burst) {
		l.tokens = float64(l.burst)
	}
}

// Class groups events that share a budget
type Class int

const (
	// Draw and cursor relay: high frequency, cheap
	ClassRelay Class = iota
	// Joins and anything that mutates room history
	ClassHistory
)

type Rate struct {
	PerSecond float64
	Burst     int
}

type Policy struct {
	Relay   Rate
	History Rate
}

func DefaultPolicy() Policy {
	return Policy{
		Relay:   Rate{PerSecond: 120, Burst: 240},
		History: Rate{PerSecond: 20, Burst: 40},
	}
}

// Set holds one bucket per class for a single connection.
type Set struct {
	relay   *Limiter
	history *Limiter
}

func NewSet(p Policy) *Set {
	return newSet(p, time.Now)
}

func newSet(p Policy, now func() time.Time) *Set {
	return &Set{
		relay:   newLimiter(p.Relay.PerSecond, p.Relay.Burst, now),
		history: newLimiter(p.History.PerSecond, p.History.Burst, now),
	}
}

func (s *Set) Allow(c Class) bool {
	if c == ClassRelay {
		return s.relay.Allow()
	}
	return s.history.Allow()
}
