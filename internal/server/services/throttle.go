package services

import (
	"sync"
	"time"

	"github.com/dmitrijs2005/idkeeper/internal/clock"
	"golang.org/x/time/rate"
)

// Throttle allows one event per key per interval.
type Throttle struct {
	interval time.Duration
	clock    clock.Clock

	mu       sync.Mutex
	limiters map[string]*throttleEntry
}

type throttleEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewThrottle(interval time.Duration, clk clock.Clock) *Throttle {
	return &Throttle{
		interval: interval,
		clock:    clk,
		limiters: make(map[string]*throttleEntry),
	}
}

// Allow reports whether an event for key may happen now and records it.
// A non-positive interval disables throttling.
func (t *Throttle) Allow(key string) bool {
	if t.interval <= 0 {
		return true
	}
	now := t.clock.Now()

	t.mu.Lock()
	defer t.mu.Unlock()

	t.pruneLocked(now)

	e, ok := t.limiters[key]
	if !ok {
		e = &throttleEntry{limiter: rate.NewLimiter(rate.Every(t.interval), 1)}
		t.limiters[key] = e
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1)
}

// pruneLocked drops limiters that have fully refilled.
func (t *Throttle) pruneLocked(now time.Time) {
	for k, e := range t.limiters {
		if now.Sub(e.lastSeen) >= t.interval {
			delete(t.limiters, k)
		}
	}
}
