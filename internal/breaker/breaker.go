// Package breaker implements a consecutive-failure circuit breaker.
//
// The breaker guards platform calls and persistence flushes:
//   - On success: resets failures and closes the circuit.
//   - On failure: increments failures and, once failures >= trip,
//     opens the circuit for a fixed cooldown window.
//
// While open, callers are expected to fail fast instead of retrying.
// This is cooperative guidance, not a hard lock: the open->closed
// transition is evaluated on Tick() and lazily on Allow(), never with a
// dedicated timer, so the breaker stays off the schedule hot path.
package breaker

import (
	"sync"
	"time"

	"localnotify/internal/metrics"
)

const (
	DefaultTripFailures = 5
	DefaultCooldown     = 60 * time.Second
)

type Breaker struct {
	mu sync.Mutex

	trip     int
	cooldown time.Duration

	fails    int
	openedAt time.Time
	open     bool

	mc *metrics.Collector
}

func New(trip int, cooldown time.Duration) *Breaker {
	if trip <= 0 {
		trip = DefaultTripFailures
	}
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &Breaker{trip: trip, cooldown: cooldown, mc: metrics.Default()}
}

// Allow reports whether a risky operation should proceed. It also closes
// the circuit opportunistically when the cooldown has elapsed.
func (b *Breaker) Allow(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeCloseLocked(now)
	return !b.open
}

// Open reports the current state without side effects.
func (b *Breaker) Open() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.open
}

// RecordSuccess resets the consecutive-failure counter and closes the
// circuit.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fails = 0
	if b.open {
		b.open = false
		b.openedAt = time.Time{}
		b.mc.BreakerOpen.Set(0)
	}
}

// RecordError increments the consecutive-failure counter and trips the
// circuit once the threshold is reached.
func (b *Breaker) RecordError(now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fails++
	if b.open || b.fails < b.trip {
		return
	}
	b.open = true
	b.openedAt = now
	b.mc.BreakerOpen.Set(1)
	b.mc.BreakerOpenings.Inc()
}

// Tick closes the circuit when the cooldown window has elapsed. It is
// called periodically from the dispatcher loop.
func (b *Breaker) Tick(now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeCloseLocked(now)
}

func (b *Breaker) maybeCloseLocked(now time.Time) {
	if !b.open {
		return
	}
	if now.Sub(b.openedAt) < b.cooldown {
		return
	}
	b.open = false
	b.fails = 0
	b.openedAt = time.Time{}
	b.mc.BreakerOpen.Set(0)
}

// Failures reports the current consecutive-failure count.
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.fails
}
