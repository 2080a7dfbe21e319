// internal/breaker/breaker.go
package breaker

import (
	"sync"
	"time"
)

// Breaker trips after a run of consecutive failures and blocks work for
// a cooldown. Once the cooldown passes the next Allow lets one attempt
// through as a probe: success closes the breaker, failure re-arms the
// cooldown. Safe for concurrent use; the poll loop drives transitions
// while health reads observe.
type Breaker struct {
	mu        sync.Mutex
	failLimit int
	openFor   time.Duration
	failures  int
	openUntil time.Time
	now       func() time.Time
}

// New returns a closed breaker that opens after failLimit consecutive
// failures and stays open for openFor.
func New(failLimit int, openFor time.Duration) *Breaker {
	if failLimit < 1 {
		failLimit = 1
	}
	return &Breaker{failLimit: failLimit, openFor: openFor, now: time.Now}
}

// SetNow replaces the breaker's time source. Intended for tests.
func (b *Breaker) SetNow(now func() time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.now = now
}

// Allow reports whether an attempt may proceed. While the cooldown is
// running it returns false; after it expires the breaker lets attempts
// through again without waiting for an explicit reset.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.openUntil.IsZero() {
		return true
	}
	return !b.now().Before(b.openUntil)
}

// Failure records one failed attempt. It reports whether this failure
// opened (or re-armed) the breaker, so callers can log the transition.
func (b *Breaker) Failure() (opened bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	if b.failures < b.failLimit {
		return false
	}
	b.openUntil = b.now().Add(b.openFor)
	return true
}

// Success closes the breaker and clears the failure run.
func (b *Breaker) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.openUntil = time.Time{}
}

// Stats returns the consecutive failure count and the open deadline.
// The deadline is the zero time while the breaker is closed.
func (b *Breaker) Stats() (failures int, openUntil time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures, b.openUntil
}
