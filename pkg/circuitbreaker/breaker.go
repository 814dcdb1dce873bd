// Package circuitbreaker provides a simple circuit breaker for protecting
// callers from destinations that keep failing.
//
// The breaker tracks consecutive failures. After a threshold is reached it
// opens and rejects calls until a cooldown elapses, then admits a single
// probe. The probe's outcome either closes the breaker or re-opens it for
// another cooldown.
package circuitbreaker

import (
	"sync"
	"time"
)

// State represents the state of a circuit breaker.
type State int

const (
	Closed   State = iota // Normal operation, requests allowed
	Open                  // Failing, requests blocked
	HalfOpen              // Testing if recovered
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Defaults applied when New is called with non-positive arguments.
const (
	DefaultThreshold = 5
	DefaultCooldown  = 30 * time.Second
)

// Breaker implements the circuit breaker pattern for a single destination.
type Breaker struct {
	mu sync.Mutex

	threshold int
	cooldown  time.Duration

	state       State
	consecutive int
	openedAt    time.Time
	probing     bool
}

// New creates a breaker that opens after threshold consecutive failures
// and stays open for cooldown before admitting a probe. Non-positive
// arguments fall back to the package defaults.
func New(threshold int, cooldown time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &Breaker{
		threshold: threshold,
		cooldown:  cooldown,
		state:     Closed,
	}
}

// Allow reports whether a call may proceed. When the breaker is open and
// the cooldown has elapsed it transitions to half-open and admits exactly
// one probe; further calls are rejected until Observe reports the probe's
// outcome.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		return true

	case Open:
		if time.Since(b.openedAt) < b.cooldown {
			return false
		}
		b.state = HalfOpen
		b.probing = true
		return true

	case HalfOpen:
		if b.probing {
			return false
		}
		b.probing = true
		return true

	default:
		return false
	}
}

// Observe records the outcome of a call admitted by Allow. A success
// closes the breaker and clears the failure count. A failure increments
// the count, re-opens a half-open breaker immediately, and opens a closed
// breaker once the threshold is reached.
func (b *Breaker) Observe(ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.probing = false

	if ok {
		b.consecutive = 0
		b.state = Closed
		return
	}

	b.consecutive++
	if b.state == HalfOpen || b.consecutive >= b.threshold {
		b.state = Open
		b.openedAt = time.Now()
	}
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Failures returns the current consecutive failure count.
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.consecutive
}

// Reset returns the breaker to closed with a zero failure count.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = Closed
	b.consecutive = 0
	b.probing = false
}
