// Package backoff provides delay schedules for retrying failed operations.
package backoff

import (
	"math"
	"time"
)

// Policy describes a capped exponential delay schedule.
// The zero value uses the package defaults.
type Policy struct {
	Initial time.Duration // default: 100ms
	Max     time.Duration // default: 5s
}

// Default is the schedule used for notification delivery retries.
var Default = Policy{Initial: 100 * time.Millisecond, Max: 5 * time.Second}

// Delay returns the wait before the given attempt.
// Attempt 1 waits Initial, attempt 2 twice that, and so on up to Max.
func (p Policy) Delay(attempt int) time.Duration {
	initial := p.Initial
	if initial <= 0 {
		initial = 100 * time.Millisecond
	}
	maxDelay := p.Max
	if maxDelay <= 0 {
		maxDelay = 5 * time.Second
	}

	if attempt < 1 {
		return initial
	}
	delay := float64(initial) * math.Pow(2.0, float64(attempt-1))
	if delay > float64(maxDelay) {
		return maxDelay
	}
	return time.Duration(delay)
}
