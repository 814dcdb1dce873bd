package circuitbreaker

import (
	"testing"
	"time"
)

func TestNew_NonPositiveValuesUseDefaults(t *testing.T) {
	t.Parallel()
	b := New(0, 0)

	// With the default threshold of 5, four failures keep the breaker closed.
	for i := 0; i < 4; i++ {
		b.Observe(false)
	}
	if b.State() != Closed {
		t.Error("expected closed state after 4 failures (default threshold is 5)")
	}

	b.Observe(false)
	if b.State() != Open {
		t.Error("expected open state after 5 failures")
	}
}

func TestBreaker_ClosedState(t *testing.T) {
	t.Parallel()
	b := New(3, 100*time.Millisecond)

	if !b.Allow() {
		t.Error("expected Allow() to return true in closed state")
	}

	b.Observe(true)
	if b.State() != Closed {
		t.Errorf("expected closed state, got %s", b.State())
	}
}

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	t.Parallel()
	b := New(3, 100*time.Millisecond)

	b.Observe(false)
	b.Observe(false)
	if b.State() != Closed {
		t.Error("expected closed state before threshold")
	}

	b.Observe(false)
	if b.State() != Open {
		t.Errorf("expected open state after threshold, got %s", b.State())
	}

	if b.Allow() {
		t.Error("expected Allow() to return false when open")
	}
}

func TestBreaker_SuccessClearsFailureCount(t *testing.T) {
	t.Parallel()
	b := New(3, time.Second)

	b.Observe(false)
	b.Observe(false)
	b.Observe(true)
	if b.Failures() != 0 {
		t.Errorf("expected 0 failures after success, got %d", b.Failures())
	}

	// The count restarts, so two more failures stay below threshold.
	b.Observe(false)
	b.Observe(false)
	if b.State() != Closed {
		t.Errorf("expected closed state, got %s", b.State())
	}
}

func TestBreaker_SingleProbeAfterCooldown(t *testing.T) {
	t.Parallel()
	b := New(2, 50*time.Millisecond)

	b.Observe(false)
	b.Observe(false)
	if b.State() != Open {
		t.Fatal("expected open state")
	}

	if b.Allow() {
		t.Error("expected Allow() to return false before cooldown")
	}

	time.Sleep(60 * time.Millisecond)

	// First call after cooldown is the probe.
	if !b.Allow() {
		t.Error("expected Allow() to return true after cooldown (half-open)")
	}
	if b.State() != HalfOpen {
		t.Errorf("expected half-open state, got %s", b.State())
	}

	// Only one probe is admitted until its outcome is observed.
	if b.Allow() {
		t.Error("expected Allow() to return false while probe is in flight")
	}
}

func TestBreaker_ClosesOnProbeSuccess(t *testing.T) {
	t.Parallel()
	b := New(2, 10*time.Millisecond)

	b.Observe(false)
	b.Observe(false)

	time.Sleep(15 * time.Millisecond)
	if !b.Allow() {
		t.Fatal("expected probe to be admitted")
	}

	b.Observe(true)
	if b.State() != Closed {
		t.Errorf("expected closed state after probe success, got %s", b.State())
	}
	if !b.Allow() {
		t.Error("expected Allow() to return true after recovery")
	}
}

func TestBreaker_ReopensOnProbeFailure(t *testing.T) {
	t.Parallel()
	b := New(2, 10*time.Millisecond)

	b.Observe(false)
	b.Observe(false)

	time.Sleep(15 * time.Millisecond)
	if !b.Allow() {
		t.Fatal("expected probe to be admitted")
	}

	b.Observe(false)
	if b.State() != Open {
		t.Errorf("expected open state after probe failure, got %s", b.State())
	}

	// The failed probe starts a fresh cooldown.
	if b.Allow() {
		t.Error("expected Allow() to return false right after probe failure")
	}
}

func TestBreaker_Reset(t *testing.T) {
	t.Parallel()
	b := New(2, time.Second)

	b.Observe(false)
	b.Observe(false)
	if b.State() != Open {
		t.Fatal("expected open state")
	}

	b.Reset()
	if b.State() != Closed {
		t.Errorf("expected closed state after reset, got %s", b.State())
	}
	if b.Failures() != 0 {
		t.Errorf("expected 0 failures after reset, got %d", b.Failures())
	}
}

func TestBreaker_StateString(t *testing.T) {
	t.Parallel()
	tests := []struct {
		state    State
		expected string
	}{
		{Closed, "closed"},
		{Open, "open"},
		{HalfOpen, "half-open"},
		{State(99), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.state.String(); got != tt.expected {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.expected)
		}
	}
}

func TestRegistry_GetCreatesBreaker(t *testing.T) {
	t.Parallel()
	r := NewRegistry(5, time.Second)

	b1 := r.Get("host-a")
	b2 := r.Get("host-a")
	b3 := r.Get("host-b")

	if b1 != b2 {
		t.Error("expected same breaker for same key")
	}
	if b1 == b3 {
		t.Error("expected different breaker for different key")
	}

	stats := r.Stats()
	if stats.Total != 2 {
		t.Errorf("expected 2 breakers, got %d", stats.Total)
	}
}

func TestRegistry_Stats(t *testing.T) {
	t.Parallel()
	r := NewRegistry(2, time.Second)

	b1 := r.Get("host-a")
	_ = r.Get("host-b")
	_ = r.Get("host-c")

	b1.Observe(false)
	b1.Observe(false)

	stats := r.Stats()
	if stats.Total != 3 {
		t.Errorf("expected 3 total, got %d", stats.Total)
	}
	if stats.Open != 1 {
		t.Errorf("expected 1 open, got %d", stats.Open)
	}
	if stats.Closed != 2 {
		t.Errorf("expected 2 closed, got %d", stats.Closed)
	}
}

func TestRegistry_Reset(t *testing.T) {
	t.Parallel()
	r := NewRegistry(2, time.Second)

	b := r.Get("host-a")
	b.Observe(false)
	b.Observe(false)
	if b.State() != Open {
		t.Fatal("expected open state")
	}

	r.Reset()
	if b.State() != Closed {
		t.Errorf("expected closed after reset, got %s", b.State())
	}
}

func TestRegistry_Remove(t *testing.T) {
	t.Parallel()
	r := NewRegistry(5, time.Second)

	_ = r.Get("host-a")
	_ = r.Get("host-b")

	r.Remove("host-a")

	keys := r.Keys()
	if len(keys) != 1 {
		t.Errorf("expected 1 key after remove, got %d", len(keys))
	}
}
