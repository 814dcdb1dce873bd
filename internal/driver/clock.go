package driver

import "time"

// Clock supplies the current time. The retry loop measures attempt
// durations with it.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the real time.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// Sleeper pauses between launch attempts. Sleep returns early once
// cancelled reports true; the flag is checked between slices, so
// cancellation latency is bounded by the slice length rather than the
// full requested duration.
type Sleeper interface {
	Sleep(seconds int, cancelled func() bool)
}

// TickSleeper sleeps one slice per requested second, checking for
// cancellation before each slice. The zero value uses one-second slices.
type TickSleeper struct {
	Tick time.Duration
}

func (s TickSleeper) Sleep(seconds int, cancelled func() bool) {
	tick := s.Tick
	if tick <= 0 {
		tick = time.Second
	}
	for i := 0; i < seconds; i++ {
		if cancelled() {
			return
		}
		time.Sleep(tick)
	}
}
