// Package clock lets rate limiters, timeouts and report timestamps run on
// injected time.
package clock

import "time"

// Clock is the time source used by the analyzer's timed components.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

// RealClock is the wall clock.
type RealClock struct{}

func (RealClock) Now() time.Time {
	return time.Now()
}

func (RealClock) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}

// Since returns the time elapsed on c since t.
func Since(c Clock, t time.Time) time.Duration {
	return c.Now().Sub(t)
}

// Milliseconds converts d to fractional milliseconds, the unit reports
// carry durations in.
func Milliseconds(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
