package clock

import (
	"sync"
	"time"
)

type timer struct {
	deadline time.Time
	ch       chan time.Time
}

// FakeClock is a manually driven Clock for tests. Timers created by After
// fire when Advance moves past their deadline, or all at once on Fire.
type FakeClock struct {
	mu      sync.Mutex
	now     time.Time
	timers  []timer
	pending int
}

// NewFakeClock starts a fake clock at the Unix epoch.
func NewFakeClock() *FakeClock {
	return NewFakeClockAt(time.Unix(0, 0))
}

// NewFakeClockAt starts a fake clock at start.
func NewFakeClockAt(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

func (f *FakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// After returns a channel that receives the fake time once d has elapsed.
// Non-positive durations and Fire calls made while nobody was waiting
// deliver immediately.
func (f *FakeClock) After(d time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pending > 0 || d <= 0 {
		if d > 0 {
			f.pending--
		}
		ch <- f.now
		return ch
	}
	f.timers = append(f.timers, timer{deadline: f.now.Add(d), ch: ch})
	return ch
}

// Fire expires every outstanding timer regardless of its deadline. With no
// timers outstanding the tick is kept for the next After call.
func (f *FakeClock) Fire() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.timers) == 0 {
		f.pending++
		return
	}
	for _, t := range f.timers {
		t.ch <- f.now
	}
	f.timers = nil
}

// Advance moves the clock forward by d and expires the timers that became
// due.
func (f *FakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)

	remaining := f.timers[:0]
	for _, t := range f.timers {
		if t.deadline.After(f.now) {
			remaining = append(remaining, t)
			continue
		}
		t.ch <- f.now
	}
	f.timers = remaining
}

// Waiters reports the number of outstanding timers.
func (f *FakeClock) Waiters() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.timers)
}
