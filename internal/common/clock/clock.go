package clock

import (
	"sync"
	"time"
)

// Clock abstracts time so timer-driven code (heartbeats, reconnect delays)
// can be driven deterministically in tests.
type Clock interface {
	Now() time.Time
	Since(t time.Time) time.Duration
	// AfterFunc calls f in its own goroutine (real) or synchronously during
	// Advance (mock) once d has elapsed.
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a cancellable pending callback.
type Timer interface {
	// Stop reports whether the call prevented the callback from running.
	Stop() bool
}

type RealClock struct{}

func NewRealClock() Clock {
	return &RealClock{}
}

func (c *RealClock) Now() time.Time {
	return time.Now()
}

func (c *RealClock) Since(t time.Time) time.Duration {
	return time.Since(t)
}

func (c *RealClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

type MockClock struct {
	mu      sync.Mutex
	time    time.Time
	waiters []*mockTimer
}

type mockTimer struct {
	clock    *MockClock
	deadline time.Time
	delay    time.Duration
	f        func()
	stopped  bool
	fired    bool
}

func NewMockClock(t time.Time) *MockClock {
	return &MockClock{time: t}
}

func (c *MockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.time
}

func (c *MockClock) Since(t time.Time) time.Duration {
	return c.Now().Sub(t)
}

func (c *MockClock) SetTime(t time.Time) {
	c.mu.Lock()
	c.time = t
	c.mu.Unlock()
}

func (c *MockClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := &mockTimer{
		clock:    c,
		deadline: c.time.Add(d),
		delay:    d,
		f:        f,
	}
	c.waiters = append(c.waiters, t)
	return t
}

func (t *mockTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// Advance moves the clock forward and runs every due callback in deadline
// order. The clock reads as each callback's deadline while it runs, so a
// callback that reschedules itself fires again within the same window.
// Callbacks run without the clock lock held.
func (c *MockClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.time.Add(d)
	c.mu.Unlock()

	for {
		next := c.popNext(target)
		if next == nil {
			break
		}
		next.f()
	}

	c.mu.Lock()
	c.time = target
	c.mu.Unlock()
}

func (c *MockClock) popNext(target time.Time) *mockTimer {
	c.mu.Lock()
	defer c.mu.Unlock()

	idx := -1
	for i, t := range c.waiters {
		if t.stopped || t.deadline.After(target) {
			continue
		}
		if idx == -1 || t.deadline.Before(c.waiters[idx].deadline) {
			idx = i
		}
	}
	if idx == -1 {
		return nil
	}

	t := c.waiters[idx]
	c.waiters = append(c.waiters[:idx], c.waiters[idx+1:]...)
	t.fired = true
	if t.deadline.After(c.time) {
		c.time = t.deadline
	}
	return t
}

// PendingCount returns the number of timers that are neither stopped nor
// fired.
func (c *MockClock) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.waiters {
		if !t.stopped {
			n++
		}
	}
	return n
}

// PendingDelays returns the originally requested delays of the pending
// timers, in scheduling order.
func (c *MockClock) PendingDelays() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []time.Duration
	for _, t := range c.waiters {
		if !t.stopped {
			out = append(out, t.delay)
		}
	}
	return out
}
