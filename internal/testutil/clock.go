package testutil

import (
	"sort"
	"sync"
	"time"
)

// Clock provides a controllable time source for tests. Timers created
// with AfterFunc fire synchronously inside Advance or Set once the clock
// reaches their deadline.
type Clock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*Timer
}

// Timer is a pending AfterFunc callback on a Clock.
type Timer struct {
	clock    *Clock
	deadline time.Time
	f        func()
	done     bool
}

// NewClock returns a Clock initialized to the given time.
// If no time is provided, it defaults to a fixed point:
// 2025-01-01 00:00:00 UTC.
func NewClock(now ...time.Time) *Clock {
	t := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	if len(now) > 0 {
		t = now[0]
	}
	return &Clock{now: t}
}

// Now returns the clock's current time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d and fires due timers.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	due := c.takeDue()
	c.mu.Unlock()
	for _, t := range due {
		t.f()
	}
}

// Set overrides the clock's current time and fires due timers.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	due := c.takeDue()
	c.mu.Unlock()
	for _, tm := range due {
		tm.f()
	}
}

// AfterFunc schedules f to run once the clock has advanced by d.
func (c *Clock) AfterFunc(d time.Duration, f func()) *Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &Timer{clock: c, deadline: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

// Pending returns the number of timers that have neither fired nor been
// stopped.
func (c *Clock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timers)
}

// Stop cancels the timer. It reports whether the call prevented f from
// running.
func (t *Timer) Stop() bool {
	c := t.clock
	c.mu.Lock()
	defer c.mu.Unlock()
	if t.done {
		return false
	}
	t.done = true
	for i, other := range c.timers {
		if other == t {
			c.timers = append(c.timers[:i], c.timers[i+1:]...)
			break
		}
	}
	return true
}

// takeDue removes and returns expired timers in deadline order. c.mu must
// be held.
func (c *Clock) takeDue() []*Timer {
	var due, rest []*Timer
	for _, t := range c.timers {
		if !t.deadline.After(c.now) {
			t.done = true
			due = append(due, t)
		} else {
			rest = append(rest, t)
		}
	}
	c.timers = rest
	sort.SliceStable(due, func(i, j int) bool { return due[i].deadline.Before(due[j].deadline) })
	return due
}
