package scheduler

import (
	"sync"
	"time"
)

// Clock abstracts time so task loops can run against virtual time in
// tests.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

// RealClock delegates to the time package.
type RealClock struct{}

var _ Clock = RealClock{}

func (RealClock) Now() time.Time {
	return time.Now()
}

func (RealClock) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}

// VirtualClock is a manually advanced clock. After waits fire when
// Advance moves the clock past their deadline, never on their own.
type VirtualClock struct {
	mu      sync.Mutex
	now     time.Time
	waiters []virtualWaiter
}

type virtualWaiter struct {
	deadline time.Time
	ch       chan time.Time
}

var _ Clock = (*VirtualClock)(nil)

func NewVirtualClock(start time.Time) *VirtualClock {
	return &VirtualClock{now: start}
}

func (c *VirtualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *VirtualClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan time.Time, 1)
	if d <= 0 {
		ch <- c.now
		return ch
	}

	c.waiters = append(c.waiters, virtualWaiter{deadline: c.now.Add(d), ch: ch})

	return ch
}

// Waiters reports how many After calls are still pending. Tests use it
// to know a loop has parked before advancing the clock.
func (c *VirtualClock) Waiters() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.waiters)
}

// Advance moves the clock forward and fires every pending wait whose
// deadline has been reached.
func (c *VirtualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)

	remaining := c.waiters[:0]
	for _, waiter := range c.waiters {
		if waiter.deadline.After(c.now) {
			remaining = append(remaining, waiter)
			continue
		}

		waiter.ch <- c.now
	}

	c.waiters = remaining
}
