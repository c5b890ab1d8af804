// Package clock provides the time source for the control plane. All
// components take a Clock instead of calling time.Now directly so replay
// and tests can freeze time.
package clock

import (
	"sync"
	"time"
)

// Clock is the wall and monotonic time source.
type Clock interface {
	// Now returns the current wall-clock time.
	Now() time.Time
	// Since returns the elapsed time since t.
	Since(t time.Time) time.Duration
	// Monotonic returns the time elapsed since the clock was created,
	// unaffected by wall-clock adjustments.
	Monotonic() time.Duration
}

// System is the production clock backed by the runtime's monotonic reading.
type System struct {
	base time.Time
}

// NewSystem creates a system clock anchored at the current instant.
func NewSystem() *System {
	return &System{base: time.Now()}
}

func (c *System) Now() time.Time                  { return time.Now() }
func (c *System) Since(t time.Time) time.Duration { return time.Since(t) }
func (c *System) Monotonic() time.Duration        { return time.Since(c.base) }

// Frozen is a manually-advanced clock for tests and replay runs.
type Frozen struct {
	mu      sync.Mutex
	now     time.Time
	elapsed time.Duration
}

// NewFrozen creates a frozen clock pinned at the given instant.
func NewFrozen(at time.Time) *Frozen {
	return &Frozen{now: at}
}

func (c *Frozen) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Frozen) Since(t time.Time) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now.Sub(t)
}

func (c *Frozen) Monotonic() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.elapsed
}

// Advance moves the frozen clock forward by d.
func (c *Frozen) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	c.elapsed += d
}

// Set pins the frozen clock to a new instant without touching the
// monotonic reading.
func (c *Frozen) Set(at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = at
}
