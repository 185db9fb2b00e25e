// Package clock provides the system tick clock: a millisecond counter, a
// seconds counter and a small set of process-wide status flags.
//
// Every field is a single 32-bit word accessed atomically, so the clock can be
// advanced from an interrupt-like context later without changing its API.
// Only the scheduler advances the clock; anyone may read it.
package clock

import "sync/atomic"

// Flag is a bit in the clock's status word.
type Flag uint32

const (
	// FlagSleeping is set while the scheduler is in its sleep step.
	FlagSleeping Flag = 1 << iota
	// FlagTaskError is set once any task has entered its Error state.
	FlagTaskError
)

// MillisPerSecond is the number of ticks that make up one seconds increment.
const MillisPerSecond = 1000

// Clock holds the monotonic millisecond and second counters.
// The zero value is a clock at time zero with no flags set.
type Clock struct {
	millis  atomic.Uint32
	seconds atomic.Uint32
	flags   atomic.Uint32
}

// New returns a clock at time zero.
func New() *Clock {
	return &Clock{}
}

// NewAt returns a clock starting from the given counters. Used to exercise
// wraparound without advancing four billion ticks.
func NewAt(millis, seconds uint32) *Clock {
	c := &Clock{}
	c.millis.Store(millis)
	c.seconds.Store(seconds)
	return c
}

// Advance moves the clock forward by one tick. Both counters wrap at 2^32.
// Must not be called concurrently with itself.
func (c *Clock) Advance() {
	ms := c.millis.Add(1)
	if ms%MillisPerSecond == 0 {
		c.seconds.Add(1)
	}
}

// Now returns the millisecond counter.
func (c *Clock) Now() uint32 {
	return c.millis.Load()
}

// Seconds returns the seconds counter.
func (c *Clock) Seconds() uint32 {
	return c.seconds.Load()
}

// SetFlag sets f in the status word.
func (c *Clock) SetFlag(f Flag) {
	c.flags.Or(uint32(f))
}

// ClearFlag clears f in the status word.
func (c *Clock) ClearFlag(f Flag) {
	c.flags.And(^uint32(f))
}

// TestFlag reports whether f is set.
func (c *Clock) TestFlag(f Flag) bool {
	return c.flags.Load()&uint32(f) != 0
}

// Flags returns the raw status word.
func (c *Clock) Flags() uint32 {
	return c.flags.Load()
}

// Elapsed returns the number of ticks from since to the current counter,
// correct across a single wrap of the millisecond counter.
func (c *Clock) Elapsed(since uint32) uint32 {
	return c.millis.Load() - since
}
