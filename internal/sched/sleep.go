package sched

import "time"

// Sleeper is the platform's "wait approximately d" primitive. Implementations
// must return; they are never cancelled.
type Sleeper interface {
	Sleep(d time.Duration)
}

// SlipCounter is implemented by sleepers that re-base their schedule after a
// stall. The scheduler copies the count into Stats.
type SlipCounter interface {
	Slips() uint64
}

// NopSleeper returns immediately. Used by tests to run cycles back to back.
type NopSleeper struct {
	Calls int
	Total time.Duration
}

// Sleep records the call and returns.
func (s *NopSleeper) Sleep(d time.Duration) {
	s.Calls++
	s.Total += d
}

// DeadlineSleeper sleeps until the next tick boundary on the monotonic clock,
// so time spent running tasks does not stretch the tick. When the caller falls
// more than one period behind (a long stall), the schedule is re-based on the
// current time instead of bursting through the missed ticks, and the slip is
// counted.
type DeadlineSleeper struct {
	now   func() time.Time
	sleep func(time.Duration)
	next  time.Time
	slips uint64
}

// NewDeadlineSleeper returns a sleeper backed by time.Sleep.
func NewDeadlineSleeper() *DeadlineSleeper {
	return &DeadlineSleeper{now: time.Now, sleep: time.Sleep}
}

// Sleep waits until one period after the previous boundary.
func (s *DeadlineSleeper) Sleep(period time.Duration) {
	now := s.now()
	if s.next.IsZero() {
		s.next = now
	}
	s.next = s.next.Add(period)

	if d := s.next.Sub(now); d > 0 {
		s.sleep(d)
		return
	}
	if now.Sub(s.next) > period {
		s.slips++
		s.next = now
	}
}

// Slips returns how many times the schedule was re-based after a stall.
func (s *DeadlineSleeper) Slips() uint64 {
	return s.slips
}
