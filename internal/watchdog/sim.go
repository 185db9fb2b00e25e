package watchdog

// Sim models a hardware watchdog timer counting ticks. The timer is advanced
// independently of the code under test via Elapse, the way a hardware timer
// keeps running while the CPU is stuck. If more than Timeout ticks pass
// without a Feed, OnTimeout is called (the "restart") and the timer re-arms.
type Sim struct {
	// Timeout is the number of ticks allowed between feeds.
	Timeout uint32

	// OnTimeout, if set, is called each time the timer expires.
	OnTimeout func()

	// Feeds counts Feed calls.
	Feeds uint64

	// Restarts counts expiries.
	Restarts int

	sinceFeed uint32
}

// NewSim creates a simulated watchdog with the given timeout in ticks.
func NewSim(timeout uint32, onTimeout func()) *Sim {
	return &Sim{Timeout: timeout, OnTimeout: onTimeout}
}

// Feed resets the timer.
func (s *Sim) Feed() {
	s.sinceFeed = 0
	s.Feeds++
}

// Elapse advances the timer by ticks, one at a time, and reports whether it
// expired at least once.
func (s *Sim) Elapse(ticks uint32) bool {
	fired := false
	for i := uint32(0); i < ticks; i++ {
		s.sinceFeed++
		if s.sinceFeed > s.Timeout {
			s.Restarts++
			s.sinceFeed = 0
			fired = true
			if s.OnTimeout != nil {
				s.OnTimeout()
			}
		}
	}
	return fired
}

// Remaining returns the ticks left before the timer expires.
func (s *Sim) Remaining() uint32 {
	if s.sinceFeed >= s.Timeout {
		return 0
	}
	return s.Timeout - s.sinceFeed
}
