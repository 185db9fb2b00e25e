// Package watchdog provides the liveness monitor the scheduler must feed
// once per cycle. A monitor that is not fed within its timeout restarts the
// process; there is no in-band warning, the restart is the report.
package watchdog

// Monitor is fed by the scheduler at the top of every cycle.
type Monitor interface {
	Feed()
}

// Nop is a Monitor that does nothing. Used when no watchdog is configured.
type Nop struct{}

// Feed does nothing.
func (Nop) Feed() {}
