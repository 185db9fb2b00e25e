// Package status provides a thread-safe view of daemon state. The scheduler
// goroutine writes it periodically; HTTP handlers, metrics scrapes and MQTT
// events read snapshots of it and never touch the live registry.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/ledctl/internal/led"
	"github.com/sweeney/ledctl/internal/sched"
)

// NetworkInfo contains network state, as exported by pi-helper.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	TickMs      int64
	BudgetUs    int64
	HeartbeatMs int64
	Broker      string
	HTTPAddr    string
	Board       string
	ZeroRate    string
	Watchdog    string
}

// CommandCounts summarises operator command handling.
type CommandCounts struct {
	Applied  uint64
	Rejected uint64
	Dropped  uint64
}

// Runtime is the scheduler-side state copied into the tracker.
type Runtime struct {
	Millis    uint32
	Seconds   uint32
	TaskError bool
	Channels  []led.ChannelState
	Tasks     []sched.TaskInfo
	Cycles    sched.Stats
	Commands  CommandCounts
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type; its slices are private copies.
type Snapshot struct {
	Runtime
	StartTime     time.Time
	Now           time.Time
	UpdatedAt     time.Time
	MQTTConnected bool
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Ready reports whether the scheduler has published at least once.
func (s Snapshot) Ready() bool {
	return !s.UpdatedAt.IsZero()
}

// ChannelsOn counts channels whose current level is on.
func (s Snapshot) ChannelsOn() int {
	n := 0
	for _, ch := range s.Channels {
		if ch.Control.Level == led.On {
			n++
		}
	}
	return n
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
	now  func() time.Time
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
		now: time.Now,
	}
}

// Update replaces the runtime state. Slices in rt are copied, so the caller
// may reuse its buffers.
func (t *Tracker) Update(rt Runtime) {
	now := t.now()
	t.mu.Lock()
	channels := append(t.snap.Channels[:0], rt.Channels...)
	tasks := append(t.snap.Tasks[:0], rt.Tasks...)
	t.snap.Runtime = rt
	t.snap.Channels = channels
	t.snap.Tasks = tasks
	t.snap.UpdatedAt = now
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	s.Channels = append([]led.ChannelState(nil), t.snap.Channels...)
	s.Tasks = append([]sched.TaskInfo(nil), t.snap.Tasks...)
	t.mu.RUnlock()
	s.Now = t.now()
	return s
}
