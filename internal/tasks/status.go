package tasks

import (
	"github.com/sweeney/ledctl/internal/clock"
	"github.com/sweeney/ledctl/internal/led"
	"github.com/sweeney/ledctl/internal/sched"
	"github.com/sweeney/ledctl/internal/status"
)

// DefaultPublishEvery is how often, in ticks, the tracker is refreshed.
const DefaultPublishEvery = 100

// Event kinds sent to the daemon for publishing.
const (
	EventHeartbeat = "HEARTBEAT"
	EventTaskError = "TASK_ERROR"
)

// Event asks the daemon to publish something on the operator channel. The
// tracker has already been refreshed when the event is sent.
type Event struct {
	Kind    string
	Task    string
	Err     error
	Seconds uint32
}

// CommandCounter supplies command totals for the status view.
type CommandCounter interface {
	Counts() status.CommandCounts
}

// StatusConfig configures the status task.
type StatusConfig struct {
	Tracker *status.Tracker

	// Every is the refresh interval in ticks (default DefaultPublishEvery).
	Every uint32

	// HeartbeatSeconds is the HEARTBEAT event interval on the clock's seconds
	// counter. 0 disables heartbeats.
	HeartbeatSeconds uint32

	// Events receives heartbeat and task error events. Sends never block;
	// events that do not fit are counted and dropped.
	Events chan<- Event

	// Commands, if set, supplies command totals.
	Commands CommandCounter
}

// Status copies scheduler state into the tracker so that other goroutines
// can read it. Register it last so it sees the results of the whole cycle.
type Status struct {
	state    sched.State
	cfg      StatusConfig
	buf      []led.ChannelState
	last     uint32
	lastBeat uint32
	pending  []Event
	dropped  uint64
}

// NewStatus creates the status task.
func NewStatus(cfg StatusConfig) *Status {
	if cfg.Every == 0 {
		cfg.Every = DefaultPublishEvery
	}
	return &Status{
		state:   sched.StateInit,
		cfg:     cfg,
		pending: make([]Event, 0, 4),
	}
}

func (t *Status) Name() string       { return "status" }
func (t *Status) State() sched.State { return t.state }

func (t *Status) RunActiveState(ctx *sched.Context) {
	switch t.state {
	case sched.StateInit:
		if ctx.Channels != nil {
			t.buf = make([]led.ChannelState, ctx.Channels.Len())
		}
		t.lastBeat = ctx.Clock.Seconds()
		t.publish(ctx)
		t.state = sched.StateIdle

	case sched.StateIdle:
		if len(t.pending) > 0 {
			t.publish(ctx)
			for _, ev := range t.pending {
				t.send(ctx, ev)
			}
			t.pending = t.pending[:0]
		} else if ctx.Clock.Elapsed(t.last) >= t.cfg.Every {
			t.publish(ctx)
		}

		if t.cfg.HeartbeatSeconds > 0 {
			secs := ctx.Clock.Seconds()
			if secs-t.lastBeat >= t.cfg.HeartbeatSeconds {
				t.lastBeat = secs
				t.publish(ctx)
				t.send(ctx, Event{Kind: EventHeartbeat})
			}
		}

	case sched.StateError:
	}
}

// ReportTaskError queues a TASK_ERROR event. It is meant to be installed as
// sched.Context.OnTaskError and runs on the scheduler goroutine.
func (t *Status) ReportTaskError(task string, err error) {
	t.pending = append(t.pending, Event{Kind: EventTaskError, Task: task, Err: err})
}

// Dropped returns how many events could not be delivered.
func (t *Status) Dropped() uint64 {
	return t.dropped
}

func (t *Status) publish(ctx *sched.Context) {
	n := 0
	if ctx.Channels != nil {
		n = ctx.Channels.SnapshotInto(t.buf)
	}
	rt := status.Runtime{
		Millis:    ctx.Clock.Now(),
		Seconds:   ctx.Clock.Seconds(),
		TaskError: ctx.Clock.TestFlag(clock.FlagTaskError),
		Channels:  t.buf[:n],
		Tasks:     ctx.Tasks(),
		Cycles:    ctx.Stats(),
	}
	if t.cfg.Commands != nil {
		rt.Commands = t.cfg.Commands.Counts()
	}
	if t.cfg.Tracker != nil {
		t.cfg.Tracker.Update(rt)
	}
	t.last = rt.Millis
}

func (t *Status) send(ctx *sched.Context, ev Event) {
	if t.cfg.Events == nil {
		return
	}
	ev.Seconds = ctx.Clock.Seconds()
	select {
	case t.cfg.Events <- ev:
	default:
		t.dropped++
	}
}

