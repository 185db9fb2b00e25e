package tasks

import (
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/sweeney/ledctl/internal/command"
	"github.com/sweeney/ledctl/internal/sched"
	"github.com/sweeney/ledctl/internal/status"
)

// DefaultMaxPerCycle bounds how many queued commands one cycle applies.
const DefaultMaxPerCycle = 4

// Command applies operator commands queued by the MQTT client.
type Command struct {
	state    sched.State
	queue    *command.Queue
	max      int
	applied  uint64
	rejected uint64
	limiter  *rate.Limiter
	ready    func() bool
}

// NewCommand creates the command task. maxPerCycle <= 0 selects
// DefaultMaxPerCycle.
func NewCommand(queue *command.Queue, maxPerCycle int) *Command {
	if maxPerCycle <= 0 {
		maxPerCycle = DefaultMaxPerCycle
	}
	return &Command{
		state:   sched.StateInit,
		queue:   queue,
		max:     maxPerCycle,
		limiter: rate.NewLimiter(rate.Every(time.Second), 5),
	}
}

// HoldUntil keeps commands queued until ready reports true. The daemon gates
// on the LED task going idle, since the end of the self test resets every
// channel and would wipe anything applied before it.
func (t *Command) HoldUntil(ready func() bool) {
	t.ready = ready
}

func (t *Command) Name() string       { return "command" }
func (t *Command) State() sched.State { return t.state }

func (t *Command) RunActiveState(ctx *sched.Context) {
	switch t.state {
	case sched.StateInit:
		if t.queue == nil || ctx.Channels == nil {
			ctx.Fail(t.Name(), fmt.Errorf("%w: command queue and registry are required", sched.ErrInitializationFailure))
			t.state = sched.StateError
			return
		}
		t.state = sched.StateIdle

	case sched.StateIdle:
		if t.ready != nil && !t.ready() {
			return
		}
		for i := 0; i < t.max; i++ {
			c, ok := t.queue.Pop()
			if !ok {
				return
			}
			t.apply(ctx, c)
		}

	case sched.StateError:
	}
}

func (t *Command) apply(ctx *sched.Context, c command.Command) {
	if err := command.Apply(ctx.Channels, c); err != nil {
		t.rejected++
		if t.limiter.Allow() {
			ctx.Log.Warn().Str("task", t.Name()).Stringer("command", c).Err(err).Msg("command rejected")
		}
		return
	}
	t.applied++
	ctx.Log.Debug().Str("task", t.Name()).Stringer("command", c).Msg("command applied")
}

// Counts returns command totals. Call from the scheduler goroutine.
func (t *Command) Counts() status.CommandCounts {
	counts := status.CommandCounts{Applied: t.applied, Rejected: t.rejected}
	if t.queue != nil {
		counts.Dropped = t.queue.Dropped()
	}
	return counts
}
