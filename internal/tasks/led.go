// Package tasks holds the cooperative tasks the daemon registers with the
// scheduler. Each task keeps its own sched.State and switches on it in
// RunActiveState.
package tasks

import (
	"errors"
	"fmt"

	"github.com/sweeney/ledctl/internal/command"
	"github.com/sweeney/ledctl/internal/led"
	"github.com/sweeney/ledctl/internal/sched"
)

// DefaultSelfTestTicks is how long every channel is lit at start-up.
const DefaultSelfTestTicks = 500

// LED drives the channel registry: it checks the wiring, shows a start-up
// pattern, applies the configured initial modes and then ticks every
// channel once per cycle.
type LED struct {
	state     sched.State
	selfTest  uint32
	remaining uint32
	initial   []command.Command
}

// NewLED creates the LED task. With selfTestTicks of 0 the start-up pattern
// is skipped. initial commands are applied, in order, once the task goes
// idle.
func NewLED(selfTestTicks uint32, initial []command.Command) *LED {
	return &LED{
		state:    sched.StateInit,
		selfTest: selfTestTicks,
		initial:  initial,
	}
}

func (t *LED) Name() string       { return "led" }
func (t *LED) State() sched.State { return t.state }

func (t *LED) RunActiveState(ctx *sched.Context) {
	switch t.state {
	case sched.StateInit:
		if err := verifyRegistry(ctx.Channels); err != nil {
			ctx.Fail(t.Name(), fmt.Errorf("%w: %v", sched.ErrInitializationFailure, err))
			t.state = sched.StateError
			return
		}
		if t.selfTest == 0 {
			t.goIdle(ctx)
			return
		}
		setAll(ctx.Channels, led.On)
		t.remaining = t.selfTest
		t.state = sched.StateStarting

	case sched.StateStarting:
		t.remaining--
		if t.remaining == 0 {
			setAll(ctx.Channels, led.Off)
			t.goIdle(ctx)
		}

	case sched.StateIdle:
		ctx.Channels.Tick()

	case sched.StateError:
	}
}

func (t *LED) goIdle(ctx *sched.Context) {
	for _, c := range t.initial {
		if err := command.Apply(ctx.Channels, c); err != nil {
			ctx.Log.Warn().Str("task", t.Name()).Stringer("command", c).Err(err).Msg("initial mode not applied")
		}
	}
	t.state = sched.StateIdle
	ctx.Log.Info().Str("task", t.Name()).Int("channels", ctx.Channels.Len()).Msg("channels ready")
}

func verifyRegistry(r *led.Registry) error {
	if r == nil {
		return errors.New("no channel registry")
	}
	if r.Len() == 0 {
		return errors.New("no channels configured")
	}
	for i := 0; i < r.Len(); i++ {
		cfg, err := r.Config(led.ChannelID(i))
		if err != nil {
			return err
		}
		if cfg.Output == nil {
			return fmt.Errorf("channel %d (%s) has no output", i, cfg.Name)
		}
	}
	return nil
}

func setAll(r *led.Registry, level led.Level) {
	for i := 0; i < r.Len(); i++ {
		id := led.ChannelID(i)
		if level == led.On {
			r.On(id)
		} else {
			r.Off(id)
		}
	}
}
