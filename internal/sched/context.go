package sched

import (
	"github.com/rs/zerolog"

	"github.com/sweeney/ledctl/internal/clock"
	"github.com/sweeney/ledctl/internal/led"
)

// Context is the state shared by the scheduler with every task. It replaces
// process-wide globals: the scheduler owns it and passes it by pointer.
type Context struct {
	Clock    *clock.Clock
	Channels *led.Registry
	Log      zerolog.Logger

	// OnTaskError, if set, is called when a task enters StateError. It runs on
	// the scheduler goroutine and must not block.
	OnTaskError func(task string, err error)

	sched *Scheduler
}

// Fail reports that task has entered its terminal Error state. It sets the
// clock's task error flag, logs, and notifies OnTaskError.
func (c *Context) Fail(task string, err error) {
	if c.Clock != nil {
		c.Clock.SetFlag(clock.FlagTaskError)
	}
	c.Log.Error().Str("task", task).Err(err).Msg("task entered error state")
	if c.OnTaskError != nil {
		c.OnTaskError(task, err)
	}
}

// Stats returns the running scheduler's cycle statistics.
func (c *Context) Stats() Stats {
	if c.sched == nil {
		return Stats{}
	}
	return c.sched.Stats()
}

// Tasks returns the running scheduler's task table.
func (c *Context) Tasks() []TaskInfo {
	if c.sched == nil {
		return nil
	}
	return c.sched.Tasks()
}
