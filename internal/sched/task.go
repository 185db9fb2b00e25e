// Package sched is the cooperative scheduler: every cycle it feeds the
// watchdog, sleeps to the next tick boundary, advances the clock and then
// runs each task's current state exactly once, in registration order.
//
// Tasks are run-to-completion. A task that blocks stalls the whole cycle and
// is only reported by the watchdog restarting the process.
package sched

import (
	"errors"
	"fmt"
)

// ErrInitializationFailure is wrapped by errors reported from a task's init
// step. The task is parked in StateError for the rest of the process.
var ErrInitializationFailure = errors.New("task initialization failed")

// State is a task's current state. Each task switches on its own state in
// RunActiveState; the set of states is fixed.
type State uint8

const (
	StateInit State = iota
	StateStarting
	StateIdle
	StateError
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateStarting:
		return "STARTING"
	case StateIdle:
		return "IDLE"
	case StateError:
		return "ERROR"
	default:
		return fmt.Sprintf("STATE(%d)", uint8(s))
	}
}

// Task is one cooperative state machine.
type Task interface {
	// Name identifies the task in logs and status output.
	Name() string

	// State returns the current state.
	State() State

	// RunActiveState runs one step of the current state. It must return well
	// within the cycle budget and must never block.
	RunActiveState(ctx *Context)
}

// TaskInfo describes a registered task.
type TaskInfo struct {
	Name  string
	State State
}
