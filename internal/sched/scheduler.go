package sched

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/sweeney/ledctl/internal/clock"
	"github.com/sweeney/ledctl/internal/gpio"
	"github.com/sweeney/ledctl/internal/watchdog"
)

// DefaultPeriod is the nominal tick length.
const DefaultPeriod = time.Millisecond

// Observer receives per-cycle measurements. Called on the scheduler
// goroutine; must not block.
type Observer interface {
	ObserveCycle(taskTime time.Duration, overrun bool)
}

// Config configures a Scheduler. Zero values select defaults.
type Config struct {
	// Period is the tick length (default 1 ms).
	Period time.Duration

	// Budget is how long all tasks together may take in one cycle before the
	// cycle is counted as an overrun (default: Period).
	Budget time.Duration

	// Watchdog is fed at the start of every cycle (default: watchdog.Nop).
	Watchdog watchdog.Monitor

	// Heartbeat is cleared while sleeping and set while tasks run, so a scope
	// on the line shows the duty of the task phase. Optional.
	Heartbeat gpio.Output

	// Sleeper is the platform sleep primitive (default: DeadlineSleeper).
	Sleeper Sleeper

	// Observer, if set, receives cycle measurements.
	Observer Observer

	// Now is the time source used to measure task execution (default time.Now).
	Now func() time.Time
}

// Stats summarises scheduler activity.
type Stats struct {
	Cycles       uint64
	Overruns     uint64
	Slips        uint64
	LastTaskTime time.Duration
	MaxTaskTime  time.Duration
}

// Scheduler runs the cooperative loop.
type Scheduler struct {
	ctx       *Context
	tasks     []Task
	period    time.Duration
	budget    time.Duration
	watchdog  watchdog.Monitor
	heartbeat gpio.Output
	sleeper   Sleeper
	slips     SlipCounter
	observer  Observer
	now       func() time.Time
	log       zerolog.Logger
	limiter   *rate.Limiter
	stats     Stats
}

// New builds a scheduler over a fixed task table. Tasks run in the order
// given; the table cannot change afterwards.
func New(ctx *Context, cfg Config, tasks ...Task) (*Scheduler, error) {
	if ctx == nil || ctx.Clock == nil {
		return nil, errors.New("sched: context with a clock is required")
	}
	for _, t := range tasks {
		if t == nil {
			return nil, errors.New("sched: nil task")
		}
	}

	if cfg.Period <= 0 {
		cfg.Period = DefaultPeriod
	}
	if cfg.Budget <= 0 {
		cfg.Budget = cfg.Period
	}
	if cfg.Watchdog == nil {
		cfg.Watchdog = watchdog.Nop{}
	}
	if cfg.Sleeper == nil {
		cfg.Sleeper = NewDeadlineSleeper()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	s := &Scheduler{
		ctx:       ctx,
		tasks:     append([]Task(nil), tasks...),
		period:    cfg.Period,
		budget:    cfg.Budget,
		watchdog:  cfg.Watchdog,
		heartbeat: cfg.Heartbeat,
		sleeper:   cfg.Sleeper,
		observer:  cfg.Observer,
		now:       cfg.Now,
		log:       ctx.Log.With().Str("component", "sched").Logger(),
		limiter:   rate.NewLimiter(rate.Every(10*time.Second), 1),
	}
	s.slips, _ = cfg.Sleeper.(SlipCounter)
	ctx.sched = s
	return s, nil
}

// Period returns the tick length.
func (s *Scheduler) Period() time.Duration {
	return s.period
}

// Cycle runs exactly one scheduler cycle.
func (s *Scheduler) Cycle() {
	clk := s.ctx.Clock

	s.watchdog.Feed()
	s.setHeartbeat(false)

	for {
		clk.SetFlag(clock.FlagSleeping)
		s.sleeper.Sleep(s.period)
		clk.ClearFlag(clock.FlagSleeping)
		clk.Advance()
		// Something outside this goroutine may ask for another sleep pass by
		// re-asserting the flag; nothing does today.
		if !clk.TestFlag(clock.FlagSleeping) {
			break
		}
	}

	s.setHeartbeat(true)
	s.countSlips()

	start := s.now()
	for _, t := range s.tasks {
		t.RunActiveState(s.ctx)
	}
	elapsed := s.now().Sub(start)

	s.stats.Cycles++
	s.stats.LastTaskTime = elapsed
	if elapsed > s.stats.MaxTaskTime {
		s.stats.MaxTaskTime = elapsed
	}
	overrun := elapsed > s.budget
	if overrun {
		s.stats.Overruns++
		if s.limiter.Allow() {
			s.log.Warn().
				Dur("task_time", elapsed).
				Dur("budget", s.budget).
				Uint64("overruns", s.stats.Overruns).
				Msg("cycle overran budget")
		}
	}
	if s.observer != nil {
		s.observer.ObserveCycle(elapsed, overrun)
	}
}

// Run cycles until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	s.log.Info().
		Dur("period", s.period).
		Dur("budget", s.budget).
		Int("tasks", len(s.tasks)).
		Msg("scheduler running")

	for {
		select {
		case <-ctx.Done():
			s.log.Info().Uint64("cycles", s.stats.Cycles).Msg("scheduler stopped")
			return nil
		default:
		}
		s.Cycle()
	}
}

// Stats returns a copy of the cycle statistics. Must be called from the
// scheduler goroutine (tasks do this through Context.Stats).
func (s *Scheduler) Stats() Stats {
	return s.stats
}

// Tasks returns the task table with current states.
func (s *Scheduler) Tasks() []TaskInfo {
	out := make([]TaskInfo, len(s.tasks))
	for i, t := range s.tasks {
		out[i] = TaskInfo{Name: t.Name(), State: t.State()}
	}
	return out
}

func (s *Scheduler) countSlips() {
	if s.slips == nil {
		return
	}
	n := s.slips.Slips()
	if n == s.stats.Slips {
		return
	}
	s.stats.Slips = n
	if s.limiter.Allow() {
		s.log.Warn().Uint64("slips", n).Msg("tick schedule slipped")
	}
}

func (s *Scheduler) setHeartbeat(on bool) {
	if s.heartbeat == nil {
		return
	}
	var err error
	if on {
		err = s.heartbeat.Assert()
	} else {
		err = s.heartbeat.Deassert()
	}
	if err != nil && s.limiter.Allow() {
		s.log.Warn().Err(err).Msg("heartbeat write failed")
	}
}
