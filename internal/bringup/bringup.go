// Package bringup runs the one-time hardware preparation steps that must
// succeed before the scheduler starts. Every wait here is bounded: a
// condition that never becomes true is reported as ErrHardwareWaitHang
// instead of hanging the process.
package bringup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

// ErrHardwareWaitHang is returned when a bring-up condition is not met
// within its timeout.
var ErrHardwareWaitHang = errors.New("hardware wait timed out")

// DefaultPoll is the polling interval used by the provided steps.
const DefaultPoll = 10 * time.Millisecond

// Step is one bring-up action.
type Step struct {
	Name string
	Run  func(ctx context.Context) error
}

// Run executes steps in order and stops at the first failure.
func Run(ctx context.Context, log zerolog.Logger, steps ...Step) error {
	for _, s := range steps {
		start := time.Now()
		if err := s.Run(ctx); err != nil {
			log.Error().Str("step", s.Name).Err(err).Msg("bring-up failed")
			return fmt.Errorf("bring-up %s: %w", s.Name, err)
		}
		log.Debug().Str("step", s.Name).Dur("took", time.Since(start)).Msg("bring-up step done")
	}
	return nil
}

// WaitUntil polls cond every poll until it returns true, the timeout passes
// (ErrHardwareWaitHang) or ctx is done.
func WaitUntil(ctx context.Context, timeout, poll time.Duration, cond func() bool) error {
	if cond() {
		return nil
	}
	if poll <= 0 {
		poll = DefaultPoll
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			if cond() {
				return nil
			}
			return fmt.Errorf("%w after %v", ErrHardwareWaitHang, timeout)
		case <-ticker.C:
			if cond() {
				return nil
			}
		}
	}
}

// GPIOReady waits for the character device of each chip to appear under
// devDir (normally /dev). udev may create it some time after boot.
func GPIOReady(devDir string, chips []string, timeout time.Duration) Step {
	return Step{
		Name: "gpio",
		Run: func(ctx context.Context) error {
			for _, chip := range chips {
				path := filepath.Join(devDir, chip)
				err := WaitUntil(ctx, timeout, DefaultPoll, func() bool {
					_, err := os.Stat(path)
					return err == nil
				})
				if err != nil {
					return fmt.Errorf("wait for %s: %w", path, err)
				}
			}
			return nil
		},
	}
}

// ClockCalibrated checks that the platform sleep primitive actually delivers
// ticks of roughly period. It sleeps samples times and fails if the mean
// overshoot exceeds tolerance, which would make the tick clock drift.
func ClockCalibrated(sleep func(time.Duration), now func() time.Time, period, tolerance time.Duration, samples int) Step {
	return Step{
		Name: "clock",
		Run: func(ctx context.Context) error {
			if samples <= 0 {
				samples = 1
			}
			start := now()
			for i := 0; i < samples; i++ {
				if err := ctx.Err(); err != nil {
					return err
				}
				sleep(period)
			}
			mean := now().Sub(start) / time.Duration(samples)
			if mean-period > tolerance {
				return fmt.Errorf("sleep of %v takes %v on average (tolerance %v)", period, mean, tolerance)
			}
			return nil
		},
	}
}

// WatchdogReady checks that a configured watchdog timeout leaves room for
// at least minCycles scheduler cycles. A zero timeout means no watchdog.
func WatchdogReady(timeout, period time.Duration, minCycles int) Step {
	return Step{
		Name: "watchdog",
		Run: func(ctx context.Context) error {
			if timeout == 0 {
				return nil
			}
			if timeout < time.Duration(minCycles)*period {
				return fmt.Errorf("watchdog timeout %v is shorter than %d cycles of %v", timeout, minCycles, period)
			}
			return nil
		},
	}
}
