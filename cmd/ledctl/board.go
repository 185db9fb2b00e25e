package main

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/sweeney/ledctl/internal/config"
	"github.com/sweeney/ledctl/internal/gpio"
	"github.com/sweeney/ledctl/internal/led"
)

// loadBoard reads the board file, or returns the default board when path is
// empty. A non-zero tick overrides the file's tick (and its budget, if the
// budget was left at one tick).
func loadBoard(path string, tick time.Duration) (*config.Config, error) {
	board := config.Default()
	if path != "" {
		var err error
		if board, err = config.Load(path); err != nil {
			return nil, err
		}
	}
	if tick > 0 {
		if board.Budget == board.Tick {
			board.Budget = tick
		}
		board.Tick = tick
	}
	return board, nil
}

// hardware is the set of opened outputs.
type hardware struct {
	configs   []led.Config
	heartbeat gpio.Output
	opened    []gpio.Output
}

// openHardware opens every output the board names. On error, outputs that
// were already opened are closed again.
func openHardware(board *config.Config) (*hardware, error) {
	hw := &hardware{}
	for _, ch := range board.Channels {
		out, err := openOutput(ch.Output)
		if err != nil {
			hw.Close()
			return nil, fmt.Errorf("channel %s: %w", ch.Name, err)
		}
		hw.opened = append(hw.opened, out)
		hw.configs = append(hw.configs, led.Config{Name: ch.Name, Polarity: ch.Polarity, Output: out})
	}
	if board.Heartbeat != nil {
		out, err := openOutput(*board.Heartbeat)
		if err != nil {
			hw.Close()
			return nil, fmt.Errorf("heartbeat output: %w", err)
		}
		hw.opened = append(hw.opened, out)
		hw.heartbeat = out
	}
	return hw, nil
}

// Close releases every opened output.
func (h *hardware) Close() error {
	var errs []error
	for _, out := range h.opened {
		if err := out.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	h.opened = nil
	return errors.Join(errs...)
}

func openOutput(o config.Output) (gpio.Output, error) {
	switch o.Backend {
	case config.BackendGPIO:
		out, err := gpio.NewRealOutput(o.Chip, o.Line)
		if err != nil {
			return nil, err
		}
		return out, nil
	case config.BackendSysfs:
		out, err := gpio.NewSysfsOutput(gpio.SysfsRoot, o.Sysfs)
		if err != nil {
			return nil, err
		}
		return out, nil
	case config.BackendFake:
		return gpio.NewFakeOutput(), nil
	default:
		return nil, fmt.Errorf("unknown backend %q", o.Backend)
	}
}

func printBoard(w io.Writer, board *config.Config) {
	fmt.Fprintf(w, "tick: %v, budget: %v, zero rate: %s\n", board.Tick, board.Budget, board.ZeroRate)
	for i, ch := range board.Channels {
		fmt.Fprintf(w, "%d %s: %s %s", i, ch.Name, ch.Output, ch.Polarity)
		if ch.Initial != nil {
			fmt.Fprintf(w, " initial=%s", ch.Initial.Op)
			if ch.Initial.Rate != "" {
				fmt.Fprintf(w, " rate=%s", ch.Initial.Rate)
			}
			if ch.Initial.PeriodMs != nil {
				fmt.Fprintf(w, " period=%dms", *ch.Initial.PeriodMs)
			}
		}
		fmt.Fprintln(w)
	}
	if board.Heartbeat != nil {
		fmt.Fprintf(w, "heartbeat: %s\n", board.Heartbeat)
	}
}
