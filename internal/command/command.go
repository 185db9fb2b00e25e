// Package command parses operator commands for LED channels and hands them
// from the MQTT goroutine to the scheduler through a bounded queue.
package command

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/sweeney/ledctl/internal/led"
)

// ErrInvalidCommand is returned for payloads that cannot be applied.
var ErrInvalidCommand = errors.New("invalid command")

// Op names a channel operation.
type Op string

const (
	OpOn     Op = "on"
	OpOff    Op = "off"
	OpToggle Op = "toggle"
	OpBlink  Op = "blink"
	OpPWM    Op = "pwm"
)

// Command is one request to change a channel. Times are in milliseconds,
// which equal ticks.
//
// For blink, PeriodMs wins over a named Rate ("2hz"). For pwm, DutyMs wins
// over DutyPct; PeriodMs defaults to led.PWMPeriod.
type Command struct {
	Channel  string  `json:"channel" yaml:"channel"`
	Op       Op      `json:"op" yaml:"op"`
	Rate     string  `json:"rate,omitempty" yaml:"rate,omitempty"`
	PeriodMs *uint32 `json:"period_ms,omitempty" yaml:"period_ms,omitempty"`
	DutyMs   *uint32 `json:"duty_ms,omitempty" yaml:"duty_ms,omitempty"`
	DutyPct  *uint32 `json:"duty_pct,omitempty" yaml:"duty_pct,omitempty"`
}

func (c Command) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s", c.Channel, c.Op)
	if c.Rate != "" {
		fmt.Fprintf(&b, " rate=%s", c.Rate)
	}
	if c.PeriodMs != nil {
		fmt.Fprintf(&b, " period=%dms", *c.PeriodMs)
	}
	if c.DutyMs != nil {
		fmt.Fprintf(&b, " duty=%dms", *c.DutyMs)
	}
	if c.DutyPct != nil {
		fmt.Fprintf(&b, " duty=%d%%", *c.DutyPct)
	}
	return b.String()
}

// Parse decodes a JSON command and checks its shape. It does not know which
// channels exist; Apply reports unknown channels.
func Parse(payload []byte) (Command, error) {
	var c Command
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&c); err != nil {
		return Command{}, fmt.Errorf("%w: %v", ErrInvalidCommand, err)
	}
	c.Op = Op(strings.ToLower(strings.TrimSpace(string(c.Op))))
	if err := c.Validate(); err != nil {
		return Command{}, err
	}
	return c, nil
}

// Validate checks that the command names a channel and a known op with the
// arguments that op needs.
func (c Command) Validate() error {
	if c.Channel == "" {
		return fmt.Errorf("%w: missing channel", ErrInvalidCommand)
	}
	if c.Rate != "" {
		if c.Op != OpBlink {
			return fmt.Errorf("%w: rate only applies to blink", ErrInvalidCommand)
		}
		if _, err := led.ParseRate(c.Rate); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidCommand, err)
		}
	}
	switch c.Op {
	case OpOn, OpOff, OpToggle:
		return nil
	case OpBlink:
		if c.PeriodMs == nil && c.Rate == "" {
			return fmt.Errorf("%w: blink needs period_ms or rate", ErrInvalidCommand)
		}
		return nil
	case OpPWM:
		if c.DutyMs == nil && c.DutyPct == nil {
			return fmt.Errorf("%w: pwm needs duty_ms or duty_pct", ErrInvalidCommand)
		}
		return nil
	case "":
		return fmt.Errorf("%w: missing op", ErrInvalidCommand)
	default:
		return fmt.Errorf("%w: unknown op %q", ErrInvalidCommand, c.Op)
	}
}

// Apply runs the command against the registry. Registry errors
// (led.ErrInvalidParameter) are returned wrapped.
func Apply(r *led.Registry, c Command) error {
	id, ok := r.Lookup(c.Channel)
	if !ok {
		return fmt.Errorf("%w: %q", led.ErrInvalidChannel, c.Channel)
	}

	switch c.Op {
	case OpOn:
		return r.On(id)
	case OpOff:
		return r.Off(id)
	case OpToggle:
		return r.Toggle(id)
	case OpBlink:
		period, err := c.BlinkPeriod()
		if err != nil {
			return err
		}
		return r.Blink(id, period)
	case OpPWM:
		period := led.PWMPeriod
		if c.PeriodMs != nil {
			period = *c.PeriodMs
		}
		duty, err := c.PWMDuty(period)
		if err != nil {
			return err
		}
		return r.PWM(id, period, duty)
	default:
		return fmt.Errorf("%w: unknown op %q", ErrInvalidCommand, c.Op)
	}
}

// BlinkPeriod resolves the blink period in ticks from PeriodMs or Rate.
func (c Command) BlinkPeriod() (uint32, error) {
	switch {
	case c.PeriodMs != nil:
		return *c.PeriodMs, nil
	case c.Rate != "":
		return led.ParseRate(c.Rate)
	default:
		return 0, fmt.Errorf("%w: blink needs period_ms or rate", ErrInvalidCommand)
	}
}

// PWMDuty resolves the pwm duty in ticks of period from DutyMs or DutyPct.
func (c Command) PWMDuty(period uint32) (uint32, error) {
	switch {
	case c.DutyMs != nil:
		return *c.DutyMs, nil
	case c.DutyPct != nil:
		return led.PercentOf(period, *c.DutyPct)
	default:
		return 0, fmt.Errorf("%w: pwm needs duty_ms or duty_pct", ErrInvalidCommand)
	}
}

// Ms is a convenience for building commands in code.
func Ms(v uint32) *uint32 {
	return &v
}
