// Package config loads the board description: which outputs exist, how they
// are wired and how the scheduler is tuned.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/sweeney/ledctl/internal/command"
	"github.com/sweeney/ledctl/internal/gpio"
	"github.com/sweeney/ledctl/internal/led"
)

// Output backends.
const (
	BackendGPIO  = "gpio"
	BackendSysfs = "sysfs"
	BackendFake  = "fake"
)

const (
	DefaultTick     = time.Millisecond
	DefaultSelfTest = 500 * time.Millisecond
)

// Output describes one physical output.
type Output struct {
	Backend string `json:"backend,omitempty"`
	Chip    string `json:"chip,omitempty"`
	Line    int    `json:"line,omitempty"`
	Sysfs   string `json:"sysfs,omitempty"`
}

func (o Output) String() string {
	switch o.Backend {
	case BackendSysfs:
		return "sysfs:" + o.Sysfs
	case BackendFake:
		return "fake"
	default:
		return fmt.Sprintf("gpio:%s/%d", o.Chip, o.Line)
	}
}

// Channel is a validated channel entry.
type Channel struct {
	Name     string
	Polarity led.Polarity
	Output   Output
	Initial  *command.Command
}

// Config is a validated board description.
type Config struct {
	Tick      time.Duration
	Budget    time.Duration
	SelfTest  time.Duration
	ZeroRate  led.ZeroRatePolicy
	Heartbeat *Output
	Channels  []Channel
}

// SelfTestTicks converts SelfTest into scheduler ticks.
func (c *Config) SelfTestTicks() uint32 {
	if c.Tick <= 0 {
		return 0
	}
	return uint32(c.SelfTest / c.Tick)
}

// Chips returns the distinct GPIO chips referenced by the board.
func (c *Config) Chips() []string {
	var chips []string
	seen := map[string]bool{}
	add := func(o Output) {
		if o.Backend == BackendGPIO && !seen[o.Chip] {
			seen[o.Chip] = true
			chips = append(chips, o.Chip)
		}
	}
	for _, ch := range c.Channels {
		add(ch.Output)
	}
	if c.Heartbeat != nil {
		add(*c.Heartbeat)
	}
	return chips
}

// InitialCommands returns the initial mode of every channel that has one.
func (c *Config) InitialCommands() []command.Command {
	var out []command.Command
	for _, ch := range c.Channels {
		if ch.Initial != nil {
			out = append(out, *ch.Initial)
		}
	}
	return out
}

// Default is the board used without a config file: the on-board activity
// LED via sysfs.
func Default() *Config {
	return &Config{
		Tick:     DefaultTick,
		Budget:   DefaultTick,
		SelfTest: DefaultSelfTest,
		ZeroRate: led.ZeroRateFreeze,
		Channels: []Channel{
			{
				Name:    "act",
				Output:  Output{Backend: BackendSysfs, Sysfs: "ACT"},
				Initial: &command.Command{Channel: "act", Op: command.OpBlink, PeriodMs: command.Ms(led.Rate1Hz)},
			},
		},
	}
}

// file mirrors the on-disk format.
type file struct {
	Tick      string        `json:"tick"`
	Budget    string        `json:"budget"`
	SelfTest  *string       `json:"self_test"`
	ZeroRate  string        `json:"zero_rate"`
	Heartbeat *Output       `json:"heartbeat_output"`
	Channels  []fileChannel `json:"channels"`
}

type fileChannel struct {
	Name     string `json:"name"`
	Polarity string `json:"polarity"`
	Output
	Initial *fileInitial `json:"initial"`
}

type fileInitial struct {
	Op       command.Op `json:"op"`
	Rate     string     `json:"rate"`
	PeriodMs *uint32    `json:"period_ms"`
	DutyMs   *uint32    `json:"duty_ms"`
	DutyPct  *uint32    `json:"duty_pct"`
}

// Load reads and validates a board file. YAML (.yaml, .yml) and JSON are
// accepted.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(path, data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes and validates a board description. The path's extension
// selects the format.
func Parse(path string, data []byte) (*Config, error) {
	j, format, err := coerceToJSONBytes(path, data)
	if err != nil {
		return nil, err
	}

	var f file
	dec := json.NewDecoder(bytes.NewReader(j))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("decode %s: %w", format, err)
	}
	return f.validate()
}

func (f *file) validate() (*Config, error) {
	cfg := &Config{}
	var err error

	if cfg.Tick, err = parseDurationOrDefault("tick", f.Tick, DefaultTick); err != nil {
		return nil, err
	}
	if cfg.Budget, err = parseDurationOrDefault("budget", f.Budget, cfg.Tick); err != nil {
		return nil, err
	}
	cfg.SelfTest = DefaultSelfTest
	if f.SelfTest != nil {
		if cfg.SelfTest, err = parseDurationField("self_test", *f.SelfTest); err != nil {
			return nil, err
		}
	}
	if cfg.ZeroRate, err = led.ParseZeroRatePolicy(f.ZeroRate); err != nil {
		return nil, fmt.Errorf("zero_rate: %w", err)
	}

	if f.Heartbeat != nil {
		hb := *f.Heartbeat
		if err := validateOutput("heartbeat_output", &hb); err != nil {
			return nil, err
		}
		cfg.Heartbeat = &hb
	}

	if len(f.Channels) == 0 {
		return nil, fmt.Errorf("channels: at least one channel is required")
	}
	if len(f.Channels) > led.MaxChannels {
		return nil, fmt.Errorf("channels: %d exceeds maximum of %d", len(f.Channels), led.MaxChannels)
	}

	names := make(map[string]int, len(f.Channels))
	for i, fc := range f.Channels {
		path := fmt.Sprintf("channels[%d]", i)
		if fc.Name == "" {
			return nil, fmt.Errorf("%s.name: required", path)
		}
		if prev, dup := names[fc.Name]; dup {
			return nil, fmt.Errorf("%s.name: %q already used by channels[%d]", path, fc.Name, prev)
		}
		names[fc.Name] = i

		ch := Channel{Name: fc.Name, Output: fc.Output}
		if ch.Polarity, err = led.ParsePolarity(fc.Polarity); err != nil {
			return nil, fmt.Errorf("%s.polarity: %w", path, err)
		}
		if err := validateOutput(path, &ch.Output); err != nil {
			return nil, err
		}
		if fc.Initial != nil {
			c := command.Command{
				Channel:  fc.Name,
				Op:       fc.Initial.Op,
				Rate:     fc.Initial.Rate,
				PeriodMs: fc.Initial.PeriodMs,
				DutyMs:   fc.Initial.DutyMs,
				DutyPct:  fc.Initial.DutyPct,
			}
			if err := validateInitial(c); err != nil {
				return nil, fmt.Errorf("%s.initial: %w", path, err)
			}
			ch.Initial = &c
		}
		cfg.Channels = append(cfg.Channels, ch)
	}
	return cfg, nil
}

func validateOutput(path string, o *Output) error {
	if o.Backend == "" {
		o.Backend = BackendGPIO
	}
	switch o.Backend {
	case BackendGPIO:
		if o.Chip == "" {
			o.Chip = gpio.DefaultChip
		}
		if o.Line < 0 {
			return fmt.Errorf("%s.line: must be >= 0", path)
		}
	case BackendSysfs:
		if o.Sysfs == "" {
			return fmt.Errorf("%s.sysfs: required for the sysfs backend", path)
		}
	case BackendFake:
	default:
		return fmt.Errorf("%s.backend: unknown backend %q", path, o.Backend)
	}
	return nil
}

func validateInitial(c command.Command) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.Op != command.OpPWM {
		return nil
	}
	period := led.PWMPeriod
	if c.PeriodMs != nil {
		period = *c.PeriodMs
	}
	if period == 0 {
		return fmt.Errorf("%w: pwm period must be > 0", led.ErrInvalidParameter)
	}
	duty, err := c.PWMDuty(period)
	if err != nil {
		return err
	}
	if duty > period {
		return fmt.Errorf("%w: duty %d exceeds period %d", led.ErrInvalidParameter, duty, period)
	}
	return nil
}
