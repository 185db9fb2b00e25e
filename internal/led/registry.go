package led

import (
	"errors"
	"fmt"
)

// errNoOutput is reported through the write error handler when a channel has
// no bound output.
var errNoOutput = errors.New("no output bound")

// Registry is the fixed-size collection of channels. It is owned by a single
// goroutine (the scheduler's); it does no locking of its own.
type Registry struct {
	configs     []Config
	controls    []Control
	writeErrors []uint32
	zeroRate    ZeroRatePolicy
	onError     func(id ChannelID, err error)
}

// Option configures a Registry.
type Option func(*Registry)

// WithZeroRate selects how Blink treats a period of 0.
func WithZeroRate(p ZeroRatePolicy) Option {
	return func(r *Registry) { r.zeroRate = p }
}

// WithWriteErrorHandler installs a hook called when an output write fails.
// The hook runs on the caller's goroutine and must not block.
func WithWriteErrorHandler(fn func(id ChannelID, err error)) Option {
	return func(r *Registry) { r.onError = fn }
}

// NewRegistry builds a registry over configs. Channel i gets ChannelID i.
// Every output is driven to Off so the recorded levels match the hardware.
func NewRegistry(configs []Config, opts ...Option) (*Registry, error) {
	if len(configs) > MaxChannels {
		return nil, fmt.Errorf("%d channels exceeds maximum of %d", len(configs), MaxChannels)
	}

	seen := make(map[string]bool, len(configs))
	for i, c := range configs {
		if c.Name == "" {
			continue
		}
		if seen[c.Name] {
			return nil, fmt.Errorf("channel %d: duplicate name %q", i, c.Name)
		}
		seen[c.Name] = true
	}

	r := &Registry{
		configs:     append([]Config(nil), configs...),
		controls:    make([]Control, len(configs)),
		writeErrors: make([]uint32, len(configs)),
	}
	for _, opt := range opts {
		opt(r)
	}

	for i := range r.controls {
		r.write(ChannelID(i), Off)
	}
	return r, nil
}

// Len returns the number of channels.
func (r *Registry) Len() int {
	return len(r.controls)
}

// Lookup returns the id of the channel with the given name.
func (r *Registry) Lookup(name string) (ChannelID, bool) {
	for i, c := range r.configs {
		if c.Name == name {
			return ChannelID(i), true
		}
	}
	return 0, false
}

// Config returns the wiring of a channel.
func (r *Registry) Config(id ChannelID) (Config, error) {
	if err := r.check(id); err != nil {
		return Config{}, err
	}
	return r.configs[id], nil
}

// Control returns a copy of a channel's control state.
func (r *Registry) Control(id ChannelID) (Control, error) {
	if err := r.check(id); err != nil {
		return Control{}, err
	}
	return r.controls[id], nil
}

// Level returns a channel's current logical level.
func (r *Registry) Level(id ChannelID) (Level, error) {
	if err := r.check(id); err != nil {
		return Off, err
	}
	return r.controls[id].Level, nil
}

// Mode returns a channel's current mode.
func (r *Registry) Mode(id ChannelID) (Mode, error) {
	if err := r.check(id); err != nil {
		return ModeImmediate, err
	}
	return r.controls[id].Mode, nil
}

// On turns a channel on immediately and cancels any Blink or PWM sequence.
func (r *Registry) On(id ChannelID) error {
	if err := r.check(id); err != nil {
		return err
	}
	r.write(id, On)
	r.controls[id].Mode = ModeImmediate
	return nil
}

// Off turns a channel off immediately and cancels any Blink or PWM sequence.
func (r *Registry) Off(id ChannelID) error {
	if err := r.check(id); err != nil {
		return err
	}
	r.write(id, Off)
	r.controls[id].Mode = ModeImmediate
	return nil
}

// Toggle flips a channel immediately and cancels any Blink or PWM sequence.
func (r *Registry) Toggle(id ChannelID) error {
	if err := r.check(id); err != nil {
		return err
	}
	r.write(id, r.controls[id].Level.Flip())
	r.controls[id].Mode = ModeImmediate
	return nil
}

// Blink starts a symmetric square wave with the given period in ticks. The
// level is left alone; the first transition happens half a period from now.
//
// A period of 0 never transitions. What happens to the output depends on the
// registry's ZeroRatePolicy: it is either frozen at its current level or
// turned off. Either way the channel ends up in ModeImmediate.
func (r *Registry) Blink(id ChannelID, period uint32) error {
	if err := r.check(id); err != nil {
		return err
	}

	c := &r.controls[id]
	if period == 0 {
		if r.zeroRate == ZeroRateOff {
			r.write(id, Off)
		}
		c.Mode = ModeImmediate
		c.Period = 0
		c.Counter = 0
		return nil
	}

	c.Mode = ModeBlink
	c.Period = period
	c.Duty = 0
	c.Counter = halfPeriod(period)
	return nil
}

// PWM holds a channel on for duty ticks at the start of every period, then
// off for the rest. It fails with ErrInvalidParameter, changing nothing, when
// period is 0 or duty exceeds period.
//
// A duty of 0 never turns the output on. A duty equal to period never turns it
// off.
func (r *Registry) PWM(id ChannelID, period, duty uint32) error {
	if err := r.check(id); err != nil {
		return err
	}
	if period == 0 {
		return fmt.Errorf("%w: pwm period must be > 0", ErrInvalidParameter)
	}
	if duty > period {
		return fmt.Errorf("%w: duty %d exceeds period %d", ErrInvalidParameter, duty, period)
	}

	c := &r.controls[id]
	c.Mode = ModePWM
	c.Period = period
	c.Duty = duty
	if duty == 0 {
		r.write(id, Off)
		c.Counter = period
		return nil
	}
	r.write(id, On)
	c.Counter = duty
	return nil
}

// Tick advances every Blink and PWM channel by one tick. Channels in
// ModeImmediate are not touched. Called once per scheduler cycle.
func (r *Registry) Tick() {
	for i := range r.controls {
		c := &r.controls[i]
		if c.Mode == ModeImmediate {
			continue
		}
		if c.Counter > 0 {
			c.Counter--
		}
		if c.Counter == 0 {
			r.transition(ChannelID(i))
		}
	}
}

// transition runs when a channel's counter reaches zero.
func (r *Registry) transition(id ChannelID) {
	c := &r.controls[id]
	next := c.Level.Flip()

	switch c.Mode {
	case ModeBlink:
		c.Counter = halfPeriod(c.Period)

	case ModePWM:
		if next == On {
			c.Counter = c.Duty
			if c.Counter == 0 {
				next = Off
				c.Counter = c.Period
			}
		} else {
			c.Counter = c.Period - c.Duty
			if c.Counter == 0 {
				next = On
				c.Counter = c.Duty
			}
		}
	}

	if next != c.Level {
		r.write(id, next)
		c.Transitions++
	}
}

// write drives the output for a logical level under the channel's polarity
// and records it. The recorded level advances even if the write fails.
func (r *Registry) write(id ChannelID, level Level) {
	cfg := r.configs[id]
	r.controls[id].Level = level

	if cfg.Output == nil {
		r.reportError(id, errNoOutput)
		return
	}

	high := (level == On) == (cfg.Polarity == ActiveHigh)
	var err error
	if high {
		err = cfg.Output.Assert()
	} else {
		err = cfg.Output.Deassert()
	}
	if err != nil {
		r.reportError(id, err)
	}
}

func (r *Registry) reportError(id ChannelID, err error) {
	r.writeErrors[id]++
	if r.onError != nil {
		r.onError(id, err)
	}
}

func (r *Registry) check(id ChannelID) error {
	if int(id) >= len(r.controls) {
		return fmt.Errorf("%w: %d (have %d)", ErrInvalidChannel, id, len(r.controls))
	}
	return nil
}

// ChannelState is a point-in-time view of one channel.
type ChannelState struct {
	ID          ChannelID
	Name        string
	Polarity    Polarity
	Control     Control
	WriteErrors uint32
}

// Snapshot copies the state of every channel.
func (r *Registry) Snapshot() []ChannelState {
	out := make([]ChannelState, len(r.controls))
	r.SnapshotInto(out)
	return out
}

// SnapshotInto copies channel state into dst without allocating and returns
// the number of channels copied.
func (r *Registry) SnapshotInto(dst []ChannelState) int {
	n := 0
	for i := range r.controls {
		if n == len(dst) {
			break
		}
		dst[n] = ChannelState{
			ID:          ChannelID(i),
			Name:        r.configs[i].Name,
			Polarity:    r.configs[i].Polarity,
			Control:     r.controls[i],
			WriteErrors: r.writeErrors[i],
		}
		n++
	}
	return n
}
