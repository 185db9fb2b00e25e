// Package led contains the timed output channel state machine and the fixed
// registry of channels it runs over.
//
// This package has NO dependency on time, goroutines or the scheduler. Time
// is a stream of Tick calls; each Tick is one scheduler cycle (nominally 1 ms).
// Durations are therefore expressed in ticks.
package led

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sweeney/ledctl/internal/gpio"
)

var (
	// ErrInvalidParameter is returned when a rate or duty cannot be applied.
	// The channel is left exactly as it was.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrInvalidChannel is returned for a channel id outside the registry.
	ErrInvalidChannel = errors.New("invalid channel")
)

// ChannelID identifies a channel. IDs are dense and zero-based.
type ChannelID uint8

// MaxChannels is the largest registry that ChannelID can address.
const MaxChannels = 256

// Level is the logical level of a channel.
type Level uint8

const (
	Off Level = iota
	On
)

func (l Level) String() string {
	if l == On {
		return "ON"
	}
	return "OFF"
}

// Flip returns the opposite level.
func (l Level) Flip() Level {
	if l == On {
		return Off
	}
	return On
}

// Mode selects how Tick treats a channel.
type Mode uint8

const (
	// ModeImmediate channels are only changed by On, Off and Toggle.
	ModeImmediate Mode = iota
	// ModeBlink channels produce a symmetric square wave.
	ModeBlink
	// ModePWM channels are on for Duty ticks out of every Period.
	ModePWM
)

func (m Mode) String() string {
	switch m {
	case ModeImmediate:
		return "IMMEDIATE"
	case ModeBlink:
		return "BLINK"
	case ModePWM:
		return "PWM"
	default:
		return fmt.Sprintf("MODE(%d)", uint8(m))
	}
}

// Polarity maps logical levels onto electrical ones.
type Polarity uint8

const (
	// ActiveHigh outputs are on when driven high.
	ActiveHigh Polarity = iota
	// ActiveLow outputs are on when driven low.
	ActiveLow
)

func (p Polarity) String() string {
	if p == ActiveLow {
		return "active_low"
	}
	return "active_high"
}

// ParsePolarity accepts "active_high"/"high" and "active_low"/"low".
func ParsePolarity(s string) (Polarity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "active_high", "high":
		return ActiveHigh, nil
	case "active_low", "low":
		return ActiveLow, nil
	default:
		return ActiveHigh, fmt.Errorf("unknown polarity %q", s)
	}
}

// Config is the immutable per-channel wiring, set once at startup.
type Config struct {
	Name     string
	Polarity Polarity
	Output   gpio.Output
}

// Control is the mutable per-channel state.
// Every field is a single word so the record can be shared with an interrupt
// context later without multi-field transactions.
type Control struct {
	Mode Mode
	// Period in ticks. 0 means the output is held.
	Period uint32
	// Duty in ticks, meaningful in ModePWM only. Always <= Period.
	Duty uint32
	// Counter is the number of ticks until the next transition.
	Counter uint32
	// Level is the last level written to the output.
	Level Level
	// Transitions counts level changes made by Tick.
	Transitions uint32
}

// ZeroRatePolicy decides what Blink does with a period of 0.
type ZeroRatePolicy uint8

const (
	// ZeroRateFreeze holds the output at its current level in ModeImmediate.
	ZeroRateFreeze ZeroRatePolicy = iota
	// ZeroRateOff turns the output off in ModeImmediate.
	ZeroRateOff
)

func (p ZeroRatePolicy) String() string {
	if p == ZeroRateOff {
		return "off"
	}
	return "freeze"
}

// ParseZeroRatePolicy accepts "freeze" and "off".
func ParseZeroRatePolicy(s string) (ZeroRatePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "freeze":
		return ZeroRateFreeze, nil
	case "off":
		return ZeroRateOff, nil
	default:
		return ZeroRateFreeze, fmt.Errorf("unknown zero rate policy %q", s)
	}
}

// Blink periods in ticks for the classic rate table. Each is twice the
// half-period the reload counts, so 8 Hz is 126 ticks (63 on, 63 off).
const (
	Rate0Hz   uint32 = 0
	Rate0_5Hz uint32 = 2000
	Rate1Hz   uint32 = 1000
	Rate2Hz   uint32 = 500
	Rate4Hz   uint32 = 250
	Rate8Hz   uint32 = 126
)

var namedRates = map[string]uint32{
	"0hz":   Rate0Hz,
	"0.5hz": Rate0_5Hz,
	"1hz":   Rate1Hz,
	"2hz":   Rate2Hz,
	"4hz":   Rate4Hz,
	"8hz":   Rate8Hz,
}

// ParseRate returns the blink period for a named rate: "0hz", "0.5hz",
// "1hz", "2hz", "4hz" or "8hz".
func ParseRate(name string) (uint32, error) {
	period, ok := namedRates[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return 0, fmt.Errorf("%w: unknown rate %q", ErrInvalidParameter, name)
	}
	return period, nil
}

// PWMPeriod is the default PWM period in ticks (50 Hz), fast enough that a
// duty-cycled LED reads as dimmed rather than flickering.
const PWMPeriod uint32 = 20

// PercentOf converts a duty percentage into ticks of period, rounding down.
// It fails with ErrInvalidParameter when pct exceeds 100.
func PercentOf(period, pct uint32) (uint32, error) {
	if pct > 100 {
		return 0, fmt.Errorf("%w: duty_pct %d exceeds 100", ErrInvalidParameter, pct)
	}
	return uint32(uint64(period) * uint64(pct) / 100), nil
}

// halfPeriod is the Blink reload value. Odd periods round down and a period
// of 1 still toggles every tick.
func halfPeriod(period uint32) uint32 {
	h := period / 2
	if h == 0 {
		return 1
	}
	return h
}
