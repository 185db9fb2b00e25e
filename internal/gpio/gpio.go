// Package gpio provides digital output lines with hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The sysfs implementation drives on-board LEDs under /sys/class/leds.
// The fake implementation allows testing without hardware.
package gpio

// Output drives a single physical output line.
//
// Assert and Deassert work on the electrical level, not the logical one:
// Assert drives the line high, Deassert drives it low. Callers that care about
// active-low wiring map logical levels onto these themselves. Both calls are
// idempotent and touch only the addressed line.
type Output interface {
	// Assert drives the line electrically high.
	Assert() error

	// Deassert drives the line electrically low.
	Deassert() error

	// Close releases the line.
	Close() error
}

// DefaultChip is the GPIO character device used when none is configured.
const DefaultChip = "gpiochip0"

// Consumer is the label attached to requested lines.
const Consumer = "ledctl"
