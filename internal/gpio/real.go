//go:build linux

package gpio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// RealOutput drives an actual GPIO line through the Linux GPIO character device.
type RealOutput struct {
	line   *gpiocdev.Line
	offset int
}

// NewRealOutput requests the given line offset on chip as an output, initially
// driven low.
func NewRealOutput(chip string, offset int) (*RealOutput, error) {
	if chip == "" {
		chip = DefaultChip
	}

	c, err := gpiocdev.NewChip(chip, gpiocdev.WithConsumer(Consumer))
	if err != nil {
		return nil, fmt.Errorf("open gpio chip %s: %w", chip, err)
	}
	// Requested lines keep their own file descriptor, the chip is only needed
	// for the request itself.
	defer c.Close()

	line, err := c.RequestLine(offset, gpiocdev.AsOutput(0))
	if err != nil {
		return nil, fmt.Errorf("request output line %d: %w", offset, err)
	}

	return &RealOutput{line: line, offset: offset}, nil
}

// Assert drives the line high.
func (o *RealOutput) Assert() error {
	if err := o.line.SetValue(1); err != nil {
		return fmt.Errorf("set line %d: %w", o.offset, err)
	}
	return nil
}

// Deassert drives the line low.
func (o *RealOutput) Deassert() error {
	if err := o.line.SetValue(0); err != nil {
		return fmt.Errorf("clear line %d: %w", o.offset, err)
	}
	return nil
}

// Close releases the line.
// Reconfigures it as an input with pull-down (matching Pi boot defaults) before
// closing so an LED is not left lit or floating across a reboot.
func (o *RealOutput) Close() error {
	if o.line == nil {
		return nil
	}

	var errs []error
	if err := o.line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
		errs = append(errs, fmt.Errorf("reconfigure line %d: %w", o.offset, err))
	}
	if err := o.line.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close line %d: %w", o.offset, err))
	}
	o.line = nil

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
