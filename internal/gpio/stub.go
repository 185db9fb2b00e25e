//go:build !linux

package gpio

import "errors"

// RealOutput is not available on non-Linux platforms.
type RealOutput struct{}

// NewRealOutput returns an error on non-Linux platforms.
func NewRealOutput(chip string, offset int) (*RealOutput, error) {
	return nil, errors.New("gpio: not supported on this platform (requires Linux)")
}

// Assert is not implemented on non-Linux platforms.
func (o *RealOutput) Assert() error {
	return errors.New("gpio: not supported")
}

// Deassert is not implemented on non-Linux platforms.
func (o *RealOutput) Deassert() error {
	return errors.New("gpio: not supported")
}

// Close is not implemented on non-Linux platforms.
func (o *RealOutput) Close() error {
	return nil
}
