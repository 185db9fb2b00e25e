package gpio

import (
	"fmt"
	"os"
	"path/filepath"
)

// SysfsRoot is where the kernel exposes LED class devices.
const SysfsRoot = "/sys/class/leds"

// SysfsOutput drives an on-board LED through the sysfs LED class interface.
// Asserting writes a brightness of 1, deasserting writes 0.
type SysfsOutput struct {
	name           string
	brightnessPath string
}

// NewSysfsOutput opens the named LED under root (SysfsRoot when empty) and
// takes it away from any kernel trigger so the brightness can be set manually.
func NewSysfsOutput(root, name string) (*SysfsOutput, error) {
	if root == "" {
		root = SysfsRoot
	}
	ledPath := filepath.Join(root, name)

	if _, err := os.Stat(ledPath); err != nil {
		return nil, fmt.Errorf("led %q not found at %s: %w", name, ledPath, err)
	}

	triggerPath := filepath.Join(ledPath, "trigger")
	if err := os.WriteFile(triggerPath, []byte("none"), 0644); err != nil {
		return nil, fmt.Errorf("set led %q trigger: %w", name, err)
	}

	return &SysfsOutput{
		name:           name,
		brightnessPath: filepath.Join(ledPath, "brightness"),
	}, nil
}

// Assert sets brightness to 1.
func (s *SysfsOutput) Assert() error {
	return s.write("1")
}

// Deassert sets brightness to 0.
func (s *SysfsOutput) Deassert() error {
	return s.write("0")
}

func (s *SysfsOutput) write(v string) error {
	if err := os.WriteFile(s.brightnessPath, []byte(v), 0644); err != nil {
		return fmt.Errorf("set led %q brightness: %w", s.name, err)
	}
	return nil
}

// Close leaves the LED off.
func (s *SysfsOutput) Close() error {
	return s.write("0")
}
