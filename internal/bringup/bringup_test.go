package bringup

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestWaitUntilImmediate(t *testing.T) {
	calls := 0
	err := WaitUntil(context.Background(), time.Second, time.Millisecond, func() bool {
		calls++
		return true
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestWaitUntilEventually(t *testing.T) {
	calls := 0
	err := WaitUntil(context.Background(), time.Second, time.Millisecond, func() bool {
		calls++
		return calls >= 3
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestWaitUntilTimesOut(t *testing.T) {
	err := WaitUntil(context.Background(), 20*time.Millisecond, time.Millisecond, func() bool {
		return false
	})
	if !errors.Is(err, ErrHardwareWaitHang) {
		t.Errorf("expected ErrHardwareWaitHang, got %v", err)
	}
}

func TestWaitUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := WaitUntil(ctx, time.Minute, time.Millisecond, func() bool { return false })
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestRunStopsAtFirstFailure(t *testing.T) {
	var ran []string
	step := func(name string, err error) Step {
		return Step{Name: name, Run: func(context.Context) error {
			ran = append(ran, name)
			return err
		}}
	}

	err := Run(context.Background(), zerolog.Nop(),
		step("watchdog", nil),
		step("clock", ErrHardwareWaitHang),
		step("gpio", nil),
	)
	if !errors.Is(err, ErrHardwareWaitHang) {
		t.Fatalf("expected wrapped ErrHardwareWaitHang, got %v", err)
	}
	if !strings.Contains(err.Error(), "clock") {
		t.Errorf("error should name the failing step: %v", err)
	}
	if len(ran) != 2 {
		t.Errorf("expected 2 steps to run, got %v", ran)
	}
}

func TestGPIOReady(t *testing.T) {
	dev := t.TempDir()
	if err := os.WriteFile(filepath.Join(dev, "gpiochip0"), nil, 0644); err != nil {
		t.Fatal(err)
	}

	ok := GPIOReady(dev, []string{"gpiochip0"}, 50*time.Millisecond)
	if err := ok.Run(context.Background()); err != nil {
		t.Errorf("expected present chip to pass: %v", err)
	}

	missing := GPIOReady(dev, []string{"gpiochip0", "gpiochip9"}, 30*time.Millisecond)
	if err := missing.Run(context.Background()); !errors.Is(err, ErrHardwareWaitHang) {
		t.Errorf("expected ErrHardwareWaitHang for missing chip, got %v", err)
	}
}

func TestGPIOReadyAppearsLater(t *testing.T) {
	dev := t.TempDir()
	path := filepath.Join(dev, "gpiochip1")
	go func() {
		time.Sleep(20 * time.Millisecond)
		os.WriteFile(path, nil, 0644)
	}()

	step := GPIOReady(dev, []string{"gpiochip1"}, 2*time.Second)
	if err := step.Run(context.Background()); err != nil {
		t.Errorf("expected chip to be found once created: %v", err)
	}
}

type fakeTime struct {
	t        time.Time
	overshot time.Duration
}

func (f *fakeTime) now() time.Time { return f.t }
func (f *fakeTime) sleep(d time.Duration) {
	f.t = f.t.Add(d + f.overshot)
}

func TestClockCalibrated(t *testing.T) {
	good := &fakeTime{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), overshot: 50 * time.Microsecond}
	step := ClockCalibrated(good.sleep, good.now, time.Millisecond, 200*time.Microsecond, 20)
	if err := step.Run(context.Background()); err != nil {
		t.Errorf("expected calibration to pass: %v", err)
	}

	slow := &fakeTime{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), overshot: time.Millisecond}
	step = ClockCalibrated(slow.sleep, slow.now, time.Millisecond, 200*time.Microsecond, 20)
	if err := step.Run(context.Background()); err == nil {
		t.Error("expected calibration to fail for a 2x slow sleep")
	}
}

func TestWatchdogReady(t *testing.T) {
	tests := []struct {
		name    string
		timeout time.Duration
		wantErr bool
	}{
		{"disabled", 0, false},
		{"plenty", 10 * time.Second, false},
		{"too short", 5 * time.Millisecond, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := WatchdogReady(tt.timeout, time.Millisecond, 100).Run(context.Background())
			if (err != nil) != tt.wantErr {
				t.Errorf("err=%v, wantErr=%v", err, tt.wantErr)
			}
		})
	}
}
