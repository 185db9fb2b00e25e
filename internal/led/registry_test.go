package led

import (
	"errors"
	"testing"

	"github.com/sweeney/ledctl/internal/gpio"
)

func newTestRegistry(t *testing.T, n int, opts ...Option) (*Registry, []*gpio.FakeOutput) {
	t.Helper()
	outs := make([]*gpio.FakeOutput, n)
	cfgs := make([]Config, n)
	for i := range cfgs {
		outs[i] = gpio.NewFakeOutput()
		cfgs[i] = Config{Name: string(rune('a' + i)), Output: outs[i]}
	}
	r, err := NewRegistry(cfgs, opts...)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	return r, outs
}

func mustLevel(t *testing.T, r *Registry, id ChannelID) Level {
	t.Helper()
	l, err := r.Level(id)
	if err != nil {
		t.Fatalf("Level(%d): %v", id, err)
	}
	return l
}

func mustMode(t *testing.T, r *Registry, id ChannelID) Mode {
	t.Helper()
	m, err := r.Mode(id)
	if err != nil {
		t.Fatalf("Mode(%d): %v", id, err)
	}
	return m
}

func TestNewRegistryDrivesOutputsOff(t *testing.T) {
	r, outs := newTestRegistry(t, 3)

	if r.Len() != 3 {
		t.Fatalf("expected 3 channels, got %d", r.Len())
	}
	for i, out := range outs {
		if len(out.Writes) != 1 || out.Writes[0] {
			t.Errorf("channel %d: expected one low write, got %v", i, out.Writes)
		}
		c, _ := r.Control(ChannelID(i))
		if c.Mode != ModeImmediate || c.Counter != 0 || c.Level != Off {
			t.Errorf("channel %d: unexpected initial control %+v", i, c)
		}
	}
}

func TestNewRegistryRejectsDuplicateNames(t *testing.T) {
	cfgs := []Config{
		{Name: "red", Output: gpio.NewFakeOutput()},
		{Name: "red", Output: gpio.NewFakeOutput()},
	}
	if _, err := NewRegistry(cfgs); err == nil {
		t.Error("expected error for duplicate channel names")
	}
}

func TestLookup(t *testing.T) {
	r, _ := newTestRegistry(t, 3)

	id, ok := r.Lookup("b")
	if !ok || id != 1 {
		t.Errorf("Lookup(b): got (%d, %v), want (1, true)", id, ok)
	}
	if _, ok := r.Lookup("zzz"); ok {
		t.Error("Lookup of unknown name should fail")
	}
}

func TestInvalidChannel(t *testing.T) {
	r, _ := newTestRegistry(t, 2)

	ops := map[string]func() error{
		"On":     func() error { return r.On(2) },
		"Off":    func() error { return r.Off(2) },
		"Toggle": func() error { return r.Toggle(2) },
		"Blink":  func() error { return r.Blink(2, 10) },
		"PWM":    func() error { return r.PWM(2, 10, 5) },
		"Level":  func() error { _, err := r.Level(2); return err },
	}
	for name, op := range ops {
		t.Run(name, func(t *testing.T) {
			if err := op(); !errors.Is(err, ErrInvalidChannel) {
				t.Errorf("expected ErrInvalidChannel, got %v", err)
			}
		})
	}
}

func TestOnOffPolarity(t *testing.T) {
	high := gpio.NewFakeOutput()
	low := gpio.NewFakeOutput()
	r, err := NewRegistry([]Config{
		{Name: "high", Polarity: ActiveHigh, Output: high},
		{Name: "low", Polarity: ActiveLow, Output: low},
	})
	if err != nil {
		t.Fatal(err)
	}

	// Off on an active-low output drives it high.
	if !low.High {
		t.Error("active-low output should be driven high when off")
	}

	r.On(0)
	r.On(1)
	if !high.High {
		t.Error("active-high output should be high when on")
	}
	if low.High {
		t.Error("active-low output should be low when on")
	}

	r.Off(0)
	r.Off(1)
	if high.High {
		t.Error("active-high output should be low when off")
	}
	if !low.High {
		t.Error("active-low output should be high when off")
	}
}

func TestOnPreemptsAnyMode(t *testing.T) {
	tests := []struct {
		name  string
		setup func(r *Registry)
	}{
		{"from blink", func(r *Registry) { r.Blink(0, 10); r.Tick(); r.Tick() }},
		{"from pwm", func(r *Registry) { r.PWM(0, 20, 5); r.Tick() }},
		{"from pwm off phase", func(r *Registry) {
			r.PWM(0, 20, 5)
			for i := 0; i < 7; i++ {
				r.Tick()
			}
		}},
		{"from immediate off", func(r *Registry) { r.Off(0) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, outs := newTestRegistry(t, 1)
			tt.setup(r)

			if err := r.On(0); err != nil {
				t.Fatalf("On: %v", err)
			}
			if mustLevel(t, r, 0) != On {
				t.Error("expected level ON immediately after On")
			}
			if !outs[0].High {
				t.Error("expected output high immediately after On")
			}
			if mustMode(t, r, 0) != ModeImmediate {
				t.Errorf("expected IMMEDIATE, got %s", mustMode(t, r, 0))
			}

			// No further transitions once immediate.
			for i := 0; i < 50; i++ {
				r.Tick()
			}
			if mustLevel(t, r, 0) != On {
				t.Error("immediate channel changed level on tick")
			}
		})
	}
}

func TestOffPreemptsBlink(t *testing.T) {
	r, outs := newTestRegistry(t, 1)
	r.Blink(0, 4)
	r.Tick()
	r.Tick() // now on

	if mustLevel(t, r, 0) != On {
		t.Fatal("expected blink to have turned channel on")
	}

	r.Off(0)
	if mustLevel(t, r, 0) != Off || outs[0].High {
		t.Error("expected channel off")
	}
	if mustMode(t, r, 0) != ModeImmediate {
		t.Error("expected IMMEDIATE after Off")
	}
}

func TestToggleTwiceRestoresLevel(t *testing.T) {
	for _, start := range []Level{Off, On} {
		t.Run(start.String(), func(t *testing.T) {
			r, outs := newTestRegistry(t, 1)
			if start == On {
				r.On(0)
			}

			r.Toggle(0)
			if mustLevel(t, r, 0) != start.Flip() {
				t.Errorf("first toggle: got %s", mustLevel(t, r, 0))
			}
			if mustMode(t, r, 0) != ModeImmediate {
				t.Error("first toggle: expected IMMEDIATE")
			}

			r.Toggle(0)
			if mustLevel(t, r, 0) != start {
				t.Errorf("second toggle: got %s, want %s", mustLevel(t, r, 0), start)
			}
			if mustMode(t, r, 0) != ModeImmediate {
				t.Error("second toggle: expected IMMEDIATE")
			}
			if outs[0].High != (start == On) {
				t.Error("output does not match level after two toggles")
			}
		})
	}
}

func TestToggleCancelsPWM(t *testing.T) {
	r, _ := newTestRegistry(t, 1)
	r.PWM(0, 10, 3) // on
	r.Toggle(0)

	if mustLevel(t, r, 0) != Off {
		t.Error("toggle from PWM on phase should turn off")
	}
	if mustMode(t, r, 0) != ModeImmediate {
		t.Error("toggle should cancel PWM")
	}
}

func TestBlinkWaveform(t *testing.T) {
	r, outs := newTestRegistry(t, 1)
	if err := r.Blink(0, 10); err != nil {
		t.Fatalf("Blink: %v", err)
	}

	// Level is not changed by Blink itself.
	if mustLevel(t, r, 0) != Off {
		t.Fatal("Blink must not change the level")
	}

	for i := 1; i <= 4; i++ {
		r.Tick()
		if mustLevel(t, r, 0) != Off {
			t.Fatalf("tick %d: flipped early", i)
		}
	}

	r.Tick() // 5
	if mustLevel(t, r, 0) != On {
		t.Fatal("tick 5: expected exactly one flip")
	}
	if outs[0].Edges() != 1 {
		t.Errorf("tick 5: expected 1 edge, got %d", outs[0].Edges())
	}

	for i := 6; i <= 10; i++ {
		r.Tick()
	}
	if mustLevel(t, r, 0) != Off {
		t.Error("tick 10: expected to be back at the original level")
	}
	if outs[0].Edges() != 2 {
		t.Errorf("tick 10: expected 2 edges, got %d", outs[0].Edges())
	}

	c, _ := r.Control(0)
	if c.Transitions != 2 {
		t.Errorf("expected 2 transitions, got %d", c.Transitions)
	}
}

func TestBlinkPeriodRepeats(t *testing.T) {
	r, _ := newTestRegistry(t, 1)
	r.Blink(0, 10)

	var levels []Level
	for i := 0; i < 40; i++ {
		levels = append(levels, mustLevel(t, r, 0))
		r.Tick()
	}
	for i := 10; i < 40; i++ {
		if levels[i] != levels[i-10] {
			t.Fatalf("waveform not periodic at tick %d", i)
		}
	}
}

func TestBlinkFromOnLevel(t *testing.T) {
	r, _ := newTestRegistry(t, 1)
	r.On(0)
	r.Blink(0, 6)

	for i := 0; i < 3; i++ {
		r.Tick()
	}
	if mustLevel(t, r, 0) != Off {
		t.Error("expected first flip to turn the channel off")
	}
}

func TestBlinkOddAndTinyPeriods(t *testing.T) {
	r, _ := newTestRegistry(t, 2)
	r.Blink(0, 125)
	r.Blink(1, 1)

	c, _ := r.Control(0)
	if c.Counter != 62 {
		t.Errorf("odd period: expected counter 62, got %d", c.Counter)
	}

	for i := 1; i <= 4; i++ {
		r.Tick()
		want := Off
		if i%2 == 1 {
			want = On
		}
		if got := mustLevel(t, r, 1); got != want {
			t.Errorf("period 1, tick %d: got %s, want %s", i, got, want)
		}
	}
}

func TestBlinkRestartResetsCounter(t *testing.T) {
	r, _ := newTestRegistry(t, 1)
	r.Blink(0, 10)
	r.Tick()
	r.Tick()
	r.Tick()
	r.Blink(0, 10)

	c, _ := r.Control(0)
	if c.Counter != 5 {
		t.Errorf("expected counter reset to 5, got %d", c.Counter)
	}
}

// A blink period of 0 has no transition behaviour of its own. The policy is
// configurable; both variants are pinned here so a change is deliberate.
func TestBlinkZeroRate(t *testing.T) {
	tests := []struct {
		name   string
		policy ZeroRatePolicy
		want   Level
	}{
		{"freeze keeps level", ZeroRateFreeze, On},
		{"off turns off", ZeroRateOff, Off},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, outs := newTestRegistry(t, 1, WithZeroRate(tt.policy))
			r.Blink(0, 4)
			r.Tick()
			r.Tick() // on

			if err := r.Blink(0, Rate0Hz); err != nil {
				t.Fatalf("Blink(0): %v", err)
			}
			if mustMode(t, r, 0) != ModeImmediate {
				t.Errorf("expected IMMEDIATE, got %s", mustMode(t, r, 0))
			}
			for i := 0; i < 100; i++ {
				r.Tick()
			}
			if got := mustLevel(t, r, 0); got != tt.want {
				t.Errorf("level: got %s, want %s", got, tt.want)
			}
			if outs[0].High != (tt.want == On) {
				t.Error("output does not match level")
			}
		})
	}
}

func TestPWMWaveform(t *testing.T) {
	r, outs := newTestRegistry(t, 1)
	if err := r.PWM(0, 20, 5); err != nil {
		t.Fatalf("PWM: %v", err)
	}
	if !outs[0].High {
		t.Fatal("PWM should assert the output at the start of the period")
	}

	for window := 0; window < 3; window++ {
		on := 0
		for i := 0; i < 20; i++ {
			level := mustLevel(t, r, 0)
			if level == On {
				on++
				if i >= 5 {
					t.Errorf("window %d tick %d: expected OFF", window, i)
				}
			} else if i < 5 {
				t.Errorf("window %d tick %d: expected ON", window, i)
			}
			r.Tick()
		}
		if on != 5 {
			t.Errorf("window %d: expected 5 on ticks, got %d", window, on)
		}
	}
}

func TestPWMFullDutyNeverTurnsOff(t *testing.T) {
	r, outs := newTestRegistry(t, 1)
	r.PWM(0, 10, 10)
	writes := len(outs[0].Writes)

	for i := 0; i < 50; i++ {
		r.Tick()
		if mustLevel(t, r, 0) != On {
			t.Fatalf("tick %d: 100%% duty turned off", i)
		}
	}
	if len(outs[0].Writes) != writes {
		t.Errorf("expected no writes during 100%% duty, got %d", len(outs[0].Writes)-writes)
	}
}

func TestPWMZeroDutyNeverTurnsOn(t *testing.T) {
	r, outs := newTestRegistry(t, 1)
	r.On(0)
	r.PWM(0, 10, 0)

	for i := 0; i < 50; i++ {
		if mustLevel(t, r, 0) != Off {
			t.Fatalf("tick %d: 0%% duty turned on", i)
		}
		r.Tick()
	}
	if outs[0].High {
		t.Error("output should be low")
	}
}

func TestPWMInvalidParametersLeaveStateUnchanged(t *testing.T) {
	tests := []struct {
		name         string
		period, duty uint32
	}{
		{"duty exceeds period", 10, 15},
		{"zero period", 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, outs := newTestRegistry(t, 1)
			r.Blink(0, 10)
			r.Tick()
			r.Tick()

			before, _ := r.Control(0)
			writes := len(outs[0].Writes)

			err := r.PWM(0, tt.period, tt.duty)
			if !errors.Is(err, ErrInvalidParameter) {
				t.Fatalf("expected ErrInvalidParameter, got %v", err)
			}

			after, _ := r.Control(0)
			if after != before {
				t.Errorf("control changed on failure:\nbefore %+v\nafter  %+v", before, after)
			}
			if len(outs[0].Writes) != writes {
				t.Error("output written on failure")
			}
		})
	}
}

func TestPercentOf(t *testing.T) {
	tests := []struct{ period, pct, want uint32 }{
		{PWMPeriod, 0, 0},
		{PWMPeriod, 5, 1},
		{PWMPeriod, 50, 10},
		{PWMPeriod, 100, 20},
		{100, 33, 33},
		{50000000, 90, 45000000},
		{4294967295, 100, 4294967295},
	}
	for _, tt := range tests {
		got, err := PercentOf(tt.period, tt.pct)
		if err != nil {
			t.Fatalf("PercentOf(%d, %d): %v", tt.period, tt.pct, err)
		}
		if got != tt.want {
			t.Errorf("PercentOf(%d, %d): got %d, want %d", tt.period, tt.pct, got, tt.want)
		}
	}
	if _, err := PercentOf(PWMPeriod, 101); !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("expected ErrInvalidParameter above 100%%, got %v", err)
	}
}

func TestParseRate(t *testing.T) {
	tests := []struct {
		name string
		want uint32
	}{
		{"0hz", Rate0Hz},
		{"0.5Hz", Rate0_5Hz},
		{"1hz", Rate1Hz},
		{" 2HZ ", Rate2Hz},
		{"4hz", Rate4Hz},
		{"8hz", Rate8Hz},
	}
	for _, tt := range tests {
		got, err := ParseRate(tt.name)
		if err != nil || got != tt.want {
			t.Errorf("ParseRate(%q): got %d, %v; want %d", tt.name, got, err, tt.want)
		}
	}
	if _, err := ParseRate("3hz"); !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("expected ErrInvalidParameter for an unknown rate, got %v", err)
	}
}

func TestRate8HzMatchesHalfPeriod(t *testing.T) {
	r, _ := newTestRegistry(t, 1)
	r.Blink(0, Rate8Hz)
	c, _ := r.Control(0)
	if c.Counter != 63 {
		t.Errorf("8 Hz: expected 63 ticks per half period, got %d", c.Counter)
	}
}

func TestImmediateChannelsUntouchedByTick(t *testing.T) {
	r, outs := newTestRegistry(t, 2)
	r.On(0)
	r.Blink(1, 2)
	writes := len(outs[0].Writes)

	for i := 0; i < 10; i++ {
		r.Tick()
	}
	if len(outs[0].Writes) != writes {
		t.Error("immediate channel was written by Tick")
	}
	if outs[1].Edges() == 0 {
		t.Error("blinking channel never changed")
	}
}

func TestWriteErrorStillRecordsLevel(t *testing.T) {
	var gotID ChannelID
	var gotErr error
	calls := 0

	r, outs := newTestRegistry(t, 2, WithWriteErrorHandler(func(id ChannelID, err error) {
		calls++
		gotID = id
		gotErr = err
	}))
	outs[1].WriteError = errors.New("bus fault")

	if err := r.On(1); err != nil {
		t.Fatalf("On should not fail on write errors: %v", err)
	}
	if mustLevel(t, r, 1) != On {
		t.Error("level should advance even when the write fails")
	}
	if calls != 1 || gotID != 1 || gotErr == nil {
		t.Errorf("handler: calls=%d id=%d err=%v", calls, gotID, gotErr)
	}

	snap := r.Snapshot()
	if snap[1].WriteErrors != 1 {
		t.Errorf("expected 1 write error, got %d", snap[1].WriteErrors)
	}
}

func TestMissingOutputReportsError(t *testing.T) {
	calls := 0
	r, err := NewRegistry([]Config{{Name: "ghost"}}, WithWriteErrorHandler(func(ChannelID, error) { calls++ }))
	if err != nil {
		t.Fatal(err)
	}
	r.On(0)
	if calls != 2 { // initial off + On
		t.Errorf("expected 2 error reports, got %d", calls)
	}
}

func TestSnapshot(t *testing.T) {
	r, _ := newTestRegistry(t, 3)
	r.On(0)
	r.Blink(1, 100)
	r.PWM(2, 20, 10)

	snap := r.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("expected 3 channels, got %d", len(snap))
	}
	if snap[0].Name != "a" || snap[0].Control.Level != On {
		t.Errorf("channel 0: %+v", snap[0])
	}
	if snap[1].Control.Mode != ModeBlink || snap[1].Control.Period != 100 {
		t.Errorf("channel 1: %+v", snap[1])
	}
	if snap[2].Control.Mode != ModePWM || snap[2].Control.Duty != 10 {
		t.Errorf("channel 2: %+v", snap[2])
	}

	small := make([]ChannelState, 2)
	if n := r.SnapshotInto(small); n != 2 {
		t.Errorf("SnapshotInto: expected 2, got %d", n)
	}
}

func TestParsePolarity(t *testing.T) {
	tests := []struct {
		in      string
		want    Polarity
		wantErr bool
	}{
		{"", ActiveHigh, false},
		{"active_high", ActiveHigh, false},
		{"LOW", ActiveLow, false},
		{"active_low", ActiveLow, false},
		{"sideways", ActiveHigh, true},
	}
	for _, tt := range tests {
		got, err := ParsePolarity(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParsePolarity(%q): err=%v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParsePolarity(%q): got %s, want %s", tt.in, got, tt.want)
		}
	}
}
