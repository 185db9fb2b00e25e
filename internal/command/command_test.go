package command

import (
	"errors"
	"testing"

	"github.com/sweeney/ledctl/internal/gpio"
	"github.com/sweeney/ledctl/internal/led"
)

func newRegistry(t *testing.T) (*led.Registry, *gpio.FakeOutput) {
	t.Helper()
	red := gpio.NewFakeOutput()
	r, err := led.NewRegistry([]led.Config{
		{Name: "red", Output: red},
		{Name: "green", Output: gpio.NewFakeOutput()},
	})
	if err != nil {
		t.Fatal(err)
	}
	return r, red
}

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		wantOp  Op
		wantErr bool
	}{
		{"on", `{"channel":"red","op":"on"}`, OpOn, false},
		{"upper case op", `{"channel":"red","op":"OFF"}`, OpOff, false},
		{"toggle", `{"channel":"red","op":"toggle"}`, OpToggle, false},
		{"blink", `{"channel":"red","op":"blink","period_ms":500}`, OpBlink, false},
		{"blink zero", `{"channel":"red","op":"blink","period_ms":0}`, OpBlink, false},
		{"blink rate", `{"channel":"red","op":"blink","rate":"2Hz"}`, OpBlink, false},
		{"unknown rate", `{"channel":"red","op":"blink","rate":"3hz"}`, "", true},
		{"rate without blink", `{"channel":"red","op":"on","rate":"2hz"}`, "", true},
		{"pwm pct", `{"channel":"red","op":"pwm","duty_pct":50}`, OpPWM, false},
		{"pwm ms", `{"channel":"red","op":"pwm","period_ms":20,"duty_ms":5}`, OpPWM, false},
		{"blink without period", `{"channel":"red","op":"blink"}`, "", true},
		{"pwm without duty", `{"channel":"red","op":"pwm","period_ms":20}`, "", true},
		{"missing channel", `{"op":"on"}`, "", true},
		{"missing op", `{"channel":"red"}`, "", true},
		{"unknown op", `{"channel":"red","op":"fade"}`, "", true},
		{"unknown field", `{"channel":"red","op":"on","colour":"blue"}`, "", true},
		{"not json", `on`, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := Parse([]byte(tt.payload))
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidCommand) {
					t.Fatalf("expected ErrInvalidCommand, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if c.Op != tt.wantOp {
				t.Errorf("op: got %q, want %q", c.Op, tt.wantOp)
			}
		})
	}
}

func TestApplyImmediate(t *testing.T) {
	r, red := newRegistry(t)

	if err := Apply(r, Command{Channel: "red", Op: OpOn}); err != nil {
		t.Fatal(err)
	}
	if !red.High {
		t.Error("red should be high after on")
	}
	if err := Apply(r, Command{Channel: "red", Op: OpToggle}); err != nil {
		t.Fatal(err)
	}
	if red.High {
		t.Error("red should be low after toggle")
	}
}

func TestApplyBlink(t *testing.T) {
	r, _ := newRegistry(t)
	if err := Apply(r, Command{Channel: "red", Op: OpBlink, PeriodMs: Ms(led.Rate2Hz)}); err != nil {
		t.Fatal(err)
	}
	ctl, _ := r.Control(0)
	if ctl.Mode != led.ModeBlink || ctl.Period != 500 || ctl.Counter != 250 {
		t.Errorf("unexpected control %+v", ctl)
	}
}

func TestApplyBlinkRate(t *testing.T) {
	tests := []struct {
		name       string
		cmd        Command
		wantPeriod uint32
	}{
		{"named rate", Command{Channel: "red", Op: OpBlink, Rate: "2hz"}, 500},
		{"fastest rate", Command{Channel: "red", Op: OpBlink, Rate: "8hz"}, 126},
		{"period wins", Command{Channel: "red", Op: OpBlink, Rate: "2hz", PeriodMs: Ms(300)}, 300},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _ := newRegistry(t)
			if err := Apply(r, tt.cmd); err != nil {
				t.Fatal(err)
			}
			ctl, _ := r.Control(0)
			if ctl.Mode != led.ModeBlink || ctl.Period != tt.wantPeriod || ctl.Counter != tt.wantPeriod/2 {
				t.Errorf("got %+v, want period=%d", ctl, tt.wantPeriod)
			}
		})
	}
}

func TestApplyPWM(t *testing.T) {
	tests := []struct {
		name       string
		cmd        Command
		wantPeriod uint32
		wantDuty   uint32
	}{
		{"percent of default period", Command{Channel: "red", Op: OpPWM, DutyPct: Ms(25)}, 20, 5},
		{"percent of custom period", Command{Channel: "red", Op: OpPWM, PeriodMs: Ms(100), DutyPct: Ms(30)}, 100, 30},
		{"duty ms wins", Command{Channel: "red", Op: OpPWM, PeriodMs: Ms(10), DutyMs: Ms(3), DutyPct: Ms(90)}, 10, 3},
		{"percent of large period", Command{Channel: "red", Op: OpPWM, PeriodMs: Ms(50000000), DutyPct: Ms(90)}, 50000000, 45000000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _ := newRegistry(t)
			if err := Apply(r, tt.cmd); err != nil {
				t.Fatal(err)
			}
			ctl, _ := r.Control(0)
			if ctl.Mode != led.ModePWM || ctl.Period != tt.wantPeriod || ctl.Duty != tt.wantDuty {
				t.Errorf("got %+v, want period=%d duty=%d", ctl, tt.wantPeriod, tt.wantDuty)
			}
		})
	}
}

func TestApplyErrors(t *testing.T) {
	r, _ := newRegistry(t)

	err := Apply(r, Command{Channel: "blue", Op: OpOn})
	if !errors.Is(err, led.ErrInvalidChannel) {
		t.Errorf("unknown channel: expected ErrInvalidChannel, got %v", err)
	}

	err = Apply(r, Command{Channel: "red", Op: OpPWM, PeriodMs: Ms(10), DutyMs: Ms(11)})
	if !errors.Is(err, led.ErrInvalidParameter) {
		t.Errorf("duty > period: expected ErrInvalidParameter, got %v", err)
	}

	err = Apply(r, Command{Channel: "red", Op: OpPWM, DutyPct: Ms(101)})
	if !errors.Is(err, led.ErrInvalidParameter) {
		t.Errorf("duty_pct > 100: expected ErrInvalidParameter, got %v", err)
	}

	err = Apply(r, Command{Channel: "red", Op: OpBlink, Rate: "3hz"})
	if !errors.Is(err, led.ErrInvalidParameter) {
		t.Errorf("unknown rate: expected ErrInvalidParameter, got %v", err)
	}

	// A rejected command leaves the channel alone.
	ctl, _ := r.Control(0)
	if ctl.Mode != led.ModeImmediate {
		t.Errorf("channel changed by rejected commands: %+v", ctl)
	}
}

func TestCommandString(t *testing.T) {
	c := Command{Channel: "red", Op: OpPWM, PeriodMs: Ms(20), DutyPct: Ms(50)}
	if got := c.String(); got != "red pwm period=20ms duty=50%" {
		t.Errorf("unexpected string %q", got)
	}

	c = Command{Channel: "red", Op: OpBlink, Rate: "4hz"}
	if got := c.String(); got != "red blink rate=4hz" {
		t.Errorf("unexpected string %q", got)
	}
}
