package watchdog

import (
	"errors"
	"fmt"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// ErrNotEnabled is returned when the service manager has not configured a
// watchdog for this process (no WatchdogSec= in the unit).
var ErrNotEnabled = errors.New("systemd watchdog not enabled")

// notifyFunc matches daemon.SdNotify with unsetEnvironment fixed to false.
type notifyFunc func(state string) (bool, error)

// Systemd feeds the systemd service watchdog. If the scheduler stalls longer
// than WatchdogSec, systemd kills and restarts the service.
//
// Feeds are throttled to half the watchdog interval: a cycle runs every
// millisecond but the manager only needs to hear from us a few times per
// timeout window.
type Systemd struct {
	timeout  time.Duration
	interval time.Duration
	last     time.Time
	now      func() time.Time
	notify   notifyFunc
	log      zerolog.Logger
	limiter  *rate.Limiter
	feeds    uint64
}

// NewSystemd returns a monitor for the watchdog configured by the service
// manager, or ErrNotEnabled.
func NewSystemd(log zerolog.Logger) (*Systemd, error) {
	timeout, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		return nil, fmt.Errorf("query systemd watchdog: %w", err)
	}
	if timeout == 0 {
		return nil, ErrNotEnabled
	}
	return newSystemd(timeout, time.Now, func(state string) (bool, error) {
		return daemon.SdNotify(false, state)
	}, log), nil
}

func newSystemd(timeout time.Duration, now func() time.Time, notify notifyFunc, log zerolog.Logger) *Systemd {
	return &Systemd{
		timeout:  timeout,
		interval: timeout / 2,
		now:      now,
		notify:   notify,
		log:      log.With().Str("component", "watchdog").Logger(),
		limiter:  rate.NewLimiter(rate.Every(time.Minute), 1),
	}
}

// Timeout returns the watchdog timeout configured by the service manager.
func (s *Systemd) Timeout() time.Duration {
	return s.timeout
}

// Feeds returns how many WATCHDOG=1 notifications were sent.
func (s *Systemd) Feeds() uint64 {
	return s.feeds
}

// Feed sends WATCHDOG=1 if half the timeout has passed since the last one.
func (s *Systemd) Feed() {
	t := s.now()
	if !s.last.IsZero() && t.Sub(s.last) < s.interval {
		return
	}
	s.last = t

	if _, err := s.notify(daemon.SdNotifyWatchdog); err != nil {
		if s.limiter.Allow() {
			s.log.Warn().Err(err).Msg("watchdog notify failed")
		}
		return
	}
	s.feeds++
}

// NotifyReady tells the service manager that bring-up completed.
func NotifyReady() (bool, error) {
	return daemon.SdNotify(false, daemon.SdNotifyReady)
}

// NotifyStopping tells the service manager that shutdown has begun.
func NotifyStopping() (bool, error) {
	return daemon.SdNotify(false, daemon.SdNotifyStopping)
}
