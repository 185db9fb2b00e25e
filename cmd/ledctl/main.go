// Command ledctl drives timed LED channels from a cooperative millisecond
// scheduler and reports their state over MQTT and HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/time/rate"

	"github.com/sweeney/ledctl/internal/bringup"
	"github.com/sweeney/ledctl/internal/clock"
	"github.com/sweeney/ledctl/internal/command"
	"github.com/sweeney/ledctl/internal/led"
	"github.com/sweeney/ledctl/internal/logging"
	"github.com/sweeney/ledctl/internal/metrics"
	"github.com/sweeney/ledctl/internal/mqtt"
	"github.com/sweeney/ledctl/internal/sched"
	"github.com/sweeney/ledctl/internal/status"
	"github.com/sweeney/ledctl/internal/tasks"
	"github.com/sweeney/ledctl/internal/watchdog"
	"github.com/sweeney/ledctl/internal/web"
)

// Watchdog modes accepted by --watchdog.
const (
	watchdogAuto    = "auto"
	watchdogSystemd = "systemd"
	watchdogOff     = "off"
)

const (
	commandQueueSize = 64
	eventQueueSize   = 16
	gpioWait         = 10 * time.Second
	calibrationTicks = 50
)

type options struct {
	configPath string
	broker     string
	clientID   string
	httpAddr   string
	heartbeat  time.Duration
	logLevel   string
	logFormat  string
	watchdog   string
	printState bool
	tick       time.Duration
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:           "ledctl",
		Short:         "Drive timed LED channels from a millisecond scheduler",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(opts)
		},
	}

	bindFlags(cmd.Flags(), opts)
	return cmd
}

func bindFlags(f *pflag.FlagSet, opts *options) {
	f.StringVarP(&opts.configPath, "config", "c", "", "Board file (YAML or JSON); empty uses the on-board activity LED")
	f.StringVar(&opts.broker, "broker", "tcp://192.168.1.200:1883", "MQTT broker address")
	f.StringVar(&opts.clientID, "client-id", mqtt.DefaultClientID, "MQTT client id, also used in topic names")
	f.StringVar(&opts.httpAddr, "http", ":80", "HTTP status address (empty to disable)")
	f.DurationVar(&opts.heartbeat, "heartbeat", 15*time.Minute, "Heartbeat interval (0 to disable)")
	f.StringVar(&opts.logLevel, "log-level", "info", "Log level (trace, debug, info, warn, error)")
	f.StringVar(&opts.logFormat, "log-format", logging.FormatConsole, "Log format (console, json)")
	f.StringVar(&opts.watchdog, "watchdog", watchdogAuto, "Watchdog (auto, systemd, off)")
	f.BoolVar(&opts.printState, "print-state", false, "Print the configured channels and exit")
	f.DurationVar(&opts.tick, "tick", 0, "Override the board's tick period")
}

func run(opts *options) error {
	log, err := logging.New(opts.logLevel, opts.logFormat, os.Stderr)
	if err != nil {
		return err
	}

	board, err := loadBoard(opts.configPath, opts.tick)
	if err != nil {
		return err
	}

	wd, wdTimeout, err := openWatchdog(opts.watchdog, log)
	if err != nil {
		return err
	}

	// Bring-up: everything the scheduler relies on must be in place first.
	err = bringup.Run(context.Background(), log,
		bringup.WatchdogReady(wdTimeout, board.Tick, 100),
		bringup.GPIOReady("/dev", board.Chips(), gpioWait),
		bringup.ClockCalibrated(time.Sleep, time.Now, board.Tick, board.Tick/2, calibrationTicks),
	)
	if err != nil {
		return err
	}

	// Print state mode
	if opts.printState {
		printBoard(os.Stdout, board)
		return nil
	}

	hw, err := openHardware(board)
	if err != nil {
		return err
	}
	defer hw.Close()

	reg, err := led.NewRegistry(hw.configs,
		led.WithZeroRate(board.ZeroRate),
		led.WithWriteErrorHandler(writeErrorLogger(log, hw.configs)),
	)
	if err != nil {
		return fmt.Errorf("build registry: %w", err)
	}

	// Initialize status tracker (before STARTUP so snapshot is available)
	tracker := status.NewTracker(time.Now(), status.Config{
		TickMs:      board.Tick.Milliseconds(),
		BudgetUs:    board.Budget.Microseconds(),
		HeartbeatMs: opts.heartbeat.Milliseconds(),
		Broker:      opts.broker,
		HTTPAddr:    opts.httpAddr,
		Board:       opts.configPath,
		ZeroRate:    board.ZeroRate.String(),
		Watchdog:    watchdogName(wd),
	})
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}
	m := metrics.New(tracker)

	// Initialize MQTT
	queue := command.NewQueue(commandQueueSize)
	client := mqtt.NewRealClient(mqtt.Options{
		Broker:    opts.broker,
		ClientID:  opts.clientID,
		OnCommand: commandHandler(queue, log),
		Log:       log,
	})
	defer client.Close()

	// Scheduler and its fixed task table
	events := make(chan tasks.Event, eventQueueSize)
	ledTask := tasks.NewLED(board.SelfTestTicks(), board.InitialCommands())
	cmdTask := tasks.NewCommand(queue, tasks.DefaultMaxPerCycle)
	cmdTask.HoldUntil(func() bool { return ledTask.State() == sched.StateIdle })
	statusTask := tasks.NewStatus(tasks.StatusConfig{
		Tracker:          tracker,
		Every:            tasks.DefaultPublishEvery,
		HeartbeatSeconds: heartbeatSeconds(opts.heartbeat),
		Events:           events,
		Commands:         cmdTask,
	})
	sctx := &sched.Context{
		Clock:       clock.New(),
		Channels:    reg,
		Log:         log,
		OnTaskError: statusTask.ReportTaskError,
	}
	s, err := sched.New(sctx, sched.Config{
		Period:    board.Tick,
		Budget:    board.Budget,
		Watchdog:  wd,
		Heartbeat: hw.heartbeat,
		Observer:  m,
	},
		ledTask,
		cmdTask,
		statusTask,
	)
	if err != nil {
		return fmt.Errorf("build scheduler: %w", err)
	}

	d := &daemon{
		log:        log,
		publisher:  client,
		mqttStatus: client,
		tracker:    tracker,
		now:        time.Now,
	}
	d.publishStartup()

	// Start HTTP status server
	if opts.httpAddr != "" {
		srv := web.New(opts.httpAddr, tracker, m.Handler())
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error().Err(err).Msg("http server error")
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Info().Str("addr", opts.httpAddr).Msg("http status server listening")
	}

	runCtx, stopSched := context.WithCancel(context.Background())
	defer stopSched()
	schedDone := make(chan error, 1)
	go func() {
		// The scheduler is the only user of the registry; keep it on one
		// OS thread so sleeps are not disturbed by goroutine migration.
		runtime.LockOSThread()
		schedDone <- s.Run(runCtx)
	}()

	if ok, err := watchdog.NotifyReady(); err != nil {
		log.Warn().Err(err).Msg("systemd ready notification failed")
	} else if ok {
		log.Debug().Msg("notified systemd ready")
	}

	log.Info().
		Int("channels", reg.Len()).
		Dur("tick", board.Tick).
		Str("broker", opts.broker).
		Dur("heartbeat", opts.heartbeat).
		Str("watchdog", watchdogName(wd)).
		Msg("started")

	refresh := time.NewTicker(time.Second)
	defer refresh.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	err = d.runLoop(events, refresh.C, sigCh, schedDone, stopSched)

	// The scheduler has stopped, so the registry is ours again.
	for i := 0; i < reg.Len(); i++ {
		reg.Off(led.ChannelID(i))
	}
	return err
}

// daemon holds what the main goroutine needs after the scheduler starts.
type daemon struct {
	log        zerolog.Logger
	publisher  mqtt.Publisher
	mqttStatus mqtt.ConnectionStatus
	tracker    *status.Tracker
	now        func() time.Time
}

func (d *daemon) publishStartup() {
	snap := d.tracker.Snapshot()
	startupEvent := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	}
	if err := d.publisher.PublishSystem(startupEvent); err != nil {
		d.log.Error().Err(err).Msg("failed to publish startup event")
	} else {
		d.log.Info().Msg("published startup event")
	}
}

// runLoop publishes scheduler events until a signal arrives or the
// scheduler exits. It returns only after the scheduler has stopped.
func (d *daemon) runLoop(events <-chan tasks.Event, refresh <-chan time.Time, sig <-chan os.Signal, schedDone <-chan error, stopSched func()) error {
	for {
		select {
		case s := <-sig:
			d.log.Info().Stringer("signal", s).Msg("shutting down")
			signalName := "UNKNOWN"
			if s == syscall.SIGINT {
				signalName = "SIGINT"
			} else if s == syscall.SIGTERM {
				signalName = "SIGTERM"
			}
			if _, err := watchdog.NotifyStopping(); err != nil {
				d.log.Warn().Err(err).Msg("systemd stopping notification failed")
			}

			stopSched()
			err := <-schedDone

			d.refreshConnectivity()
			snap := d.tracker.Snapshot()
			event := mqtt.SystemEvent{
				Timestamp:  d.now(),
				Event:      "SHUTDOWN",
				Reason:     signalName,
				Retained:   true,
				RawPayload: status.FormatStatusEvent(snap, "SHUTDOWN", signalName),
			}
			if perr := d.publisher.PublishSystem(event); perr != nil {
				d.log.Error().Err(perr).Msg("failed to publish shutdown event")
			} else {
				d.log.Info().Msg("published shutdown event")
			}
			return err

		case err := <-schedDone:
			if err == nil {
				err = errors.New("scheduler stopped unexpectedly")
			}
			return err

		case ev := <-events:
			d.handleEvent(ev)

		case <-refresh:
			d.refreshConnectivity()
		}
	}
}

func (d *daemon) handleEvent(ev tasks.Event) {
	d.refreshConnectivity()
	snap := d.tracker.Snapshot()

	out := mqtt.SystemEvent{Timestamp: d.now(), Event: ev.Kind}
	switch ev.Kind {
	case tasks.EventHeartbeat:
		if net := readNetworkInfo(); net != nil {
			d.tracker.SetNetwork(net)
			snap.Network = net
		}
		d.log.Info().
			Dur("uptime", snap.Uptime()).
			Uint32("clock_s", ev.Seconds).
			Int("channels_on", snap.ChannelsOn()).
			Uint64("overruns", snap.Cycles.Overruns).
			Uint64("slips", snap.Cycles.Slips).
			Msg("heartbeat")
		out.RawPayload = status.FormatStatusEvent(snap, ev.Kind, "")

	case tasks.EventTaskError:
		d.log.Error().Str("task", ev.Task).Err(ev.Err).Msg("task error reported")
		out.RawPayload = status.FormatTaskErrorEvent(snap, ev.Task, ev.Err)
		out.Retained = true

	default:
		d.log.Warn().Str("event", ev.Kind).Msg("unknown scheduler event")
		return
	}

	if err := d.publisher.PublishSystem(out); err != nil {
		d.log.Error().Err(err).Str("event", ev.Kind).Msg("publish error")
	}
}

func (d *daemon) refreshConnectivity() {
	if d.mqttStatus != nil {
		d.tracker.SetMQTTConnected(d.mqttStatus.IsConnected())
	}
}

// commandHandler parses MQTT command payloads and queues them for the
// scheduler. It runs on the MQTT client goroutine.
func commandHandler(queue *command.Queue, log zerolog.Logger) mqtt.CommandHandler {
	limiter := rate.NewLimiter(rate.Every(time.Second), 5)
	return func(payload []byte) {
		c, err := command.Parse(payload)
		if err != nil {
			if limiter.Allow() {
				log.Warn().Err(err).Bytes("payload", payload).Msg("ignoring command")
			}
			return
		}
		// Warn once per overflow episode; the queue clears the flag when drained.
		was := queue.Overflowing()
		if queue.Push(c) && !was {
			log.Warn().Uint64("dropped", queue.Dropped()).Msg("command queue full, dropping oldest")
		}
	}
}

// writeErrorLogger reports output write failures without flooding the log;
// a broken line fails on every tick.
func writeErrorLogger(log zerolog.Logger, configs []led.Config) func(led.ChannelID, error) {
	limiter := rate.NewLimiter(rate.Every(10*time.Second), 1)
	return func(id led.ChannelID, err error) {
		if !limiter.Allow() {
			return
		}
		name := ""
		if int(id) < len(configs) {
			name = configs[id].Name
		}
		log.Warn().Str("channel", name).Err(err).Msg("output write failed")
	}
}

func openWatchdog(mode string, log zerolog.Logger) (watchdog.Monitor, time.Duration, error) {
	switch mode {
	case watchdogOff:
		return watchdog.Nop{}, 0, nil
	case watchdogSystemd, watchdogAuto:
		wd, err := watchdog.NewSystemd(log)
		if err == nil {
			return wd, wd.Timeout(), nil
		}
		if mode == watchdogAuto && errors.Is(err, watchdog.ErrNotEnabled) {
			log.Info().Msg("systemd watchdog not configured, running without one")
			return watchdog.Nop{}, 0, nil
		}
		return nil, 0, fmt.Errorf("watchdog: %w", err)
	default:
		return nil, 0, fmt.Errorf("unknown watchdog mode %q", mode)
	}
}

func watchdogName(m watchdog.Monitor) string {
	switch m.(type) {
	case *watchdog.Systemd:
		return watchdogSystemd
	default:
		return watchdogOff
	}
}

func heartbeatSeconds(d time.Duration) uint32 {
	if d <= 0 {
		return 0
	}
	if d < time.Second {
		return 1
	}
	return uint32(d / time.Second)
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}
