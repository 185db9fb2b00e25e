package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/sweeney/ledctl/internal/led"
	"github.com/sweeney/ledctl/internal/sched"
	"github.com/sweeney/ledctl/internal/status"
)

var (
	modes  = []led.Mode{led.ModeImmediate, led.ModeBlink, led.ModePWM}
	states = []sched.State{sched.StateInit, sched.StateStarting, sched.StateIdle, sched.StateError}
)

// trackerCollector turns a status snapshot into metrics on every scrape.
type trackerCollector struct {
	tracker *status.Tracker

	level       *prometheus.Desc
	mode        *prometheus.Desc
	transitions *prometheus.Desc
	writeErrors *prometheus.Desc
	taskState   *prometheus.Desc
	commands    *prometheus.Desc
	clockSecs   *prometheus.Desc
	taskError   *prometheus.Desc
	mqtt        *prometheus.Desc
	slips       *prometheus.Desc
}

func newTrackerCollector(tracker *status.Tracker) *trackerCollector {
	desc := func(subsystem, name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, subsystem, name), help, labels, nil)
	}
	return &trackerCollector{
		tracker:     tracker,
		level:       desc("channel", "on", "1 if the channel is currently on", "channel"),
		mode:        desc("channel", "mode", "1 for the channel's current mode", "channel", "mode"),
		transitions: desc("channel", "transitions_total", "Level changes made by timed modes", "channel"),
		writeErrors: desc("channel", "write_errors_total", "Failed output writes", "channel"),
		taskState:   desc("task", "state", "1 for the task's current state", "task", "state"),
		commands:    desc("command", "total", "Operator commands by result", "result"),
		clockSecs:   desc("clock", "seconds", "Tick clock seconds counter"),
		taskError:   desc("", "task_error", "1 if any task is in its error state"),
		mqtt:        desc("mqtt", "connected", "1 if connected to the MQTT broker"),
		slips:       desc("sched", "slips_total", "Times the tick schedule was re-based after a stall"),
	}
}

func (c *trackerCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.level
	ch <- c.mode
	ch <- c.transitions
	ch <- c.writeErrors
	ch <- c.taskState
	ch <- c.commands
	ch <- c.clockSecs
	ch <- c.taskError
	ch <- c.mqtt
	ch <- c.slips
}

func (c *trackerCollector) Collect(ch chan<- prometheus.Metric) {
	snap := c.tracker.Snapshot()

	for _, s := range snap.Channels {
		ch <- prometheus.MustNewConstMetric(c.level, prometheus.GaugeValue, boolValue(s.Control.Level == led.On), s.Name)
		for _, m := range modes {
			ch <- prometheus.MustNewConstMetric(c.mode, prometheus.GaugeValue, boolValue(s.Control.Mode == m), s.Name, m.String())
		}
		ch <- prometheus.MustNewConstMetric(c.transitions, prometheus.CounterValue, float64(s.Control.Transitions), s.Name)
		ch <- prometheus.MustNewConstMetric(c.writeErrors, prometheus.CounterValue, float64(s.WriteErrors), s.Name)
	}

	for _, t := range snap.Tasks {
		for _, st := range states {
			ch <- prometheus.MustNewConstMetric(c.taskState, prometheus.GaugeValue, boolValue(t.State == st), t.Name, st.String())
		}
	}

	ch <- prometheus.MustNewConstMetric(c.commands, prometheus.CounterValue, float64(snap.Commands.Applied), "applied")
	ch <- prometheus.MustNewConstMetric(c.commands, prometheus.CounterValue, float64(snap.Commands.Rejected), "rejected")
	ch <- prometheus.MustNewConstMetric(c.commands, prometheus.CounterValue, float64(snap.Commands.Dropped), "dropped")
	ch <- prometheus.MustNewConstMetric(c.clockSecs, prometheus.GaugeValue, float64(snap.Seconds))
	ch <- prometheus.MustNewConstMetric(c.taskError, prometheus.GaugeValue, boolValue(snap.TaskError))
	ch <- prometheus.MustNewConstMetric(c.mqtt, prometheus.GaugeValue, boolValue(snap.MQTTConnected))
	ch <- prometheus.MustNewConstMetric(c.slips, prometheus.CounterValue, float64(snap.Cycles.Slips))
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
