package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string        `json:"event,omitempty"`
	Reason        string        `json:"reason,omitempty"`
	Task          string        `json:"task,omitempty"`
	Ready         bool          `json:"ready"`
	TaskError     bool          `json:"task_error"`
	UptimeSeconds int64         `json:"uptime_seconds"`
	StartTime     string        `json:"start_time"`
	Timestamp     string        `json:"timestamp"`
	Clock         ClockJSON     `json:"clock"`
	Cycles        CyclesJSON    `json:"cycles"`
	Channels      []ChannelJSON `json:"channels"`
	Tasks         []TaskJSON    `json:"tasks"`
	Commands      CommandsJSON  `json:"commands"`
	MQTT          MQTTStatus    `json:"mqtt"`
	Network       *NetworkJSON  `json:"network,omitempty"`
	Config        *ConfigJSON   `json:"config,omitempty"`
}

// ClockJSON is the tick clock as last published.
type ClockJSON struct {
	Millis  uint32 `json:"millis"`
	Seconds uint32 `json:"seconds"`
}

// CyclesJSON reports scheduler cycle statistics.
type CyclesJSON struct {
	Count      uint64 `json:"count"`
	Overruns   uint64 `json:"overruns"`
	Slips      uint64 `json:"slips"`
	LastTaskUs int64  `json:"last_task_us"`
	MaxTaskUs  int64  `json:"max_task_us"`
}

// ChannelJSON is one LED channel.
type ChannelJSON struct {
	ID          uint8  `json:"id"`
	Name        string `json:"name"`
	Polarity    string `json:"polarity"`
	Mode        string `json:"mode"`
	Level       string `json:"level"`
	PeriodMs    uint32 `json:"period_ms"`
	DutyMs      uint32 `json:"duty_ms,omitempty"`
	Transitions uint32 `json:"transitions"`
	WriteErrors uint32 `json:"write_errors,omitempty"`
}

// TaskJSON is one scheduler task.
type TaskJSON struct {
	Name  string `json:"name"`
	State string `json:"state"`
}

// CommandsJSON reports operator command counts.
type CommandsJSON struct {
	Applied  uint64 `json:"applied"`
	Rejected uint64 `json:"rejected"`
	Dropped  uint64 `json:"dropped"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	TickMs      int64  `json:"tick_ms"`
	BudgetUs    int64  `json:"budget_us"`
	HeartbeatMs int64  `json:"heartbeat_ms"`
	Broker      string `json:"broker"`
	HTTPAddr    string `json:"http_addr"`
	Board       string `json:"board,omitempty"`
	ZeroRate    string `json:"zero_rate"`
	Watchdog    string `json:"watchdog"`
}

func buildInner(snap Snapshot) StatusInner {
	inner := StatusInner{
		Ready:         snap.Ready(),
		TaskError:     snap.TaskError,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		Clock:         ClockJSON{Millis: snap.Millis, Seconds: snap.Seconds},
		Cycles: CyclesJSON{
			Count:      snap.Cycles.Cycles,
			Overruns:   snap.Cycles.Overruns,
			Slips:      snap.Cycles.Slips,
			LastTaskUs: snap.Cycles.LastTaskTime.Microseconds(),
			MaxTaskUs:  snap.Cycles.MaxTaskTime.Microseconds(),
		},
		Channels: make([]ChannelJSON, 0, len(snap.Channels)),
		Tasks:    make([]TaskJSON, 0, len(snap.Tasks)),
		Commands: CommandsJSON{
			Applied:  snap.Commands.Applied,
			Rejected: snap.Commands.Rejected,
			Dropped:  snap.Commands.Dropped,
		},
		MQTT: MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
	}

	for _, ch := range snap.Channels {
		inner.Channels = append(inner.Channels, ChannelJSON{
			ID:          uint8(ch.ID),
			Name:        ch.Name,
			Polarity:    ch.Polarity.String(),
			Mode:        ch.Control.Mode.String(),
			Level:       ch.Control.Level.String(),
			PeriodMs:    ch.Control.Period,
			DutyMs:      ch.Control.Duty,
			Transitions: ch.Control.Transitions,
			WriteErrors: ch.WriteErrors,
		})
	}
	for _, t := range snap.Tasks {
		inner.Tasks = append(inner.Tasks, TaskJSON{Name: t.Name, State: t.State.String()})
	}

	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
	return inner
}

func buildConfig(snap Snapshot) *ConfigJSON {
	return &ConfigJSON{
		TickMs:      snap.Config.TickMs,
		BudgetUs:    snap.Config.BudgetUs,
		HeartbeatMs: snap.Config.HeartbeatMs,
		Broker:      snap.Config.Broker,
		HTTPAddr:    snap.Config.HTTPAddr,
		Board:       snap.Config.Board,
		ZeroRate:    snap.Config.ZeroRate,
		Watchdog:    snap.Config.Watchdog,
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)
	inner.Config = buildConfig(snap)

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
// Config is only included in STARTUP events.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	if event == "STARTUP" {
		inner.Config = buildConfig(snap)
	}

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}

// FormatTaskErrorEvent returns the JSON status for a TASK_ERROR event.
func FormatTaskErrorEvent(snap Snapshot, task string, err error) []byte {
	inner := buildInner(snap)
	inner.Event = "TASK_ERROR"
	inner.Task = task
	if err != nil {
		inner.Reason = err.Error()
	}

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
