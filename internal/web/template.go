package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/ledctl/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		if days > 0 {
			return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
		}
		if h > 0 {
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		}
		if m > 0 {
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
	"class": func(s fmt.Stringer) string {
		switch v := s.String(); v {
		case "ON":
			return "on"
		case "ERROR":
			return "error"
		default:
			return "off"
		}
	},
	"us": func(d time.Duration) int64 {
		return d.Microseconds()
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>ledctl</title>
<style>
body { font-family: monospace; max-width: 700px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
.on { color: green; font-weight: bold; }
.off { color: #888; }
.error { color: red; font-weight: bold; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>ledctl{{if .TaskError}} <span class="error">task error</span>{{end}}</h1>

<h2>Channels</h2>
{{if .Channels}}<table>
<tr><th>Name</th><th>Mode</th><th>Level</th><th>Period</th><th>Duty</th><th>Edges</th></tr>
{{range .Channels}}<tr><td>{{.Name}}</td><td>{{.Control.Mode}}</td><td class="{{class .Control.Level}}">{{.Control.Level}}</td><td>{{if .Control.Period}}{{.Control.Period}}ms{{else}}-{{end}}</td><td>{{if .Control.Duty}}{{.Control.Duty}}ms{{else}}-{{end}}</td><td>{{.Control.Transitions}}{{if .WriteErrors}} ({{.WriteErrors}} write errors){{end}}</td></tr>
{{end}}</table>{{else}}<p>Waiting for scheduler.</p>{{end}}

<h2>Tasks</h2>
<table>
{{range .Tasks}}<tr><th>{{.Name}}</th><td class="{{class .State}}">{{.State}}</td></tr>
{{end}}</table>

<h2>Scheduler</h2>
<table>
<tr><th>Clock</th><td>{{.Seconds}}s ({{.Millis}} ticks)</td></tr>
<tr><th>Cycles</th><td>{{.Cycles.Cycles}}</td></tr>
<tr><th>Overruns</th><td>{{.Cycles.Overruns}}</td></tr>
<tr><th>Slips</th><td>{{.Cycles.Slips}}</td></tr>
<tr><th>Task time</th><td>last {{us .Cycles.LastTaskTime}}us, max {{us .Cycles.MaxTaskTime}}us</td></tr>
<tr><th>Commands</th><td>{{.Commands.Applied}} applied, {{.Commands.Rejected}} rejected, {{.Commands.Dropped}} dropped</td></tr>
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Tick</th><td>{{.Config.TickMs}}ms (budget {{.Config.BudgetUs}}us)</td></tr>
<tr><th>Zero rate</th><td>{{.Config.ZeroRate}}</td></tr>
<tr><th>Watchdog</th><td>{{.Config.Watchdog}}</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
{{if .Config.Board}}<tr><th>Board</th><td>{{.Config.Board}}</td></tr>{{end}}
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a> | <a href="/metrics">metrics</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime time.Duration
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
	}
	indexTmpl.Execute(w, data)
}
