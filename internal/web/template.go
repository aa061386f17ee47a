package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/virtual-sensor/internal/status"
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
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Virtual Sensor</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.on { color: green; font-weight: bold; }
.off { color: #888; }
.connected { color: green; }
.disconnected { color: red; }
.pending { color: orange; }
</style>
</head>
<body>
<h1>Virtual Sensor</h1>
{{$state := printf "%s" .Conn.State}}
<h2>Connection</h2>
<table>
<tr><th>State</th><td class="{{if eq $state "connected"}}connected{{else if eq $state "connecting"}}pending{{else}}disconnected{{end}}">{{$state}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
<tr><th>Retries</th><td>{{.Conn.Retries}}</td></tr>
{{if .Conn.LastError}}<tr><th>Last error</th><td>{{.Conn.LastError}}</td></tr>{{end}}
</table>

<h2>Configuration</h2>
<table>
<tr><th>Publish interval</th><td>{{.Settings.Interval}}</td></tr>
<tr><th>Publishing</th><td class="{{if .Settings.Enabled}}on{{else}}off{{end}}">{{if .Settings.Enabled}}enabled{{else}}disabled{{end}}</td></tr>
<tr><th>Firmware</th><td>{{.Settings.FirmwareVersion}}</td></tr>
</table>

<h2>Counters</h2>
<table>
<tr><th>Published</th><td>{{.Counters.Published}}</td></tr>
<tr><th>Publish failures</th><td>{{.Counters.PublishFailures}}</td></tr>
<tr><th>Skipped while offline</th><td>{{.Counters.PublishSkipped}}</td></tr>
<tr><th>Updates applied</th><td>{{.Counters.UpdatesApplied}}</td></tr>
<tr><th>Updates rejected</th><td>{{.Counters.UpdatesRejected}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Device</th><td>{{.Config.DeviceName}}</td></tr>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.ListenAddr}}</td></tr>
{{if .Config.LogFile}}<tr><th>Log file</th><td>{{.Config.LogFile}}</td></tr>{{end}}
</table>

<p><a href="/index.json">JSON</a>{{if .MetricsEnabled}} | <a href="/metrics">Metrics</a>{{end}}</p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot, metricsEnabled bool) {
	// Snapshot has Uptime() method but the template needs a Duration
	// field.
	data := struct {
		status.Snapshot
		Uptime         time.Duration
		MetricsEnabled bool
	}{
		Snapshot:       snap,
		Uptime:         snap.Uptime(),
		MetricsEnabled: metricsEnabled,
	}
	indexTmpl.Execute(w, data)
}
