package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/feeding-monitor/internal/log"
	"github.com/sweeney/feeding-monitor/internal/status"
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
	"since": func(now, t time.Time) string {
		if t.IsZero() {
			return "-"
		}
		return now.Sub(t).Truncate(time.Second).String()
	},
	"seconds": func(d time.Duration) string {
		return d.Truncate(time.Second).String()
	},
	"metres": func(f float64) string {
		return fmt.Sprintf("%.3f m", f)
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta http-equiv="refresh" content="5">
<title>Feeding Monitor</title>
<style>
body { font-family: monospace; max-width: 720px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.eating { color: green; font-weight: bold; }
.idle { color: #888; }
.connected { color: green; }
.disconnected { color: red; }
img { width: 100%; }
</style>
</head>
<body>
<h1>Feeding Monitor</h1>

{{if .Streaming}}<img src="/stream" alt="preview">{{end}}

<h2>Animals</h2>
{{if .Animals}}<table>
<tr><th>ID</th><th>State</th><th>Distance</th><th>Since</th></tr>
{{range .Animals}}<tr>
<td>{{.ID}}</td>
<td class="{{if eq .State "EATING"}}eating{{else}}idle{{end}}">{{.State}}</td>
<td>{{metres .MeanDistance}}</td>
<td>{{since $.Now .StartedAt}}</td>
</tr>
{{end}}</table>{{else}}<p>No animals in view.</p>{{end}}

<h2>Bowl</h2>
<table>
<tr><th>Source</th><td>{{.BowlSource}}</td></tr>
<tr><th>Reliable</th><td>{{if .Bowl.Reliable}}yes{{else}}no{{end}} ({{.Bowl.DetectionCount}} detections)</td></tr>
<tr><th>Last seen</th><td>{{if .Bowl.HasPosition}}{{seconds .Bowl.Age}} ago{{else}}never{{end}}</td></tr>
</table>

<h2>Connectivity</h2>
<table>
<tr><th>Camera</th><td class="{{if .Camera.Connected}}connected{{else}}disconnected{{end}}">{{if .Camera.Connected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Frames</th><td>{{.Camera.Frames}} ({{.Camera.Reconnects}} reconnects)</td></tr>
{{if .Camera.LastError}}<tr><th>Last error</th><td>{{.Camera.LastError}}</td></tr>{{end}}
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
<tr><th>Activity API</th><td>{{if .Config.APIEnabled}}enabled ({{.ActiveActivities}} open){{else}}disabled{{end}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>Event Counts</h2>
<table>
<tr><th>Started</th><td>{{.Counts.Starts}}</td></tr>
<tr><th>Ended</th><td>{{.Counts.Ends}}</td></tr>
<tr><th>Forced end</th><td>{{.Counts.ForcedEnds}}</td></tr>
<tr><th>Discarded</th><td>{{.Counts.Discarded}}</td></tr>
<tr><th>Evicted</th><td>{{.Counts.Evicted}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Thresholds</th><td>enter &lt; {{.Config.EnterThreshold}} m, exit &gt; {{.Config.ExitThreshold}} m</td></tr>
<tr><th>Window</th><td>{{.Config.WindowSize}} samples</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a> · <a href="/health">health</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot, streaming bool) {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime    time.Duration
		Streaming bool
	}{
		Snapshot:  snap,
		Uptime:    snap.Uptime(),
		Streaming: streaming,
	}
	if err := indexTmpl.Execute(w, data); err != nil {
		log.Warn("web: render index", "err", err)
	}
}
