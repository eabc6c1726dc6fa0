package web

import (
	"bytes"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

var funcs = template.FuncMap{
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
	"onoff": func(b bool) string {
		if b {
			return "ON"
		}
		return "OFF"
	},
	"clock": func(t time.Time) string {
		if t.IsZero() {
			return "never"
		}
		return t.UTC().Format("2006-01-02 15:04:05")
	},
}

var (
	deviceTmpl = template.Must(template.New("device").Funcs(funcs).Parse(layoutHTML + deviceHTML))
	hostTmpl   = template.Must(template.New("host").Funcs(funcs).Parse(layoutHTML + hostHTML))
)

// renderPage executes tmpl into a buffer first so a template error becomes
// a 500 instead of a truncated page.
func renderPage(c *gin.Context, tmpl *template.Template, data any) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		c.String(http.StatusInternalServerError, "render: %v", err)
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", buf.Bytes())
}

const layoutHTML = `{{define "head"}}<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta http-equiv="refresh" content="10">
<title>{{.}}</title>
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
</style>
<script>
function post(path, body) {
  fetch(path, {method: "POST", headers: {"Content-Type": "application/json"}, body: JSON.stringify(body || {})})
    .then(function () { setTimeout(function () { location.reload(); }, 1500); });
  return false;
}
</script>
</head>
<body>{{end}}
{{define "events"}}<h2>Recent Events</h2>
<table>
{{range .}}<tr><td>{{clock .Time}}</td><td>{{.Message}}</td></tr>
{{else}}<tr><td colspan="2">none</td></tr>
{{end}}</table>
</body>
</html>{{end}}`

const deviceHTML = `{{template "head" "Heater Relay"}}
<h1>Heater Relay</h1>

<h2>Relay</h2>
<table>
<tr><th>Relay</th><td class="{{if .RelayOn}}on{{else}}off{{end}}">{{onoff .RelayOn}}</td></tr>
<tr><th>Host</th><td class="{{if .HostOnline}}connected{{else}}disconnected{{end}}">{{if .HostOnline}}online{{else}}offline{{end}}</td></tr>
<tr><th>Last heartbeat</th><td>{{clock .LastHeartbeatAt}}</td></tr>
</table>
<button onclick="return post('/api/toggle')">Toggle</button>

<h2>MQTT</h2>
<table>
<tr><th>Broker</th><td>{{.Broker}}</td></tr>
<tr><th>Session</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{.Session.Phase}}</td></tr>
<tr><th>Failed attempts</th><td>{{.Session.Attempts}}</td></tr>
{{if not .Session.CooldownUntil.IsZero}}<tr><th>Cooling down until</th><td>{{clock .Session.CooldownUntil}}</td></tr>{{end}}
{{if .MQTTError}}<tr><th>Last error</th><td>{{.MQTTError}}</td></tr>{{end}}
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
</table>
<button onclick="return post('/api/mqtt/reconnect')">Reset reconnection</button>

<h2>Broker</h2>
<form onsubmit="return post('/api/mqtt/save', {server: this.server.value, port: parseInt(this.port.value, 10) || 0, username: this.username.value, password: this.password.value})">
<table>
<tr><th>Server</th><td><input name="server" required></td></tr>
<tr><th>Port</th><td><input name="port" type="number" value="1883"></td></tr>
<tr><th>Username</th><td><input name="username"></td></tr>
<tr><th>Password</th><td><input name="password" type="password"></td></tr>
</table>
<button type="submit">Save and reconnect</button>
</form>

{{template "events" .Events}}`

const hostHTML = `{{template "head" "Heater Control"}}
<h1>Heater Control</h1>

<h2>Room</h2>
<table>
<tr><th>Temperature</th><td>{{if .MeasuredAt.IsZero}}unknown{{else}}{{printf "%.1f" .Temperature}}&deg;C{{end}}</td></tr>
<tr><th>Humidity</th><td>{{if .MeasuredAt.IsZero}}unknown{{else}}{{printf "%.0f" .Humidity}}%{{end}}</td></tr>
{{if .SensorError}}<tr><th>Sensor error</th><td class="disconnected">{{.SensorError}}</td></tr>{{end}}
<tr><th>Target</th><td>{{printf "%.1f" .Target}}&deg;C ({{if .Day}}day{{else}}night{{end}})</td></tr>
<tr><th>Heater</th><td class="{{if .HeaterOn}}on{{else}}off{{end}}">{{onoff .HeaterOn}}</td></tr>
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Relay device</th><td class="{{if .DeviceOnline}}connected{{else}}disconnected{{end}}">{{if .DeviceOnline}}online{{else}}offline{{end}}</td></tr>
<tr><th>Last heartbeat sent</th><td>{{clock .LastHeartbeatAt}}</td></tr>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
</table>

<h2>Settings</h2>
<form onsubmit="return post('/api/settings', {day_temp_target: parseFloat(this.day.value), night_temp_target: parseFloat(this.night.value), hysteresis: parseFloat(this.hyst.value), day_start_hour: parseInt(this.ds.value, 10), night_start_hour: parseInt(this.ns.value, 10)})">
<table>
<tr><th>Day target</th><td><input name="day" type="number" step="0.1" value="{{.Config.DayTarget}}"></td></tr>
<tr><th>Night target</th><td><input name="night" type="number" step="0.1" value="{{.Config.NightTarget}}"></td></tr>
<tr><th>Hysteresis</th><td><input name="hyst" type="number" step="0.1" value="{{.Config.Hysteresis}}"></td></tr>
<tr><th>Day starts</th><td><input name="ds" type="number" min="0" max="23" value="{{.Config.DayStartHour}}"></td></tr>
<tr><th>Night starts</th><td><input name="ns" type="number" min="0" max="23" value="{{.Config.NightStartHour}}"></td></tr>
</table>
<button type="submit">Save</button>
</form>

{{template "events" .Events}}`
