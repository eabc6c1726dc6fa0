package status

import (
	"time"

	"github.com/sweeney/wall-heater/internal/eventlog"
	"github.com/sweeney/wall-heater/internal/logic"
)

// DeviceJSON is the JSON envelope for the relay process status.
type DeviceJSON struct {
	Status DeviceInner `json:"status"`
}

// DeviceInner contains the relay status details.
type DeviceInner struct {
	Relay         string           `json:"relay"`
	HostOnline    bool             `json:"host_online"`
	LastHeartbeat string           `json:"last_heartbeat,omitempty"`
	UptimeSeconds int64            `json:"uptime_seconds"`
	StartTime     string           `json:"start_time"`
	Timestamp     string           `json:"timestamp"`
	MQTT          MQTTStatus       `json:"mqtt"`
	Events        []eventlog.Entry `json:"events"`
}

// MQTTStatus reports the broker session.
type MQTTStatus struct {
	Connected     bool   `json:"connected"`
	Broker        string `json:"broker,omitempty"`
	State         string `json:"state,omitempty"`
	Attempts      int    `json:"attempts"`
	CooldownUntil string `json:"cooldown_until,omitempty"`
	Error         string `json:"error,omitempty"`
}

// HostJSON is the JSON envelope for the controller status.
type HostJSON struct {
	Status HostInner `json:"status"`
}

// HostInner contains the controller status details.
type HostInner struct {
	Temperature   *float64            `json:"temperature"`
	Humidity      *float64            `json:"humidity"`
	MeasuredAt    string              `json:"measured_at,omitempty"`
	SensorError   string              `json:"sensor_error,omitempty"`
	Target        float64             `json:"target"`
	Period        string              `json:"period"`
	Heater        string              `json:"heater"`
	DeviceOnline  bool                `json:"device_online"`
	LastHeartbeat string              `json:"last_heartbeat,omitempty"`
	UptimeSeconds int64               `json:"uptime_seconds"`
	StartTime     string              `json:"start_time"`
	Timestamp     string              `json:"timestamp"`
	MQTT          MQTTStatus          `json:"mqtt"`
	Config        logic.ControlConfig `json:"config"`
	Events        []eventlog.Entry    `json:"events"`
}

// NewDeviceJSON renders a device snapshot.
func NewDeviceJSON(s DeviceSnapshot) DeviceJSON {
	return DeviceJSON{Status: DeviceInner{
		Relay:         string(logic.PowerOf(s.RelayOn)),
		HostOnline:    s.HostOnline,
		LastHeartbeat: formatTime(s.LastHeartbeatAt),
		UptimeSeconds: int64(s.Uptime().Seconds()),
		StartTime:     formatTime(s.StartTime),
		Timestamp:     formatTime(s.Now),
		MQTT: MQTTStatus{
			Connected:     s.MQTTConnected,
			Broker:        s.Broker,
			State:         s.Session.Phase.String(),
			Attempts:      s.Session.Attempts,
			CooldownUntil: formatTime(s.Session.CooldownUntil),
			Error:         s.MQTTError,
		},
		Events: nonNil(s.Events),
	}}
}

// NewHostJSON renders a host snapshot. Temperature and humidity are null
// until the first good reading.
func NewHostJSON(s HostSnapshot) HostJSON {
	inner := HostInner{
		MeasuredAt:    formatTime(s.MeasuredAt),
		SensorError:   s.SensorError,
		Target:        s.Target,
		Period:        "night",
		Heater:        string(logic.PowerOf(s.HeaterOn)),
		DeviceOnline:  s.DeviceOnline,
		LastHeartbeat: formatTime(s.LastHeartbeatAt),
		UptimeSeconds: int64(s.Uptime().Seconds()),
		StartTime:     formatTime(s.StartTime),
		Timestamp:     formatTime(s.Now),
		MQTT:          MQTTStatus{Connected: s.MQTTConnected},
		Config:        s.Config,
		Events:        nonNil(s.Events),
	}
	if s.Day {
		inner.Period = "day"
	}
	if !s.MeasuredAt.IsZero() {
		temp, hum := s.Temperature, s.Humidity
		inner.Temperature = &temp
		inner.Humidity = &hum
	}
	return HostJSON{Status: inner}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func nonNil(e []eventlog.Entry) []eventlog.Entry {
	if e == nil {
		return []eventlog.Entry{}
	}
	return e
}
