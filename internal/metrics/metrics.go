// Package metrics exposes Prometheus instruments for both heater processes.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "heater"

// Command outcomes on the device.
const (
	CommandAccepted = "accepted"
	CommandRejected = "rejected"
	CommandInvalid  = "invalid"
)

// Connection attempt outcomes.
const (
	ConnectSuccess = "success"
	ConnectFailure = "failure"
)

// Device holds the relay process instruments.
type Device struct {
	RelayOn         prometheus.Gauge
	HostOnline      prometheus.Gauge
	SessionPhase    prometheus.Gauge
	Heartbeats      prometheus.Counter
	FailSafes       prometheus.Counter
	Commands        *prometheus.CounterVec
	ConnectAttempts *prometheus.CounterVec
	DroppedEvents   prometheus.Counter
}

// NewDevice creates and registers the device instruments on reg.
func NewDevice(reg prometheus.Registerer) *Device {
	m := &Device{
		RelayOn: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "relay_on",
			Help: "1 while the heater relay is driven on.",
		}),
		HostOnline: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "host_online",
			Help: "1 while heartbeats from the controller are current.",
		}),
		SessionPhase: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "mqtt_session_phase",
			Help: "Broker session phase: 0 idle, 1 connecting, 2 connected, 3 backoff, 4 cooling down.",
		}),
		Heartbeats: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "heartbeats_received_total",
			Help: "Heartbeats received from the controller.",
		}),
		FailSafes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "failsafe_activations_total",
			Help: "Times the relay was forced on after losing the controller.",
		}),
		Commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "commands_total",
			Help: "Control commands by outcome.",
		}, []string{"result"}),
		ConnectAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "mqtt_connect_attempts_total",
			Help: "Broker connection attempts by outcome.",
		}, []string{"result"}),
		DroppedEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "dropped_events_total",
			Help: "Inbound events dropped because the queue was full.",
		}),
	}
	reg.MustRegister(m.RelayOn, m.HostOnline, m.SessionPhase, m.Heartbeats,
		m.FailSafes, m.Commands, m.ConnectAttempts, m.DroppedEvents)
	return m
}

// Host holds the controller process instruments.
type Host struct {
	Temperature    prometheus.Gauge
	Humidity       prometheus.Gauge
	Target         prometheus.Gauge
	HeaterOn       prometheus.Gauge
	DeviceOnline   prometheus.Gauge
	SensorErrors   prometheus.Counter
	Commands       *prometheus.CounterVec
	HeartbeatsSent prometheus.Counter
	SkippedCycles  prometheus.Counter
	DroppedEvents  prometheus.Counter
}

// NewHost creates and registers the controller instruments on reg.
func NewHost(reg prometheus.Registerer) *Host {
	m := &Host{
		Temperature: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "temperature_celsius",
			Help: "Last room temperature reading.",
		}),
		Humidity: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "humidity_percent",
			Help: "Last relative humidity reading.",
		}),
		Target: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "target_celsius",
			Help: "Target temperature in effect.",
		}),
		HeaterOn: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "heater_on",
			Help: "1 while the last commanded or reported heater state is on.",
		}),
		DeviceOnline: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "device_online",
			Help: "1 while the relay device reports online.",
		}),
		SensorErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "sensor_errors_total",
			Help: "Failed sensor reads.",
		}),
		Commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "commands_sent_total",
			Help: "Control commands published, by payload.",
		}, []string{"command"}),
		HeartbeatsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "heartbeats_sent_total",
			Help: "Heartbeats published.",
		}),
		SkippedCycles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "skipped_cycles_total",
			Help: "Control cycles skipped because the device was offline.",
		}),
		DroppedEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "dropped_events_total",
			Help: "Inbound events dropped because the queue was full.",
		}),
	}
	reg.MustRegister(m.Temperature, m.Humidity, m.Target, m.HeaterOn, m.DeviceOnline,
		m.SensorErrors, m.Commands, m.HeartbeatsSent, m.SkippedCycles, m.DroppedEvents)
	return m
}

// NewRegistry returns a registry carrying the Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Bool converts a level to a gauge value.
func Bool(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
