// Package status holds the snapshots the control loops publish for the HTTP
// surface and the tracker that shares them across goroutines.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/wall-heater/internal/eventlog"
	"github.com/sweeney/wall-heater/internal/logic"
)

// DeviceSnapshot is a point-in-time view of the relay process.
// It is a value type; safe to use after the lock is released.
type DeviceSnapshot struct {
	RelayOn         bool
	HostOnline      bool
	LastHeartbeatAt time.Time
	Session         logic.ReconnectState
	MQTTConnected   bool
	MQTTError       string
	Broker          string
	Events          []eventlog.Entry
	StartTime       time.Time
	Now             time.Time
}

// HostSnapshot is a point-in-time view of the controller process.
type HostSnapshot struct {
	Temperature     float64
	Humidity        float64
	MeasuredAt      time.Time
	SensorError     string
	Target          float64
	Day             bool
	HeaterOn        bool
	DeviceOnline    bool
	MQTTConnected   bool
	LastHeartbeatAt time.Time
	Config          logic.ControlConfig
	Events          []eventlog.Entry
	StartTime       time.Time
	Now             time.Time
}

// Uptime returns the duration since the process started.
func (s DeviceSnapshot) Uptime() time.Duration { return s.Now.Sub(s.StartTime) }

// Uptime returns the duration since the process started.
func (s HostSnapshot) Uptime() time.Duration { return s.Now.Sub(s.StartTime) }

// Tracker holds the latest snapshot behind an RWMutex. The control loop is
// the only writer; HTTP handlers read.
type Tracker[T any] struct {
	mu   sync.RWMutex
	snap T
}

// NewTracker creates a Tracker holding initial.
func NewTracker[T any](initial T) *Tracker[T] {
	return &Tracker[T]{snap: initial}
}

// Set replaces the snapshot.
func (t *Tracker[T]) Set(snap T) {
	t.mu.Lock()
	t.snap = snap
	t.mu.Unlock()
}

// Snapshot returns a copy of the latest snapshot.
func (t *Tracker[T]) Snapshot() T {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.snap
}
