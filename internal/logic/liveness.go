package logic

import (
	"fmt"
	"strings"
	"time"
)

// DeviceLink is the host's view of the relay device. It is a level driven only
// by retained status markers and the device's last-will, so it never expires
// on its own.
type DeviceLink struct {
	online bool
	since  time.Time
}

// Observe applies a status payload. changed is true when the level flipped.
// Payloads other than "online"/"offline" leave the level untouched.
func (l *DeviceLink) Observe(payload string, now time.Time) (changed bool, err error) {
	var next bool
	switch strings.TrimSpace(payload) {
	case StatusOnline:
		next = true
	case StatusOffline:
		next = false
	default:
		return false, fmt.Errorf("status %q: %w", payload, ErrUnknownPayload)
	}
	if next == l.online {
		return false, nil
	}
	l.online = next
	l.since = now
	return true, nil
}

// Online reports the last observed level. The zero value is offline.
func (l *DeviceLink) Online() bool { return l.online }

// Since returns when the level last changed.
func (l *DeviceLink) Since() time.Time { return l.since }

// HeartbeatMonitor is the device's view of the host. The host counts as online
// from the first heartbeat until no heartbeat has arrived for longer than the
// timeout.
type HeartbeatMonitor struct {
	timeout  time.Duration
	lastSeen time.Time
	online   bool
}

// NewHeartbeatMonitor returns a monitor that starts offline.
func NewHeartbeatMonitor(timeout time.Duration) *HeartbeatMonitor {
	if timeout <= 0 {
		timeout = DefaultHeartbeatTimeout
	}
	return &HeartbeatMonitor{timeout: timeout}
}

// Beat records a heartbeat at now. It returns true when the host transitions
// from offline to online.
func (m *HeartbeatMonitor) Beat(now time.Time) bool {
	m.lastSeen = now
	if m.online {
		return false
	}
	m.online = true
	return true
}

// Check evaluates the timeout at now. It returns true exactly once per
// online-to-offline transition; repeated calls while offline return false.
func (m *HeartbeatMonitor) Check(now time.Time) bool {
	if !m.online {
		return false
	}
	if now.Sub(m.lastSeen) <= m.timeout {
		return false
	}
	m.online = false
	return true
}

// Online reports whether the host is currently considered alive.
func (m *HeartbeatMonitor) Online() bool { return m.online }

// LastSeen returns the time of the most recent heartbeat, zero if none.
func (m *HeartbeatMonitor) LastSeen() time.Time { return m.lastSeen }

// Timeout returns the configured silence limit.
func (m *HeartbeatMonitor) Timeout() time.Duration { return m.timeout }
