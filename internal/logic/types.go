// Package logic contains the pure control and liveness state machines for the
// wall heater: the hysteresis decision, both liveness views and the broker
// reconnection policy.
// This package has NO external dependencies (no GPIO, MQTT, OS, or time.Sleep).
// Time is always injectable via time.Time parameters.
package logic

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Power is the heater relay state as carried on the control and state channels.
type Power string

const (
	PowerOn  Power = "ON"
	PowerOff Power = "OFF"
)

// Status channel payloads. StatusOffline doubles as the device's last-will.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// HeartbeatPayload is the opaque ping the host sends on the heartbeat channel.
const HeartbeatPayload = "ping"

// Reference deployment timings.
const (
	DefaultHeartbeatInterval = 30 * time.Second
	DefaultHeartbeatTimeout  = 90 * time.Second
	DefaultRetryInterval     = 5 * time.Second
	DefaultCooldown          = 10 * time.Minute
	DefaultMaxAttempts       = 3
)

// ErrUnknownPayload is returned when a channel carries a payload outside its vocabulary.
var ErrUnknownPayload = errors.New("unknown payload")

// PowerOf converts a relay level to its wire form.
func PowerOf(on bool) Power {
	if on {
		return PowerOn
	}
	return PowerOff
}

// ParsePower parses an "ON"/"OFF" payload.
func ParsePower(payload string) (bool, error) {
	switch Power(strings.TrimSpace(payload)) {
	case PowerOn:
		return true, nil
	case PowerOff:
		return false, nil
	default:
		return false, fmt.Errorf("power %q: %w", payload, ErrUnknownPayload)
	}
}
