package gpio

import (
	"fmt"
	"os"
)

// DefaultLEDTrigger is the sysfs trigger of the board's status LED.
const DefaultLEDTrigger = "/sys/class/leds/bat1/trigger"

// LED triggers written to show the heater state.
const (
	TriggerHeating = "heartbeat"
	TriggerIdle    = "none"
)

// LED mirrors the heater state on a sysfs LED: blinking while heating, dark otherwise.
type LED struct {
	path string
}

// NewLED returns an LED writing to the given trigger file. An empty path
// disables the indicator.
func NewLED(path string) *LED {
	return &LED{path: path}
}

// Set writes the trigger for the given heater state.
func (l *LED) Set(on bool) error {
	if l.path == "" {
		return nil
	}
	trigger := TriggerIdle
	if on {
		trigger = TriggerHeating
	}
	if err := os.WriteFile(l.path, []byte(trigger), 0o644); err != nil {
		return fmt.Errorf("write led trigger %s: %w", l.path, err)
	}
	return nil
}
