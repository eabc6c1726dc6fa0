package device

import (
	"fmt"

	"github.com/sweeney/wall-heater/internal/gpio"
	"github.com/sweeney/wall-heater/internal/logic"
)

// Actuator is the only writer of the relay line. Every applied level is
// handed to report so the broker holds the ground truth.
type Actuator struct {
	relay   gpio.Relay
	on      bool
	report  func(on bool)
	changed func(on bool)
}

// NewActuator wraps relay, which must already be driven off.
func NewActuator(relay gpio.Relay, report, changed func(on bool)) *Actuator {
	if report == nil {
		report = func(bool) {}
	}
	if changed == nil {
		changed = func(bool) {}
	}
	return &Actuator{relay: relay, report: report, changed: changed}
}

// Apply drives the relay to on and reports the result. A failed write
// leaves the recorded level untouched and reports nothing.
func (a *Actuator) Apply(on bool) error {
	if err := a.relay.Set(on); err != nil {
		return fmt.Errorf("drive relay %s: %w", logic.PowerOf(on), err)
	}
	if a.on != on {
		a.on = on
		a.changed(on)
	}
	a.report(on)
	return nil
}

// On returns the level last written to the relay.
func (a *Actuator) On() bool { return a.on }
