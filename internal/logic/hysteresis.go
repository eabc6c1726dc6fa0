package logic

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	ErrInvalidHysteresis = errors.New("hysteresis must be greater than zero")
	ErrInvalidHour       = errors.New("hour must be within 0-23")
	ErrInvalidTarget     = errors.New("target temperature must be a finite number")
)

// ControlConfig holds the host's heating targets. It changes only through
// explicit configuration updates, never from the control loop.
type ControlConfig struct {
	DayTarget      float64 `json:"day_temp_target" mapstructure:"day_temp_target"`
	NightTarget    float64 `json:"night_temp_target" mapstructure:"night_temp_target"`
	Hysteresis     float64 `json:"hysteresis" mapstructure:"hysteresis"`
	DayStartHour   int     `json:"day_start_hour" mapstructure:"day_start_hour"`
	NightStartHour int     `json:"night_start_hour" mapstructure:"night_start_hour"`
}

// DefaultControlConfig returns the built-in targets used when no valid
// configuration can be loaded.
func DefaultControlConfig() ControlConfig {
	return ControlConfig{
		DayTarget:      21.0,
		NightTarget:    20.0,
		Hysteresis:     0.5,
		DayStartHour:   6,
		NightStartHour: 22,
	}
}

// Validate checks the configuration invariants.
func (c ControlConfig) Validate() error {
	if !(c.Hysteresis > 0) || math.IsInf(c.Hysteresis, 0) {
		return fmt.Errorf("hysteresis %v: %w", c.Hysteresis, ErrInvalidHysteresis)
	}
	for name, v := range map[string]float64{"day target": c.DayTarget, "night target": c.NightTarget} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%s %v: %w", name, v, ErrInvalidTarget)
		}
	}
	if c.DayStartHour < 0 || c.DayStartHour > 23 {
		return fmt.Errorf("day start hour %d: %w", c.DayStartHour, ErrInvalidHour)
	}
	if c.NightStartHour < 0 || c.NightStartHour > 23 {
		return fmt.Errorf("night start hour %d: %w", c.NightStartHour, ErrInvalidHour)
	}
	return nil
}

// ControlPatch is a partial ControlConfig. Nil fields are left unchanged.
type ControlPatch struct {
	DayTarget      *float64 `json:"day_temp_target,omitempty"`
	NightTarget    *float64 `json:"night_temp_target,omitempty"`
	Hysteresis     *float64 `json:"hysteresis,omitempty"`
	DayStartHour   *int     `json:"day_start_hour,omitempty"`
	NightStartHour *int     `json:"night_start_hour,omitempty"`
}

// Apply returns c with the patched fields replaced.
func (p ControlPatch) Apply(c ControlConfig) ControlConfig {
	if p.DayTarget != nil {
		c.DayTarget = *p.DayTarget
	}
	if p.NightTarget != nil {
		c.NightTarget = *p.NightTarget
	}
	if p.Hysteresis != nil {
		c.Hysteresis = *p.Hysteresis
	}
	if p.DayStartHour != nil {
		c.DayStartHour = *p.DayStartHour
	}
	if p.NightStartHour != nil {
		c.NightStartHour = *p.NightStartHour
	}
	return c
}

// IsDay reports whether now falls in [DayStartHour, NightStartHour) on the
// wall clock of now's location.
func (c ControlConfig) IsDay(now time.Time) bool {
	h := now.Hour()
	return c.DayStartHour <= h && h < c.NightStartHour
}

// TargetAt selects the day or night target for now.
func (c ControlConfig) TargetAt(now time.Time) float64 {
	if c.IsDay(now) {
		return c.DayTarget
	}
	return c.NightTarget
}

// Decide applies the on/off hysteresis rule to the last commanded state.
// It turns on below target-hysteresis, off above target, and otherwise keeps
// last. changed is true only when next differs from last.
func Decide(current, target, hysteresis float64, last bool) (next bool, changed bool) {
	if current < target-hysteresis {
		if !last {
			return true, true
		}
	} else if current > target {
		if last {
			return false, true
		}
	}
	return last, false
}
