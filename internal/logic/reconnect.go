package logic

import "time"

// Phase is the broker session state on the device.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseConnecting
	PhaseConnected
	PhaseBackoff
	PhaseCoolingDown
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseConnecting:
		return "connecting"
	case PhaseConnected:
		return "connected"
	case PhaseBackoff:
		return "backoff"
	case PhaseCoolingDown:
		return "cooling_down"
	default:
		return "unknown"
	}
}

// ReconnectPolicy bounds connection attempts: a retry delay between
// consecutive failures and a cooldown after MaxAttempts of them.
type ReconnectPolicy struct {
	RetryInterval time.Duration
	Cooldown      time.Duration
	MaxAttempts   int
}

// DefaultReconnectPolicy returns 5s retries with a 10 minute cooldown after 3 failures.
func DefaultReconnectPolicy() ReconnectPolicy {
	return ReconnectPolicy{
		RetryInterval: DefaultRetryInterval,
		Cooldown:      DefaultCooldown,
		MaxAttempts:   DefaultMaxAttempts,
	}
}

// ReconnectState is a point-in-time copy of the session machine.
type ReconnectState struct {
	Phase         Phase
	Attempts      int
	LastAttemptAt time.Time
	CooldownUntil time.Time
}

// Reconnector decides when the device may attempt a broker connection.
// It never performs I/O; the caller runs the attempt and reports the outcome.
//
// Attempts counts consecutive failures. It is cleared on a successful
// connection and when leaving CoolingDown, never on an ordinary failure.
type Reconnector struct {
	policy ReconnectPolicy
	state  ReconnectState
}

// NewReconnector returns a machine in PhaseIdle. Zero policy fields fall back
// to the defaults.
func NewReconnector(policy ReconnectPolicy) *Reconnector {
	def := DefaultReconnectPolicy()
	if policy.RetryInterval <= 0 {
		policy.RetryInterval = def.RetryInterval
	}
	if policy.Cooldown <= 0 {
		policy.Cooldown = def.Cooldown
	}
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = def.MaxAttempts
	}
	return &Reconnector{policy: policy}
}

// Policy returns the effective policy.
func (r *Reconnector) Policy() ReconnectPolicy { return r.policy }

// State returns a copy of the current state.
func (r *Reconnector) State() ReconnectState { return r.state }

// Poll reports whether a connection attempt should start at now. A true
// result moves the machine to PhaseConnecting; the caller must follow up
// with Failed or Succeeded.
func (r *Reconnector) Poll(now time.Time) bool {
	if r.state.Phase == PhaseCoolingDown {
		if now.Before(r.state.CooldownUntil) {
			return false
		}
		r.toIdle()
	}

	switch r.state.Phase {
	case PhaseIdle:
	case PhaseBackoff:
		if now.Sub(r.state.LastAttemptAt) < r.policy.RetryInterval {
			return false
		}
	default:
		return false
	}

	r.state.Phase = PhaseConnecting
	r.state.LastAttemptAt = now
	return true
}

// Failed records a failed attempt and returns the resulting phase.
func (r *Reconnector) Failed(now time.Time) Phase {
	if r.state.Phase != PhaseConnecting {
		return r.state.Phase
	}
	r.state.Attempts++
	if r.state.Attempts >= r.policy.MaxAttempts {
		r.state.Phase = PhaseCoolingDown
		r.state.CooldownUntil = now.Add(r.policy.Cooldown)
		return r.state.Phase
	}
	r.state.Phase = PhaseBackoff
	return r.state.Phase
}

// Succeeded records an established session.
func (r *Reconnector) Succeeded() {
	r.state.Phase = PhaseConnected
	r.state.Attempts = 0
	r.state.CooldownUntil = time.Time{}
}

// Lost records that an established session dropped. The next Poll attempts
// immediately.
func (r *Reconnector) Lost() {
	if r.state.Phase == PhaseConnected {
		r.state.Phase = PhaseIdle
	}
}

// Reset is the operator override: any phase other than Connected or
// Connecting returns to Idle with the failure count cleared, so the next
// Poll attempts at once. It reports whether anything was reset.
func (r *Reconnector) Reset() bool {
	switch r.state.Phase {
	case PhaseConnected, PhaseConnecting:
		return false
	}
	r.toIdle()
	return true
}

func (r *Reconnector) toIdle() {
	r.state.Phase = PhaseIdle
	r.state.Attempts = 0
	r.state.CooldownUntil = time.Time{}
}
