// Package gpio drives the heater's physical outputs: the relay line on the
// device and the status LED on the host.
// The real relay uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

// Relay drives the heater relay.
type Relay interface {
	// Set drives the relay to the given logical level (true = heater on).
	Set(on bool) error

	// Close drives the relay off and releases the line.
	Close() error
}

// Default wiring on the reference board.
const (
	DefaultChip      = "gpiochip0"
	DefaultRelayLine = 5
)
