package device

import "github.com/sweeney/wall-heater/internal/config"

// Event is an input to the device loop. Network callbacks and the HTTP
// surface submit events; the loop applies them at the start of the next tick.
type Event interface {
	deviceEvent()
}

// Message is an inbound broker message.
type Message struct {
	Topic   string
	Payload []byte
}

// ConnectionLost reports that the broker session dropped.
type ConnectionLost struct {
	Err error

	epoch uint64
}

// ToggleRequest flips the relay locally, like the physical button.
type ToggleRequest struct{}

// ResetRequest is the operator's "reset reconnection" action.
type ResetRequest struct{}

// BrokerUpdate replaces the broker address and credentials. Only Server,
// Port, Username and Password are taken from Broker.
type BrokerUpdate struct {
	Broker config.BrokerSettings
}

func (Message) deviceEvent()        {}
func (ConnectionLost) deviceEvent() {}
func (ToggleRequest) deviceEvent()  {}
func (ResetRequest) deviceEvent()   {}
func (BrokerUpdate) deviceEvent()   {}
