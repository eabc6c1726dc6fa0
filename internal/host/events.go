package host

import "github.com/sweeney/wall-heater/internal/logic"

// Event is an input to the host loop, applied at the start of the next tick.
type Event interface {
	hostEvent()
}

// Message is an inbound broker message.
type Message struct {
	Topic   string
	Payload []byte
}

// Connected reports that the broker session came up (again).
type Connected struct{}

// ConnectionLost reports that the broker session dropped. The client library
// reconnects on its own.
type ConnectionLost struct {
	Err error
}

// ConfigUpdate replaces the control configuration.
type ConfigUpdate struct {
	Config logic.ControlConfig
}

// ConfigPatch changes only the fields it carries. It is merged onto the
// configuration current when the loop applies it, so queued patches compose.
type ConfigPatch struct {
	Patch logic.ControlPatch
}

func (Message) hostEvent()        {}
func (Connected) hostEvent()      {}
func (ConnectionLost) hostEvent() {}
func (ConfigUpdate) hostEvent()   {}
func (ConfigPatch) hostEvent()    {}
