// Package mqtt provides the broker session used by both heater processes,
// with an abstraction for testing.
package mqtt

import (
	"context"
	"time"
)

// Channel topics. Control is never retained; state and status always are.
const (
	TopicControl   = "heater/control"
	TopicState     = "heater/state"
	TopicStatus    = "heater/status"
	TopicHeartbeat = "heater/heartbeat"
)

// Handler receives an inbound message. It runs on the client's network
// goroutine and must not block.
type Handler func(topic string, payload []byte)

// Client is a broker session. All traffic is QoS 0.
type Client interface {
	// Connect opens the session. It returns when the broker accepts or
	// refuses, the connect timeout expires, or ctx is cancelled.
	Connect(ctx context.Context) error

	// Disconnect closes the session without triggering the last-will.
	Disconnect()

	IsConnected() bool

	// Publish sends payload to topic. It returns ErrNotConnected without
	// touching the network when the session is down.
	Publish(topic string, payload []byte, retained bool) error

	// Subscribe routes messages on topic to h.
	Subscribe(topic string, h Handler) error
}

// Will is the message the broker publishes when the session drops uncleanly.
type Will struct {
	Topic    string
	Payload  []byte
	Retained bool
}

// Options configures a Client.
type Options struct {
	Broker   string
	ClientID string
	Username string
	Password string
	Will     *Will

	// AutoReconnect lets the client library resume a dropped session on its
	// own. ConnectRetry extends that to the first connect.
	AutoReconnect bool
	ConnectRetry  bool
	RetryInterval time.Duration

	ConnectTimeout time.Duration
	PublishTimeout time.Duration
	KeepAlive      time.Duration

	// OnConnect fires after every successful (re)connect.
	OnConnect func()
	// OnConnectionLost fires when an established session drops.
	OnConnectionLost func(err error)
}

// Factory builds a Client. The device rebuilds its client whenever broker
// credentials change.
type Factory func(Options) Client

const (
	defaultConnectTimeout = 10 * time.Second
	defaultPublishTimeout = 5 * time.Second
	defaultKeepAlive      = 30 * time.Second
	defaultRetryInterval  = 5 * time.Second
)

func (o Options) withDefaults() Options {
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = defaultConnectTimeout
	}
	if o.PublishTimeout <= 0 {
		o.PublishTimeout = defaultPublishTimeout
	}
	if o.KeepAlive <= 0 {
		o.KeepAlive = defaultKeepAlive
	}
	if o.RetryInterval <= 0 {
		o.RetryInterval = defaultRetryInterval
	}
	return o
}
