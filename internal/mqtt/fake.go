package mqtt

import (
	"context"
	"sync"
)

// Message is a publish recorded by FakeClient.
type Message struct {
	Topic    string
	Payload  string
	Retained bool
}

// FakeClient is an in-memory broker session for tests. It records publishes
// and subscriptions and lets the test deliver messages or drop the session.
type FakeClient struct {
	mu sync.Mutex

	// ConnectErrors are returned by successive Connect calls. A nil entry,
	// or running off the end, means success.
	ConnectErrors []error
	// PublishError, if set, is returned by Publish.
	PublishError error
	// SubscribeError, if set, is returned by Subscribe.
	SubscribeError error
	// LateConnect leaves the session up after a scripted Connect error, as
	// an attempt that timed out on the caller's side but finished later.
	LateConnect bool

	opts         Options
	connected    bool
	connects     int
	disconnects  int
	published    []Message
	subscribed   []string
	handlers     map[string]Handler
	factoryCalls int
}

// NewFakeClient creates a disconnected FakeClient.
func NewFakeClient() *FakeClient {
	return &FakeClient{handlers: make(map[string]Handler)}
}

// Factory returns a Factory that hands out this client, remembering the options.
func (f *FakeClient) Factory() Factory {
	return func(o Options) Client {
		f.mu.Lock()
		f.opts = o
		f.factoryCalls++
		f.handlers = make(map[string]Handler)
		f.mu.Unlock()
		return f
	}
}

// Connect consumes the next scripted result. Success fires OnConnect.
func (f *FakeClient) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	f.connects++
	var err error
	if len(f.ConnectErrors) > 0 {
		err = f.ConnectErrors[0]
		f.ConnectErrors = f.ConnectErrors[1:]
	}
	if err != nil {
		f.connected = f.LateConnect
		f.mu.Unlock()
		return err
	}
	f.connected = true
	onConnect := f.opts.OnConnect
	f.mu.Unlock()

	if onConnect != nil {
		onConnect()
	}
	return nil
}

// Establish brings the session up without a Connect call and without
// firing OnConnect.
func (f *FakeClient) Establish() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = true
}

// Disconnect marks the session closed without firing OnConnectionLost.
func (f *FakeClient) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	f.disconnects++
}

// IsConnected reports the fake session state.
func (f *FakeClient) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

// Publish records the message.
func (f *FakeClient) Publish(topic string, payload []byte, retained bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return ErrNotConnected
	}
	if f.PublishError != nil {
		return f.PublishError
	}
	f.published = append(f.published, Message{Topic: topic, Payload: string(payload), Retained: retained})
	return nil
}

// Subscribe records the topic and its handler.
func (f *FakeClient) Subscribe(topic string, h Handler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return ErrNotConnected
	}
	if f.SubscribeError != nil {
		return f.SubscribeError
	}
	f.subscribed = append(f.subscribed, topic)
	f.handlers[topic] = h
	return nil
}

// Deliver hands payload to the handler subscribed on topic, as the broker
// would. It reports whether anything was subscribed.
func (f *FakeClient) Deliver(topic, payload string) bool {
	f.mu.Lock()
	h, ok := f.handlers[topic]
	connected := f.connected
	f.mu.Unlock()
	if !ok || !connected {
		return false
	}
	h(topic, []byte(payload))
	return true
}

// Drop simulates an unclean session loss and fires OnConnectionLost.
func (f *FakeClient) Drop(err error) {
	f.mu.Lock()
	f.connected = false
	onLost := f.opts.OnConnectionLost
	f.mu.Unlock()
	if onLost != nil {
		onLost(err)
	}
}

// Options returns the options passed to the last Factory call.
func (f *FakeClient) Options() Options {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opts
}

// Published returns a copy of every recorded publish.
func (f *FakeClient) Published() []Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Message(nil), f.published...)
}

// PublishedOn returns the recorded publishes for topic.
func (f *FakeClient) PublishedOn(topic string) []Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Message
	for _, m := range f.published {
		if m.Topic == topic {
			out = append(out, m)
		}
	}
	return out
}

// Subscribed returns the subscribed topics in order.
func (f *FakeClient) Subscribed() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.subscribed...)
}

// ConnectCalls returns how many times Connect was called.
func (f *FakeClient) ConnectCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connects
}

// DisconnectCalls returns how many times Disconnect was called.
func (f *FakeClient) DisconnectCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.disconnects
}

// FactoryCalls returns how many clients were built.
func (f *FakeClient) FactoryCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.factoryCalls
}

// Reset clears recorded traffic, keeping the session state.
func (f *FakeClient) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = nil
	f.subscribed = nil
	f.connects = 0
	f.disconnects = 0
}
