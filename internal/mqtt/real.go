package mqtt

import (
	"context"
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// RealClient talks to an actual MQTT broker.
type RealClient struct {
	client paho.Client
	opts   Options
}

// NewRealClient prepares a client. Nothing touches the network until Connect.
func NewRealClient(o Options) *RealClient {
	o = o.withDefaults()
	po := paho.NewClientOptions().
		AddBroker(o.Broker).
		SetClientID(o.ClientID).
		SetUsername(o.Username).
		SetPassword(o.Password).
		SetCleanSession(true).
		SetKeepAlive(o.KeepAlive).
		SetConnectTimeout(o.ConnectTimeout).
		SetAutoReconnect(o.AutoReconnect).
		SetConnectRetry(o.ConnectRetry).
		SetConnectRetryInterval(o.RetryInterval).
		SetMaxReconnectInterval(time.Minute)

	if o.Will != nil {
		po.SetBinaryWill(o.Will.Topic, o.Will.Payload, 0, o.Will.Retained)
	}
	if o.OnConnect != nil {
		onConnect := o.OnConnect
		po.SetOnConnectHandler(func(paho.Client) { onConnect() })
	}
	if o.OnConnectionLost != nil {
		onLost := o.OnConnectionLost
		po.SetConnectionLostHandler(func(_ paho.Client, err error) { onLost(err) })
	}

	return &RealClient{client: paho.NewClient(po), opts: o}
}

// NewRealFactory returns a Factory producing RealClients.
func NewRealFactory() Factory {
	return func(o Options) Client { return NewRealClient(o) }
}

// Connect opens the session.
func (c *RealClient) Connect(ctx context.Context) error {
	if err := wait(ctx, c.client.Connect(), c.opts.ConnectTimeout); err != nil {
		return fmt.Errorf("connect to %s: %w", c.opts.Broker, err)
	}
	return nil
}

// Disconnect closes the session, allowing 250ms for in-flight work.
func (c *RealClient) Disconnect() {
	c.client.Disconnect(250)
}

// IsConnected reports whether the session is up.
func (c *RealClient) IsConnected() bool {
	return c.client.IsConnectionOpen()
}

// Publish sends payload at QoS 0.
func (c *RealClient) Publish(topic string, payload []byte, retained bool) error {
	if !c.IsConnected() {
		return fmt.Errorf("publish %s: %w", topic, ErrNotConnected)
	}
	if err := wait(context.Background(), c.client.Publish(topic, 0, retained, payload), c.opts.PublishTimeout); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// Subscribe routes messages on topic to h at QoS 0.
func (c *RealClient) Subscribe(topic string, h Handler) error {
	token := c.client.Subscribe(topic, 0, func(_ paho.Client, m paho.Message) {
		h(m.Topic(), m.Payload())
	})
	if err := wait(context.Background(), token, c.opts.PublishTimeout); err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}
	return nil
}

// wait blocks until token completes, timeout elapses or ctx ends.
func wait(ctx context.Context, token paho.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		return token.Error()
	case <-timer.C:
		return ErrTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}
