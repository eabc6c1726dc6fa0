package device

import (
	"context"
	"time"

	"github.com/sweeney/wall-heater/internal/logic"
	"github.com/sweeney/wall-heater/internal/metrics"
	"github.com/sweeney/wall-heater/internal/mqtt"
)

// dial builds a client for the current broker settings. Callbacks carry the
// session epoch so events from a replaced client are ignored.
func (c *Controller) dial() mqtt.Client {
	c.epoch++
	epoch := c.epoch
	return c.dialer(mqtt.Options{
		Broker:   c.broker.URL(),
		ClientID: clientID(c.broker.ClientID),
		Username: c.broker.Username,
		Password: c.broker.Password,
		Will: &mqtt.Will{
			Topic:    mqtt.TopicStatus,
			Payload:  []byte(logic.StatusOffline),
			Retained: true,
		},
		ConnectTimeout: c.broker.ConnectTimeout,
		OnConnectionLost: func(err error) {
			c.Submit(ConnectionLost{Err: err, epoch: epoch})
		},
	})
}

// deliver is the subscription handler. It runs on the client's goroutine.
func (c *Controller) deliver(topic string, payload []byte) {
	c.Submit(Message{Topic: topic, Payload: append([]byte(nil), payload...)})
}

func (c *Controller) maintainSession(ctx context.Context, now time.Time) {
	if c.client.IsConnected() {
		if c.session.State().Phase != logic.PhaseConnected {
			// An attempt we gave up on completed anyway.
			c.adopt(now)
		}
		return
	}
	if c.session.State().Phase == logic.PhaseConnected {
		// Loss noticed before its callback was drained.
		c.session.Lost()
	}
	if !c.session.Poll(now) {
		return
	}
	c.connect(ctx, now)
}

// connect runs one attempt inside the tick. Cancelling ctx abandons it.
func (c *Controller) connect(ctx context.Context, now time.Time) {
	c.log.Infow("mqtt_connecting", "broker", c.broker.URL(), "attempt", c.session.State().Attempts+1)

	err := c.client.Connect(ctx)
	if err != nil {
		// The client may still be dialling; stop it so a late CONNACK
		// cannot leave a session without subscriptions.
		c.client.Disconnect()
	} else {
		err = c.handshake()
	}
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		c.metrics.ConnectAttempts.WithLabelValues(metrics.ConnectFailure).Inc()
		phase := c.session.Failed(now)
		c.lastErr = mqtt.DescribeConnectError(err)
		if mqtt.IsAuthError(err) {
			c.log.Errorw("mqtt_auth_rejected", "broker", c.broker.URL(), "user", c.broker.Username, "err", err)
		} else {
			c.log.Warnw("mqtt_connect_failed", "broker", c.broker.URL(), "err", err)
		}
		st := c.session.State()
		if phase == logic.PhaseCoolingDown {
			c.journal.Addf(now, "broker connection failed (%s), %d attempts, pausing until %s",
				c.lastErr, st.Attempts, st.CooldownUntil.Format(time.TimeOnly))
			return
		}
		c.journal.Addf(now, "broker connection failed (%s), attempt %d", c.lastErr, st.Attempts)
		return
	}

	c.established(now)
}

// adopt hand-shakes a session that came up outside connect.
func (c *Controller) adopt(now time.Time) {
	if err := c.handshake(); err != nil {
		c.lastErr = mqtt.DescribeConnectError(err)
		c.log.Warnw("mqtt_handshake_failed", "broker", c.broker.URL(), "err", err)
		c.journal.Addf(now, "broker session dropped: handshake failed (%s)", c.lastErr)
		return
	}
	c.log.Infow("mqtt_session_adopted", "broker", c.broker.URL(), "phase", c.session.State().Phase)
	c.established(now)
}

func (c *Controller) established(now time.Time) {
	c.metrics.ConnectAttempts.WithLabelValues(metrics.ConnectSuccess).Inc()
	c.session.Succeeded()
	c.lastErr = ""
	c.journal.Addf(now, "connected to %s", c.broker.URL())
}

// handshake subscribes, announces the device and republishes the relay level.
func (c *Controller) handshake() error {
	for _, topic := range []string{mqtt.TopicControl, mqtt.TopicHeartbeat} {
		if err := c.client.Subscribe(topic, c.deliver); err != nil {
			c.client.Disconnect()
			return err
		}
	}
	if err := c.client.Publish(mqtt.TopicStatus, []byte(logic.StatusOnline), true); err != nil {
		c.log.Warnw("status_publish_failed", "err", err)
	}
	c.reportState(c.actuator.On())
	return nil
}

func (c *Controller) handleConnectionLost(now time.Time, e ConnectionLost) {
	if e.epoch != c.epoch {
		return
	}
	c.session.Lost()
	c.lastErr = "connection lost"
	c.log.Warnw("mqtt_connection_lost", "err", e.Err)
	c.journal.Addf(now, "broker connection lost: %v", e.Err)
}

// closeSession announces a clean departure, since a clean disconnect does not
// trigger the last-will.
func (c *Controller) closeSession() {
	if !c.client.IsConnected() {
		return
	}
	if err := c.client.Publish(mqtt.TopicStatus, []byte(logic.StatusOffline), true); err != nil {
		c.log.Warnw("status_publish_failed", "err", err)
	}
	c.client.Disconnect()
}
