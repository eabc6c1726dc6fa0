// Package device implements the relay process: it gates control commands on
// controller liveness, drives the relay, forces heat on when the controller
// goes silent, and keeps the broker session alive.
//
// All state is owned by a single loop goroutine. Callbacks and HTTP handlers
// never touch it directly; they Submit events that the loop drains at the
// start of each tick.
package device

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/sweeney/wall-heater/internal/config"
	"github.com/sweeney/wall-heater/internal/eventlog"
	"github.com/sweeney/wall-heater/internal/gpio"
	"github.com/sweeney/wall-heater/internal/logger"
	"github.com/sweeney/wall-heater/internal/logic"
	"github.com/sweeney/wall-heater/internal/metrics"
	"github.com/sweeney/wall-heater/internal/mqtt"
	"github.com/sweeney/wall-heater/internal/status"
)

const defaultQueueSize = 64

// Causes recorded with each relay write.
const (
	causeCommand  = "command"
	causeFailSafe = "fail-safe"
	causeManual   = "manual"
	causeShutdown = "shutdown"
)

// BrokerSaver persists broker credentials changed at runtime.
type BrokerSaver interface {
	Save(config.BrokerSettings) error
}

// Options wires a Controller. Relay and Dial are required.
type Options struct {
	Relay  gpio.Relay
	Dial   mqtt.Factory
	Broker config.BrokerSettings
	Store  BrokerSaver

	HeartbeatTimeout time.Duration
	Policy           logic.ReconnectPolicy
	QueueSize        int

	Log     *logger.Logger
	Metrics *metrics.Device

	// OnRelayChanged is called from the loop whenever the relay level changes.
	OnRelayChanged func(on bool)

	Now func() time.Time
}

// Controller is the device state machine.
type Controller struct {
	log      *logger.Logger
	metrics  *metrics.Device
	dialer   mqtt.Factory
	store    BrokerSaver
	onChange func(on bool)
	now      func() time.Time

	broker  config.BrokerSettings
	client  mqtt.Client
	epoch   uint64
	lastErr string

	monitor  *logic.HeartbeatMonitor
	session  *logic.Reconnector
	actuator *Actuator
	journal  *eventlog.Journal

	inbox     chan Event
	tracker   *status.Tracker[status.DeviceSnapshot]
	startTime time.Time
}

// New builds a controller. It does not connect; the first tick does.
func New(opts Options) *Controller {
	if opts.Log == nil {
		opts.Log = logger.NewNop()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewDevice(prometheus.NewRegistry())
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	if opts.OnRelayChanged == nil {
		opts.OnRelayChanged = func(bool) {}
	}

	c := &Controller{
		log:      opts.Log,
		metrics:  opts.Metrics,
		dialer:   opts.Dial,
		store:    opts.Store,
		onChange: opts.OnRelayChanged,
		now:      opts.Now,
		broker:   opts.Broker,
		monitor:  logic.NewHeartbeatMonitor(opts.HeartbeatTimeout),
		session:  logic.NewReconnector(opts.Policy),
		journal:  eventlog.NewJournal(eventlog.NewRing(eventlog.DefaultCapacity), opts.Log),
		inbox:    make(chan Event, opts.QueueSize),
	}
	c.actuator = NewActuator(opts.Relay, c.reportState, c.relayChanged)
	c.client = c.dial()
	c.startTime = c.now()
	c.tracker = status.NewTracker(status.DeviceSnapshot{})
	c.publishSnapshot(c.startTime)
	return c
}

// Submit queues an event for the next tick. It never blocks; when the queue
// is full the event is dropped and false is returned.
func (c *Controller) Submit(ev Event) bool {
	select {
	case c.inbox <- ev:
		return true
	default:
		c.metrics.DroppedEvents.Inc()
		c.log.Warnw("event_dropped", "event", fmt.Sprintf("%T", ev), "queue", cap(c.inbox))
		return false
	}
}

// Snapshot returns the state as of the end of the last tick or event.
func (c *Controller) Snapshot() status.DeviceSnapshot {
	return c.tracker.Snapshot()
}

// Run drives the loop until ctx is cancelled: one step immediately, then one
// per tick. On exit the relay is driven off and the session closed.
func (c *Controller) Run(ctx context.Context, tick <-chan time.Time) error {
	c.Step(ctx, c.now())
	for {
		select {
		case <-ctx.Done():
			c.shutdown(c.now())
			return nil
		case <-tick:
			c.Step(ctx, c.now())
		}
	}
}

// Step drains every queued event, then ticks.
func (c *Controller) Step(ctx context.Context, now time.Time) {
	for {
		select {
		case ev := <-c.inbox:
			c.HandleEvent(now, ev)
		default:
			c.Tick(ctx, now)
			return
		}
	}
}

// Tick checks controller liveness and advances the broker session.
func (c *Controller) Tick(ctx context.Context, now time.Time) {
	c.checkLiveness(now)
	c.maintainSession(ctx, now)
	c.publishSnapshot(now)
}

// HandleEvent applies one event.
func (c *Controller) HandleEvent(now time.Time, ev Event) {
	switch e := ev.(type) {
	case Message:
		c.handleMessage(now, e)
	case ConnectionLost:
		c.handleConnectionLost(now, e)
	case ToggleRequest:
		c.apply(now, !c.actuator.On(), causeManual)
	case ResetRequest:
		c.handleReset(now)
	case BrokerUpdate:
		c.handleBrokerUpdate(now, e)
	default:
		c.log.Warnw("unknown_event", "event", fmt.Sprintf("%T", ev))
	}
	c.publishSnapshot(now)
}

func (c *Controller) handleMessage(now time.Time, m Message) {
	switch m.Topic {
	case mqtt.TopicHeartbeat:
		c.metrics.Heartbeats.Inc()
		// A heartbeat arriving after the timeout ends an outage; it does
		// not erase it.
		c.checkLiveness(now)
		if c.monitor.Beat(now) {
			c.metrics.HostOnline.Set(1)
			c.journal.Addf(now, "controller online")
		}
	case mqtt.TopicControl:
		c.handleCommand(now, string(m.Payload))
	default:
		c.log.Debugw("message_ignored", "topic", m.Topic)
	}
}

// handleCommand is the command gate.
func (c *Controller) handleCommand(now time.Time, payload string) {
	on, err := logic.ParsePower(payload)
	if err != nil {
		c.metrics.Commands.WithLabelValues(metrics.CommandInvalid).Inc()
		c.log.Warnw("command_invalid", "payload", payload)
		return
	}

	// The timeout may have lapsed since the last tick.
	c.checkLiveness(now)
	if !c.monitor.Online() {
		c.metrics.Commands.WithLabelValues(metrics.CommandRejected).Inc()
		c.journal.Addf(now, "command %s dropped: controller offline", logic.PowerOf(on))
		return
	}

	c.metrics.Commands.WithLabelValues(metrics.CommandAccepted).Inc()
	c.apply(now, on, causeCommand)
}

// checkLiveness runs the fail-safe on the controller's online-to-offline edge.
func (c *Controller) checkLiveness(now time.Time) {
	if !c.monitor.Check(now) {
		return
	}
	c.metrics.HostOnline.Set(0)
	c.metrics.FailSafes.Inc()
	c.log.Warnw("failsafe_engaged", "last_heartbeat", c.monitor.LastSeen(), "timeout", c.monitor.Timeout())
	c.journal.Addf(now, "no heartbeat for %s, controller offline", c.monitor.Timeout())
	c.apply(now, true, causeFailSafe)
}

func (c *Controller) apply(now time.Time, on bool, cause string) {
	if err := c.actuator.Apply(on); err != nil {
		c.log.Errorw("relay_write_failed", "err", err, "cause", cause)
		c.journal.Addf(now, "relay write failed (%s): %v", cause, err)
		return
	}
	c.journal.Addf(now, "relay %s (%s)", logic.PowerOf(on), cause)
}

// reportState publishes the retained state report. While disconnected the
// report is skipped; the connect handshake republishes the current level.
func (c *Controller) reportState(on bool) {
	if !c.client.IsConnected() {
		c.log.Debugw("state_report_deferred", "relay", logic.PowerOf(on))
		return
	}
	if err := c.client.Publish(mqtt.TopicState, []byte(logic.PowerOf(on)), true); err != nil {
		c.log.Warnw("state_report_failed", "err", err)
	}
}

func (c *Controller) relayChanged(on bool) {
	c.metrics.RelayOn.Set(metrics.Bool(on))
	c.onChange(on)
}

func (c *Controller) handleReset(now time.Time) {
	if !c.session.Reset() {
		c.journal.Addf(now, "reconnect reset ignored: session %s", c.session.State().Phase)
		return
	}
	c.lastErr = ""
	c.journal.Addf(now, "reconnect reset by operator")
}

func (c *Controller) handleBrokerUpdate(now time.Time, u BrokerUpdate) {
	next := c.broker
	next.Server = u.Broker.Server
	next.Port = u.Broker.Port
	next.Username = u.Broker.Username
	next.Password = u.Broker.Password
	if err := next.Validate(); err != nil {
		c.journal.Addf(now, "broker settings rejected: %v", err)
		return
	}
	if c.store != nil {
		if err := c.store.Save(next); err != nil {
			c.log.Errorw("broker_settings_save_failed", "err", err)
		}
	}

	c.closeSession()
	c.broker = next
	c.client = c.dial()
	c.session.Lost()
	c.session.Reset()
	c.lastErr = ""
	c.journal.Addf(now, "broker settings updated, reconnecting to %s", next.URL())
}

func (c *Controller) shutdown(now time.Time) {
	c.apply(now, false, causeShutdown)
	c.closeSession()
	c.publishSnapshot(now)
}

func (c *Controller) publishSnapshot(now time.Time) {
	st := c.session.State()
	c.metrics.SessionPhase.Set(float64(st.Phase))
	c.tracker.Set(status.DeviceSnapshot{
		RelayOn:         c.actuator.On(),
		HostOnline:      c.monitor.Online(),
		LastHeartbeatAt: c.monitor.LastSeen(),
		Session:         st,
		MQTTConnected:   c.client.IsConnected(),
		MQTTError:       c.lastErr,
		Broker:          c.broker.URL(),
		Events:          c.journal.Entries(),
		StartTime:       c.startTime,
		Now:             now,
	})
}

// clientID gives every session a fresh identity so a half-open previous
// session on the broker cannot collide with it.
func clientID(prefix string) string {
	if prefix == "" {
		prefix = "heater-relay"
	}
	return prefix + "-" + uuid.NewString()[:8]
}
