// Package host implements the controller process: it measures the room,
// decides heater on/off with hysteresis, commands the relay device while that
// device reports online, and sends the heartbeat the device watches.
//
// As on the device, one loop goroutine owns all state and everything else
// talks to it through Submit.
package host

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sweeney/wall-heater/internal/config"
	"github.com/sweeney/wall-heater/internal/eventlog"
	"github.com/sweeney/wall-heater/internal/logger"
	"github.com/sweeney/wall-heater/internal/logic"
	"github.com/sweeney/wall-heater/internal/metrics"
	"github.com/sweeney/wall-heater/internal/mqtt"
	"github.com/sweeney/wall-heater/internal/sensor"
	"github.com/sweeney/wall-heater/internal/status"
)

const defaultQueueSize = 64

// ControlSaver persists the control configuration.
type ControlSaver interface {
	Save(logic.ControlConfig) error
}

// Options wires a Controller. Sensor and Dial are required.
type Options struct {
	Sensor sensor.Reader
	Dial   mqtt.Factory
	Broker config.BrokerSettings
	Store  ControlSaver
	Config logic.ControlConfig

	HeartbeatInterval time.Duration
	QueueSize         int

	Log     *logger.Logger
	Metrics *metrics.Host

	// OnRelayChanged is called from the loop when the device reports a new level.
	OnRelayChanged func(on bool)

	Now func() time.Time
}

// Controller is the host control loop.
type Controller struct {
	log      *logger.Logger
	metrics  *metrics.Host
	sensor   sensor.Reader
	store    ControlSaver
	onChange func(on bool)
	now      func() time.Time
	client   mqtt.Client
	journal  *eventlog.Journal
	inbox    chan Event
	tracker  *status.Tracker[status.HostSnapshot]

	cfg      logic.ControlConfig
	link     logic.DeviceLink
	interval time.Duration
	lastBeat time.Time

	heaterOn   bool
	reported   bool
	reportedOn bool
	reading    sensor.Measurement
	measuredAt time.Time
	sensorErr  string
	startTime  time.Time
}

// New builds a controller. It does not connect; Run does.
func New(opts Options) *Controller {
	if opts.Log == nil {
		opts.Log = logger.NewNop()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewHost(prometheus.NewRegistry())
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = logic.DefaultHeartbeatInterval
	}
	if opts.OnRelayChanged == nil {
		opts.OnRelayChanged = func(bool) {}
	}
	if opts.Config.Validate() != nil {
		opts.Config = logic.DefaultControlConfig()
	}

	c := &Controller{
		log:      opts.Log,
		metrics:  opts.Metrics,
		sensor:   opts.Sensor,
		store:    opts.Store,
		onChange: opts.OnRelayChanged,
		now:      opts.Now,
		journal:  eventlog.NewJournal(eventlog.NewRing(eventlog.DefaultCapacity), opts.Log),
		inbox:    make(chan Event, opts.QueueSize),
		tracker:  status.NewTracker(status.HostSnapshot{}),
		cfg:      opts.Config,
		interval: opts.HeartbeatInterval,
	}
	c.client = opts.Dial(mqtt.Options{
		Broker:           opts.Broker.URL(),
		ClientID:         opts.Broker.ClientID,
		Username:         opts.Broker.Username,
		Password:         opts.Broker.Password,
		AutoReconnect:    true,
		ConnectRetry:     true,
		ConnectTimeout:   opts.Broker.ConnectTimeout,
		OnConnect:        func() { c.Submit(Connected{}) },
		OnConnectionLost: func(err error) { c.Submit(ConnectionLost{Err: err}) },
	})
	c.startTime = c.now()
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
func (c *Controller) Snapshot() status.HostSnapshot {
	return c.tracker.Snapshot()
}

// Run connects, then steps once immediately and once per tick until ctx is
// cancelled. A failed first connect is not fatal: the client keeps retrying
// in the background.
func (c *Controller) Run(ctx context.Context, tick <-chan time.Time) error {
	if err := c.client.Connect(ctx); err != nil && ctx.Err() == nil {
		c.log.Warnw("mqtt_connect_failed", "err", err, "reason", mqtt.DescribeConnectError(err))
	}
	c.Step(c.now())
	for {
		select {
		case <-ctx.Done():
			c.client.Disconnect()
			c.publishSnapshot(c.now())
			return nil
		case <-tick:
			c.Step(c.now())
		}
	}
}

// Step drains every queued event, then ticks.
func (c *Controller) Step(now time.Time) {
	for {
		select {
		case ev := <-c.inbox:
			c.HandleEvent(now, ev)
		default:
			c.Tick(now)
			return
		}
	}
}

// Tick sends a heartbeat when due and runs one control cycle.
func (c *Controller) Tick(now time.Time) {
	c.sendHeartbeat(now)
	c.controlCycle(now)
	c.publishSnapshot(now)
}

// HandleEvent applies one event.
func (c *Controller) HandleEvent(now time.Time, ev Event) {
	switch e := ev.(type) {
	case Connected:
		c.subscribe(now)
	case ConnectionLost:
		c.log.Warnw("mqtt_connection_lost", "err", e.Err)
		c.journal.Addf(now, "broker connection lost: %v", e.Err)
	case Message:
		c.handleMessage(now, e)
	case ConfigUpdate:
		c.handleConfig(now, e.Config)
	case ConfigPatch:
		c.handleConfig(now, e.Patch.Apply(c.cfg))
	default:
		c.log.Warnw("unknown_event", "event", fmt.Sprintf("%T", ev))
	}
	c.publishSnapshot(now)
}

func (c *Controller) subscribe(now time.Time) {
	for _, topic := range []string{mqtt.TopicStatus, mqtt.TopicState} {
		if err := c.client.Subscribe(topic, c.deliver); err != nil {
			c.log.Errorw("mqtt_subscribe_failed", "topic", topic, "err", err)
		}
	}
	c.journal.Addf(now, "connected to broker")
}

// deliver is the subscription handler. It runs on the client's goroutine.
func (c *Controller) deliver(topic string, payload []byte) {
	c.Submit(Message{Topic: topic, Payload: append([]byte(nil), payload...)})
}

func (c *Controller) handleMessage(now time.Time, m Message) {
	switch m.Topic {
	case mqtt.TopicStatus:
		changed, err := c.link.Observe(string(m.Payload), now)
		if err != nil {
			c.log.Warnw("status_invalid", "err", err)
			return
		}
		c.metrics.DeviceOnline.Set(metrics.Bool(c.link.Online()))
		if changed {
			if c.link.Online() {
				c.journal.Addf(now, "relay device online")
			} else {
				c.journal.Addf(now, "relay device offline")
			}
		}
	case mqtt.TopicState:
		on, err := logic.ParsePower(string(m.Payload))
		if err != nil {
			c.log.Warnw("state_invalid", "err", err)
			return
		}
		c.heaterOn = on
		c.metrics.HeaterOn.Set(metrics.Bool(on))
		if c.reported && c.reportedOn == on {
			return
		}
		c.reported = true
		c.reportedOn = on
		c.journal.Addf(now, "relay device reports heater %s", logic.PowerOf(on))
		c.onChange(on)
	default:
		c.log.Debugw("message_ignored", "topic", m.Topic)
	}
}

func (c *Controller) handleConfig(now time.Time, cfg logic.ControlConfig) {
	if err := cfg.Validate(); err != nil {
		c.journal.Addf(now, "control settings rejected: %v", err)
		return
	}
	c.cfg = cfg
	if c.store != nil {
		if err := c.store.Save(cfg); err != nil {
			c.log.Errorw("control_settings_save_failed", "err", err)
		}
	}
	c.journal.Addf(now, "control settings updated: day %.1f, night %.1f, hysteresis %.1f, day %02d:00-%02d:00",
		cfg.DayTarget, cfg.NightTarget, cfg.Hysteresis, cfg.DayStartHour, cfg.NightStartHour)
}

// sendHeartbeat publishes once per interval, with a tenth of the interval
// of slack for ticks that land early.
func (c *Controller) sendHeartbeat(now time.Time) {
	if !c.lastBeat.IsZero() && now.Before(c.lastBeat.Add(c.interval-c.interval/10)) {
		return
	}
	if !c.client.IsConnected() {
		return
	}
	if err := c.client.Publish(mqtt.TopicHeartbeat, []byte(logic.HeartbeatPayload), false); err != nil {
		c.log.Warnw("heartbeat_failed", "err", err)
		return
	}
	c.lastBeat = now
	c.metrics.HeartbeatsSent.Inc()
}

// controlCycle measures, then decides only while the device is reachable.
func (c *Controller) controlCycle(now time.Time) {
	m, err := c.sensor.Read()
	if err != nil {
		c.metrics.SensorErrors.Inc()
		c.sensorErr = err.Error()
		c.log.Warnw("sensor_read_failed", "err", err)
		return
	}
	c.sensorErr = ""
	c.reading = m
	c.measuredAt = now
	c.metrics.Temperature.Set(m.Temperature)
	c.metrics.Humidity.Set(m.Humidity)

	target := c.cfg.TargetAt(now)
	c.metrics.Target.Set(target)

	if !c.link.Online() {
		c.metrics.SkippedCycles.Inc()
		c.log.Infow("control_skipped", "reason", "device offline", "temperature", m.Temperature, "target", target)
		return
	}

	next, changed := logic.Decide(m.Temperature, target, c.cfg.Hysteresis, c.heaterOn)
	if !changed {
		return
	}
	cmd := logic.PowerOf(next)
	if err := c.client.Publish(mqtt.TopicControl, []byte(cmd), false); err != nil {
		c.log.Warnw("command_publish_failed", "command", cmd, "err", err)
		c.journal.Addf(now, "command %s not sent: %v", cmd, err)
		return
	}
	c.heaterOn = next
	c.metrics.Commands.WithLabelValues(string(cmd)).Inc()
	c.metrics.HeaterOn.Set(metrics.Bool(next))
	c.journal.Addf(now, "heater %s: %.1f°C against target %.1f°C", cmd, m.Temperature, target)
}

func (c *Controller) publishSnapshot(now time.Time) {
	c.tracker.Set(status.HostSnapshot{
		Temperature:     c.reading.Temperature,
		Humidity:        c.reading.Humidity,
		MeasuredAt:      c.measuredAt,
		SensorError:     c.sensorErr,
		Target:          c.cfg.TargetAt(now),
		Day:             c.cfg.IsDay(now),
		HeaterOn:        c.heaterOn,
		DeviceOnline:    c.link.Online(),
		MQTTConnected:   c.client.IsConnected(),
		LastHeartbeatAt: c.lastBeat,
		Config:          c.cfg,
		Events:          c.journal.Entries(),
		StartTime:       c.startTime,
		Now:             now,
	})
}
