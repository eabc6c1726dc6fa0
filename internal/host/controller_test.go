package host

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/sweeney/wall-heater/internal/config"
	"github.com/sweeney/wall-heater/internal/logger"
	"github.com/sweeney/wall-heater/internal/logic"
	"github.com/sweeney/wall-heater/internal/metrics"
	"github.com/sweeney/wall-heater/internal/mqtt"
	"github.com/sweeney/wall-heater/internal/sensor"
)

// 10:00 falls in the default day window.
var t0 = time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)

type fakeStore struct {
	saved []logic.ControlConfig
	err   error
}

func (s *fakeStore) Save(cfg logic.ControlConfig) error {
	if s.err != nil {
		return s.err
	}
	s.saved = append(s.saved, cfg)
	return nil
}

type harness struct {
	t       *testing.T
	ctrl    *Controller
	sensor  *sensor.FakeReader
	client  *mqtt.FakeClient
	store   *fakeStore
	m       *metrics.Host
	changes []bool
}

func newHarness(t *testing.T, temps ...float64) *harness {
	t.Helper()
	h := &harness{
		t:      t,
		sensor: sensor.NewFakeReader(temps...),
		client: mqtt.NewFakeClient(),
		store:  &fakeStore{},
		m:      metrics.NewHost(prometheus.NewRegistry()),
	}
	h.ctrl = New(Options{
		Sensor:            h.sensor,
		Dial:              h.client.Factory(),
		Broker:            config.BrokerSettings{Server: "localhost", Port: 1883, ClientID: "heater-host"},
		Store:             h.store,
		Config:            logic.DefaultControlConfig(),
		HeartbeatInterval: 30 * time.Second,
		Log:               logger.NewNop(),
		Metrics:           h.m,
		OnRelayChanged:    func(on bool) { h.changes = append(h.changes, on) },
		Now:               func() time.Time { return t0 },
	})
	return h
}

// connect brings the fake session up and drains the resulting event.
func (h *harness) connect(now time.Time) {
	h.t.Helper()
	if err := h.client.Connect(context.Background()); err != nil {
		h.t.Fatalf("connect: %v", err)
	}
	h.ctrl.Step(now)
}

func (h *harness) deliver(now time.Time, topic, payload string) {
	h.t.Helper()
	if !h.client.Deliver(topic, payload) {
		h.t.Fatalf("nothing subscribed on %s", topic)
	}
	h.ctrl.Step(now)
}

func (h *harness) commands() []string {
	var out []string
	for _, m := range h.client.PublishedOn(mqtt.TopicControl) {
		if m.Retained {
			h.t.Errorf("control command %q must not be retained", m.Payload)
		}
		out = append(out, m.Payload)
	}
	return out
}

func hasEvent(h *harness, substr string) bool {
	for _, e := range h.ctrl.Snapshot().Events {
		if strings.Contains(e.Message, substr) {
			return true
		}
	}
	return false
}

func TestConnectSubscribes(t *testing.T) {
	h := newHarness(t, 21.0)
	h.connect(t0)

	subs := h.client.Subscribed()
	if len(subs) != 2 || subs[0] != mqtt.TopicStatus || subs[1] != mqtt.TopicState {
		t.Errorf("subscriptions: got %v", subs)
	}
	opts := h.client.Options()
	if !opts.AutoReconnect || opts.ClientID != "heater-host" || opts.Will != nil {
		t.Errorf("options: got %+v", opts)
	}
}

func TestHeartbeatCadence(t *testing.T) {
	h := newHarness(t, 21.0)
	h.connect(t0)
	for _, s := range []int{10, 26, 29, 45, 58, 60} {
		h.ctrl.Step(t0.Add(time.Duration(s) * time.Second))
	}

	beats := h.client.PublishedOn(mqtt.TopicHeartbeat)
	if len(beats) != 3 {
		t.Fatalf("heartbeats: got %d, want 3 (t0, +29s, +58s)", len(beats))
	}
	for _, b := range beats {
		if b.Payload != "ping" || b.Retained {
			t.Errorf("heartbeat: got %+v", b)
		}
	}
	if got := testutil.ToFloat64(h.m.HeartbeatsSent); got != 3 {
		t.Errorf("heartbeats metric: got %v", got)
	}
}

func TestHeartbeatToleratesEarlyTick(t *testing.T) {
	h := newHarness(t, 21.0)
	h.connect(t0)

	// Ticks at the heartbeat interval, each arriving slightly early.
	now := t0
	for i := 0; i < 4; i++ {
		now = now.Add(30*time.Second - 50*time.Millisecond)
		h.ctrl.Step(now)
	}
	if n := len(h.client.PublishedOn(mqtt.TopicHeartbeat)); n != 5 {
		t.Errorf("heartbeats: got %d, want one per tick (5)", n)
	}
}

func TestHeartbeatWaitsForSession(t *testing.T) {
	h := newHarness(t, 21.0)
	h.ctrl.Step(t0)
	if n := len(h.client.PublishedOn(mqtt.TopicHeartbeat)); n != 0 {
		t.Fatalf("heartbeats while disconnected: %d", n)
	}
	h.connect(t0.Add(5 * time.Second))
	if n := len(h.client.PublishedOn(mqtt.TopicHeartbeat)); n != 1 {
		t.Errorf("heartbeats after connect: got %d, want 1", n)
	}
}

// Scenario: day target 21.0, hysteresis 0.5, 10:00, 20.3 degrees, heater off.
func TestColdRoomTurnsHeaterOn(t *testing.T) {
	h := newHarness(t, 20.3)
	h.connect(t0)
	h.client.Reset()
	h.deliver(t0, mqtt.TopicStatus, "online")

	if got := h.commands(); len(got) != 1 || got[0] != "ON" {
		t.Fatalf("commands: got %v, want [ON]", got)
	}
	snap := h.ctrl.Snapshot()
	if !snap.HeaterOn || snap.Target != 21.0 || !snap.Day {
		t.Errorf("snapshot: heater=%v target=%v day=%v", snap.HeaterOn, snap.Target, snap.Day)
	}
	if !hasEvent(h, "heater ON") {
		t.Error("expected a heater ON event")
	}
}

// Scenario: same configuration, 21.2 degrees while the heater is on.
func TestWarmRoomTurnsHeaterOff(t *testing.T) {
	h := newHarness(t, 21.2)
	h.connect(t0)
	h.deliver(t0, mqtt.TopicState, "ON")
	h.client.Reset()
	h.deliver(t0, mqtt.TopicStatus, "online")

	if got := h.commands(); len(got) != 1 || got[0] != "OFF" {
		t.Fatalf("commands: got %v, want [OFF]", got)
	}
	if h.ctrl.Snapshot().HeaterOn {
		t.Error("commanded state should be off")
	}
}

func TestDeadBandSendsNothing(t *testing.T) {
	h := newHarness(t, 20.8)
	h.connect(t0)
	h.deliver(t0, mqtt.TopicStatus, "online")
	for s := 30; s <= 300; s += 30 {
		h.ctrl.Step(t0.Add(time.Duration(s) * time.Second))
	}
	if got := h.commands(); len(got) != 0 {
		t.Errorf("commands in dead band: %v", got)
	}
}

func TestHeatingCycle(t *testing.T) {
	// The first reading is taken before the device comes online.
	h := newHarness(t, 21.0, 20.3, 20.8, 21.2)
	h.connect(t0)
	h.client.Reset()
	h.deliver(t0, mqtt.TopicStatus, "online")
	h.ctrl.Step(t0.Add(30 * time.Second))
	h.ctrl.Step(t0.Add(60 * time.Second))

	got := h.commands()
	if len(got) != 2 || got[0] != "ON" || got[1] != "OFF" {
		t.Errorf("commands: got %v, want [ON OFF]", got)
	}
}

func TestSkipsWhileDeviceOffline(t *testing.T) {
	h := newHarness(t, 19.0)
	h.connect(t0)
	h.ctrl.Step(t0.Add(30 * time.Second))

	if got := h.commands(); len(got) != 0 {
		t.Errorf("commands while device offline: %v", got)
	}
	if got := testutil.ToFloat64(h.m.SkippedCycles); got != 2 {
		t.Errorf("skipped cycles: got %v, want 2", got)
	}
	if snap := h.ctrl.Snapshot(); snap.Temperature != 19.0 {
		t.Errorf("measurement should still be recorded: got %v", snap.Temperature)
	}

	h.deliver(t0.Add(40*time.Second), mqtt.TopicStatus, "online")
	h.deliver(t0.Add(41*time.Second), mqtt.TopicStatus, "offline")
	h.client.Reset()
	h.ctrl.Step(t0.Add(70 * time.Second))
	if got := h.commands(); len(got) != 0 {
		t.Errorf("commands after last-will: %v", got)
	}
}

func TestDeviceOnlineNeverExpires(t *testing.T) {
	h := newHarness(t, 21.0, 21.0, 19.0)
	h.connect(t0)
	h.deliver(t0, mqtt.TopicStatus, "online")

	h.client.Reset()
	h.ctrl.Step(t0.Add(3 * time.Hour))

	if !h.ctrl.Snapshot().DeviceOnline {
		t.Error("device view must not expire without a status message")
	}
	if got := h.commands(); len(got) != 1 || got[0] != "ON" {
		t.Errorf("commands: got %v, want [ON]", got)
	}
}

func TestSensorFailureSkipsCycle(t *testing.T) {
	h := newHarness(t, 21.0, 21.0)
	h.sensor.Push(sensor.Sample{Err: errors.New("i2c nack")})
	h.sensor.Push(sensor.Sample{Measurement: sensor.Measurement{Temperature: 20.3, Humidity: 40}})
	h.connect(t0)
	h.deliver(t0, mqtt.TopicStatus, "online")

	// Third read fails: the last reading is kept and nothing is decided.
	h.client.Reset()
	h.ctrl.Step(t0.Add(30 * time.Second))
	snap := h.ctrl.Snapshot()
	if snap.Temperature != 21.0 || !snap.MeasuredAt.Equal(t0) {
		t.Errorf("last reading lost: temp=%v at %v", snap.Temperature, snap.MeasuredAt)
	}
	if snap.SensorError == "" {
		t.Error("sensor error should be surfaced")
	}
	if len(h.commands()) != 0 {
		t.Error("no decision on a failed read")
	}
	if got := testutil.ToFloat64(h.m.SensorErrors); got != 1 {
		t.Errorf("sensor errors: got %v", got)
	}

	h.ctrl.Step(t0.Add(60 * time.Second))
	if got := h.commands(); len(got) != 1 || got[0] != "ON" {
		t.Errorf("commands after recovery: got %v, want [ON]", got)
	}
	if h.ctrl.Snapshot().SensorError != "" {
		t.Error("sensor error should clear after a good read")
	}
}

func TestPublishFailureKeepsCommandedState(t *testing.T) {
	h := newHarness(t, 20.0)
	h.connect(t0)
	h.client.PublishError = errors.New("broker busy")
	h.deliver(t0, mqtt.TopicStatus, "online")

	if h.ctrl.Snapshot().HeaterOn {
		t.Fatal("commanded state must not change when the command was not sent")
	}
	h.client.PublishError = nil
	h.ctrl.Step(t0.Add(30 * time.Second))
	if got := h.commands(); len(got) != 1 || got[0] != "ON" {
		t.Errorf("retry: got %v, want [ON]", got)
	}
}

func TestStateReportsTrackDevice(t *testing.T) {
	h := newHarness(t, 20.8)
	h.connect(t0)

	h.deliver(t0, mqtt.TopicState, "ON")
	h.deliver(t0, mqtt.TopicState, "ON")
	h.deliver(t0, mqtt.TopicState, "OFF")
	h.deliver(t0, mqtt.TopicState, "garbage")

	if len(h.changes) != 2 || !h.changes[0] || h.changes[1] {
		t.Errorf("OnRelayChanged: got %v, want [true false]", h.changes)
	}
	if h.ctrl.Snapshot().HeaterOn {
		t.Error("heater should follow the last valid report")
	}
}

// A fail-safe ON report from the device becomes the hysteresis baseline.
func TestFailSafeReportBecomesBaseline(t *testing.T) {
	h := newHarness(t, 21.5)
	h.connect(t0)
	h.deliver(t0, mqtt.TopicState, "ON")
	h.client.Reset()
	h.deliver(t0, mqtt.TopicStatus, "online")

	if got := h.commands(); len(got) != 1 || got[0] != "OFF" {
		t.Errorf("commands: got %v, want [OFF]", got)
	}
}

func TestConfigUpdate(t *testing.T) {
	h := newHarness(t, 21.0)
	h.connect(t0)

	cfg := logic.DefaultControlConfig()
	cfg.DayTarget = 23
	if !h.ctrl.Submit(ConfigUpdate{Config: cfg}) {
		t.Fatal("submit failed")
	}
	// Nothing changes until the loop runs.
	if h.ctrl.Snapshot().Config.DayTarget != 21 {
		t.Fatal("config applied outside the loop")
	}
	h.ctrl.Step(t0.Add(time.Second))

	snap := h.ctrl.Snapshot()
	if snap.Config.DayTarget != 23 || snap.Target != 23 {
		t.Errorf("config: got day=%v target=%v", snap.Config.DayTarget, snap.Target)
	}
	if len(h.store.saved) != 1 || h.store.saved[0] != cfg {
		t.Errorf("saved: got %+v", h.store.saved)
	}
}

func TestConfigPatchesCompose(t *testing.T) {
	h := newHarness(t, 21.0)
	h.connect(t0)

	day, night := 22.5, 18.0
	h.ctrl.Submit(ConfigPatch{Patch: logic.ControlPatch{DayTarget: &day}})
	h.ctrl.Submit(ConfigPatch{Patch: logic.ControlPatch{NightTarget: &night}})
	h.ctrl.Step(t0.Add(time.Second))

	want := logic.DefaultControlConfig()
	want.DayTarget = 22.5
	want.NightTarget = 18
	if got := h.ctrl.Snapshot().Config; got != want {
		t.Errorf("config: got %+v, want %+v", got, want)
	}
	if n := len(h.store.saved); n != 2 || h.store.saved[1] != want {
		t.Errorf("saved: got %+v", h.store.saved)
	}
}

func TestConfigPatchRejectedAgainstCurrent(t *testing.T) {
	h := newHarness(t, 21.0)
	zero := 0.0
	h.ctrl.Submit(ConfigPatch{Patch: logic.ControlPatch{Hysteresis: &zero}})
	h.ctrl.Step(t0)

	if h.ctrl.Snapshot().Config != logic.DefaultControlConfig() || len(h.store.saved) != 0 {
		t.Error("invalid patch must not be applied")
	}
	if !hasEvent(h, "control settings rejected") {
		t.Error("expected a rejection event")
	}
}

func TestConfigUpdateRejectsInvalid(t *testing.T) {
	h := newHarness(t, 21.0)
	cfg := logic.DefaultControlConfig()
	cfg.Hysteresis = 0
	h.ctrl.Submit(ConfigUpdate{Config: cfg})
	h.ctrl.Step(t0)

	if h.ctrl.Snapshot().Config.Hysteresis != 0.5 || len(h.store.saved) != 0 {
		t.Error("invalid config must not be applied")
	}
	if !hasEvent(h, "control settings rejected") {
		t.Error("expected a rejection event")
	}
}

func TestConfigSaveFailureStillApplies(t *testing.T) {
	h := newHarness(t, 21.0)
	h.store.err = errors.New("read-only filesystem")
	cfg := logic.DefaultControlConfig()
	cfg.NightTarget = 17
	h.ctrl.Submit(ConfigUpdate{Config: cfg})
	h.ctrl.Step(t0)
	if h.ctrl.Snapshot().Config.NightTarget != 17 {
		t.Error("config should apply even when it cannot be persisted")
	}
}

func TestNightTarget(t *testing.T) {
	night := time.Date(2026, 1, 1, 23, 0, 0, 0, time.UTC)
	h := newHarness(t, 19.6)
	h.connect(night)
	h.client.Reset()
	h.deliver(night, mqtt.TopicStatus, "online")

	snap := h.ctrl.Snapshot()
	if snap.Target != 20.0 || snap.Day {
		t.Errorf("night: target=%v day=%v", snap.Target, snap.Day)
	}
	// 19.6 is inside the night dead band [19.5, 20.0].
	if got := h.commands(); len(got) != 0 {
		t.Errorf("commands: got %v", got)
	}
}

func TestRunDisconnectsOnCancel(t *testing.T) {
	h := newHarness(t, 21.0)
	ctx, cancel := context.WithCancel(context.Background())
	tick := make(chan time.Time)
	done := make(chan error, 1)
	go func() { done <- h.ctrl.Run(ctx, tick) }()

	tick <- t0
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if h.client.ConnectCalls() != 1 || h.client.DisconnectCalls() != 1 {
		t.Errorf("connect=%d disconnect=%d", h.client.ConnectCalls(), h.client.DisconnectCalls())
	}
	if len(h.client.Subscribed()) != 2 {
		t.Errorf("subscriptions: got %v", h.client.Subscribed())
	}
}

func TestRunSurvivesConnectFailure(t *testing.T) {
	h := newHarness(t, 21.0)
	h.client.ConnectErrors = []error{mqtt.ErrTimeout}
	ctx, cancel := context.WithCancel(context.Background())
	tick := make(chan time.Time)
	done := make(chan error, 1)
	go func() { done <- h.ctrl.Run(ctx, tick) }()

	tick <- t0
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
	if h.sensor.Reads() < 2 {
		t.Errorf("loop should keep measuring without a broker: %d reads", h.sensor.Reads())
	}
}
