package web

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/sweeney/wall-heater/internal/device"
	"github.com/sweeney/wall-heater/internal/eventlog"
	"github.com/sweeney/wall-heater/internal/host"
	"github.com/sweeney/wall-heater/internal/logger"
	"github.com/sweeney/wall-heater/internal/logic"
	"github.com/sweeney/wall-heater/internal/status"
)

var start = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

type fakeDevice struct {
	mu     sync.Mutex
	snap   status.DeviceSnapshot
	events []device.Event
	full   bool
}

func (f *fakeDevice) Snapshot() status.DeviceSnapshot { return f.snap }

func (f *fakeDevice) Submit(ev device.Event) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.full {
		return false
	}
	f.events = append(f.events, ev)
	return true
}

type fakeHost struct {
	snap   status.HostSnapshot
	events []host.Event
}

func (f *fakeHost) Snapshot() status.HostSnapshot { return f.snap }

func (f *fakeHost) Submit(ev host.Event) bool {
	f.events = append(f.events, ev)
	return true
}

func newDevice(t *testing.T) (*fakeDevice, *gin.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	d := &fakeDevice{snap: status.DeviceSnapshot{
		RelayOn:         true,
		HostOnline:      true,
		LastHeartbeatAt: start.Add(time.Minute),
		Session:         logic.ReconnectState{Phase: logic.PhaseConnected},
		MQTTConnected:   true,
		Broker:          "tcp://192.168.1.200:1883",
		Events:          []eventlog.Entry{{Time: start, Message: "relay ON (command)"}},
		StartTime:       start,
		Now:             start.Add(90 * time.Second),
	}}
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewCounter(prometheus.CounterOpts{Name: "heater_test_total"}))
	return d, NewDeviceRouter(d, reg, logger.NewNop())
}

func newHost(t *testing.T) (*fakeHost, *gin.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	h := &fakeHost{snap: status.HostSnapshot{
		Temperature:  20.3,
		Humidity:     41,
		MeasuredAt:   start,
		Target:       21,
		Day:          true,
		HeaterOn:     true,
		DeviceOnline: true,
		Config:       logic.DefaultControlConfig(),
		StartTime:    start,
		Now:          start.Add(time.Hour),
	}}
	return h, NewHostRouter(h, prometheus.NewRegistry(), logger.NewNop())
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestDeviceStatus(t *testing.T) {
	_, r := newDevice(t)
	w := do(r, http.MethodGet, "/api/status", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	var sj status.DeviceJSON
	if err := json.Unmarshal(w.Body.Bytes(), &sj); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if sj.Status.Relay != "ON" || !sj.Status.HostOnline {
		t.Errorf("relay=%q host_online=%v", sj.Status.Relay, sj.Status.HostOnline)
	}
	if sj.Status.MQTT.State != "connected" || sj.Status.MQTT.Broker != "tcp://192.168.1.200:1883" {
		t.Errorf("mqtt: got %+v", sj.Status.MQTT)
	}
	if sj.Status.UptimeSeconds != 90 || len(sj.Status.Events) != 1 {
		t.Errorf("uptime=%d events=%d", sj.Status.UptimeSeconds, len(sj.Status.Events))
	}
}

func TestDeviceActionsAreQueued(t *testing.T) {
	d, r := newDevice(t)
	for _, path := range []string{"/api/toggle", "/api/mqtt/reconnect"} {
		if w := do(r, http.MethodPost, path, ""); w.Code != http.StatusAccepted {
			t.Errorf("%s: got %d, want 202", path, w.Code)
		}
	}
	if len(d.events) != 2 {
		t.Fatalf("events: got %d", len(d.events))
	}
	if _, ok := d.events[0].(device.ToggleRequest); !ok {
		t.Errorf("first event: got %T", d.events[0])
	}
	if _, ok := d.events[1].(device.ResetRequest); !ok {
		t.Errorf("second event: got %T", d.events[1])
	}
}

func TestDeviceQueueFull(t *testing.T) {
	d, r := newDevice(t)
	d.full = true
	if w := do(r, http.MethodPost, "/api/toggle", ""); w.Code != http.StatusServiceUnavailable {
		t.Errorf("got %d, want 503", w.Code)
	}
}

func TestDeviceSaveBroker(t *testing.T) {
	d, r := newDevice(t)
	w := do(r, http.MethodPost, "/api/mqtt/save", `{"server":"10.0.0.5","username":"heater","password":"pw"}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("got %d: %s", w.Code, w.Body.String())
	}
	upd, ok := d.events[0].(device.BrokerUpdate)
	if !ok {
		t.Fatalf("event: got %T", d.events[0])
	}
	if upd.Broker.Server != "10.0.0.5" || upd.Broker.Port != 1883 || upd.Broker.Username != "heater" {
		t.Errorf("broker: got %+v", upd.Broker)
	}
}

func TestDeviceSaveBrokerRejectsBadInput(t *testing.T) {
	d, r := newDevice(t)
	for _, body := range []string{
		`{"port":1883}`,
		`{"server":"10.0.0.5","port":70000}`,
		`not json`,
	} {
		if w := do(r, http.MethodPost, "/api/mqtt/save", body); w.Code != http.StatusBadRequest {
			t.Errorf("%s: got %d, want 400", body, w.Code)
		}
	}
	if len(d.events) != 0 {
		t.Errorf("rejected bodies must not reach the loop: %v", d.events)
	}
}

func TestDeviceIndex(t *testing.T) {
	_, r := newDevice(t)
	w := do(r, http.MethodGet, "/", "")
	if w.Code != http.StatusOK {
		t.Fatalf("got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type: got %q", ct)
	}
	body := w.Body.String()
	for _, want := range []string{"Heater Relay", "relay ON (command)", "1m 30s", "connected"} {
		if !strings.Contains(body, want) {
			t.Errorf("page missing %q", want)
		}
	}
}

func TestMetricsEndpoint(t *testing.T) {
	_, r := newDevice(t)
	w := do(r, http.MethodGet, "/metrics", "")
	if w.Code != http.StatusOK {
		t.Fatalf("got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "heater_test_total 0") {
		t.Errorf("metrics body: %s", w.Body.String())
	}
}

func TestNotFound(t *testing.T) {
	_, r := newDevice(t)
	if w := do(r, http.MethodGet, "/nonexistent", ""); w.Code != http.StatusNotFound {
		t.Errorf("got %d, want 404", w.Code)
	}
}

func TestHostStatus(t *testing.T) {
	_, r := newHost(t)
	w := do(r, http.MethodGet, "/api/status", "")
	var sj status.HostJSON
	if err := json.Unmarshal(w.Body.Bytes(), &sj); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if sj.Status.Temperature == nil || *sj.Status.Temperature != 20.3 {
		t.Errorf("temperature: got %v", sj.Status.Temperature)
	}
	if sj.Status.Period != "day" || sj.Status.Heater != "ON" || !sj.Status.DeviceOnline {
		t.Errorf("status: got %+v", sj.Status)
	}
}

func TestHostSettingsPartialUpdate(t *testing.T) {
	h, r := newHost(t)
	w := do(r, http.MethodPost, "/api/settings", `{"day_temp_target":22.5}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("got %d: %s", w.Code, w.Body.String())
	}
	upd, ok := h.events[0].(host.ConfigPatch)
	if !ok {
		t.Fatalf("event: got %T", h.events[0])
	}
	p := upd.Patch
	if p.DayTarget == nil || *p.DayTarget != 22.5 {
		t.Errorf("day target: got %v", p.DayTarget)
	}
	if p.NightTarget != nil || p.Hysteresis != nil || p.DayStartHour != nil || p.NightStartHour != nil {
		t.Errorf("only the posted field should be carried: %+v", p)
	}
	want := logic.DefaultControlConfig()
	want.DayTarget = 22.5
	if got := p.Apply(logic.DefaultControlConfig()); got != want {
		t.Errorf("merged: got %+v, want %+v", got, want)
	}
}

func TestHostSettingsRejectsInvalid(t *testing.T) {
	h, r := newHost(t)
	for _, body := range []string{`{"hysteresis":0}`, `{"day_start_hour":24}`, `{`} {
		if w := do(r, http.MethodPost, "/api/settings", body); w.Code != http.StatusBadRequest {
			t.Errorf("%s: got %d, want 400", body, w.Code)
		}
	}
	if len(h.events) != 0 {
		t.Errorf("rejected settings reached the loop: %v", h.events)
	}
}

func TestHostGetSettings(t *testing.T) {
	_, r := newHost(t)
	w := do(r, http.MethodGet, "/api/settings", "")
	var cfg logic.ControlConfig
	if err := json.Unmarshal(w.Body.Bytes(), &cfg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if cfg != logic.DefaultControlConfig() {
		t.Errorf("settings: got %+v", cfg)
	}
}

func TestHostIndex(t *testing.T) {
	_, r := newHost(t)
	body := do(r, http.MethodGet, "/index.html", "").Body.String()
	for _, want := range []string{"Heater Control", "20.3", "(day)", "none"} {
		if !strings.Contains(body, want) {
			t.Errorf("page missing %q", want)
		}
	}
}
