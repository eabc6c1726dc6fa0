package main

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sweeney/wall-heater/internal/config"
	"github.com/sweeney/wall-heater/internal/gpio"
	"github.com/sweeney/wall-heater/internal/logger"
	"github.com/sweeney/wall-heater/internal/mqtt"
	"github.com/sweeney/wall-heater/internal/status"
)

func testSettings() config.DeviceSettings {
	return config.DeviceSettings{
		Broker:           config.BrokerSettings{Server: "localhost", Port: 1883, ClientID: "heater-relay"},
		HeartbeatTimeout: 90 * time.Second,
		TickInterval:     time.Second,
	}
}

func getStatus(t *testing.T, addr string) status.DeviceJSON {
	t.Helper()
	resp, err := http.Get("http://" + addr + "/api/status")
	if err != nil {
		t.Fatalf("GET /api/status: %v", err)
	}
	defer resp.Body.Close()
	var sj status.DeviceJSON
	if err := json.NewDecoder(resp.Body).Decode(&sj); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return sj
}

func TestServe(t *testing.T) {
	relay := gpio.NewFakeRelay()
	client := mqtt.NewFakeClient()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	tick := make(chan time.Time)
	done := make(chan error, 1)
	go func() {
		done <- serve(ctx, testSettings(), relay, client.Factory(), nil, ln, logger.NewNop(), tick)
	}()
	// The loop steps once before waiting on tick; this send returns after it.
	tick <- time.Now()

	addr := ln.Addr().String()
	sj := getStatus(t, addr)
	if !sj.Status.MQTT.Connected || sj.Status.MQTT.State != "connected" {
		t.Errorf("mqtt: got %+v", sj.Status.MQTT)
	}
	if sj.Status.Relay != "OFF" {
		t.Errorf("relay: got %q", sj.Status.Relay)
	}

	resp, err := http.Post("http://"+addr+"/api/toggle", "application/json", nil)
	if err != nil {
		t.Fatalf("POST /api/toggle: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Errorf("toggle: got %d", resp.StatusCode)
	}
	tick <- time.Now()
	tick <- time.Now()
	if !relay.On() {
		t.Error("relay should be on after toggle")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return")
	}
	if relay.On() {
		t.Error("relay should be driven off on shutdown")
	}
	marks := client.PublishedOn(mqtt.TopicStatus)
	if n := len(marks); n == 0 || marks[n-1].Payload != "offline" || !marks[n-1].Retained {
		t.Errorf("last status publish: got %+v", marks)
	}
}

func TestServeWithoutHTTP(t *testing.T) {
	client := mqtt.NewFakeClient()
	client.ConnectErrors = []error{mqtt.ErrTimeout}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := serve(ctx, testSettings(), gpio.NewFakeRelay(), client.Factory(), nil, nil, logger.NewNop(), nil); err != nil {
		t.Fatalf("serve: %v", err)
	}
}

func TestRunPrintConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "relay.yaml")
	body := "broker:\n  server: 10.0.0.9\nbroker_file: " + filepath.Join(dir, "broker.json") + "\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := run(path, true); err != nil {
		t.Fatalf("run: %v", err)
	}
}

func TestRunMissingConfig(t *testing.T) {
	if err := run(filepath.Join(t.TempDir(), "absent.yaml"), true); err == nil {
		t.Fatal("expected an error for a missing settings file")
	}
}
