// Command heater-host measures the room and switches the heater through
// heater-relay over MQTT, keeping the relay's fail-safe disarmed with a
// periodic heartbeat.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/sweeney/wall-heater/internal/config"
	"github.com/sweeney/wall-heater/internal/gpio"
	"github.com/sweeney/wall-heater/internal/host"
	"github.com/sweeney/wall-heater/internal/logger"
	"github.com/sweeney/wall-heater/internal/logic"
	"github.com/sweeney/wall-heater/internal/metrics"
	"github.com/sweeney/wall-heater/internal/mqtt"
	"github.com/sweeney/wall-heater/internal/sensor"
	"github.com/sweeney/wall-heater/internal/web"
)

func main() {
	configPath := flag.String("config", "", "Settings file (default heater-host.yaml in . or /etc/heater)")
	printState := flag.Bool("print-state", false, "Read the sensor once, print it and exit")
	flag.Parse()

	if err := run(*configPath, *printState); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

func run(configPath string, printState bool) error {
	settings, err := config.LoadHost(configPath)
	if err != nil {
		return err
	}
	lg := logger.New(settings.LogLevel).Named("host")
	defer lg.Sync()

	aht, err := sensor.NewAHT10(settings.I2CBus)
	if err != nil {
		return fmt.Errorf("init sensor: %w", err)
	}
	defer aht.Close()

	if printState {
		m, err := aht.Read()
		if err != nil {
			return fmt.Errorf("read sensor: %w", err)
		}
		fmt.Printf("temperature: %.1f°C, humidity: %.0f%%\n", m.Temperature, m.Humidity)
		return nil
	}

	store := config.NewControlStore(settings.ControlFile)
	cfg, err := store.Load()
	if err != nil {
		lg.Warnw("control_file_reset", "path", store.Path(), "err", err)
	}

	var ln net.Listener
	if settings.HTTPAddr != "" {
		ln, err = net.Listen("tcp", settings.HTTPAddr)
		if err != nil {
			return fmt.Errorf("listen %s: %w", settings.HTTPAddr, err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ticker := time.NewTicker(settings.TickInterval)
	defer ticker.Stop()

	led := gpio.NewLED(settings.LEDTrigger)
	deps := hostDeps{
		sensor: aht,
		dial:   mqtt.NewRealFactory(),
		store:  store,
		led:    led,
	}
	return serve(ctx, settings, cfg, deps, ln, lg, ticker.C)
}

type hostDeps struct {
	sensor sensor.Reader
	dial   mqtt.Factory
	store  host.ControlSaver
	led    *gpio.LED
}

// serve wires the controller and the HTTP surface and blocks until ctx ends.
// A nil ln disables HTTP.
func serve(ctx context.Context, settings config.HostSettings, cfg logic.ControlConfig, deps hostDeps,
	ln net.Listener, lg *logger.Logger, tick <-chan time.Time) error {
	if deps.led != nil {
		// The indicator starts dark and is left dark on exit.
		setLED(deps.led, false, lg)
		defer setLED(deps.led, false, lg)
	}

	reg := metrics.NewRegistry()
	ctrl := host.New(host.Options{
		Sensor:            deps.sensor,
		Dial:              deps.dial,
		Broker:            settings.Broker,
		Store:             deps.store,
		Config:            cfg,
		HeartbeatInterval: settings.HeartbeatInterval,
		QueueSize:         settings.QueueSize,
		Log:               lg,
		Metrics:           metrics.NewHost(reg),
		OnRelayChanged: func(on bool) {
			if deps.led != nil {
				setLED(deps.led, on, lg)
			}
		},
	})

	if ln != nil {
		srv := web.New(ln.Addr().String(), web.NewHostRouter(ctrl, reg, lg.Named("http")))
		go func() {
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				lg.Errorw("http_server_failed", "err", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
		lg.Infow("http_listening", "addr", ln.Addr().String())
	}

	lg.Infow("started",
		"broker", settings.Broker.URL(),
		"tick", settings.TickInterval,
		"heartbeat", settings.HeartbeatInterval,
		"day_target", cfg.DayTarget,
		"night_target", cfg.NightTarget,
	)
	return ctrl.Run(ctx, tick)
}

func setLED(led *gpio.LED, on bool, lg *logger.Logger) {
	if err := led.Set(on); err != nil {
		lg.Warnw("led_update_failed", "err", err)
	}
}
