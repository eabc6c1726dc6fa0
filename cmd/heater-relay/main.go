// Command heater-relay drives the heater relay. It obeys ON/OFF commands from
// heater-host while the host's heartbeat is fresh and forces the heater on
// when the heartbeat stops.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sweeney/wall-heater/internal/config"
	"github.com/sweeney/wall-heater/internal/device"
	"github.com/sweeney/wall-heater/internal/gpio"
	"github.com/sweeney/wall-heater/internal/logger"
	"github.com/sweeney/wall-heater/internal/metrics"
	"github.com/sweeney/wall-heater/internal/mqtt"
	"github.com/sweeney/wall-heater/internal/web"
)

func main() {
	configPath := flag.String("config", "", "Settings file (default heater-relay.yaml in . or /etc/heater)")
	printConfig := flag.Bool("print-config", false, "Print effective settings and exit")
	flag.Parse()

	if err := run(*configPath, *printConfig); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

func run(configPath string, printConfig bool) error {
	settings, err := config.LoadDevice(configPath)
	if err != nil {
		return err
	}
	lg := logger.New(settings.LogLevel).Named("relay")
	defer lg.Sync()

	store := config.NewBrokerStore(settings.BrokerFile)
	broker, err := store.Load(settings.Broker)
	if err != nil {
		lg.Warnw("broker_file_ignored", "path", settings.BrokerFile, "err", err)
	}
	settings.Broker = broker

	if printConfig {
		fmt.Printf("broker=%s client_id=%s relay=%s:%d heartbeat_timeout=%v retry=%v cooldown=%v max_attempts=%d http=%s\n",
			broker.URL(), broker.ClientID, settings.Relay.Chip, settings.Relay.Line, settings.HeartbeatTimeout,
			settings.Reconnect.RetryInterval, settings.Reconnect.Cooldown, settings.Reconnect.MaxAttempts, settings.HTTPAddr)
		return nil
	}

	relay, err := gpio.NewRealRelay(settings.Relay.Chip, settings.Relay.Line)
	if err != nil {
		return fmt.Errorf("init relay: %w", err)
	}
	defer relay.Close()

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

	return serve(ctx, settings, relay, mqtt.NewRealFactory(), store, ln, lg, ticker.C)
}

// serve wires the controller and the HTTP surface and blocks until ctx ends.
// A nil ln disables HTTP.
func serve(ctx context.Context, settings config.DeviceSettings, relay gpio.Relay, dial mqtt.Factory,
	store device.BrokerSaver, ln net.Listener, lg *logger.Logger, tick <-chan time.Time) error {
	reg := metrics.NewRegistry()
	ctrl := device.New(device.Options{
		Relay:            relay,
		Dial:             dial,
		Broker:           settings.Broker,
		Store:            store,
		HeartbeatTimeout: settings.HeartbeatTimeout,
		Policy:           settings.Policy(),
		QueueSize:        settings.QueueSize,
		Log:              lg,
		Metrics:          metrics.NewDevice(reg),
	})

	if ln != nil {
		srv := web.New(ln.Addr().String(), web.NewDeviceRouter(ctrl, reg, lg.Named("http")))
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
		"heartbeat_timeout", settings.HeartbeatTimeout,
		"tick", settings.TickInterval,
		"pid", os.Getpid(),
	)
	err := ctrl.Run(ctx, tick)
	lg.Infow("stopped", "relay", ctrl.Snapshot().RelayOn)
	return err
}
