// Package config loads process settings and persists the runtime-editable
// configuration of both heater processes.
//
// Settings come from an optional YAML file, overridden by HEATER_* environment
// variables (a .env file in the working directory is honoured).
package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/sweeney/wall-heater/internal/logic"
)

const (
	// EnvPrefix prefixes every environment override, e.g. HEATER_BROKER_SERVER.
	EnvPrefix = "HEATER"

	DefaultBrokerPort = 1883
)

// BrokerSettings locates and authenticates against the MQTT broker.
type BrokerSettings struct {
	Server         string        `mapstructure:"server"`
	Port           int           `mapstructure:"port"`
	Username       string        `mapstructure:"username"`
	Password       string        `mapstructure:"password"`
	ClientID       string        `mapstructure:"client_id"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

var (
	ErrMissingServer = errors.New("broker server is required")
	ErrInvalidPort   = errors.New("broker port must be within 1-65535")
)

// URL returns the broker address in the form the MQTT client expects.
func (b BrokerSettings) URL() string {
	return "tcp://" + net.JoinHostPort(b.Server, strconv.Itoa(b.Port))
}

// Validate checks that the broker can be addressed.
func (b BrokerSettings) Validate() error {
	if strings.TrimSpace(b.Server) == "" {
		return ErrMissingServer
	}
	if b.Port < 1 || b.Port > 65535 {
		return fmt.Errorf("port %d: %w", b.Port, ErrInvalidPort)
	}
	return nil
}

// HostSettings configures the controller process.
type HostSettings struct {
	Broker            BrokerSettings `mapstructure:"broker"`
	TickInterval      time.Duration  `mapstructure:"tick_interval"`
	HeartbeatInterval time.Duration  `mapstructure:"heartbeat_interval"`
	ControlFile       string         `mapstructure:"control_file"`
	HTTPAddr          string         `mapstructure:"http_addr"`
	LEDTrigger        string         `mapstructure:"led_trigger"`
	I2CBus            int            `mapstructure:"i2c_bus"`
	QueueSize         int            `mapstructure:"queue_size"`
	LogLevel          string         `mapstructure:"log_level"`
}

// RelaySettings locates the relay output line.
type RelaySettings struct {
	Chip string `mapstructure:"chip"`
	Line int    `mapstructure:"line"`
}

// ReconnectSettings bounds the device's broker reconnection.
type ReconnectSettings struct {
	RetryInterval time.Duration `mapstructure:"retry_interval"`
	Cooldown      time.Duration `mapstructure:"cooldown"`
	MaxAttempts   int           `mapstructure:"max_attempts"`
}

// DeviceSettings configures the relay process.
type DeviceSettings struct {
	Broker           BrokerSettings    `mapstructure:"broker"`
	Relay            RelaySettings     `mapstructure:"relay"`
	Reconnect        ReconnectSettings `mapstructure:"reconnect"`
	TickInterval     time.Duration     `mapstructure:"tick_interval"`
	HeartbeatTimeout time.Duration     `mapstructure:"heartbeat_timeout"`
	BrokerFile       string            `mapstructure:"broker_file"`
	HTTPAddr         string            `mapstructure:"http_addr"`
	QueueSize        int               `mapstructure:"queue_size"`
	LogLevel         string            `mapstructure:"log_level"`
}

// Policy converts the reconnect settings for the session machine.
func (s DeviceSettings) Policy() logic.ReconnectPolicy {
	return logic.ReconnectPolicy{
		RetryInterval: s.Reconnect.RetryInterval,
		Cooldown:      s.Reconnect.Cooldown,
		MaxAttempts:   s.Reconnect.MaxAttempts,
	}
}

func setHostDefaults(v *viper.Viper) {
	v.SetDefault("broker.server", "localhost")
	v.SetDefault("broker.port", DefaultBrokerPort)
	v.SetDefault("broker.username", "")
	v.SetDefault("broker.password", "")
	v.SetDefault("broker.client_id", "heater-host")
	v.SetDefault("broker.connect_timeout", 10*time.Second)
	v.SetDefault("tick_interval", 30*time.Second)
	v.SetDefault("heartbeat_interval", logic.DefaultHeartbeatInterval)
	v.SetDefault("control_file", "/etc/heater/control.json")
	v.SetDefault("http_addr", ":8080")
	v.SetDefault("led_trigger", "/sys/class/leds/bat1/trigger")
	v.SetDefault("i2c_bus", 0)
	v.SetDefault("queue_size", 64)
	v.SetDefault("log_level", "info")
}

func setDeviceDefaults(v *viper.Viper) {
	v.SetDefault("broker.server", "localhost")
	v.SetDefault("broker.port", DefaultBrokerPort)
	v.SetDefault("broker.username", "")
	v.SetDefault("broker.password", "")
	v.SetDefault("broker.client_id", "heater-relay")
	v.SetDefault("broker.connect_timeout", 10*time.Second)
	v.SetDefault("relay.chip", "gpiochip0")
	v.SetDefault("relay.line", 5)
	v.SetDefault("reconnect.retry_interval", logic.DefaultRetryInterval)
	v.SetDefault("reconnect.cooldown", logic.DefaultCooldown)
	v.SetDefault("reconnect.max_attempts", logic.DefaultMaxAttempts)
	v.SetDefault("tick_interval", time.Second)
	v.SetDefault("heartbeat_timeout", logic.DefaultHeartbeatTimeout)
	v.SetDefault("broker_file", "/etc/heater/broker.json")
	v.SetDefault("http_addr", ":8081")
	v.SetDefault("queue_size", 64)
	v.SetDefault("log_level", "info")
}

// LoadHost reads host settings from path, or from heater-host.yaml in the
// working directory or /etc/heater when path is empty. A missing default
// file is not an error.
func LoadHost(path string) (HostSettings, error) {
	var s HostSettings
	v, err := newViper(path, "heater-host", setHostDefaults)
	if err != nil {
		return s, err
	}
	if err := v.Unmarshal(&s); err != nil {
		return s, fmt.Errorf("decode host settings: %w", err)
	}
	if err := s.Broker.Validate(); err != nil {
		return s, fmt.Errorf("host settings: %w", err)
	}
	return s, nil
}

// LoadDevice reads device settings the same way as LoadHost, from heater-relay.yaml.
func LoadDevice(path string) (DeviceSettings, error) {
	var s DeviceSettings
	v, err := newViper(path, "heater-relay", setDeviceDefaults)
	if err != nil {
		return s, err
	}
	if err := v.Unmarshal(&s); err != nil {
		return s, fmt.Errorf("decode device settings: %w", err)
	}
	if err := s.Broker.Validate(); err != nil {
		return s, fmt.Errorf("device settings: %w", err)
	}
	return s, nil
}

func newViper(path, name string, defaults func(*viper.Viper)) (*viper.Viper, error) {
	// A missing .env is the normal case.
	_ = godotenv.Load()

	v := viper.New()
	defaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read settings %s: %w", path, err)
		}
		return v, nil
	}

	v.SetConfigName(name)
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/heater")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read settings: %w", err)
		}
	}
	return v, nil
}
