package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/sweeney/wall-heater/internal/logic"
)

// ControlStore persists the host's ControlConfig as a JSON file.
type ControlStore struct {
	path string
}

// NewControlStore returns a store backed by path, which should end in .json.
func NewControlStore(path string) *ControlStore {
	return &ControlStore{path: path}
}

// Path returns the backing file.
func (s *ControlStore) Path() string { return s.path }

// Load reads the configuration. It always returns a usable config: when the
// file is missing, unreadable or invalid, the defaults are returned together
// with the reason, and an attempt is made to write them back.
func (s *ControlStore) Load() (logic.ControlConfig, error) {
	cfg, err := s.read()
	if err == nil {
		return cfg, nil
	}
	def := logic.DefaultControlConfig()
	if werr := s.Save(def); werr != nil {
		return def, errors.Join(err, werr)
	}
	return def, err
}

func (s *ControlStore) read() (logic.ControlConfig, error) {
	def := logic.DefaultControlConfig()
	v := viper.New()
	v.SetConfigFile(s.path)
	v.SetConfigType("json")
	v.SetDefault("day_temp_target", def.DayTarget)
	v.SetDefault("night_temp_target", def.NightTarget)
	v.SetDefault("hysteresis", def.Hysteresis)
	v.SetDefault("day_start_hour", def.DayStartHour)
	v.SetDefault("night_start_hour", def.NightStartHour)

	if err := v.ReadInConfig(); err != nil {
		return def, fmt.Errorf("read control config %s: %w", s.path, err)
	}
	var cfg logic.ControlConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return def, fmt.Errorf("decode control config %s: %w", s.path, err)
	}
	if err := cfg.Validate(); err != nil {
		return def, fmt.Errorf("control config %s: %w", s.path, err)
	}
	return cfg, nil
}

// Save validates cfg and writes it out.
func (s *ControlStore) Save(cfg logic.ControlConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	v := viper.New()
	v.SetConfigType("json")
	v.Set("day_temp_target", cfg.DayTarget)
	v.Set("night_temp_target", cfg.NightTarget)
	v.Set("hysteresis", cfg.Hysteresis)
	v.Set("day_start_hour", cfg.DayStartHour)
	v.Set("night_start_hour", cfg.NightStartHour)
	return writeConfig(v, s.path)
}

// BrokerStore persists broker credentials edited at runtime on the device.
type BrokerStore struct {
	path string
}

// NewBrokerStore returns a store backed by path, which should end in .json.
func NewBrokerStore(path string) *BrokerStore {
	return &BrokerStore{path: path}
}

// Load overlays saved credentials onto base. A missing file leaves base as is.
func (s *BrokerStore) Load(base BrokerSettings) (BrokerSettings, error) {
	if _, err := os.Stat(s.path); errors.Is(err, fs.ErrNotExist) {
		return base, nil
	}
	v := viper.New()
	v.SetConfigFile(s.path)
	v.SetConfigType("json")
	v.SetDefault("server", base.Server)
	v.SetDefault("port", base.Port)
	v.SetDefault("username", base.Username)
	v.SetDefault("password", base.Password)
	if err := v.ReadInConfig(); err != nil {
		return base, fmt.Errorf("read broker config %s: %w", s.path, err)
	}

	out := base
	out.Server = v.GetString("server")
	out.Port = v.GetInt("port")
	out.Username = v.GetString("username")
	out.Password = v.GetString("password")
	if err := out.Validate(); err != nil {
		return base, fmt.Errorf("broker config %s: %w", s.path, err)
	}
	return out, nil
}

// Save writes the addressable parts of b.
func (s *BrokerStore) Save(b BrokerSettings) error {
	if err := b.Validate(); err != nil {
		return err
	}
	v := viper.New()
	v.SetConfigType("json")
	v.Set("server", b.Server)
	v.Set("port", b.Port)
	v.Set("username", b.Username)
	v.Set("password", b.Password)
	return writeConfig(v, s.path)
}

func writeConfig(v *viper.Viper, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}
