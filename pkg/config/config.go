package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"github.com/srg/hrmon/internal/device"
	"github.com/srg/hrmon/internal/monitor"
	"github.com/srg/hrmon/internal/reading"
	"github.com/srg/hrmon/internal/storage"
	"github.com/srg/hrmon/internal/visualizer"
	"gopkg.in/yaml.v3"
)

// Environment variables that override secrets from the config file
const (
	EnvStorageDSN  = "HRMON_STORAGE_DSN"
	EnvInfluxToken = "HRMON_INFLUX_TOKEN"
)

// Shell names
const (
	ShellGUI     = "gui"
	ShellConsole = "console"
)

// ErrInvalid is wrapped by every validation failure
var ErrInvalid = errors.New("invalid configuration")

// Config holds application configuration
type Config struct {
	LogLevel   string            `yaml:"log_level" default:"info"`
	Device     DeviceConfig      `yaml:"device"`
	Reading    ReadingConfig     `yaml:"reading"`
	Storage    storage.Config    `yaml:"storage"`
	Monitor    MonitorConfig     `yaml:"monitor"`
	Visualizer visualizer.Config `yaml:"visualizer"`
}

// DeviceConfig addresses the sensor
type DeviceConfig struct {
	Address        string        `yaml:"address"`
	ServiceUUID    string        `yaml:"service_uuid"`
	CharUUID       string        `yaml:"char_uuid" default:"2a37"`
	ConnectTimeout time.Duration `yaml:"connect_timeout" default:"30s"`
	ReadTimeout    time.Duration `yaml:"read_timeout" default:"5s"`
}

// ReadingConfig selects the decoder and the anomaly rule
type ReadingConfig struct {
	Decoder    string      `yaml:"decoder" default:"uint-le"`
	Width      int         `yaml:"width"`
	Range      RangeConfig `yaml:"range"`
	RuleScript string      `yaml:"rule_script"`
}

// RangeConfig is the inclusive normal band
type RangeConfig struct {
	Min uint64 `yaml:"min" default:"40"`
	Max uint64 `yaml:"max" default:"180"`
}

// MonitorConfig drives the orchestrator
type MonitorConfig struct {
	Connection    string        `yaml:"connection" default:"per-fetch"`
	PollInterval  time.Duration `yaml:"poll_interval"` // 0 = on demand only
	Shell         string        `yaml:"shell" default:"gui"`
	PTYLink       string        `yaml:"pty_link"`
	EventCapacity int           `yaml:"event_capacity" default:"16"`
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// Load reads a YAML file over the defaults. An empty path skips the file.
// A .env file in the working directory is loaded first when present, and
// the secret environment variables override the file values.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file '%s': %w", path, err)
		}
	}

	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides secrets from the environment
func (c *Config) ApplyEnv() {
	if v, ok := os.LookupEnv(EnvStorageDSN); ok && v != "" {
		c.Storage.DSN = v
	}
	if v, ok := os.LookupEnv(EnvInfluxToken); ok && v != "" {
		c.Storage.Influx.Token = v
	}
}

// Validate checks values that defaults cannot fix
func (c *Config) Validate() error {
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: log_level: %v", ErrInvalid, err)
	}
	if c.Device.CharUUID != "" {
		if _, err := device.ValidateUUID(c.Device.CharUUID); err != nil {
			return fmt.Errorf("%w: device.char_uuid: %v", ErrInvalid, err)
		}
	}
	if c.Device.ServiceUUID != "" {
		if _, err := device.ValidateUUID(c.Device.ServiceUUID); err != nil {
			return fmt.Errorf("%w: device.service_uuid: %v", ErrInvalid, err)
		}
	}
	if c.Device.ConnectTimeout <= 0 || c.Device.ReadTimeout <= 0 {
		return fmt.Errorf("%w: device timeouts must be greater than 0", ErrInvalid)
	}
	if _, err := reading.NewDecoder(c.Reading.Decoder, c.Reading.Width); err != nil {
		return fmt.Errorf("%w: reading.decoder: %v", ErrInvalid, err)
	}
	if c.Reading.Width < 0 || c.Reading.Width > reading.MaxWidth {
		return fmt.Errorf("%w: reading.width must be between 0 and %d", ErrInvalid, reading.MaxWidth)
	}
	if err := c.Range().Validate(); err != nil {
		return fmt.Errorf("%w: reading.range: %v", ErrInvalid, err)
	}
	switch strings.ToLower(c.Storage.Driver) {
	case "", storage.DriverSQLite, storage.DriverPostgres, storage.DriverInfluxDB, storage.DriverMemory:
	default:
		return fmt.Errorf("%w: unknown storage driver %q", ErrInvalid, c.Storage.Driver)
	}
	if _, err := monitor.ParsePolicy(c.Monitor.Connection); err != nil {
		return fmt.Errorf("%w: monitor.connection: %v", ErrInvalid, err)
	}
	if c.Monitor.PollInterval < 0 {
		return fmt.Errorf("%w: monitor.poll_interval cannot be negative", ErrInvalid)
	}
	switch c.Monitor.Shell {
	case ShellGUI, ShellConsole:
	default:
		return fmt.Errorf("%w: monitor.shell must be %s or %s, got %q", ErrInvalid, ShellGUI, ShellConsole, c.Monitor.Shell)
	}
	if c.Visualizer.History <= 0 {
		return fmt.Errorf("%w: visualizer.history must be greater than 0", ErrInvalid)
	}
	return nil
}

// Range returns the configured anomaly range
func (c *Config) Range() reading.Range {
	return reading.Range{Min: reading.Reading(c.Reading.Range.Min), Max: reading.Reading(c.Reading.Range.Max)}
}

// ConnectOptions builds the sensor options
func (c *Config) ConnectOptions() device.ConnectOptions {
	return device.ConnectOptions{
		Address:        c.Device.Address,
		ServiceUUID:    c.Device.ServiceUUID,
		CharUUID:       c.Device.CharUUID,
		ConnectTimeout: c.Device.ConnectTimeout,
		ReadTimeout:    c.Device.ReadTimeout,
		Decoder:        c.Reading.Decoder,
		Width:          c.Reading.Width,
	}
}

// Level returns the parsed log level, info when unparsable
func (c *Config) Level() logrus.Level {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}

// NewLogger creates a configured logger instance
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(c.Level())

	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger
}
