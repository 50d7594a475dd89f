package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/hrmon/internal/device"
	"github.com/srg/hrmon/internal/reading"
	"github.com/srg/hrmon/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "2a37", cfg.Device.CharUUID)
	assert.Equal(t, 30*time.Second, cfg.Device.ConnectTimeout)
	assert.Equal(t, 5*time.Second, cfg.Device.ReadTimeout)
	assert.Equal(t, reading.DecoderUintLE, cfg.Reading.Decoder)
	assert.Equal(t, reading.DefaultRange(), cfg.Range())
	assert.Equal(t, storage.DriverSQLite, cfg.Storage.Driver)
	assert.Equal(t, "hrmon.db", cfg.Storage.DSN)
	assert.Equal(t, "http://localhost:8086", cfg.Storage.Influx.URL, "nested defaults MUST be applied")
	assert.Equal(t, "per-fetch", cfg.Monitor.Connection)
	assert.Equal(t, time.Duration(0), cfg.Monitor.PollInterval, "polling MUST be off by default")
	assert.Equal(t, ShellGUI, cfg.Monitor.Shell)
	assert.Equal(t, 120, cfg.Visualizer.History)
	assert.NoError(t, cfg.Validate(), "defaults MUST be valid")
}

func TestLoad(t *testing.T) {
	// GOAL: file values override defaults, unset keys keep them
	t.Chdir(t.TempDir())
	path := filepath.Join(t.TempDir(), "hrmon.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
log_level: debug
device:
  address: AA:BB:CC:DD:EE:FF
  connect_timeout: 10s
reading:
  decoder: measurement
  range:
    min: 50
storage:
  driver: postgres
  dsn: postgres://localhost/hrmon
monitor:
  connection: persistent
  poll_interval: 2s
  shell: console
visualizer:
  listen: ":8080"
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, logrus.DebugLevel, cfg.Level())
	assert.Equal(t, "AA:BB:CC:DD:EE:FF", cfg.Device.Address)
	assert.Equal(t, 10*time.Second, cfg.Device.ConnectTimeout)
	assert.Equal(t, 5*time.Second, cfg.Device.ReadTimeout, "unset keys MUST keep defaults")
	assert.Equal(t, reading.Range{Min: 50, Max: 180}, cfg.Range())
	assert.Equal(t, "postgres://localhost/hrmon", cfg.Storage.DSN)
	assert.Equal(t, 2*time.Second, cfg.Monitor.PollInterval)
	assert.Equal(t, ShellConsole, cfg.Monitor.Shell)
	assert.Equal(t, ":8080", cfg.Visualizer.Listen)
	assert.Equal(t, 120, cfg.Visualizer.History)

	opts := cfg.ConnectOptions()
	assert.Equal(t, device.ConnectOptions{
		Address:        "AA:BB:CC:DD:EE:FF",
		CharUUID:       "2a37",
		ConnectTimeout: 10 * time.Second,
		ReadTimeout:    5 * time.Second,
		Decoder:        reading.DecoderMeasurement,
	}, opts)
}

func TestLoad_NoFile(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoad_EnvOverrides(t *testing.T) {
	// GOAL: secrets come from .env or the environment, not only the file
	//
	// TEST SCENARIO: .env sets the token → process env sets the DSN → both win over the file
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte(EnvInfluxToken+"=from-dotenv\n"), 0o600))
	t.Setenv(EnvStorageDSN, "/var/lib/hrmon/prod.db")
	t.Cleanup(func() { os.Unsetenv(EnvInfluxToken) })

	path := filepath.Join(dir, "hrmon.yaml")
	require.NoError(t, os.WriteFile(path, []byte("storage:\n  dsn: file.db\n  influx:\n    token: from-file\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/hrmon/prod.db", cfg.Storage.DSN)
	assert.Equal(t, "from-dotenv", cfg.Storage.Influx.Token)
}

func TestLoad_InvalidYAML(t *testing.T) {
	t.Chdir(t.TempDir())
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("device: [unclosed"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config file")
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, "log_level"},
		{"bad char uuid", func(c *Config) { c.Device.CharUUID = "xyz" }, "device.char_uuid"},
		{"bad service uuid", func(c *Config) { c.Device.ServiceUUID = "12" }, "device.service_uuid"},
		{"zero timeout", func(c *Config) { c.Device.ReadTimeout = 0 }, "timeouts"},
		{"unknown decoder", func(c *Config) { c.Reading.Decoder = "float" }, "reading.decoder"},
		{"width too large", func(c *Config) { c.Reading.Width = 9 }, "reading.width"},
		{"inverted range", func(c *Config) { c.Reading.Range.Min = 200 }, "reading.range"},
		{"unknown driver", func(c *Config) { c.Storage.Driver = "mongo" }, "storage driver"},
		{"unknown policy", func(c *Config) { c.Monitor.Connection = "sometimes" }, "monitor.connection"},
		{"negative interval", func(c *Config) { c.Monitor.PollInterval = -time.Second }, "poll_interval"},
		{"unknown shell", func(c *Config) { c.Monitor.Shell = "web" }, "monitor.shell"},
		{"empty history", func(c *Config) { c.Visualizer.History = 0 }, "visualizer.history"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalid), "validation errors MUST wrap ErrInvalid")
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestConfig_NewLogger(t *testing.T) {
	tests := []struct {
		level string
		want  logrus.Level
	}{
		{"debug", logrus.DebugLevel},
		{"info", logrus.InfoLevel},
		{"warn", logrus.WarnLevel},
		{"error", logrus.ErrorLevel},
		{"", logrus.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			cfg := &Config{LogLevel: tt.level}
			logger := cfg.NewLogger()

			assert.Equal(t, tt.want, logger.GetLevel())
			formatter, ok := logger.Formatter.(*logrus.TextFormatter)
			require.True(t, ok)
			assert.True(t, formatter.FullTimestamp)
			assert.Equal(t, time.RFC3339, formatter.TimestampFormat)
		})
	}
}

func BenchmarkDefaultConfig(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_ = DefaultConfig()
	}
}
