package main

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	goble "github.com/srg/hrmon/internal/device/go-ble"
	"github.com/srg/hrmon/internal/lua"
	"github.com/srg/hrmon/internal/monitor"
	"github.com/srg/hrmon/internal/reading"
	"github.com/srg/hrmon/internal/storage"
	"github.com/srg/hrmon/pkg/config"
)

// session bundles the parts every command that touches the sensor needs
type session struct {
	cfg      *config.Config
	logger   *logrus.Logger
	pipeline *reading.Pipeline
	sink     storage.Sink
	fetcher  *monitor.Fetcher
	cleanup  []func()
}

// newSession builds sensor, pipeline, storage and fetcher from cfg.
// The sink is returned uninitialized. Close releases everything built here.
func newSession(ctx context.Context, cfg *config.Config, logger *logrus.Logger, opts ...monitor.FetcherOption) (*session, error) {
	s := &session{cfg: cfg, logger: logger}

	if strings.TrimSpace(cfg.Device.Address) == "" {
		return nil, ErrNoAddress
	}

	pipeline, err := s.buildPipeline(ctx)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.pipeline = pipeline

	sink, err := storage.New(cfg.Storage, logger)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.sink = sink

	sensor, err := goble.NewSensor(cfg.ConnectOptions(), logger)
	if err != nil {
		s.Close()
		return nil, err
	}

	policy, err := monitor.ParsePolicy(cfg.Monitor.Connection)
	if err != nil {
		s.Close()
		return nil, err
	}
	opts = append([]monitor.FetcherOption{monitor.WithPolicy(policy)}, opts...)

	s.fetcher, err = monitor.NewFetcher(sensor, pipeline, sink, logger, opts...)
	if err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// buildPipeline loads the optional rule script and drains its print output into the log
func (s *session) buildPipeline(ctx context.Context) (*reading.Pipeline, error) {
	var rule reading.Rule

	if path := s.cfg.Reading.RuleScript; path != "" {
		engine := lua.NewRuleEngine(s.logger)
		if err := engine.LoadScriptFile(path); err != nil {
			engine.Close()
			return nil, err
		}
		drainer := lua.NewOutputDrainer(ctx, engine.OutputChannel(), s.logger)
		s.cleanup = append(s.cleanup, func() {
			drainer.Cancel()
			drainer.Wait()
			engine.Close()
		})
		s.logger.WithFields(logrus.Fields{
			"script":     path,
			"process":    engine.HasProcess(),
			"is_anomaly": engine.HasIsAnomaly(),
		}).Info("Rule script loaded")
		rule = engine
	}

	return reading.NewPipeline(s.cfg.Range(), rule)
}

// Close releases the rule engine. Sink and fetcher are owned by their runner.
func (s *session) Close() {
	for i := len(s.cleanup) - 1; i >= 0; i-- {
		s.cleanup[i]()
	}
	s.cleanup = nil
}

// applyDeviceFlags copies explicitly set device flags over cfg
func applyDeviceFlags(cmd *cobra.Command, cfg *config.Config) {
	if f := cmd.Flags().Lookup("address"); f != nil && f.Changed {
		cfg.Device.Address = f.Value.String()
	}
	if f := cmd.Flags().Lookup("char"); f != nil && f.Changed {
		cfg.Device.CharUUID = f.Value.String()
	}
	if f := cmd.Flags().Lookup("service"); f != nil && f.Changed {
		cfg.Device.ServiceUUID = f.Value.String()
	}
}

// applyStorageFlags copies explicitly set storage flags over cfg
func applyStorageFlags(cmd *cobra.Command, cfg *config.Config) {
	if f := cmd.Flags().Lookup("storage"); f != nil && f.Changed {
		cfg.Storage.Driver = f.Value.String()
	}
	if f := cmd.Flags().Lookup("dsn"); f != nil && f.Changed {
		cfg.Storage.DSN = f.Value.String()
	}
}
