package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/hrmon/internal/device"
	"github.com/srg/hrmon/internal/reading"
	"github.com/srg/hrmon/internal/storage"
)

// ConnectionPolicy decides how long a sensor connection lives
type ConnectionPolicy string

const (
	// PolicyPerFetch connects, reads and disconnects on every fetch
	PolicyPerFetch ConnectionPolicy = "per-fetch"
	// PolicyPersistent keeps one connection across fetches
	PolicyPersistent ConnectionPolicy = "persistent"
)

// ParsePolicy accepts the configuration spelling of a policy; empty means per-fetch
func ParsePolicy(s string) (ConnectionPolicy, error) {
	switch ConnectionPolicy(s) {
	case "", PolicyPerFetch:
		return PolicyPerFetch, nil
	case PolicyPersistent:
		return PolicyPersistent, nil
	default:
		return "", fmt.Errorf("unknown connection policy %q (expected %s or %s)", s, PolicyPerFetch, PolicyPersistent)
	}
}

// Fetcher performs one connect → read → process → store → classify cycle
type Fetcher struct {
	sensor   device.Sensor
	pipeline *reading.Pipeline
	sink     storage.Sink
	policy   ConnectionPolicy
	logger   *logrus.Logger
	progress device.ProgressCallback
	now      func() time.Time

	mu sync.Mutex
}

// FetcherOption configures a Fetcher
type FetcherOption func(*Fetcher)

// WithPolicy selects the connection policy
func WithPolicy(p ConnectionPolicy) FetcherOption {
	return func(f *Fetcher) {
		f.policy = p
	}
}

// WithProgress reports connection phases of per-fetch cycles
func WithProgress(cb device.ProgressCallback) FetcherOption {
	return func(f *Fetcher) {
		f.progress = cb
	}
}

// WithClock replaces time.Now for the read timestamp
func WithClock(now func() time.Time) FetcherOption {
	return func(f *Fetcher) {
		f.now = now
	}
}

// NewFetcher creates a Fetcher; sensor, pipeline and sink are required
func NewFetcher(sensor device.Sensor, pipeline *reading.Pipeline, sink storage.Sink, logger *logrus.Logger, opts ...FetcherOption) (*Fetcher, error) {
	if sensor == nil || pipeline == nil || sink == nil {
		return nil, fmt.Errorf("fetcher requires a sensor, a pipeline and a storage sink")
	}
	if logger == nil {
		logger = logrus.New()
	}
	f := &Fetcher{
		sensor:   sensor,
		pipeline: pipeline,
		sink:     sink,
		policy:   PolicyPerFetch,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	if _, err := ParsePolicy(string(f.policy)); err != nil {
		return nil, err
	}
	return f, nil
}

// Policy returns the configured connection policy
func (f *Fetcher) Policy() ConnectionPolicy {
	return f.policy
}

// Fetch reads one value from the sensor and stores it.
// Nothing is stored when the connection or the read fails.
func (f *Fetcher) Fetch(ctx context.Context) (Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.policy == PolicyPersistent {
		return f.fetchPersistent(ctx)
	}
	return device.WithConnection(ctx, f.sensor, f.logger, f.progress, func(s device.Sensor) (Result, error) {
		return f.readAndStore(ctx, s)
	})
}

func (f *Fetcher) fetchPersistent(ctx context.Context) (Result, error) {
	if !f.sensor.IsConnected() {
		if err := f.sensor.Connect(ctx); err != nil {
			return Result{}, err
		}
		f.logger.WithField("address", f.sensor.Address()).Info("Sensor connected")
	}

	result, err := f.readAndStore(ctx, f.sensor)
	if err != nil && device.IsTransportError(err) {
		// drop the connection so the next fetch starts over
		f.disconnect()
	}
	return result, err
}

func (f *Fetcher) readAndStore(ctx context.Context, s device.Sensor) (Result, error) {
	raw, err := s.ReadValue(ctx)
	if err != nil {
		return Result{}, err
	}

	value := f.pipeline.Process(raw)
	anomaly := f.pipeline.DetectAnomaly(value)
	result := Result{
		Raw:     raw,
		Value:   value,
		Anomaly: anomaly,
		ReadAt:  f.now(),
		Address: s.Address(),
	}

	if err := f.sink.Insert(ctx, storage.Record{
		Value:      value,
		Anomaly:    anomaly,
		Device:     result.Address,
		RecordedAt: result.ReadAt,
	}); err != nil {
		return Result{}, err
	}

	fields := logrus.Fields{
		"address": result.Address,
		"raw":     raw,
		"value":   value,
	}
	if anomaly {
		fields["range"] = f.pipeline.Range().String()
		f.logger.WithFields(fields).Warn("Anomaly detected")
	} else {
		f.logger.WithFields(fields).Debug("Heart rate read")
	}
	return result, nil
}

// Close releases a persistent connection
func (f *Fetcher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.policy != PolicyPersistent || !f.sensor.IsConnected() {
		return nil
	}
	return f.sensor.Disconnect()
}

func (f *Fetcher) disconnect() {
	if err := f.sensor.Disconnect(); err != nil {
		f.logger.WithFields(logrus.Fields{
			"address": f.sensor.Address(),
			"error":   err,
		}).Warn("Failed to disconnect sensor")
	}
}
