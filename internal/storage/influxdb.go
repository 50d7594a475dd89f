package storage

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/domain"
	"github.com/sirupsen/logrus"
)

// InfluxSink writes readings as points of the heart_rate measurement
type InfluxSink struct {
	cfg    InfluxConfig
	logger *logrus.Logger

	mu     sync.Mutex
	client influxdb2.Client
}

// NewInfluxSink creates a sink; the server is contacted on Init
func NewInfluxSink(cfg InfluxConfig, logger *logrus.Logger) *InfluxSink {
	if logger == nil {
		logger = logrus.New()
	}
	return &InfluxSink{cfg: cfg, logger: logger}
}

// Init checks server health and creates the bucket when it does not exist
func (s *InfluxSink) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client == nil {
		s.client = influxdb2.NewClient(s.cfg.URL, s.cfg.Token)
	}

	health, err := s.client.Health(ctx)
	if err != nil {
		return wrap("init", DriverInfluxDB, fmt.Errorf("failed to connect to %s: %w", s.cfg.URL, err))
	}
	if health.Status != domain.HealthCheckStatusPass {
		msg := string(health.Status)
		if health.Message != nil {
			msg = *health.Message
		}
		return wrap("init", DriverInfluxDB, fmt.Errorf("health check failed: %s", msg))
	}

	exists, err := s.bucketExists(ctx)
	if err != nil {
		return wrap("init", DriverInfluxDB, err)
	}
	if !exists {
		org, err := s.client.OrganizationsAPI().FindOrganizationByName(ctx, s.cfg.Org)
		if err != nil {
			return wrap("init", DriverInfluxDB, fmt.Errorf("organization %q: %w", s.cfg.Org, err))
		}
		if _, err := s.client.BucketsAPI().CreateBucketWithName(ctx, org, s.cfg.Bucket); err != nil {
			return wrap("init", DriverInfluxDB, fmt.Errorf("failed to create bucket %q: %w", s.cfg.Bucket, err))
		}
		s.logger.WithFields(logrus.Fields{
			"driver": DriverInfluxDB,
			"bucket": s.cfg.Bucket,
		}).Info("Bucket created")
	}
	return nil
}

func (s *InfluxSink) bucketExists(ctx context.Context) (bool, error) {
	_, err := s.client.BucketsAPI().FindBucketByName(ctx, s.cfg.Bucket)
	if err == nil {
		return true, nil
	}
	if strings.Contains(strings.ToLower(err.Error()), "not found") {
		return false, nil
	}
	return false, fmt.Errorf("failed to look up bucket %q: %w", s.cfg.Bucket, err)
}

// Insert writes one point with a blocking write
func (s *InfluxSink) Insert(ctx context.Context, rec Record) error {
	s.mu.Lock()
	client := s.client
	s.mu.Unlock()
	if client == nil {
		return wrap("insert", DriverInfluxDB, ErrNotInitialized)
	}

	value, err := rec.storedValue()
	if err != nil {
		return wrap("insert", DriverInfluxDB, err)
	}
	recordedAt := rec.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = time.Now()
	}
	point := influxdb2.NewPoint(
		TableName,
		map[string]string{"device": rec.Device},
		map[string]interface{}{
			"value":   value,
			"anomaly": rec.Anomaly,
		},
		recordedAt,
	)

	writeAPI := client.WriteAPIBlocking(s.cfg.Org, s.cfg.Bucket)
	if err := writeAPI.WritePoint(ctx, point); err != nil {
		return wrap("insert", DriverInfluxDB, err)
	}
	return nil
}

// Close releases the HTTP client
func (s *InfluxSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil {
		s.client.Close()
		s.client = nil
	}
	return nil
}
