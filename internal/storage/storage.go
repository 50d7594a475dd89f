// Package storage persists processed heart-rate readings.
//
// Every driver implements Sink: Init creates the schema if it does not exist
// and Insert appends one record. Nothing is read back by the application.
package storage

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/hrmon/internal/reading"
)

// Supported drivers
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverInfluxDB = "influxdb"
	DriverMemory   = "memory"
)

// TableName is the relational table (and InfluxDB measurement) holding readings
const TableName = "heart_rate"

// Record is one stored reading
type Record struct {
	Value      reading.Reading
	Anomaly    bool
	Device     string
	RecordedAt time.Time
}

// storedValue returns the value as the signed integer every driver persists.
// Readings above math.MaxInt64 fail with ErrValueRange instead of wrapping.
func (r Record) storedValue() (int64, error) {
	if uint64(r.Value) > math.MaxInt64 {
		return 0, fmt.Errorf("%w: %d", ErrValueRange, uint64(r.Value))
	}
	return int64(r.Value), nil
}

// Sink is a create-only reading store
type Sink interface {
	Init(ctx context.Context) error
	Insert(ctx context.Context, rec Record) error
	Close() error
}

// StorageError reports a failed storage operation
type StorageError struct {
	Op     string // "init", "insert", "close"
	Driver string
	Err    error
}

func (e *StorageError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("storage %s (%s): %v", e.Op, e.Driver, e.Err)
}

func (e *StorageError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches another StorageError by Op; an empty Op matches any operation
func (e *StorageError) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*StorageError)
	if !ok {
		return false
	}
	return t.Op == "" || t.Op == e.Op
}

// Sentinel errors for errors.Is
var (
	ErrStorage        = &StorageError{}
	ErrInit           = &StorageError{Op: "init"}
	ErrInsert         = &StorageError{Op: "insert"}
	ErrNotInitialized = errors.New("sink is not initialized")
	ErrValueRange     = errors.New("value exceeds the signed 64-bit column range")
)

// Config selects and configures a driver
type Config struct {
	Driver string       `yaml:"driver" default:"sqlite"`
	DSN    string       `yaml:"dsn" default:"hrmon.db"` // sqlite file path or postgres connection string
	Influx InfluxConfig `yaml:"influx"`
}

// InfluxConfig configures the influxdb driver
type InfluxConfig struct {
	URL    string `yaml:"url" default:"http://localhost:8086"`
	Token  string `yaml:"token"`
	Org    string `yaml:"org" default:"hrmon"`
	Bucket string `yaml:"bucket" default:"heart_rate"`
}

// New creates the sink named by cfg.Driver. The sink is not initialized.
func New(cfg Config, logger *logrus.Logger) (Sink, error) {
	if logger == nil {
		logger = logrus.New()
	}
	switch strings.ToLower(cfg.Driver) {
	case DriverSQLite, "":
		return NewSQLiteSink(cfg.DSN, logger), nil
	case DriverPostgres:
		return NewPostgresSink(cfg.DSN, logger), nil
	case DriverInfluxDB:
		return NewInfluxSink(cfg.Influx, logger), nil
	case DriverMemory:
		return NewMemorySink(), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q (supported: %s, %s, %s, %s)",
			cfg.Driver, DriverSQLite, DriverPostgres, DriverInfluxDB, DriverMemory)
	}
}

func wrap(op, driver string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Driver: driver, Err: err}
}
