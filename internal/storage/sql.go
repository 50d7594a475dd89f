package storage

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// sqlSink is the database/sql implementation shared by the sqlite and postgres drivers
type sqlSink struct {
	driver     string
	sqlDriver  string
	dsn        string
	createStmt string
	insertStmt string
	pragmas    []string
	logger     *logrus.Logger

	mu sync.Mutex
	db *sql.DB
}

// DB exposes the underlying handle once Init has succeeded
func (s *sqlSink) DB() *sql.DB {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db
}

func (s *sqlSink) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		db, err := sql.Open(s.sqlDriver, s.dsn)
		if err != nil {
			return wrap("init", s.driver, err)
		}
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return wrap("init", s.driver, err)
		}
		for _, pragma := range s.pragmas {
			if _, err := db.ExecContext(ctx, pragma); err != nil {
				s.logger.WithFields(logrus.Fields{
					"driver": s.driver,
					"pragma": pragma,
					"error":  err,
				}).Warn("Failed to apply pragma")
			}
		}
		s.db = db
	}

	if _, err := s.db.ExecContext(ctx, s.createStmt); err != nil {
		return wrap("init", s.driver, fmt.Errorf("failed to create %s table: %w", TableName, err))
	}

	s.logger.WithFields(logrus.Fields{
		"driver": s.driver,
		"table":  TableName,
	}).Debug("Storage initialized")
	return nil
}

func (s *sqlSink) Insert(ctx context.Context, rec Record) error {
	s.mu.Lock()
	db := s.db
	s.mu.Unlock()
	if db == nil {
		return wrap("insert", s.driver, ErrNotInitialized)
	}

	value, err := rec.storedValue()
	if err != nil {
		return wrap("insert", s.driver, err)
	}
	recordedAt := rec.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = time.Now()
	}
	if _, err := db.ExecContext(ctx, s.insertStmt,
		value, rec.Anomaly, rec.Device, recordedAt.UTC()); err != nil {
		return wrap("insert", s.driver, err)
	}

	s.logger.WithFields(logrus.Fields{
		"driver":  s.driver,
		"value":   rec.Value,
		"anomaly": rec.Anomaly,
	}).Debug("Reading stored")
	return nil
}

func (s *sqlSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return wrap("close", s.driver, err)
}
