package storage

import (
	"github.com/sirupsen/logrus"

	_ "github.com/lib/pq"
)

// PostgresSink stores readings in a PostgreSQL table
type PostgresSink struct {
	*sqlSink
}

// NewPostgresSink creates a sink for the given lib/pq connection string
func NewPostgresSink(dsn string, logger *logrus.Logger) *PostgresSink {
	if logger == nil {
		logger = logrus.New()
	}
	return &PostgresSink{&sqlSink{
		driver:    DriverPostgres,
		sqlDriver: "postgres",
		dsn:       dsn,
		createStmt: `
			CREATE TABLE IF NOT EXISTS ` + TableName + ` (
				id BIGSERIAL PRIMARY KEY,
				value BIGINT NOT NULL,
				anomaly BOOLEAN NOT NULL,
				device TEXT NOT NULL,
				recorded_at TIMESTAMPTZ NOT NULL
			)`,
		insertStmt: `INSERT INTO ` + TableName + ` (value, anomaly, device, recorded_at) VALUES ($1, $2, $3, $4)`,
		logger:     logger,
	}}
}
