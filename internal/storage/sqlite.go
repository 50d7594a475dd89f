package storage

import (
	"github.com/sirupsen/logrus"

	_ "modernc.org/sqlite"
)

// SQLiteSink stores readings in a local SQLite file
type SQLiteSink struct {
	*sqlSink
}

// NewSQLiteSink creates a sink for the database file at path
func NewSQLiteSink(path string, logger *logrus.Logger) *SQLiteSink {
	if logger == nil {
		logger = logrus.New()
	}
	return &SQLiteSink{&sqlSink{
		driver:    DriverSQLite,
		sqlDriver: "sqlite",
		dsn:       path,
		createStmt: `
			CREATE TABLE IF NOT EXISTS ` + TableName + ` (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				value INTEGER NOT NULL,
				anomaly INTEGER NOT NULL,
				device TEXT NOT NULL,
				recorded_at TIMESTAMP NOT NULL
			)`,
		insertStmt: `INSERT INTO ` + TableName + ` (value, anomaly, device, recorded_at) VALUES (?, ?, ?, ?)`,
		pragmas: []string{
			"PRAGMA journal_mode = WAL;",
			"PRAGMA synchronous = NORMAL;",
		},
		logger: logger,
	}}
}
