package database

import (
	"database/sql"

	_ "modernc.org/sqlite"
)

// DB is the global database instance
var DB *sql.DB

// Init opens the database and creates the schema. sqlite serializes
// writers anyway, and a single connection keeps ":memory:" databases
// shared across callers.
func Init(dbPath string) error {
	var err error
	DB, err = sql.Open("sqlite", dbPath)
	if err != nil {
		return err
	}
	DB.SetMaxOpenConns(1)

	return EnsureSchema()
}

// Close releases the database and clears DB.
func Close() error {
	if DB == nil {
		return nil
	}
	err := DB.Close()
	DB = nil
	return err
}

// EnsureSchema creates all necessary database tables
func EnsureSchema() error {
	_, err := DB.Exec(`
CREATE TABLE IF NOT EXISTS status_history (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  recorded_at TEXT NOT NULL,
  aggregator TEXT NOT NULL,
  beast TEXT NOT NULL,
  mlat TEXT NOT NULL,
  container TEXT
);
CREATE INDEX IF NOT EXISTS idx_status_history_agg ON status_history(aggregator, recorded_at);

CREATE TABLE IF NOT EXISTS aggregator_state (
  aggregator TEXT PRIMARY KEY,
  beast TEXT NOT NULL,
  mlat TEXT NOT NULL,
  updated_at TEXT
);

CREATE TABLE IF NOT EXISTS decisions (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  decided_at TEXT NOT NULL,
  host TEXT,
  reason TEXT NOT NULL,
  mode TEXT NOT NULL,
  strategy TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_decisions_at ON decisions(decided_at);

CREATE TABLE IF NOT EXISTS system_logs (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  timestamp TEXT NOT NULL,
  level TEXT NOT NULL,
  category TEXT NOT NULL,
  aggregator TEXT,
  message TEXT NOT NULL,
  details TEXT
);
CREATE INDEX IF NOT EXISTS idx_system_logs_ts ON system_logs(timestamp);
`)
	return err
}
