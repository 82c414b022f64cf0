package database

import (
	"strings"
	"time"

	"feederconsole/app/internal/models"
)

// Log levels.
const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

// Log categories: aggregator status changes, relay host selection, feed
// config edits, logins, and process lifecycle.
const (
	LogCategoryStatus    = "status"
	LogCategorySelection = "selection"
	LogCategoryConfig    = "config"
	LogCategorySecurity  = "security"
	LogCategorySystem    = "system"
)

// LogFilter narrows GetLogs. Zero fields match everything.
type LogFilter struct {
	Level      string
	Category   string
	Aggregator string
	Since      time.Time
	Limit      int
	Offset     int
}

// InsertLog appends an entry stamped with the current time.
func InsertLog(level, category, aggregator, message, details string) error {
	var agg, det any
	if aggregator != "" {
		agg = aggregator
	}
	if details != "" {
		det = details
	}
	_, err := DB.Exec(`INSERT INTO system_logs (timestamp, level, category, aggregator, message, details)
		VALUES (?, ?, ?, ?, ?, ?)`,
		time.Now().UTC().Format(time.RFC3339), level, category, agg, message, det)
	return err
}

// GetLogs returns matching entries, newest first.
func GetLogs(f LogFilter) ([]models.LogEntry, error) {
	var (
		where []string
		args  []any
	)
	eq := func(col, v string) {
		if v != "" {
			where = append(where, col+" = ?")
			args = append(args, v)
		}
	}
	eq("level", f.Level)
	eq("category", f.Category)
	eq("aggregator", f.Aggregator)
	if !f.Since.IsZero() {
		where = append(where, "timestamp >= ?")
		args = append(args, f.Since.UTC().Format(time.RFC3339))
	}

	query := `SELECT id, timestamp, level, category, COALESCE(aggregator, ''), message, COALESCE(details, '')
		FROM system_logs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	if f.Limit <= 0 {
		f.Limit = 100
	}
	query += " ORDER BY timestamp DESC, id DESC LIMIT ? OFFSET ?"
	args = append(args, f.Limit, max(f.Offset, 0))

	rows, err := DB.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []models.LogEntry{}
	for rows.Next() {
		var e models.LogEntry
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.Level, &e.Category, &e.Aggregator, &e.Message, &e.Details); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// GetLogStats counts entries per level in one pass.
func GetLogStats() (*models.LogStats, error) {
	var s models.LogStats
	err := DB.QueryRow(`SELECT COUNT(*),
		COALESCE(SUM(level = 'error'), 0), COALESCE(SUM(level = 'warn'), 0),
		COALESCE(SUM(level = 'info'), 0), COALESCE(SUM(level = 'debug'), 0)
		FROM system_logs`).Scan(&s.TotalLogs, &s.ErrorCount, &s.WarnCount, &s.InfoCount, &s.DebugCount)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// PruneLogs keeps the newest keep entries.
func PruneLogs(keep int) error {
	_, err := DB.Exec(`DELETE FROM system_logs WHERE id NOT IN (
		SELECT id FROM system_logs ORDER BY timestamp DESC, id DESC LIMIT ?)`, keep)
	return err
}
