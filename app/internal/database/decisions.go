package database

import (
	"database/sql"
	"errors"
	"time"

	"feederconsole/app/internal/models"
)

// RecordDecision appends a relay host selection.
func RecordDecision(ts time.Time, host, reason, mode, strategy string) error {
	_, err := DB.Exec(`INSERT INTO decisions (decided_at, host, reason, mode, strategy)
		VALUES (?, ?, ?, ?, ?)`,
		ts.UTC().Format(time.RFC3339), host, reason, mode, strategy)
	return err
}

// GetDecisions returns the newest selections first.
func GetDecisions(limit int) ([]models.DecisionRecord, error) {
	rows, err := DB.Query(`SELECT id, decided_at, COALESCE(host, ''), reason, mode, strategy
		FROM decisions ORDER BY decided_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.DecisionRecord{}
	for rows.Next() {
		var d models.DecisionRecord
		if err := rows.Scan(&d.ID, &d.DecidedAt, &d.Host, &d.Reason, &d.Mode, &d.Strategy); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// LastDecision returns the most recent selection, or nil if none exists.
func LastDecision() (*models.DecisionRecord, error) {
	var d models.DecisionRecord
	err := DB.QueryRow(`SELECT id, decided_at, COALESCE(host, ''), reason, mode, strategy
		FROM decisions ORDER BY decided_at DESC, id DESC LIMIT 1`).
		Scan(&d.ID, &d.DecidedAt, &d.Host, &d.Reason, &d.Mode, &d.Strategy)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}
