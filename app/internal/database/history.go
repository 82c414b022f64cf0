package database

import (
	"database/sql"
	"errors"
	"time"

	"feederconsole/app/internal/models"
)

// RecordStatus stores a status sample only when it differs from the last
// one stored for the aggregator. It reports whether a row was written.
func RecordStatus(ts time.Time, aggregator, beast, mlat, container string) (bool, error) {
	tx, err := DB.Begin()
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	var prev models.AggregatorState
	err = tx.QueryRow(`SELECT aggregator, beast, mlat FROM aggregator_state WHERE aggregator = ?`, aggregator).
		Scan(&prev.Aggregator, &prev.Beast, &prev.Mlat)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return false, err
	case prev.Beast == beast && prev.Mlat == mlat:
		return false, nil
	}

	at := ts.UTC().Format(time.RFC3339)
	var containerVal any
	if container != "" {
		containerVal = container
	}
	if _, err := tx.Exec(`INSERT INTO status_history (recorded_at, aggregator, beast, mlat, container)
		VALUES (?, ?, ?, ?, ?)`, at, aggregator, beast, mlat, containerVal); err != nil {
		return false, err
	}
	if _, err := tx.Exec(`INSERT INTO aggregator_state (aggregator, beast, mlat, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(aggregator) DO UPDATE SET beast = excluded.beast, mlat = excluded.mlat, updated_at = excluded.updated_at`,
		aggregator, beast, mlat, at); err != nil {
		return false, err
	}
	return true, tx.Commit()
}

// GetStatusHistory returns the newest changes first. An empty aggregator
// returns every aggregator's changes.
func GetStatusHistory(aggregator string, limit int) ([]models.StatusChange, error) {
	query := `SELECT id, recorded_at, aggregator, beast, mlat, COALESCE(container, '')
		FROM status_history`
	args := []any{}
	if aggregator != "" {
		query += " WHERE aggregator = ?"
		args = append(args, aggregator)
	}
	query += " ORDER BY recorded_at DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := DB.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	changes := []models.StatusChange{}
	for rows.Next() {
		var c models.StatusChange
		if err := rows.Scan(&c.ID, &c.RecordedAt, &c.Aggregator, &c.Beast, &c.Mlat, &c.Container); err != nil {
			return nil, err
		}
		changes = append(changes, c)
	}
	return changes, rows.Err()
}

// PruneStatusHistory drops history older than the cutoff.
func PruneStatusHistory(before time.Time) (int64, error) {
	res, err := DB.Exec(`DELETE FROM status_history WHERE recorded_at < ?`, before.UTC().Format(time.RFC3339))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// GetStatusWindow returns one aggregator's changes since the cutoff, oldest
// first, preceded by the last change before it so the state entering the
// window is known.
func GetStatusWindow(aggregator string, since time.Time) ([]models.StatusChange, error) {
	at := since.UTC().Format(time.RFC3339)
	rows, err := DB.Query(`SELECT id, recorded_at, aggregator, beast, mlat, COALESCE(container, '')
		FROM status_history
		WHERE aggregator = ? AND (recorded_at >= ? OR id = (
			SELECT id FROM status_history WHERE aggregator = ? AND recorded_at < ?
			ORDER BY recorded_at DESC, id DESC LIMIT 1))
		ORDER BY recorded_at ASC, id ASC`, aggregator, at, aggregator, at)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	changes := []models.StatusChange{}
	for rows.Next() {
		var c models.StatusChange
		if err := rows.Scan(&c.ID, &c.RecordedAt, &c.Aggregator, &c.Beast, &c.Mlat, &c.Container); err != nil {
			return nil, err
		}
		changes = append(changes, c)
	}
	return changes, rows.Err()
}
