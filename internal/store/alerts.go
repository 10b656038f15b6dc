package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/lox/tripweather/internal/models"
)

// AlertLogEntry is one dispatched alert.
type AlertLogEntry struct {
	ID           int64           `json:"id"`
	TripID       string          `json:"trip_id"`
	BatchID      string          `json:"batch_id"`
	Severity     models.Severity `json:"severity"`
	Changes      []models.Change `json:"changes"`
	DispatchedAt time.Time       `json:"dispatched_at"`
}

func (s *Store) InsertAlertLog(batchID string, alert models.Alert) (int64, error) {
	changes, err := json.Marshal(alert.Changes)
	if err != nil {
		return 0, fmt.Errorf("encode changes: %w", err)
	}
	dispatched := alert.GeneratedAt
	if dispatched.IsZero() {
		dispatched = time.Now()
	}

	result, err := s.db.Exec(`
		INSERT INTO alert_log (trip_id, batch_id, severity, change_count, changes_json, dispatched_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, alert.TripID, batchID, alert.Severity.String(), len(alert.Changes), string(changes), dispatched.UTC())
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// GetRecentAlerts returns a trip's dispatched alerts, newest first.
func (s *Store) GetRecentAlerts(tripID string, limit int) ([]AlertLogEntry, error) {
	rows, err := s.db.Query(`
		SELECT id, trip_id, batch_id, severity, changes_json, dispatched_at
		FROM alert_log
		WHERE trip_id = ?
		ORDER BY dispatched_at DESC, id DESC
		LIMIT ?
	`, tripID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []AlertLogEntry
	for rows.Next() {
		var e AlertLogEntry
		var severity, changes string
		if err := rows.Scan(&e.ID, &e.TripID, &e.BatchID, &severity, &changes, &e.DispatchedAt); err != nil {
			return nil, err
		}
		if err := e.Severity.UnmarshalText([]byte(severity)); err != nil {
			return nil, fmt.Errorf("alert %d: %w", e.ID, err)
		}
		if err := json.Unmarshal([]byte(changes), &e.Changes); err != nil {
			return nil, fmt.Errorf("alert %d: decode changes: %w", e.ID, err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
