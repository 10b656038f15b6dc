package store

import (
	"database/sql"
	"time"
)

// FetchRun audits one segment fetch within a batch.
type FetchRun struct {
	ID            int64
	BatchID       string
	StartedAt     time.Time
	FinishedAt    sql.NullTime
	TripID        string
	SegmentID     string
	Provider      sql.NullString
	Model         sql.NullString
	FallbackModel sql.NullString
	Points        sql.NullInt64
	Success       bool
	ErrorMessage  sql.NullString
}

func (s *Store) StartFetchRun(batchID, tripID, segmentID string) (*FetchRun, error) {
	run := &FetchRun{
		BatchID:   batchID,
		StartedAt: time.Now().UTC(),
		TripID:    tripID,
		SegmentID: segmentID,
	}

	result, err := s.db.Exec(`
		INSERT INTO fetch_runs (batch_id, started_at, trip_id, segment_id, success)
		VALUES (?, ?, ?, ?, FALSE)
	`, run.BatchID, run.StartedAt, run.TripID, run.SegmentID)
	if err != nil {
		return nil, err
	}

	run.ID, err = result.LastInsertId()
	if err != nil {
		return nil, err
	}
	return run, nil
}

func (s *Store) CompleteFetchRun(run *FetchRun) error {
	if run == nil {
		return nil
	}

	run.FinishedAt = sql.NullTime{Time: time.Now().UTC(), Valid: true}

	_, err := s.db.Exec(`
		UPDATE fetch_runs SET
			finished_at = ?,
			provider = ?,
			model = ?,
			fallback_model = ?,
			points = ?,
			success = ?,
			error_message = ?
		WHERE id = ?
	`, run.FinishedAt, run.Provider, run.Model, run.FallbackModel, run.Points,
		run.Success, run.ErrorMessage, run.ID)
	return err
}

// FetchHealthSummary is a daily per-provider roll-up of fetch runs.
type FetchHealthSummary struct {
	Date        string `json:"date"`
	Provider    string `json:"provider"`
	TotalRuns   int    `json:"total_runs"`
	SuccessRuns int    `json:"success_runs"`
	FailedRuns  int    `json:"failed_runs"`
	Fallbacks   int    `json:"fallbacks"`
}

func (s *Store) GetFetchHealth(days int) ([]FetchHealthSummary, error) {
	rows, err := s.db.Query(`
		SELECT
			DATE(SUBSTR(started_at, 1, 19)) as date,
			COALESCE(provider, '') as provider,
			COUNT(*) as total_runs,
			SUM(CASE WHEN success THEN 1 ELSE 0 END) as success_runs,
			SUM(CASE WHEN NOT success THEN 1 ELSE 0 END) as failed_runs,
			SUM(CASE WHEN fallback_model IS NOT NULL AND fallback_model != '' THEN 1 ELSE 0 END) as fallbacks
		FROM fetch_runs
		WHERE SUBSTR(started_at, 1, 19) > datetime('now', '-' || ? || ' days')
		GROUP BY date, provider
		ORDER BY date DESC, provider
	`, days)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []FetchHealthSummary
	for rows.Next() {
		var h FetchHealthSummary
		if err := rows.Scan(&h.Date, &h.Provider, &h.TotalRuns, &h.SuccessRuns, &h.FailedRuns, &h.Fallbacks); err != nil {
			return nil, err
		}
		results = append(results, h)
	}
	return results, rows.Err()
}

func (s *Store) GetRecentFetchErrors(limit int) ([]FetchRun, error) {
	rows, err := s.db.Query(`
		SELECT id, batch_id, started_at, finished_at, trip_id, segment_id,
		       provider, model, fallback_model, points, success, error_message
		FROM fetch_runs
		WHERE success = FALSE
		ORDER BY started_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []FetchRun
	for rows.Next() {
		var r FetchRun
		if err := rows.Scan(&r.ID, &r.BatchID, &r.StartedAt, &r.FinishedAt, &r.TripID, &r.SegmentID,
			&r.Provider, &r.Model, &r.FallbackModel, &r.Points, &r.Success, &r.ErrorMessage); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}
