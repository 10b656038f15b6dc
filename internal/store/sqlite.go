package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"github.com/lox/tripweather/internal/models"
)

type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

func New(db *sql.DB, logger *slog.Logger) *Store {
	return &Store{db: db, logger: logger.With("component", "store")}
}

// Open opens the sqlite database at path in WAL mode.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.Exec("PRAGMA journal_mode=WAL")
	db.Exec("PRAGMA busy_timeout=5000")
	return db, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Baseline is the last summary a trip segment was compared against.
type Baseline struct {
	TripID    string
	SegmentID string
	Summary   models.SegmentSummary
	Provider  string
	Model     string
	FetchedAt time.Time
	UpdatedAt time.Time
}

func (s *Store) SaveBaseline(b Baseline) error {
	summary, err := json.Marshal(b.Summary)
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO baselines (trip_id, segment_id, summary_json, provider, model, fetched_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(trip_id, segment_id) DO UPDATE SET
			summary_json = excluded.summary_json,
			provider = excluded.provider,
			model = excluded.model,
			fetched_at = excluded.fetched_at,
			updated_at = excluded.updated_at
	`, b.TripID, b.SegmentID, string(summary), b.Provider, b.Model, b.FetchedAt.UTC(), time.Now().UTC())
	return err
}

// GetBaselines returns the stored baselines of a trip keyed by segment ID.
func (s *Store) GetBaselines(tripID string) (map[string]Baseline, error) {
	rows, err := s.db.Query(`
		SELECT trip_id, segment_id, summary_json, provider, model, fetched_at, updated_at
		FROM baselines
		WHERE trip_id = ?
	`, tripID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]Baseline)
	for rows.Next() {
		var b Baseline
		var summary string
		if err := rows.Scan(&b.TripID, &b.SegmentID, &summary, &b.Provider, &b.Model, &b.FetchedAt, &b.UpdatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(summary), &b.Summary); err != nil {
			return nil, fmt.Errorf("decode baseline %s/%s: %w", b.TripID, b.SegmentID, err)
		}
		out[b.SegmentID] = b
	}
	return out, rows.Err()
}

func (s *Store) DeleteBaselines(tripID string) (int64, error) {
	result, err := s.db.Exec(`DELETE FROM baselines WHERE trip_id = ?`, tripID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
