package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/klauspost/compress/zstd"
)

var (
	encoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	decoder, _ = zstd.NewReader(nil)
)

// RawPayload is an archived upstream response.
type RawPayload struct {
	ID                int64
	FetchRunID        sql.NullInt64
	FetchedAt         time.Time
	Source            string
	Endpoint          string
	LocationKey       sql.NullString
	PayloadCompressed []byte
	PayloadHash       string
	SchemaVersion     int
}

// StoreRawPayload stores a zstd-compressed upstream response.
// Returns the payload ID, or 0 if the payload was a duplicate (same hash).
func (s *Store) StoreRawPayload(runID *int64, source, endpoint, locationKey string, payload []byte) (int64, error) {
	compressed := encoder.EncodeAll(payload, nil)

	hash := sha256.Sum256(payload)
	hashHex := hex.EncodeToString(hash[:])

	var fetchRunID sql.NullInt64
	if runID != nil {
		fetchRunID = sql.NullInt64{Int64: *runID, Valid: true}
	}
	var location sql.NullString
	if locationKey != "" {
		location = sql.NullString{String: locationKey, Valid: true}
	}

	result, err := s.db.Exec(`
		INSERT INTO raw_payloads
		(fetch_run_id, fetched_at, source, endpoint, location_key,
		 payload_compressed, payload_hash, schema_version)
		VALUES (?, ?, ?, ?, ?, ?, ?, 1)
		ON CONFLICT(payload_hash) DO NOTHING
	`, fetchRunID, time.Now().UTC(), source, endpoint, location, compressed, hashHex)
	if err != nil {
		return 0, fmt.Errorf("insert raw payload: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, nil
	}
	return result.LastInsertId()
}

type fetchRunKey struct{}

// WithFetchRun tags ctx so payloads recorded under it link to the run.
func WithFetchRun(ctx context.Context, runID int64) context.Context {
	return context.WithValue(ctx, fetchRunKey{}, runID)
}

func fetchRunFrom(ctx context.Context) *int64 {
	if id, ok := ctx.Value(fetchRunKey{}).(int64); ok {
		return &id
	}
	return nil
}

// RecordPayload archives a provider response, linked to the fetch run
// carried by ctx if there is one.
func (s *Store) RecordPayload(ctx context.Context, source, endpoint, locationKey string, payload []byte) error {
	_, err := s.StoreRawPayload(fetchRunFrom(ctx), source, endpoint, locationKey, payload)
	return err
}

// GetRawPayload retrieves and decompresses a stored payload by ID.
func (s *Store) GetRawPayload(id int64) ([]byte, error) {
	var compressed []byte
	err := s.db.QueryRow(`SELECT payload_compressed FROM raw_payloads WHERE id = ?`, id).
		Scan(&compressed)
	if err != nil {
		return nil, err
	}

	payload, err := decoder.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress payload %d: %w", id, err)
	}
	return payload, nil
}

// GetRawPayloadByHash looks up a payload by the hex sha256 of its
// uncompressed body.
func (s *Store) GetRawPayloadByHash(hash string) (*RawPayload, error) {
	row := s.db.QueryRow(`
		SELECT id, fetch_run_id, fetched_at, source, endpoint, location_key,
		       payload_compressed, payload_hash, schema_version
		FROM raw_payloads WHERE payload_hash = ?
	`, hash)

	var p RawPayload
	err := row.Scan(&p.ID, &p.FetchRunID, &p.FetchedAt, &p.Source, &p.Endpoint,
		&p.LocationKey, &p.PayloadCompressed, &p.PayloadHash, &p.SchemaVersion)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

type RawPayloadStats struct {
	TotalCount     int              `json:"total_count"`
	TotalSizeBytes int64            `json:"total_size_bytes"`
	CountBySource  map[string]int   `json:"count_by_source"`
	SizeBySource   map[string]int64 `json:"size_by_source"`
}

func (s *Store) GetRawPayloadStats() (*RawPayloadStats, error) {
	stats := &RawPayloadStats{
		CountBySource: make(map[string]int),
		SizeBySource:  make(map[string]int64),
	}

	rows, err := s.db.Query(`
		SELECT source, COUNT(*), SUM(LENGTH(payload_compressed))
		FROM raw_payloads
		GROUP BY source
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var source string
		var count int
		var size int64
		if err := rows.Scan(&source, &count, &size); err != nil {
			return nil, err
		}
		stats.CountBySource[source] = count
		stats.SizeBySource[source] = size
		stats.TotalCount += count
		stats.TotalSizeBytes += size
	}
	return stats, rows.Err()
}

// CleanupOldRawPayloads deletes payloads older than retentionDays and
// returns how many were removed.
func (s *Store) CleanupOldRawPayloads(retentionDays int) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)
	result, err := s.db.Exec(`DELETE FROM raw_payloads WHERE fetched_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
