package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lox/tripweather/internal/jsonfile"
	"github.com/lox/tripweather/internal/metrics"
	"github.com/lox/tripweather/internal/models"
)

// TripSource lists the trips to check on each batch run.
type TripSource interface {
	Trips(ctx context.Context) ([]models.Trip, error)
}

type tripFile struct {
	Trips []models.Trip `json:"trips"`
}

// FileTripSource reads trips from a JSON file on every call, so edits are
// picked up by the next batch. Invalid trips are logged and skipped.
type FileTripSource struct {
	path   string
	logger *slog.Logger
}

func NewFileTripSource(path string, logger *slog.Logger) *FileTripSource {
	return &FileTripSource{path: path, logger: logger.With("component", "trips")}
}

func (s *FileTripSource) Trips(ctx context.Context) ([]models.Trip, error) {
	var f tripFile
	if err := jsonfile.Read(s.path, &f); err != nil {
		return nil, fmt.Errorf("load trips: %w", err)
	}
	trips := make([]models.Trip, 0, len(f.Trips))
	for i := range f.Trips {
		if err := normalizeTrip(&f.Trips[i]); err != nil {
			s.logger.Warn("trips: skipping invalid trip", "index", i, "trip", f.Trips[i].ID, "error", err)
			metrics.TripsSkippedTotal.Inc()
			continue
		}
		trips = append(trips, f.Trips[i])
	}
	return trips, nil
}

// normalizeTrip checks identifiers and that segment times are UTC.
func normalizeTrip(t *models.Trip) error {
	if t.ID == "" {
		return &models.ValidationError{Field: "trip.id", Reason: "must not be empty"}
	}
	if t.Profile == "" {
		t.Profile = models.ProfileGeneral
	}
	seen := make(map[string]bool, len(t.Segments))
	for i := range t.Segments {
		seg := &t.Segments[i]
		if seg.ID == "" {
			return &models.ValidationError{Field: "segment.id", Reason: fmt.Sprintf("trip %s segment %d has no id", t.ID, i)}
		}
		if seen[seg.ID] {
			return &models.ValidationError{Field: "segment.id", Reason: fmt.Sprintf("trip %s has duplicate segment %s", t.ID, seg.ID)}
		}
		seen[seg.ID] = true
		var err error
		if seg.Start, err = requireUTC(seg.Start, "segment.start", seg.ID); err != nil {
			return err
		}
		if seg.End, err = requireUTC(seg.End, "segment.end", seg.ID); err != nil {
			return err
		}
		if seg.Waypoint.Name == "" {
			seg.Waypoint.Name = seg.ID
		}
	}
	return nil
}

// requireUTC rejects timestamps carrying a non-zero offset and returns t in
// the UTC location.
func requireUTC(t time.Time, field, segID string) (time.Time, error) {
	if _, off := t.Zone(); off != 0 {
		return time.Time{}, &models.ValidationError{Field: field, Reason: fmt.Sprintf("segment %s: timestamp must be UTC", segID)}
	}
	return t.UTC(), nil
}
