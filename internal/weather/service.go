package weather

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/lox/tripweather/internal/aggregate"
	"github.com/lox/tripweather/internal/cache"
	"github.com/lox/tripweather/internal/models"
	"github.com/lox/tripweather/internal/provider"
)

// Result is a segment forecast with its temporal summary.
type Result struct {
	Segment    models.Segment        `json:"segment"`
	Timeseries *models.Timeseries    `json:"timeseries"`
	Summary    models.SegmentSummary `json:"summary"`
	Cached     bool                  `json:"cached"`
	FetchedAt  time.Time             `json:"fetched_at"`
}

// Service answers segment forecast requests through the cache. Concurrent
// misses for the same key share one upstream fetch.
type Service struct {
	provider provider.Provider
	cache    *cache.Cache
	flight   singleflight.Group
	logger   *slog.Logger
}

func NewService(p provider.Provider, c *cache.Cache, logger *slog.Logger) *Service {
	return &Service{
		provider: p,
		cache:    c,
		logger:   logger.With("component", "weather"),
	}
}

func (s *Service) Cache() *cache.Cache {
	return s.cache
}

// SegmentWeather returns the cached forecast for seg or fetches, summarizes
// and caches a fresh one.
func (s *Service) SegmentWeather(ctx context.Context, seg models.Segment) (Result, error) {
	req := seg.Request()
	if err := req.Validate(); err != nil {
		return Result{}, err
	}

	key := segmentKey(seg)
	if e, ok := s.cache.Get(key); ok {
		return Result{Segment: seg, Timeseries: e.Timeseries, Summary: e.Summary, Cached: true, FetchedAt: e.InsertedAt}, nil
	}
	return s.shared(ctx, key, seg)
}

// Refresh skips the cache lookup but stores the fresh result.
func (s *Service) Refresh(ctx context.Context, seg models.Segment) (Result, error) {
	req := seg.Request()
	if err := req.Validate(); err != nil {
		return Result{}, err
	}
	return s.shared(ctx, segmentKey(seg), seg)
}

func (s *Service) shared(ctx context.Context, key string, seg models.Segment) (Result, error) {
	// The shared fetch must not die with whichever caller started it.
	fetchCtx := context.WithoutCancel(ctx)
	ch := s.flight.DoChan(key, func() (any, error) {
		return s.fetch(fetchCtx, key, seg)
	})

	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return Result{}, r.Err
		}
		res := r.Val.(Result)
		res.Segment = seg
		return res, nil
	}
}

func (s *Service) fetch(ctx context.Context, key string, seg models.Segment) (Result, error) {
	ts, err := s.provider.FetchForecast(ctx, seg.Request())
	if err != nil {
		return Result{}, err
	}

	summary, err := aggregate.Compute(ts)
	if err != nil {
		return Result{}, fmt.Errorf("summarize segment %s: %w", seg.ID, err)
	}

	now := time.Now().UTC()
	s.cache.Put(key, cache.Entry{Timeseries: ts, Summary: summary, InsertedAt: now})
	s.logger.Debug("weather: cached segment forecast",
		"segment", seg.ID,
		"provider", ts.Meta.Provider,
		"model", ts.Meta.Model,
		"fallback_model", ts.Meta.FallbackModel,
		"points", len(ts.Points))

	return Result{Segment: seg, Timeseries: ts, Summary: summary, FetchedAt: now}, nil
}

func segmentKey(seg models.Segment) string {
	return cache.Key(seg.ID, seg.Start, seg.End, seg.Waypoint.Latitude, seg.Waypoint.Longitude)
}

// TripSummary aggregates segment results across the trip's waypoints using
// the trip's profile and overrides.
func TripSummary(trip models.Trip, results []Result) map[models.Field]models.AggregatedValue {
	inputs := make([]aggregate.WaypointSeries, 0, len(results))
	for _, r := range results {
		inputs = append(inputs, aggregate.WaypointSeries{Waypoint: r.Segment.Waypoint, Timeseries: r.Timeseries})
	}
	return aggregate.AcrossWaypoints(inputs, aggregate.TripConfig(trip))
}
