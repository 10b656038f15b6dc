package ingest

import (
	"context"
	"database/sql"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/lox/tripweather/internal/alerting"
	"github.com/lox/tripweather/internal/metrics"
	"github.com/lox/tripweather/internal/models"
	"github.com/lox/tripweather/internal/notify"
	"github.com/lox/tripweather/internal/store"
	"github.com/lox/tripweather/internal/weather"
)

const (
	DefaultInterval = 30 * time.Minute
	DefaultWorkers  = 4
)

type Outcome string

const (
	OutcomeBaseline       Outcome = "baseline"
	OutcomeUnchanged      Outcome = "unchanged"
	OutcomeThrottled      Outcome = "throttled"
	OutcomeAlerted        Outcome = "alerted"
	OutcomeDispatchFailed Outcome = "dispatch_failed"
	OutcomeFailed         Outcome = "failed"
)

// TripReport is the result of checking one trip.
type TripReport struct {
	TripID      string
	Outcome     Outcome
	Changes     []models.Change
	Significant []models.Change
	Err         error
}

type BatchReport struct {
	BatchID  string
	Started  time.Time
	Duration time.Duration
	Trips    []TripReport
}

// Count returns how many trips ended with outcome o.
func (b BatchReport) Count(o Outcome) int {
	n := 0
	for _, t := range b.Trips {
		if t.Outcome == o {
			n++
		}
	}
	return n
}

type Config struct {
	Interval time.Duration
	Workers  int
}

// Scheduler runs the periodic change-detection batch over all trips.
type Scheduler struct {
	weather    *weather.Service
	trips      TripSource
	store      *store.Store
	throttle   *alerting.Throttle
	dispatcher notify.Dispatcher
	interval   time.Duration
	workers    int
	now        func() time.Time
	logger     *slog.Logger
}

func NewScheduler(svc *weather.Service, trips TripSource, st *store.Store, throttle *alerting.Throttle, dispatcher notify.Dispatcher, cfg Config, logger *slog.Logger) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	return &Scheduler{
		weather:    svc,
		trips:      trips,
		store:      st,
		throttle:   throttle,
		dispatcher: dispatcher,
		interval:   cfg.Interval,
		workers:    cfg.Workers,
		now:        func() time.Time { return time.Now().UTC() },
		logger:     logger.With("component", "scheduler"),
	}
}

func (s *Scheduler) Run(ctx context.Context) {
	s.RunOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler: shutting down")
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce checks every trip once. A trip's failure is recorded in its
// report and never stops the other trips.
func (s *Scheduler) RunOnce(ctx context.Context) (report BatchReport) {
	begin := time.Now()
	report = BatchReport{BatchID: uuid.NewString(), Started: s.now()}
	logger := s.logger.With("batch", report.BatchID)
	defer func() {
		report.Duration = time.Since(begin)
		metrics.BatchDuration.Observe(report.Duration.Seconds())
	}()

	s.weather.Cache().Clear()

	trips, err := s.trips.Trips(ctx)
	if err != nil {
		logger.Error("scheduler: failed to load trips", "error", err)
		return report
	}
	logger.Info("scheduler: checking trips", "trips", len(trips), "workers", s.workers)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for _, trip := range trips {
		g.Go(func() error {
			tr := s.CheckTrip(gctx, report.BatchID, trip)
			metrics.TripChecksTotal.WithLabelValues(string(tr.Outcome)).Inc()
			mu.Lock()
			report.Trips = append(report.Trips, tr)
			mu.Unlock()
			return nil
		})
	}
	g.Wait()

	logger.Info("scheduler: batch complete",
		"trips", len(report.Trips),
		"alerted", report.Count(OutcomeAlerted),
		"throttled", report.Count(OutcomeThrottled),
		"failed", report.Count(OutcomeFailed)+report.Count(OutcomeDispatchFailed))
	return report
}

// CheckTrip fetches fresh forecasts for every segment of trip, compares them
// with the stored baselines and dispatches an alert for significant changes
// unless the trip is throttled.
func (s *Scheduler) CheckTrip(ctx context.Context, batchID string, trip models.Trip) TripReport {
	report := TripReport{TripID: trip.ID}
	logger := s.logger.With("batch", batchID, "trip", trip.ID)
	fail := func(err error) TripReport {
		logger.Warn("scheduler: trip skipped", "error", err)
		report.Outcome = OutcomeFailed
		report.Err = err
		return report
	}

	thresholds, err := alerting.ThresholdsFor(trip.Alerts)
	if err != nil {
		return fail(err)
	}

	baselines, err := s.store.GetBaselines(trip.ID)
	if err != nil {
		return fail(err)
	}

	results := make([]weather.Result, 0, len(trip.Segments))
	for _, seg := range trip.Segments {
		res, err := s.fetchSegment(ctx, batchID, trip.ID, seg)
		if err != nil {
			return fail(err)
		}
		results = append(results, res)
	}

	detector := alerting.NewDetector(thresholds)
	compared := 0
	for _, res := range results {
		base, ok := baselines[res.Segment.ID]
		if !ok {
			s.saveBaseline(logger, trip.ID, res)
			continue
		}
		compared++
		for _, c := range detector.DetectChanges(base.Summary, res.Summary) {
			c.SegmentID = res.Segment.ID
			metrics.ChangesDetectedTotal.WithLabelValues(c.Severity.String()).Inc()
			report.Changes = append(report.Changes, c)
		}
	}
	if compared == 0 {
		logger.Info("scheduler: stored initial baselines", "segments", len(results))
		report.Outcome = OutcomeBaseline
		return report
	}

	report.Significant = alerting.Significant(report.Changes)
	if len(report.Significant) == 0 {
		logger.Debug("scheduler: no significant changes", "changes", len(report.Changes))
		report.Outcome = OutcomeUnchanged
		return report
	}

	if s.throttle.IsThrottled(trip.ID) {
		wait, _ := s.throttle.TimeUntilNextAlert(trip.ID)
		logger.Info("scheduler: alert throttled", "changes", len(report.Significant), "next_alert_in", wait.Round(time.Second).String())
		metrics.AlertsTotal.WithLabelValues("throttled").Inc()
		report.Outcome = OutcomeThrottled
		return report
	}

	alert := models.Alert{
		TripID:      trip.ID,
		TripName:    trip.Name,
		Severity:    alerting.MaxSeverity(report.Significant),
		Changes:     report.Significant,
		Summary:     weather.TripSummary(trip, results),
		GeneratedAt: s.now(),
	}
	if err := s.dispatcher.Dispatch(ctx, alert); err != nil {
		logger.Error("scheduler: alert dispatch failed", "error", err)
		metrics.AlertsTotal.WithLabelValues("failed").Inc()
		report.Outcome = OutcomeDispatchFailed
		report.Err = err
		return report
	}
	metrics.AlertsTotal.WithLabelValues("sent").Inc()
	s.throttle.RecordAlert(trip.ID)

	for _, res := range results {
		s.saveBaseline(logger, trip.ID, res)
	}
	if _, err := s.store.InsertAlertLog(batchID, alert); err != nil {
		logger.Warn("scheduler: failed to record alert", "error", err)
	}

	logger.Info("scheduler: alert dispatched", "severity", alert.Severity.String(), "changes", len(alert.Changes))
	report.Outcome = OutcomeAlerted
	return report
}

func (s *Scheduler) fetchSegment(ctx context.Context, batchID, tripID string, seg models.Segment) (weather.Result, error) {
	run, err := s.store.StartFetchRun(batchID, tripID, seg.ID)
	if err != nil {
		s.logger.Warn("scheduler: failed to start fetch run", "trip", tripID, "segment", seg.ID, "error", err)
	}

	if run != nil {
		ctx = store.WithFetchRun(ctx, run.ID)
	}
	res, err := s.weather.Refresh(ctx, seg)

	if run != nil {
		run.Success = err == nil
		if err != nil {
			run.ErrorMessage = sql.NullString{String: err.Error(), Valid: true}
		} else {
			meta := res.Timeseries.Meta
			run.Provider = sql.NullString{String: meta.Provider, Valid: true}
			run.Model = sql.NullString{String: meta.Model, Valid: meta.Model != ""}
			run.FallbackModel = sql.NullString{String: meta.FallbackModel, Valid: meta.FallbackModel != ""}
			run.Points = sql.NullInt64{Int64: int64(len(res.Timeseries.Points)), Valid: true}
		}
		if cerr := s.store.CompleteFetchRun(run); cerr != nil {
			s.logger.Warn("scheduler: failed to complete fetch run", "run", run.ID, "error", cerr)
		}
	}
	return res, err
}

func (s *Scheduler) saveBaseline(logger *slog.Logger, tripID string, res weather.Result) {
	b := store.Baseline{
		TripID:    tripID,
		SegmentID: res.Segment.ID,
		Summary:   res.Summary,
		FetchedAt: res.FetchedAt,
	}
	if res.Timeseries != nil {
		b.Provider = res.Timeseries.Meta.Provider
		b.Model = res.Timeseries.Meta.Model
	}
	if err := s.store.SaveBaseline(b); err != nil {
		logger.Warn("scheduler: failed to save baseline", "segment", res.Segment.ID, "error", err)
	}
}
