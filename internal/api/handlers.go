package api

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/lox/tripweather/internal/models"
	"github.com/lox/tripweather/internal/store"
)

const adhocSegmentID = "adhoc"

type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

// handleForecast serves GET /api/forecast?lat=&lon=&elevation=&start=&end=[&segment=].
func (s *Server) handleForecast(w http.ResponseWriter, r *http.Request) {
	seg, err := segmentFromQuery(r.URL.Query())
	if err != nil {
		s.writeError(w, err)
		return
	}

	res, err := s.weather.SegmentWeather(r.Context(), seg)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

func segmentFromQuery(q url.Values) (models.Segment, error) {
	seg := models.Segment{ID: q.Get("segment")}
	if seg.ID == "" {
		seg.ID = adhocSegmentID
	}

	var err error
	if seg.Waypoint.Latitude, err = floatParam(q, "lat", true); err != nil {
		return seg, err
	}
	if seg.Waypoint.Longitude, err = floatParam(q, "lon", true); err != nil {
		return seg, err
	}
	if seg.Waypoint.Elevation, err = floatParam(q, "elevation", false); err != nil {
		return seg, err
	}
	if seg.Start, err = timeParam(q, "start"); err != nil {
		return seg, err
	}
	if seg.End, err = timeParam(q, "end"); err != nil {
		return seg, err
	}
	seg.Waypoint.Name = seg.ID
	return seg, nil
}

func floatParam(q url.Values, name string, required bool) (float64, error) {
	raw := q.Get(name)
	if raw == "" {
		if required {
			return 0, &models.ValidationError{Field: name, Reason: "required"}
		}
		return 0, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, &models.ValidationError{Field: name, Reason: "not a number"}
	}
	return v, nil
}

func timeParam(q url.Values, name string) (time.Time, error) {
	raw := q.Get(name)
	if raw == "" {
		return time.Time{}, &models.ValidationError{Field: name, Reason: "required"}
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, &models.ValidationError{Field: name, Reason: "expected RFC 3339 timestamp"}
	}
	if _, off := t.Zone(); off != 0 {
		return time.Time{}, &models.ValidationError{Field: name, Reason: "timestamp must be UTC"}
	}
	return t.UTC(), nil
}

func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.weather.Cache().Stats())
}

func (s *Server) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	s.weather.Cache().Clear()
	s.logger.Info("api: cache cleared")
	w.WriteHeader(http.StatusNoContent)
}

type ThrottleStatus struct {
	TripID        string     `json:"trip_id"`
	Throttled     bool       `json:"throttled"`
	LastAlert     *time.Time `json:"last_alert,omitempty"`
	NextAlertIn   int        `json:"next_alert_in_seconds"`
	WindowSeconds int        `json:"window_seconds"`
}

func (s *Server) handleThrottle(w http.ResponseWriter, r *http.Request) {
	tripID := chi.URLParam(r, "tripID")
	status := ThrottleStatus{
		TripID:        tripID,
		WindowSeconds: int(s.throttle.Window() / time.Second),
	}
	if last, ok := s.throttle.LastAlert(tripID); ok {
		status.LastAlert = &last
	}
	if wait, ok := s.throttle.TimeUntilNextAlert(tripID); ok {
		status.Throttled = true
		status.NextAlertIn = int(wait.Round(time.Second) / time.Second)
	}
	s.writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleThrottleClear(w http.ResponseWriter, r *http.Request) {
	tripID := chi.URLParam(r, "tripID")
	s.throttle.Clear(tripID)
	s.logger.Info("api: throttle cleared", "trip", tripID)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r.URL.Query(), "limit", 20)
	if err != nil {
		s.writeError(w, err)
		return
	}
	alerts, err := s.store.GetRecentAlerts(chi.URLParam(r, "tripID"), limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if alerts == nil {
		alerts = []store.AlertLogEntry{}
	}
	s.writeJSON(w, http.StatusOK, alerts)
}

func (s *Server) handleBaselinesClear(w http.ResponseWriter, r *http.Request) {
	tripID := chi.URLParam(r, "tripID")
	n, err := s.store.DeleteBaselines(tripID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.logger.Info("api: baselines cleared", "trip", tripID, "deleted", n)
	s.writeJSON(w, http.StatusOK, map[string]int64{"deleted": n})
}

type FetchHealth struct {
	Days         []store.FetchHealthSummary `json:"days"`
	RecentErrors []FetchError               `json:"recent_errors"`
}

type FetchError struct {
	ID        int64     `json:"id"`
	BatchID   string    `json:"batch_id"`
	TripID    string    `json:"trip_id"`
	SegmentID string    `json:"segment_id"`
	StartedAt time.Time `json:"started_at"`
	Provider  string    `json:"provider,omitempty"`
	Error     string    `json:"error"`
}

func (s *Server) handleFetchHealth(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	days, err := intParam(q, "days", 7)
	if err != nil {
		s.writeError(w, err)
		return
	}
	limit, err := intParam(q, "errors", 10)
	if err != nil {
		s.writeError(w, err)
		return
	}

	health := FetchHealth{Days: []store.FetchHealthSummary{}, RecentErrors: []FetchError{}}
	summaries, err := s.store.GetFetchHealth(days)
	if err != nil {
		s.writeError(w, err)
		return
	}
	health.Days = append(health.Days, summaries...)

	runs, err := s.store.GetRecentFetchErrors(limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	for _, run := range runs {
		health.RecentErrors = append(health.RecentErrors, FetchError{
			ID:        run.ID,
			BatchID:   run.BatchID,
			TripID:    run.TripID,
			SegmentID: run.SegmentID,
			StartedAt: run.StartedAt,
			Provider:  run.Provider.String,
			Error:     run.ErrorMessage.String,
		})
	}
	s.writeJSON(w, http.StatusOK, health)
}

func (s *Server) handlePayloadStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.GetRawPayloadStats()
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

// handlePayload serves an archived upstream response body by content hash.
func (s *Server) handlePayload(w http.ResponseWriter, r *http.Request) {
	hash := chi.URLParam(r, "hash")
	meta, err := s.store.GetRawPayloadByHash(hash)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if meta == nil {
		s.writeJSON(w, http.StatusNotFound, errorResponse{Error: "payload not found", Field: "hash"})
		return
	}
	body, err := s.store.GetRawPayload(meta.ID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Payload-Source", meta.Source)
	if meta.FetchRunID.Valid {
		w.Header().Set("X-Fetch-Run", strconv.FormatInt(meta.FetchRunID.Int64, 10))
	}
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

func intParam(q url.Values, name string, def int) (int, error) {
	raw := q.Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return 0, &models.ValidationError{Field: name, Reason: "must be a positive integer"}
	}
	return v, nil
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	var (
		verr  *models.ValidationError
		reqEr *models.ProviderRequestError
		parse *models.ProviderParseError
	)
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &reqEr), errors.As(err, &parse):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	resp := errorResponse{Error: err.Error()}
	var verr *models.ValidationError
	if errors.As(err, &verr) {
		resp.Field = verr.Field
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("api: request failed", "status", status, "error", err)
	}
	s.writeJSON(w, status, resp)
}
