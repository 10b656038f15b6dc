// Package provider fetches hourly forecasts from upstream weather services
// and normalizes them into models.Timeseries.
package provider

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lox/tripweather/internal/httputil"
	"github.com/lox/tripweather/internal/metrics"
	"github.com/lox/tripweather/internal/models"
)

// Provider is one upstream forecast source. Implementations own their
// retry and fallback policy.
type Provider interface {
	Name() string
	FetchForecast(ctx context.Context, req models.ForecastRequest) (*models.Timeseries, error)
}

// Coverage is implemented by providers that only serve part of the globe.
type Coverage interface {
	Covers(lat, lon float64) bool
}

// PayloadRecorder archives raw upstream responses.
type PayloadRecorder interface {
	RecordPayload(ctx context.Context, source, endpoint, locationKey string, payload []byte) error
}

// FetchState tracks one forecast fetch through primary fetch, optional
// fallback evaluation and merge.
type FetchState int

const (
	StateNotStarted FetchState = iota
	StatePrimaryFetched
	StateFallbackEvaluated
	StateMerged
	StateDone
	StateFailed
)

func (s FetchState) String() string {
	switch s {
	case StateNotStarted:
		return "NOT_STARTED"
	case StatePrimaryFetched:
		return "PRIMARY_FETCHED"
	case StateFallbackEvaluated:
		return "FALLBACK_EVALUATED"
	case StateMerged:
		return "MERGED"
	case StateDone:
		return "DONE"
	case StateFailed:
		return "FAILED"
	}
	return fmt.Sprintf("FetchState(%d)", int(s))
}

var fetchTransitions = map[FetchState][]FetchState{
	StateNotStarted:        {StatePrimaryFetched},
	StatePrimaryFetched:    {StateFallbackEvaluated, StateMerged},
	StateFallbackEvaluated: {StateMerged},
	StateMerged:            {StateDone},
}

// CanTransition reports whether next may follow s. Any non-terminal state
// may fail.
func (s FetchState) CanTransition(next FetchState) bool {
	if next == StateFailed {
		return s != StateDone && s != StateFailed
	}
	for _, allowed := range fetchTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

type fetchRun struct {
	state  FetchState
	logger *slog.Logger
}

func (r *fetchRun) advance(next FetchState) {
	if !r.state.CanTransition(next) {
		r.logger.Error("provider: invalid fetch state transition", "from", r.state.String(), "to", next.String())
		return
	}
	r.logger.Debug("provider: fetch state", "from", r.state.String(), "to", next.String())
	r.state = next
}

func (r *fetchRun) fail(err error) {
	r.logger.Warn("provider: fetch failed", "state", r.state.String(), "error", err)
	r.advance(StateFailed)
}

// requestError converts a fetcher error into the provider error taxonomy.
func requestError(provider, model string, err error) error {
	return &models.ProviderRequestError{
		Provider:   provider,
		Model:      model,
		StatusCode: httputil.StatusCode(err),
		Retryable:  httputil.IsRetryable(err),
		Err:        err,
	}
}

func observe(provider, model string, started time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.UpstreamCallsTotal.WithLabelValues(provider, model, status).Inc()
	metrics.UpstreamLatency.WithLabelValues(provider, model).Observe(time.Since(started).Seconds())
}

func locationKey(lat, lon float64) string {
	return fmt.Sprintf("%.4f,%.4f", lat, lon)
}
