package provider

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/tripweather/internal/httputil"
	"github.com/lox/tripweather/internal/models"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testFetcher(name string) *httputil.Fetcher {
	policy := httputil.RetryPolicy{MaxAttempts: 5, MinWait: time.Millisecond, MaxWait: 2 * time.Millisecond}
	return httputil.NewFetcher(name, httputil.NewClient(time.Second), policy, discardLogger())
}

var testStart = time.Date(2025, 2, 1, 6, 0, 0, 0, time.UTC)

func testRequest(lat, lon float64) models.ForecastRequest {
	return models.ForecastRequest{Latitude: lat, Longitude: lon, Elevation: 1800, Start: testStart, End: testStart.Add(2 * time.Hour)}
}

// openMeteoBody builds an hourly response with three hours. Every variable
// is present unless listed in omit; overrides replace a column's values.
func openMeteoBody(t *testing.T, omit []string, overrides map[string][]any) []byte {
	t.Helper()
	hourly := map[string]any{
		"time": []string{"2025-02-01T06:00", "2025-02-01T07:00", "2025-02-01T08:00"},
	}
	for _, v := range openMeteoHourly {
		val := 1.0
		if v.name == "pressure_msl" {
			val = 1013
		}
		hourly[v.name] = []any{val, val, val}
	}
	hourly["weather_code"] = []any{1, 1, 1}
	for _, name := range omit {
		delete(hourly, name)
	}
	for name, vals := range overrides {
		hourly[name] = vals
	}
	b, err := json.Marshal(map[string]any{"latitude": 47.25, "longitude": 11.375, "hourly": hourly})
	require.NoError(t, err)
	return b
}

type recordedRequest struct {
	Path  string
	Model string
	Query map[string][]string
}

type fakeUpstream struct {
	mu       sync.Mutex
	requests []recordedRequest
	handler  func(w http.ResponseWriter, r *http.Request)
}

func (f *fakeUpstream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.requests = append(f.requests, recordedRequest{Path: r.URL.Path, Model: r.URL.Query().Get("models"), Query: r.URL.Query()})
	f.mu.Unlock()
	f.handler(w, r)
}

func (f *fakeUpstream) Requests() []recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedRequest(nil), f.requests...)
}

func newUpstream(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) (*fakeUpstream, *httptest.Server) {
	t.Helper()
	up := &fakeUpstream{handler: handler}
	srv := httptest.NewServer(up)
	t.Cleanup(srv.Close)
	return up, srv
}

type stubProvider struct {
	name   string
	covers func(lat, lon float64) bool
	ts     *models.Timeseries
	err    error
	calls  int
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) FetchForecast(ctx context.Context, req models.ForecastRequest) (*models.Timeseries, error) {
	s.calls++
	return s.ts, s.err
}

type coveringStub struct {
	*stubProvider
}

func (c coveringStub) Covers(lat, lon float64) bool { return c.covers(lat, lon) }

func TestFetchStateTransitions(t *testing.T) {
	tests := []struct {
		from, to FetchState
		ok       bool
	}{
		{StateNotStarted, StatePrimaryFetched, true},
		{StatePrimaryFetched, StateFallbackEvaluated, true},
		{StatePrimaryFetched, StateMerged, true},
		{StateFallbackEvaluated, StateMerged, true},
		{StateMerged, StateDone, true},
		{StateNotStarted, StateFailed, true},
		{StateFallbackEvaluated, StateFailed, true},
		{StateNotStarted, StateMerged, false},
		{StateFallbackEvaluated, StatePrimaryFetched, false},
		{StateDone, StateFailed, false},
		{StateFailed, StateNotStarted, false},
	}
	for _, tt := range tests {
		t.Run(tt.from.String()+"->"+tt.to.String(), func(t *testing.T) {
			assert.Equal(t, tt.ok, tt.from.CanTransition(tt.to))
		})
	}
}

func TestFetchRunIgnoresInvalidTransition(t *testing.T) {
	run := &fetchRun{logger: discardLogger()}
	run.advance(StateDone)
	assert.Equal(t, StateNotStarted, run.state)
	run.fail(errors.New("boom"))
	assert.Equal(t, StateFailed, run.state)
}

func TestChain(t *testing.T) {
	alps := func(lat, lon float64) bool { return GeoSphereRegion.Contains(lat, lon) }
	ok := &models.Timeseries{Meta: models.Meta{Provider: "global"}}

	t.Run("falls back on error", func(t *testing.T) {
		regional := coveringStub{&stubProvider{name: "regional", covers: alps, err: errors.New("upstream down")}}
		global := &stubProvider{name: "global", ts: ok}
		ts, err := NewChain(discardLogger(), regional, global).FetchForecast(context.Background(), testRequest(47.2, 11.4))
		require.NoError(t, err)
		assert.Equal(t, "global", ts.Meta.Provider)
		assert.Equal(t, 1, regional.calls)
	})

	t.Run("skips providers that do not cover", func(t *testing.T) {
		regional := coveringStub{&stubProvider{name: "regional", covers: alps}}
		global := &stubProvider{name: "global", ts: ok}
		_, err := NewChain(discardLogger(), regional, global).FetchForecast(context.Background(), testRequest(-33.9, 151.2))
		require.NoError(t, err)
		assert.Equal(t, 0, regional.calls)
		assert.Equal(t, 1, global.calls)
	})

	t.Run("returns last error", func(t *testing.T) {
		first := &stubProvider{name: "a", err: errors.New("first")}
		second := &stubProvider{name: "b", err: errors.New("second")}
		_, err := NewChain(discardLogger(), first, second).FetchForecast(context.Background(), testRequest(1, 1))
		assert.EqualError(t, err, "second")
	})

	t.Run("validation errors are not retried", func(t *testing.T) {
		global := &stubProvider{name: "global", ts: ok}
		req := testRequest(1, 1)
		req.End = req.Start
		_, err := NewChain(discardLogger(), global).FetchForecast(context.Background(), req)
		var verr *models.ValidationError
		assert.True(t, errors.As(err, &verr))
		assert.Equal(t, 0, global.calls)
	})

	t.Run("no coverage is a configuration error", func(t *testing.T) {
		regional := coveringStub{&stubProvider{name: "regional", covers: alps}}
		_, err := NewChain(discardLogger(), regional).FetchForecast(context.Background(), testRequest(-33.9, 151.2))
		var cerr *models.ConfigurationError
		assert.True(t, errors.As(err, &cerr))
	})
}
