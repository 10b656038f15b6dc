package provider

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/tripweather/internal/models"
)

func newTestOpenMeteo(srvURL string, opts ...OpenMeteoOption) *OpenMeteo {
	opts = append([]OpenMeteoOption{WithOpenMeteoBaseURL(srvURL)}, opts...)
	return NewOpenMeteo(testFetcher("openmeteo-test"), discardLogger(), opts...)
}

func TestOpenMeteoRoutesToRegionalModel(t *testing.T) {
	up, srv := newUpstream(t, nil)
	up.handler = func(w http.ResponseWriter, r *http.Request) {
		w.Write(openMeteoBody(t, nil, nil))
	}
	om := newTestOpenMeteo(srv.URL)

	ts, err := om.FetchForecast(context.Background(), testRequest(48.14, 11.58))
	require.NoError(t, err)

	reqs := up.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "/v1/dwd-icon", reqs[0].Path)
	assert.Equal(t, "icon_d2", reqs[0].Model)
	assert.Equal(t, []string{"2025-02-01T06:00"}, reqs[0].Query["start_hour"])
	assert.Equal(t, []string{"2025-02-01T08:00"}, reqs[0].Query["end_hour"])
	assert.Equal(t, []string{"kmh"}, reqs[0].Query["wind_speed_unit"])
	assert.Equal(t, []string{"1800"}, reqs[0].Query["elevation"])

	assert.Equal(t, "openmeteo", ts.Meta.Provider)
	assert.Equal(t, "icon_d2", ts.Meta.Model)
	assert.Equal(t, 2.2, ts.Meta.GridResKm)
	assert.Empty(t, ts.Meta.FallbackModel)
	require.Len(t, ts.Points, 3)
	assert.Equal(t, time.Date(2025, 2, 1, 7, 0, 0, 0, time.UTC), ts.Points[1].Time)
	assert.Equal(t, 100.0, *ts.Points[0].SnowDepth)
	assert.Equal(t, models.ThunderNone, *ts.Points[0].Thunder)
}

func TestOpenMeteoValidatesBeforeFetching(t *testing.T) {
	up, srv := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {})
	om := newTestOpenMeteo(srv.URL)

	req := testRequest(95, 11)
	_, err := om.FetchForecast(context.Background(), req)
	var verr *models.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "Latitude", verr.Field)
	assert.Empty(t, up.Requests())
}

func TestOpenMeteoRetries(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		wantHits  int
		retryable bool
		parseErr  bool
	}{
		{name: "503 exhausts retries", status: http.StatusServiceUnavailable, wantHits: 5, retryable: true},
		{name: "404 is not retried", status: http.StatusNotFound, wantHits: 1},
		{name: "400 is not retried", status: http.StatusBadRequest, wantHits: 1},
		{name: "malformed body is a parse error", status: http.StatusOK, body: "{not json", wantHits: 1, parseErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			up, srv := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})
			om := newTestOpenMeteo(srv.URL)

			_, err := om.FetchForecast(context.Background(), testRequest(-33.87, 151.21))
			require.Error(t, err)
			assert.Len(t, up.Requests(), tt.wantHits)

			if tt.parseErr {
				var perr *models.ProviderParseError
				require.True(t, errors.As(err, &perr))
				assert.Equal(t, "ecmwf_ifs025", perr.Model)
				return
			}
			var rerr *models.ProviderRequestError
			require.True(t, errors.As(err, &rerr))
			assert.Equal(t, tt.status, rerr.StatusCode)
			assert.Equal(t, tt.retryable, rerr.Retryable)
		})
	}
}

func TestOpenMeteoRejectsRaggedColumns(t *testing.T) {
	_, srv := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write(openMeteoBody(t, nil, map[string][]any{"temperature_2m": {1.0}}))
	})
	_, err := newTestOpenMeteo(srv.URL).FetchForecast(context.Background(), testRequest(-33.87, 151.21))
	var perr *models.ProviderParseError
	assert.True(t, errors.As(err, &perr))
}

func fallbackUpstream(t *testing.T) (*fakeUpstream, string) {
	up, srv := newUpstream(t, nil)
	up.handler = func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("models") {
		case "icon_d2":
			w.Write(openMeteoBody(t, []string{"uv_index"}, map[string][]any{"temperature_2m": {-4.0, -3.0, -2.0}}))
		default:
			w.Write(openMeteoBody(t, nil, map[string][]any{
				"temperature_2m": {20.0, 20.0, 20.0},
				"uv_index":       {2.0, nil, 4.0},
			}))
		}
	}
	return up, srv.URL
}

func TestOpenMeteoFallbackMerge(t *testing.T) {
	up, srvURL := fallbackUpstream(t)

	probes := NewProbeStore("", discardLogger())
	require.NoError(t, probes.Save(&Probe{Models: map[string]ModelAvailability{
		"icon_d2": {Available: []models.Field{models.FieldTemperature}, Unavailable: []models.Field{models.FieldUVIndex}},
		"icon_eu": {Available: openMeteoFields},
	}}))
	om := newTestOpenMeteo(srvURL, WithProbeStore(probes))

	ts, err := om.FetchForecast(context.Background(), testRequest(47.26, 11.39))
	require.NoError(t, err)

	reqs := up.Requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, "icon_d2", reqs[0].Model)
	assert.Equal(t, "icon_eu", reqs[1].Model)

	assert.Equal(t, "icon_d2", ts.Meta.Model)
	assert.Equal(t, "icon_eu", ts.Meta.FallbackModel)
	assert.Equal(t, []models.Field{models.FieldUVIndex}, ts.Meta.FallbackMetrics)

	require.NotNil(t, ts.Points[0].UVIndex)
	assert.Equal(t, 2.0, *ts.Points[0].UVIndex)
	assert.Nil(t, ts.Points[1].UVIndex)
	assert.Equal(t, 4.0, *ts.Points[2].UVIndex)

	// Primary values are never replaced by the fallback.
	assert.Equal(t, -4.0, *ts.Points[0].Temperature)
	assert.Equal(t, -2.0, *ts.Points[2].Temperature)
}

func TestOpenMeteoNoFallbackWithoutFreshProbe(t *testing.T) {
	up, srvURL := fallbackUpstream(t)

	path := filepath.Join(t.TempDir(), "probe.json")
	probes := NewProbeStore(path, discardLogger())
	probes.now = func() time.Time { return time.Now().Add(-48 * time.Hour) }
	require.NoError(t, probes.Save(&Probe{Models: map[string]ModelAvailability{"icon_eu": {Available: openMeteoFields}}}))

	stale := NewProbeStore(path, discardLogger())
	om := newTestOpenMeteo(srvURL, WithProbeStore(stale))

	ts, err := om.FetchForecast(context.Background(), testRequest(47.26, 11.39))
	require.NoError(t, err)
	assert.Len(t, up.Requests(), 1)
	assert.Empty(t, ts.Meta.FallbackModel)
	for _, p := range ts.Points {
		assert.Nil(t, p.UVIndex)
	}
}

func TestOpenMeteoFallbackFailureKeepsPrimary(t *testing.T) {
	up, srv := newUpstream(t, nil)
	up.handler = func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("models") == "icon_d2" {
			w.Write(openMeteoBody(t, []string{"uv_index"}, nil))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}

	probes := NewProbeStore("", discardLogger())
	require.NoError(t, probes.Save(&Probe{Models: map[string]ModelAvailability{"icon_eu": {Available: openMeteoFields}}}))
	om := newTestOpenMeteo(srv.URL, WithProbeStore(probes))

	ts, err := om.FetchForecast(context.Background(), testRequest(47.26, 11.39))
	require.NoError(t, err)
	assert.Equal(t, "icon_d2", ts.Meta.Model)
	assert.Empty(t, ts.Meta.FallbackModel)
}

func TestFindFallbackModel(t *testing.T) {
	probes := NewProbeStore("", discardLogger())
	require.NoError(t, probes.Save(&Probe{Models: map[string]ModelAvailability{
		"icon_eu":      {Available: []models.Field{models.FieldTemperature}},
		"ecmwf_ifs025": {Available: []models.Field{models.FieldTemperature, models.FieldUVIndex}},
	}}))
	om := NewOpenMeteo(testFetcher("openmeteo-test"), discardLogger(), WithProbeStore(probes))
	primary := om.SelectModel(47.26, 11.39)
	require.Equal(t, "icon_d2", primary.Model)

	fb, ok := om.FindFallbackModel(primary, 47.26, 11.39, []models.Field{models.FieldUVIndex})
	require.True(t, ok)
	assert.Equal(t, "ecmwf_ifs025", fb.Model)

	fb, ok = om.FindFallbackModel(primary, 47.26, 11.39, []models.Field{models.FieldTemperature})
	require.True(t, ok)
	assert.Equal(t, "icon_eu", fb.Model)

	_, ok = om.FindFallbackModel(primary, 47.26, 11.39, []models.Field{models.FieldCAPE})
	assert.False(t, ok)
}

func TestOpenMeteoProbe(t *testing.T) {
	_, srv := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("models") == "icon_d2" {
			w.Write(openMeteoBody(t, []string{"uv_index", "cape"}, nil))
			return
		}
		if r.URL.Query().Get("models") == "metno_nordic" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write(openMeteoBody(t, nil, nil))
	})

	path := filepath.Join(t.TempDir(), "probe.json")
	probes := NewProbeStore(path, discardLogger())
	om := newTestOpenMeteo(srv.URL, WithProbeStore(probes))

	probe, err := om.Probe(context.Background())
	require.NoError(t, err)
	assert.True(t, probe.IsFresh(time.Now()))
	assert.NotContains(t, probe.Models, "metno_nordic")
	assert.ElementsMatch(t, []models.Field{models.FieldUVIndex, models.FieldCAPE}, probe.Models["icon_d2"].Unavailable)
	assert.Empty(t, probe.Models["icon_eu"].Unavailable)
	assert.True(t, probe.Supports("icon_eu", []models.Field{models.FieldUVIndex}))
	assert.False(t, probe.Supports("icon_d2", []models.Field{models.FieldUVIndex}))

	reloaded := NewProbeStore(path, discardLogger()).Current()
	require.NotNil(t, reloaded)
	assert.Equal(t, probe.Models, reloaded.Models)
}

func TestThunderAndPrecipTypeFromWeatherCode(t *testing.T) {
	assert.Equal(t, models.ThunderHigh, thunderFromWeatherCode(99))
	assert.Equal(t, models.ThunderMedium, thunderFromWeatherCode(95))
	assert.Equal(t, models.ThunderNone, thunderFromWeatherCode(61))

	assert.Nil(t, precipTypeFromWeatherCode(3))
	assert.Equal(t, models.PrecipRain, *precipTypeFromWeatherCode(61))
	assert.Equal(t, models.PrecipSnow, *precipTypeFromWeatherCode(73))
	assert.Equal(t, models.PrecipFreezingRain, *precipTypeFromWeatherCode(66))
}
