package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/lox/tripweather/internal/httputil"
	"github.com/lox/tripweather/internal/metrics"
	"github.com/lox/tripweather/internal/models"
)

// API docs: https://open-meteo.com/en/docs
const (
	OpenMeteoBaseURL = "https://api.open-meteo.com"
	openMeteoName    = "openmeteo"
	hourLayout       = "2006-01-02T15:04"
)

type hourlyVar struct {
	name  string
	field models.Field
	scale float64
}

var openMeteoHourly = []hourlyVar{
	{"temperature_2m", models.FieldTemperature, 1},
	{"apparent_temperature", models.FieldApparentTemp, 1},
	{"dew_point_2m", models.FieldDewPoint, 1},
	{"relative_humidity_2m", models.FieldHumidity, 1},
	{"precipitation", models.FieldPrecipitation, 1},
	{"precipitation_probability", models.FieldPrecipProbability, 1},
	{"snowfall", models.FieldSnowfall, 1},
	{"snow_depth", models.FieldSnowDepth, 100}, // m to cm
	{"freezing_level_height", models.FieldFreezingLevel, 1},
	{"pressure_msl", models.FieldPressure, 1},
	{"cloud_cover", models.FieldCloudCover, 1},
	{"cloud_cover_low", models.FieldCloudLow, 1},
	{"cloud_cover_mid", models.FieldCloudMid, 1},
	{"cloud_cover_high", models.FieldCloudHigh, 1},
	{"visibility", models.FieldVisibility, 1},
	{"wind_speed_10m", models.FieldWindSpeed, 1},
	{"wind_direction_10m", models.FieldWindDirection, 1},
	{"wind_gusts_10m", models.FieldWindGust, 1},
	{"uv_index", models.FieldUVIndex, 1},
	{"cape", models.FieldCAPE, 1},
}

// openMeteoFields is every field an Open-Meteo model can populate.
var openMeteoFields = func() []models.Field {
	out := make([]models.Field, 0, len(openMeteoHourly)+1)
	for _, v := range openMeteoHourly {
		out = append(out, v.field)
	}
	return append(out, models.FieldThunder)
}()

type OpenMeteoOption func(*OpenMeteo)

func WithOpenMeteoBaseURL(u string) OpenMeteoOption {
	return func(o *OpenMeteo) {
		o.baseURL = strings.TrimRight(u, "/")
	}
}

func WithRouter(r *Router) OpenMeteoOption {
	return func(o *OpenMeteo) {
		o.router = r
	}
}

func WithProbeStore(s *ProbeStore) OpenMeteoOption {
	return func(o *OpenMeteo) {
		o.probes = s
	}
}

func WithOpenMeteoRecorder(r PayloadRecorder) OpenMeteoOption {
	return func(o *OpenMeteo) {
		o.recorder = r
	}
}

// OpenMeteo routes each request to the finest regional model covering the
// point and fills structurally missing fields from a coarser model when the
// availability probe says one has them.
type OpenMeteo struct {
	baseURL  string
	fetcher  *httputil.Fetcher
	router   *Router
	probes   *ProbeStore
	recorder PayloadRecorder
	logger   *slog.Logger
}

func NewOpenMeteo(fetcher *httputil.Fetcher, logger *slog.Logger, opts ...OpenMeteoOption) *OpenMeteo {
	o := &OpenMeteo{
		baseURL: OpenMeteoBaseURL,
		fetcher: fetcher,
		router:  MustRouter(OpenMeteoRegions),
		logger:  logger.With("component", openMeteoName),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *OpenMeteo) Name() string {
	return openMeteoName
}

func (o *OpenMeteo) SelectModel(lat, lon float64) Region {
	return o.router.SelectModel(lat, lon)
}

// Regions lists the routed models in priority order.
func (o *OpenMeteo) Regions() []Region {
	return o.router.Regions()
}

func (o *OpenMeteo) FetchForecast(ctx context.Context, req models.ForecastRequest) (*models.Timeseries, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	region := o.router.SelectModel(req.Latitude, req.Longitude)
	run := &fetchRun{logger: o.logger.With("model", region.Model, "lat", req.Latitude, "lon", req.Longitude)}

	ts, err := o.fetchModel(ctx, region, req)
	if err != nil {
		run.fail(err)
		return nil, err
	}
	run.advance(StatePrimaryFetched)

	if missing := ts.MissingFields(openMeteoFields); len(missing) > 0 {
		run.advance(StateFallbackEvaluated)
		ts = o.applyFallback(ctx, region, req, ts, missing)
	}
	run.advance(StateMerged)
	run.advance(StateDone)
	return ts, nil
}

// applyFallback never fails the fetch: without a usable fallback the
// primary series is returned as is.
func (o *OpenMeteo) applyFallback(ctx context.Context, primary Region, req models.ForecastRequest, ts *models.Timeseries, missing []models.Field) *models.Timeseries {
	fb, ok := o.FindFallbackModel(primary, req.Latitude, req.Longitude, missing)
	if !ok {
		o.logger.Debug("openmeteo: no fallback model", "model", primary.Model, "missing", missing)
		return ts
	}

	fbts, err := o.fetchModel(ctx, fb, req)
	if err != nil {
		o.logger.Warn("openmeteo: fallback fetch failed, keeping primary", "model", primary.Model, "fallback", fb.Model, "error", err)
		return ts
	}

	merged := MergeFallback(ts, fbts, missing)
	if merged.Meta.FallbackModel != "" {
		metrics.FallbackMergesTotal.WithLabelValues(primary.Model, fb.Model).Inc()
		o.logger.Info("openmeteo: merged fallback model", "model", primary.Model, "fallback", fb.Model, "fields", merged.Meta.FallbackMetrics)
	}
	return merged
}

// FindFallbackModel returns the highest-priority model other than primary
// that covers the point and, per today's probe, serves every missing field.
// Without a fresh probe there is no fallback.
func (o *OpenMeteo) FindFallbackModel(primary Region, lat, lon float64, missing []models.Field) (Region, bool) {
	if o.probes == nil {
		return Region{}, false
	}
	probe := o.probes.Current()
	if probe == nil {
		return Region{}, false
	}
	for _, cand := range o.router.Candidates(lat, lon) {
		if cand.Model == primary.Model {
			continue
		}
		if probe.Supports(cand.Model, missing) {
			return cand, true
		}
	}
	return Region{}, false
}

// Probe fetches one day at the centre of each region and records which
// fields each model returned. The result is saved to the probe store.
func (o *OpenMeteo) Probe(ctx context.Context) (*Probe, error) {
	day := time.Now().UTC().Truncate(24 * time.Hour)
	probe := &Probe{Models: make(map[string]ModelAvailability)}

	for _, region := range o.router.Regions() {
		lat, lon := region.Center()
		req := models.ForecastRequest{Latitude: lat, Longitude: lon, Start: day, End: day.Add(23 * time.Hour)}
		ts, err := o.fetchModel(ctx, region, req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			o.logger.Warn("openmeteo: probe failed for model", "model", region.Model, "error", err)
			continue
		}

		missing := ts.MissingFields(openMeteoFields)
		var avail ModelAvailability
		for _, f := range openMeteoFields {
			if slices.Contains(missing, f) {
				avail.Unavailable = append(avail.Unavailable, f)
			} else {
				avail.Available = append(avail.Available, f)
			}
		}
		probe.Models[region.Model] = avail
		o.logger.Info("openmeteo: probed model", "model", region.Model, "available", len(avail.Available), "unavailable", len(avail.Unavailable))
	}

	if len(probe.Models) == 0 {
		return nil, errors.New("openmeteo: probe failed for every model")
	}
	if o.probes != nil {
		if err := o.probes.Save(probe); err != nil {
			return nil, fmt.Errorf("save probe: %w", err)
		}
	}
	return probe, nil
}

func (o *OpenMeteo) fetchModel(ctx context.Context, region Region, req models.ForecastRequest) (*models.Timeseries, error) {
	u := o.buildURL(region, req)

	started := time.Now()
	body, err := o.fetcher.Get(ctx, u)
	observe(openMeteoName, region.Model, started, err)
	if err != nil {
		return nil, requestError(openMeteoName, region.Model, err)
	}

	if o.recorder != nil {
		if err := o.recorder.RecordPayload(ctx, openMeteoName, region.Endpoint, locationKey(req.Latitude, req.Longitude), body); err != nil {
			o.logger.Warn("openmeteo: failed to archive payload", "error", err)
		}
	}

	ts, err := parseOpenMeteo(body, region)
	if err != nil {
		return nil, &models.ProviderParseError{Provider: openMeteoName, Model: region.Model, Err: err}
	}
	if flags := Sanitize(ts); len(flags) > 0 {
		for flag, n := range flags {
			metrics.QualityFlagsTotal.WithLabelValues(openMeteoName, flag).Add(float64(n))
		}
		o.logger.Warn("openmeteo: dropped implausible values", "model", region.Model, "flags", flags)
	}
	return ts, nil
}

func (o *OpenMeteo) buildURL(region Region, req models.ForecastRequest) string {
	names := make([]string, 0, len(openMeteoHourly)+1)
	for _, v := range openMeteoHourly {
		names = append(names, v.name)
	}
	names = append(names, "weather_code")

	q := url.Values{}
	q.Set("latitude", strconv.FormatFloat(req.Latitude, 'f', 4, 64))
	q.Set("longitude", strconv.FormatFloat(req.Longitude, 'f', 4, 64))
	if req.Elevation != 0 {
		q.Set("elevation", strconv.FormatFloat(req.Elevation, 'f', 0, 64))
	}
	q.Set("hourly", strings.Join(names, ","))
	q.Set("models", region.Model)
	q.Set("timezone", "GMT")
	q.Set("timeformat", "iso8601")
	q.Set("wind_speed_unit", "kmh")
	q.Set("start_hour", req.Start.UTC().Truncate(time.Hour).Format(hourLayout))
	q.Set("end_hour", req.End.UTC().Truncate(time.Hour).Format(hourLayout))

	return o.baseURL + region.Endpoint + "?" + q.Encode()
}

type openMeteoResponse struct {
	Hourly map[string]json.RawMessage `json:"hourly"`
}

func parseOpenMeteo(body []byte, region Region) (*models.Timeseries, error) {
	var resp openMeteoResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}
	if resp.Hourly == nil {
		return nil, errors.New("response has no hourly block")
	}
	rawTimes, ok := resp.Hourly["time"]
	if !ok {
		return nil, errors.New("hourly block has no time axis")
	}
	var times []string
	if err := json.Unmarshal(rawTimes, &times); err != nil {
		return nil, fmt.Errorf("hourly time: %w", err)
	}

	points := make([]models.DataPoint, len(times))
	for i, s := range times {
		t, err := time.ParseInLocation(hourLayout, s, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("hourly time %q: %w", s, err)
		}
		points[i].Time = t
	}

	for _, v := range openMeteoHourly {
		raw, ok := resp.Hourly[v.name]
		if !ok {
			continue
		}
		vals, err := decodeColumn(raw, len(times), v.name)
		if err != nil {
			return nil, err
		}
		for i, x := range vals {
			if x == nil {
				continue
			}
			scaled := *x * v.scale
			points[i].SetValue(v.field, &scaled)
		}
	}

	if raw, ok := resp.Hourly["weather_code"]; ok {
		codes, err := decodeColumn(raw, len(times), "weather_code")
		if err != nil {
			return nil, err
		}
		for i, c := range codes {
			if c == nil {
				continue
			}
			code := int(*c)
			lvl := thunderFromWeatherCode(code)
			points[i].Thunder = &lvl
			points[i].PrecipType = precipTypeFromWeatherCode(code)
		}
	}

	return &models.Timeseries{
		Meta:   models.Meta{Provider: openMeteoName, Model: region.Model, GridResKm: region.GridResKm},
		Points: points,
	}, nil
}

func decodeColumn(raw json.RawMessage, n int, name string) ([]*float64, error) {
	var vals []*float64
	if err := json.Unmarshal(raw, &vals); err != nil {
		return nil, fmt.Errorf("hourly %s: %w", name, err)
	}
	if len(vals) != n {
		return nil, fmt.Errorf("hourly %s has %d values, time axis has %d", name, len(vals), n)
	}
	return vals, nil
}

// WMO weather interpretation codes.
func thunderFromWeatherCode(code int) models.ThunderLevel {
	switch code {
	case 96, 99:
		return models.ThunderHigh
	case 95:
		return models.ThunderMedium
	}
	return models.ThunderNone
}

func precipTypeFromWeatherCode(code int) *models.PrecipType {
	var pt models.PrecipType
	switch {
	case code == 56 || code == 57 || code == 66 || code == 67:
		pt = models.PrecipFreezingRain
	case (code >= 71 && code <= 77) || code == 85 || code == 86:
		pt = models.PrecipSnow
	case (code >= 51 && code <= 65) || (code >= 80 && code <= 82) || code >= 95:
		pt = models.PrecipRain
	default:
		return nil
	}
	return &pt
}
