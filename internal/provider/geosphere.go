package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/lox/tripweather/internal/httputil"
	"github.com/lox/tripweather/internal/metrics"
	"github.com/lox/tripweather/internal/models"
)

// API docs: https://dataset.api.hub.geosphere.at/v1/docs
const (
	GeoSphereBaseURL = "https://dataset.api.hub.geosphere.at"
	geoSphereName    = "geosphere"
)

// GeoSphereRegion is the AROME 2.5 km domain over the Alps.
var GeoSphereRegion = Region{
	Model:     "nwp-v1-1h-2500m",
	GridResKm: 2.5,
	Endpoint:  "/v1/timeseries/forecast/nwp-v1-1h-2500m",
	Priority:  1,
	MinLat:    42.98,
	MaxLat:    51.82,
	MinLon:    5.49,
	MaxLon:    22.1,
}

var geoSphereParams = []string{"t2m", "rh2m", "tcc", "rr_acc", "snow_acc", "u10m", "v10m", "ugust", "vgust", "cape", "sp"}

// Snow water equivalent (mm) to fresh snow depth (cm).
const snowRatio = 0.7

type GeoSphereOption func(*GeoSphere)

func WithGeoSphereBaseURL(u string) GeoSphereOption {
	return func(g *GeoSphere) {
		g.baseURL = strings.TrimRight(u, "/")
	}
}

func WithGeoSphereRecorder(r PayloadRecorder) GeoSphereOption {
	return func(g *GeoSphere) {
		g.recorder = r
	}
}

// GeoSphere serves the single AROME model of GeoSphere Austria. It has no
// internal fallback; a chain falls back to the next provider instead.
type GeoSphere struct {
	baseURL  string
	fetcher  *httputil.Fetcher
	recorder PayloadRecorder
	logger   *slog.Logger
}

func NewGeoSphere(fetcher *httputil.Fetcher, logger *slog.Logger, opts ...GeoSphereOption) *GeoSphere {
	g := &GeoSphere{
		baseURL: GeoSphereBaseURL,
		fetcher: fetcher,
		logger:  logger.With("component", geoSphereName),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *GeoSphere) Name() string {
	return geoSphereName
}

func (g *GeoSphere) Covers(lat, lon float64) bool {
	return GeoSphereRegion.Contains(lat, lon)
}

func (g *GeoSphere) FetchForecast(ctx context.Context, req models.ForecastRequest) (*models.Timeseries, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	region := GeoSphereRegion
	run := &fetchRun{logger: g.logger.With("model", region.Model, "lat", req.Latitude, "lon", req.Longitude)}

	if !g.Covers(req.Latitude, req.Longitude) {
		err := &models.ProviderRequestError{
			Provider: geoSphereName,
			Model:    region.Model,
			Err:      fmt.Errorf("%.4f,%.4f is outside the model domain", req.Latitude, req.Longitude),
		}
		run.fail(err)
		return nil, err
	}

	// One extra leading hour so the first hour can be de-accumulated.
	from := req.Start.UTC().Truncate(time.Hour)
	start := from.Add(-time.Hour)
	end := req.End.UTC().Truncate(time.Hour)

	q := url.Values{}
	for _, p := range geoSphereParams {
		q.Add("parameters", p)
	}
	q.Set("lat_lon", strconv.FormatFloat(req.Latitude, 'f', 4, 64)+","+strconv.FormatFloat(req.Longitude, 'f', 4, 64))
	q.Set("start", start.Format(hourLayout))
	q.Set("end", end.Format(hourLayout))
	q.Set("output_format", "geojson")
	u := g.baseURL + region.Endpoint + "?" + q.Encode()

	started := time.Now()
	body, err := g.fetcher.Get(ctx, u)
	observe(geoSphereName, region.Model, started, err)
	if err != nil {
		err = requestError(geoSphereName, region.Model, err)
		run.fail(err)
		return nil, err
	}

	if g.recorder != nil {
		if err := g.recorder.RecordPayload(ctx, geoSphereName, region.Endpoint, locationKey(req.Latitude, req.Longitude), body); err != nil {
			g.logger.Warn("geosphere: failed to archive payload", "error", err)
		}
	}

	ts, err := parseGeoSphere(body, from)
	if err != nil {
		err = &models.ProviderParseError{Provider: geoSphereName, Model: region.Model, Err: err}
		run.fail(err)
		return nil, err
	}
	if flags := Sanitize(ts); len(flags) > 0 {
		for flag, n := range flags {
			metrics.QualityFlagsTotal.WithLabelValues(geoSphereName, flag).Add(float64(n))
		}
		g.logger.Warn("geosphere: dropped implausible values", "flags", flags)
	}
	run.advance(StatePrimaryFetched)
	run.advance(StateMerged)
	run.advance(StateDone)
	return ts, nil
}

type geoSphereParameter struct {
	Name string     `json:"name"`
	Unit string     `json:"unit"`
	Data []*float64 `json:"data"`
}

type geoSphereResponse struct {
	Timestamps []string `json:"timestamps"`
	Features   []struct {
		Properties struct {
			Parameters map[string]geoSphereParameter `json:"parameters"`
		} `json:"properties"`
	} `json:"features"`
}

func parseGeoSphereTime(s string) (time.Time, error) {
	for _, layout := range []string{"2006-01-02T15:04-07:00", time.RFC3339, hourLayout} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}

// parseGeoSphere converts the GeoJSON timeseries. Points before from are
// only used as the accumulation base and are dropped from the result.
func parseGeoSphere(body []byte, from time.Time) (*models.Timeseries, error) {
	var resp geoSphereResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}
	if len(resp.Features) == 0 {
		return nil, errors.New("response has no features")
	}
	params := resp.Features[0].Properties.Parameters
	n := len(resp.Timestamps)

	column := func(name string) ([]*float64, error) {
		p, ok := params[name]
		if !ok {
			return make([]*float64, n), nil
		}
		if len(p.Data) != n {
			return nil, fmt.Errorf("parameter %s has %d values, %d timestamps", name, len(p.Data), n)
		}
		return p.Data, nil
	}

	cols := make(map[string][]*float64, len(geoSphereParams))
	for _, name := range geoSphereParams {
		c, err := column(name)
		if err != nil {
			return nil, err
		}
		cols[name] = c
	}

	rain := deaccumulate(cols["rr_acc"])
	snow := deaccumulate(cols["snow_acc"])

	var points []models.DataPoint
	for i, s := range resp.Timestamps {
		t, err := parseGeoSphereTime(s)
		if err != nil {
			return nil, err
		}
		if t.Before(from) {
			continue
		}

		p := models.DataPoint{Time: t}
		p.SetValue(models.FieldTemperature, cols["t2m"][i])
		p.SetValue(models.FieldHumidity, cols["rh2m"][i])
		if v := cols["tcc"][i]; v != nil {
			p.SetValue(models.FieldCloudCover, models.Float(*v*100))
		}
		if v := cols["sp"][i]; v != nil {
			p.SetValue(models.FieldPressure, models.Float(*v/100))
		}
		p.SetValue(models.FieldPrecipitation, rain[i])
		if snow[i] != nil {
			p.SetValue(models.FieldSnowfall, models.Float(*snow[i]*snowRatio))
		}
		p.PrecipType = geoSpherePrecipType(rain[i], snow[i])

		if speed, dir, ok := windFromComponents(cols["u10m"][i], cols["v10m"][i]); ok {
			p.SetValue(models.FieldWindSpeed, &speed)
			p.SetValue(models.FieldWindDirection, &dir)
		}
		if gust, _, ok := windFromComponents(cols["ugust"][i], cols["vgust"][i]); ok {
			p.SetValue(models.FieldWindGust, &gust)
		}
		if cape := cols["cape"][i]; cape != nil {
			p.SetValue(models.FieldCAPE, cape)
			lvl := thunderFromCAPE(*cape)
			p.Thunder = &lvl
		}
		points = append(points, p)
	}

	return &models.Timeseries{
		Meta:   models.Meta{Provider: geoSphereName, Model: GeoSphereRegion.Model, GridResKm: GeoSphereRegion.GridResKm},
		Points: points,
	}, nil
}

// deaccumulate turns a running total into per-hour amounts. The first value
// has no base and is nil; a decreasing total means the model run restarted.
func deaccumulate(acc []*float64) []*float64 {
	out := make([]*float64, len(acc))
	for i := 1; i < len(acc); i++ {
		if acc[i] == nil || acc[i-1] == nil {
			continue
		}
		d := *acc[i] - *acc[i-1]
		if d < 0 {
			d = *acc[i]
		}
		out[i] = models.Float(d)
	}
	return out
}

// windFromComponents converts u/v in m/s to speed in km/h and the
// meteorological direction the wind blows from.
func windFromComponents(u, v *float64) (speed, dir float64, ok bool) {
	if u == nil || v == nil {
		return 0, 0, false
	}
	speed = math.Hypot(*u, *v) * 3.6
	dir = math.Mod(180+math.Atan2(*u, *v)*180/math.Pi, 360)
	return speed, dir, true
}

func thunderFromCAPE(cape float64) models.ThunderLevel {
	switch {
	case cape >= 1500:
		return models.ThunderHigh
	case cape >= 500:
		return models.ThunderMedium
	}
	return models.ThunderNone
}

func geoSpherePrecipType(precip, snowWater *float64) *models.PrecipType {
	if precip == nil || *precip <= 0 {
		return nil
	}
	var pt models.PrecipType
	switch {
	case snowWater == nil || *snowWater <= 0:
		pt = models.PrecipRain
	case *snowWater >= *precip:
		pt = models.PrecipSnow
	default:
		pt = models.PrecipMixed
	}
	return &pt
}
