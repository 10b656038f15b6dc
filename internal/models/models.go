package models

import (
	"fmt"
	"strings"
	"time"
)

type ThunderLevel int

const (
	ThunderNone ThunderLevel = iota
	ThunderMedium
	ThunderHigh
)

func (t ThunderLevel) String() string {
	switch t {
	case ThunderNone:
		return "NONE"
	case ThunderMedium:
		return "MEDIUM"
	case ThunderHigh:
		return "HIGH"
	}
	return fmt.Sprintf("ThunderLevel(%d)", int(t))
}

func (t ThunderLevel) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *ThunderLevel) UnmarshalText(b []byte) error {
	switch strings.ToUpper(string(b)) {
	case "NONE":
		*t = ThunderNone
	case "MEDIUM":
		*t = ThunderMedium
	case "HIGH":
		*t = ThunderHigh
	default:
		return fmt.Errorf("unknown thunder level %q", string(b))
	}
	return nil
}

// ThunderFromOrdinal maps an aggregated ordinal back to a level, rounding
// to the nearest step.
func ThunderFromOrdinal(v float64) ThunderLevel {
	switch {
	case v >= 1.5:
		return ThunderHigh
	case v >= 0.5:
		return ThunderMedium
	}
	return ThunderNone
}

type PrecipType string

const (
	PrecipRain         PrecipType = "rain"
	PrecipSnow         PrecipType = "snow"
	PrecipMixed        PrecipType = "mixed"
	PrecipFreezingRain PrecipType = "freezing_rain"
)

// DataPoint is one hourly sample. A nil field means the upstream had no
// value for that hour, which is distinct from zero.
type DataPoint struct {
	Time time.Time `json:"time"`

	Temperature       *float64 `json:"temperature,omitempty"`
	ApparentTemp      *float64 `json:"apparent_temperature,omitempty"`
	DewPoint          *float64 `json:"dew_point,omitempty"`
	Humidity          *float64 `json:"humidity,omitempty"`
	Precipitation     *float64 `json:"precipitation,omitempty"`
	PrecipProbability *float64 `json:"precipitation_probability,omitempty"`
	Snowfall          *float64 `json:"snowfall,omitempty"`
	SnowDepth         *float64 `json:"snow_depth,omitempty"`
	FreezingLevel     *float64 `json:"freezing_level,omitempty"`
	Pressure          *float64 `json:"pressure,omitempty"`
	CloudCover        *float64 `json:"cloud_cover,omitempty"`
	CloudLow          *float64 `json:"cloud_cover_low,omitempty"`
	CloudMid          *float64 `json:"cloud_cover_mid,omitempty"`
	CloudHigh         *float64 `json:"cloud_cover_high,omitempty"`
	Visibility        *float64 `json:"visibility,omitempty"`
	WindSpeed         *float64 `json:"wind_speed,omitempty"`
	WindDirection     *float64 `json:"wind_direction,omitempty"`
	WindGust          *float64 `json:"wind_gust,omitempty"`
	UVIndex           *float64 `json:"uv_index,omitempty"`
	CAPE              *float64 `json:"cape,omitempty"`

	Thunder    *ThunderLevel `json:"thunder_level,omitempty"`
	PrecipType *PrecipType   `json:"precip_type,omitempty"`
}

type Meta struct {
	Provider        string  `json:"provider"`
	Model           string  `json:"model"`
	GridResKm       float64 `json:"grid_res_km"`
	FallbackModel   string  `json:"fallback_model,omitempty"`
	FallbackMetrics []Field `json:"fallback_metrics,omitempty"`
}

// Timeseries is a normalized hourly forecast for one point. Values handed
// out by the cache are shared and must not be mutated.
type Timeseries struct {
	Meta   Meta        `json:"meta"`
	Points []DataPoint `json:"points"`
}

// Clone returns a deep copy.
func (ts *Timeseries) Clone() *Timeseries {
	out := &Timeseries{Meta: ts.Meta, Points: make([]DataPoint, len(ts.Points))}
	out.Meta.FallbackMetrics = append([]Field(nil), ts.Meta.FallbackMetrics...)
	for i, p := range ts.Points {
		out.Points[i] = p.clone()
	}
	return out
}

// MissingFields returns the fields that have no value at any point.
func (ts *Timeseries) MissingFields(fields []Field) []Field {
	if len(ts.Points) == 0 {
		return nil
	}
	var missing []Field
	for _, f := range fields {
		found := false
		for i := range ts.Points {
			if ts.Points[i].Value(f) != nil {
				found = true
				break
			}
		}
		if !found {
			missing = append(missing, f)
		}
	}
	return missing
}

type AggregatedValue struct {
	Value  *float64 `json:"value"`
	Verb   Verb     `json:"verb"`
	Source string   `json:"source,omitempty"`
}

type Waypoint struct {
	Name      string  `json:"name"`
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`
	Elevation float64 `json:"elevation"`
}

type Segment struct {
	ID       string    `json:"id"`
	Waypoint Waypoint  `json:"waypoint"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
}

func (s Segment) Request() ForecastRequest {
	return ForecastRequest{
		Latitude:  s.Waypoint.Latitude,
		Longitude: s.Waypoint.Longitude,
		Elevation: s.Waypoint.Elevation,
		Start:     s.Start,
		End:       s.End,
	}
}

type ActivityProfile string

const (
	ProfileWintersport    ActivityProfile = "wintersport"
	ProfileSummerTrekking ActivityProfile = "summer_trekking"
	ProfileGeneral        ActivityProfile = "general"
)

type MetricAlert struct {
	Enabled   bool    `json:"enabled"`
	Threshold float64 `json:"threshold,omitempty"`
}

// AlertConfig carries per-trip threshold overrides. Group thresholds apply
// to every metric of that group; Metrics, when set, replaces the catalog
// with its enabled entries.
type AlertConfig struct {
	TempThreshold   *float64               `json:"temp_threshold,omitempty"`
	WindThreshold   *float64               `json:"wind_threshold,omitempty"`
	PrecipThreshold *float64               `json:"precip_threshold,omitempty"`
	Metrics         map[Metric]MetricAlert `json:"metrics,omitempty"`
}

type Trip struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Profile     ActivityProfile `json:"profile"`
	Segments    []Segment       `json:"segments"`
	Alerts      AlertConfig     `json:"alerts"`
	Aggregation map[Field]Verb  `json:"aggregation,omitempty"`
}

// Alert is the payload handed to dispatchers.
type Alert struct {
	TripID      string                    `json:"trip_id"`
	TripName    string                    `json:"trip_name"`
	Severity    Severity                  `json:"severity"`
	Changes     []Change                  `json:"changes"`
	Summary     map[Field]AggregatedValue `json:"summary,omitempty"`
	GeneratedAt time.Time                 `json:"generated_at"`
}
