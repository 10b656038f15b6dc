package models

import (
	"fmt"
	"strings"
)

// Verb is the closed set of reductions applied to a list of samples.
type Verb int

const (
	VerbMin Verb = iota + 1
	VerbMax
	VerbSum
	VerbAvg
	VerbFirst
	VerbLast
	VerbAtHighest
	VerbAtLowest
)

var verbNames = map[Verb]string{
	VerbMin:       "MIN",
	VerbMax:       "MAX",
	VerbSum:       "SUM",
	VerbAvg:       "AVG",
	VerbFirst:     "FIRST",
	VerbLast:      "LAST",
	VerbAtHighest: "AT_HIGHEST",
	VerbAtLowest:  "AT_LOWEST",
}

func (v Verb) String() string {
	if name, ok := verbNames[v]; ok {
		return name
	}
	return fmt.Sprintf("Verb(%d)", int(v))
}

// PointSourced reports whether the verb picks a single sample, so the
// result can name the waypoint it came from.
func (v Verb) PointSourced() bool {
	switch v {
	case VerbMin, VerbMax, VerbFirst, VerbLast, VerbAtHighest, VerbAtLowest:
		return true
	}
	return false
}

func ParseVerb(s string) (Verb, error) {
	up := strings.ToUpper(strings.TrimSpace(s))
	for v, name := range verbNames {
		if name == up {
			return v, nil
		}
	}
	return 0, fmt.Errorf("unknown aggregation verb %q", s)
}

func (v Verb) MarshalText() ([]byte, error) {
	if _, ok := verbNames[v]; !ok {
		return nil, fmt.Errorf("invalid verb %d", int(v))
	}
	return []byte(v.String()), nil
}

func (v *Verb) UnmarshalText(b []byte) error {
	parsed, err := ParseVerb(string(b))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// Metric names one entry of a SegmentSummary.
type Metric string

const (
	MetricTempMin              Metric = "temp_min"
	MetricTempMax              Metric = "temp_max"
	MetricTempAvg              Metric = "temp_avg"
	MetricWindChillMin         Metric = "wind_chill_min"
	MetricWindMax              Metric = "wind_max"
	MetricGustMax              Metric = "gust_max"
	MetricPrecipSum            Metric = "precip_sum"
	MetricSnowfallSum          Metric = "snowfall_sum"
	MetricPrecipProbabilityMax Metric = "precip_probability_max"
	MetricCloudAvg             Metric = "cloud_avg"
	MetricHumidityAvg          Metric = "humidity_avg"
	MetricThunderMax           Metric = "thunder_max"
	MetricVisibilityMin        Metric = "visibility_min"
	MetricUVMax                Metric = "uv_max"
	MetricFreezingLevelMin     Metric = "freezing_level_min"
	MetricPressureAvg          Metric = "pressure_avg"
	MetricDewPointAvg          Metric = "dewpoint_avg"
	MetricCAPEMax              Metric = "cape_max"
)

// SegmentSummary holds one optional value per tracked metric plus the
// verb that produced it. A metric with a verb but no value had no samples.
type SegmentSummary struct {
	Values             map[Metric]float64 `json:"values"`
	Verbs              map[Metric]Verb    `json:"verbs"`
	DominantPrecipType *PrecipType        `json:"dominant_precip_type,omitempty"`
}

func NewSegmentSummary() SegmentSummary {
	return SegmentSummary{
		Values: make(map[Metric]float64),
		Verbs:  make(map[Metric]Verb),
	}
}

func (s SegmentSummary) Get(m Metric) (float64, bool) {
	v, ok := s.Values[m]
	return v, ok
}

func (s *SegmentSummary) Set(m Metric, verb Verb, value *float64) {
	if s.Values == nil {
		s.Values = make(map[Metric]float64)
	}
	if s.Verbs == nil {
		s.Verbs = make(map[Metric]Verb)
	}
	s.Verbs[m] = verb
	if value == nil {
		delete(s.Values, m)
		return
	}
	s.Values[m] = *value
}

type Severity int

const (
	SeverityMinor Severity = iota + 1
	SeverityModerate
	SeverityMajor
)

func (s Severity) String() string {
	switch s {
	case SeverityMinor:
		return "MINOR"
	case SeverityModerate:
		return "MODERATE"
	case SeverityMajor:
		return "MAJOR"
	}
	return fmt.Sprintf("Severity(%d)", int(s))
}

func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Severity) UnmarshalText(b []byte) error {
	switch strings.ToUpper(string(b)) {
	case "MINOR":
		*s = SeverityMinor
	case "MODERATE":
		*s = SeverityModerate
	case "MAJOR":
		*s = SeverityMajor
	default:
		return fmt.Errorf("unknown severity %q", string(b))
	}
	return nil
}

type Direction string

const (
	DirectionIncrease Direction = "increase"
	DirectionDecrease Direction = "decrease"
)

type Change struct {
	SegmentID string    `json:"segment_id,omitempty"`
	Metric    Metric    `json:"metric"`
	Old       float64   `json:"old"`
	New       float64   `json:"new"`
	Delta     float64   `json:"delta"`
	Threshold float64   `json:"threshold"`
	Severity  Severity  `json:"severity"`
	Direction Direction `json:"direction"`
}
