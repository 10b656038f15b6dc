// Package alerting compares baseline and fresh segment summaries and gates
// the resulting alerts per trip.
package alerting

import (
	"fmt"
	"maps"
	"slices"

	"github.com/lox/tripweather/internal/models"
)

// Thresholds maps a summary metric to the absolute change that counts.
type Thresholds map[models.Metric]float64

var defaultThresholds = Thresholds{
	models.MetricTempMin:              5,
	models.MetricTempMax:              5,
	models.MetricTempAvg:              5,
	models.MetricWindChillMin:         5,
	models.MetricWindMax:              20,
	models.MetricGustMax:              20,
	models.MetricPrecipSum:            10,
	models.MetricSnowfallSum:          10,
	models.MetricPrecipProbabilityMax: 30,
	models.MetricCloudAvg:             30,
	models.MetricHumidityAvg:          20,
	models.MetricThunderMax:           0.5,
	models.MetricVisibilityMin:        1000,
	models.MetricUVMax:                3,
	models.MetricFreezingLevelMin:     300,
	models.MetricPressureAvg:          8,
	models.MetricCAPEMax:              500,
}

var (
	temperatureMetrics = []models.Metric{models.MetricTempMin, models.MetricTempMax, models.MetricTempAvg, models.MetricWindChillMin}
	windMetrics        = []models.Metric{models.MetricWindMax, models.MetricGustMax}
	precipMetrics      = []models.Metric{models.MetricPrecipSum}
)

func DefaultThresholds() Thresholds {
	return maps.Clone(defaultThresholds)
}

// Metrics returns the metrics with a threshold, sorted by name.
func (t Thresholds) Metrics() []models.Metric {
	return slices.Sorted(maps.Keys(t))
}

// ThresholdsFor builds the table for one trip. Explicit per-metric entries
// replace the catalog and keep only enabled metrics; otherwise the catalog
// applies with any group overrides.
func ThresholdsFor(cfg models.AlertConfig) (Thresholds, error) {
	if len(cfg.Metrics) > 0 {
		t := make(Thresholds)
		for m, ma := range cfg.Metrics {
			if !ma.Enabled {
				continue
			}
			th := ma.Threshold
			if th == 0 {
				def, ok := defaultThresholds[m]
				if !ok {
					continue
				}
				th = def
			}
			if th < 0 {
				return nil, fmt.Errorf("threshold for %s must be positive, got %v", m, th)
			}
			t[m] = th
		}
		return t, nil
	}

	t := DefaultThresholds()
	groups := []struct {
		value   *float64
		name    string
		metrics []models.Metric
	}{
		{cfg.TempThreshold, "temperature", temperatureMetrics},
		{cfg.WindThreshold, "wind", windMetrics},
		{cfg.PrecipThreshold, "precipitation", precipMetrics},
	}
	for _, g := range groups {
		if g.value == nil {
			continue
		}
		if *g.value <= 0 {
			return nil, fmt.Errorf("%s threshold must be positive, got %v", g.name, *g.value)
		}
		for _, m := range g.metrics {
			t[m] = *g.value
		}
	}
	return t, nil
}
