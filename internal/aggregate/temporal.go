package aggregate

import (
	"errors"

	"github.com/lox/tripweather/internal/models"
)

var ErrEmptyTimeseries = errors.New("aggregate: empty timeseries")

type temporalRule struct {
	Metric models.Metric
	Field  models.Field
	Verb   models.Verb
}

// temporalRules is the fixed verb assignment for segment summaries.
var temporalRules = []temporalRule{
	{models.MetricTempMin, models.FieldTemperature, models.VerbMin},
	{models.MetricTempMax, models.FieldTemperature, models.VerbMax},
	{models.MetricTempAvg, models.FieldTemperature, models.VerbAvg},
	{models.MetricWindChillMin, models.FieldApparentTemp, models.VerbMin},
	{models.MetricWindMax, models.FieldWindSpeed, models.VerbMax},
	{models.MetricGustMax, models.FieldWindGust, models.VerbMax},
	{models.MetricPrecipSum, models.FieldPrecipitation, models.VerbSum},
	{models.MetricSnowfallSum, models.FieldSnowfall, models.VerbSum},
	{models.MetricPrecipProbabilityMax, models.FieldPrecipProbability, models.VerbMax},
	{models.MetricCloudAvg, models.FieldCloudCover, models.VerbAvg},
	{models.MetricHumidityAvg, models.FieldHumidity, models.VerbAvg},
	{models.MetricThunderMax, models.FieldThunder, models.VerbMax},
	{models.MetricVisibilityMin, models.FieldVisibility, models.VerbMin},
	{models.MetricUVMax, models.FieldUVIndex, models.VerbMax},
	{models.MetricFreezingLevelMin, models.FieldFreezingLevel, models.VerbMin},
	{models.MetricPressureAvg, models.FieldPressure, models.VerbAvg},
	{models.MetricDewPointAvg, models.FieldDewPoint, models.VerbAvg},
	{models.MetricCAPEMax, models.FieldCAPE, models.VerbMax},
}

// Metrics lists every metric Compute produces, in table order.
func Metrics() []models.Metric {
	out := make([]models.Metric, len(temporalRules))
	for i, r := range temporalRules {
		out[i] = r.Metric
	}
	return out
}

// Compute summarizes one segment's timeseries.
func Compute(ts *models.Timeseries) (models.SegmentSummary, error) {
	if ts == nil || len(ts.Points) == 0 {
		return models.SegmentSummary{}, ErrEmptyTimeseries
	}

	summary := models.NewSegmentSummary()
	for _, rule := range temporalRules {
		samples := make([]Sample, len(ts.Points))
		for i := range ts.Points {
			samples[i] = Sample{Value: ts.Points[i].Value(rule.Field), Time: ts.Points[i].Time}
		}
		r, ok := Apply(rule.Verb, samples)
		if !ok {
			summary.Set(rule.Metric, rule.Verb, nil)
			continue
		}
		v := round(rule.Field, rule.Verb, r.Value)
		summary.Set(rule.Metric, rule.Verb, &v)
	}
	summary.DominantPrecipType = dominantPrecipType(ts.Points)
	return summary, nil
}

// dominantPrecipType is the most frequent precipitation type, ties going to
// the type seen first.
func dominantPrecipType(points []models.DataPoint) *models.PrecipType {
	counts := make(map[models.PrecipType]int)
	var order []models.PrecipType
	for _, p := range points {
		if p.PrecipType == nil {
			continue
		}
		if counts[*p.PrecipType] == 0 {
			order = append(order, *p.PrecipType)
		}
		counts[*p.PrecipType]++
	}
	if len(order) == 0 {
		return nil
	}
	best := order[0]
	for _, pt := range order[1:] {
		if counts[pt] > counts[best] {
			best = pt
		}
	}
	return &best
}
