package provider

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/tripweather/internal/models"
)

func at(h int) time.Time {
	return testStart.Add(time.Duration(h) * time.Hour)
}

func TestMergeFallbackNeverOverwrites(t *testing.T) {
	primary := &models.Timeseries{
		Meta: models.Meta{Provider: "openmeteo", Model: "icon_d2"},
		Points: []models.DataPoint{
			{Time: at(0), Temperature: models.Float(-2), UVIndex: models.Float(0)},
			{Time: at(1), Temperature: models.Float(-1)},
			{Time: at(2), Temperature: models.Float(0)},
		},
	}
	fallback := &models.Timeseries{
		Meta: models.Meta{Provider: "openmeteo", Model: "icon_eu"},
		Points: []models.DataPoint{
			{Time: at(0), Temperature: models.Float(5), UVIndex: models.Float(3), CAPE: models.Float(100)},
			{Time: at(1).Add(20 * time.Minute), Temperature: models.Float(6), UVIndex: models.Float(4), CAPE: models.Float(200)},
			{Time: at(3), UVIndex: models.Float(9)},
		},
	}

	merged := MergeFallback(primary, fallback, []models.Field{models.FieldUVIndex, models.FieldTemperature})

	// Present values survive, including an explicit zero.
	assert.Equal(t, 0.0, *merged.Points[0].UVIndex)
	assert.Equal(t, -2.0, *merged.Points[0].Temperature)
	assert.Equal(t, -1.0, *merged.Points[1].Temperature)

	// Null values are filled from the same hour.
	require.NotNil(t, merged.Points[1].UVIndex)
	assert.Equal(t, 4.0, *merged.Points[1].UVIndex)

	// No fallback point for this hour.
	assert.Nil(t, merged.Points[2].UVIndex)

	// Fields not requested are never touched.
	for _, p := range merged.Points {
		assert.Nil(t, p.CAPE)
	}

	assert.Equal(t, "icon_eu", merged.Meta.FallbackModel)
	assert.Equal(t, []models.Field{models.FieldUVIndex}, merged.Meta.FallbackMetrics)

	// The input is not mutated.
	assert.Nil(t, primary.Points[1].UVIndex)
	assert.Empty(t, primary.Meta.FallbackModel)
}

func TestMergeFallbackNothingToFill(t *testing.T) {
	primary := &models.Timeseries{
		Meta:   models.Meta{Model: "icon_d2"},
		Points: []models.DataPoint{{Time: at(0)}},
	}
	fallback := &models.Timeseries{
		Meta:   models.Meta{Model: "icon_eu"},
		Points: []models.DataPoint{{Time: at(0)}},
	}

	merged := MergeFallback(primary, fallback, []models.Field{models.FieldUVIndex})
	assert.Empty(t, merged.Meta.FallbackModel)
	assert.Empty(t, merged.Meta.FallbackMetrics)

	merged = MergeFallback(primary, nil, []models.Field{models.FieldUVIndex})
	assert.Empty(t, merged.Meta.FallbackModel)
}

func TestSanitizeDropsImplausibleValues(t *testing.T) {
	ts := &models.Timeseries{Points: []models.DataPoint{{
		Time:          at(0),
		Temperature:   models.Float(-3),
		Humidity:      models.Float(140),
		Precipitation: models.Float(-1),
		WindSpeed:     models.Float(900),
		Pressure:      models.Float(1012),
	}}}

	flags := Sanitize(ts)
	assert.Equal(t, map[string]int{FlagHumidityInvalid: 1, FlagNegativeAmount: 1, FlagWindSpeedUnlikely: 1}, flags)

	p := ts.Points[0]
	assert.Equal(t, -3.0, *p.Temperature)
	assert.Equal(t, 1012.0, *p.Pressure)
	assert.Nil(t, p.Humidity)
	assert.Nil(t, p.Precipitation)
	assert.Nil(t, p.WindSpeed)
}
