package provider

import (
	"github.com/lox/tripweather/internal/models"
)

const (
	FlagTempOutOfRange     = "temp_out_of_range"
	FlagHumidityInvalid    = "humidity_invalid"
	FlagWindDirInvalid     = "wind_dir_invalid"
	FlagWindSpeedUnlikely  = "wind_speed_unlikely"
	FlagPressureOutOfRange = "pressure_out_of_range"
	FlagPercentInvalid     = "percent_invalid"
	FlagNegativeAmount     = "negative_amount"
)

type plausibleRange struct {
	field    models.Field
	min, max float64
	flag     string
}

var plausibleRanges = []plausibleRange{
	{models.FieldTemperature, -80, 60, FlagTempOutOfRange},
	{models.FieldApparentTemp, -100, 70, FlagTempOutOfRange},
	{models.FieldDewPoint, -90, 40, FlagTempOutOfRange},
	{models.FieldHumidity, 0, 100, FlagHumidityInvalid},
	{models.FieldPrecipProbability, 0, 100, FlagPercentInvalid},
	{models.FieldCloudCover, 0, 100, FlagPercentInvalid},
	{models.FieldCloudLow, 0, 100, FlagPercentInvalid},
	{models.FieldCloudMid, 0, 100, FlagPercentInvalid},
	{models.FieldCloudHigh, 0, 100, FlagPercentInvalid},
	{models.FieldWindDirection, 0, 360, FlagWindDirInvalid},
	{models.FieldWindSpeed, 0, 400, FlagWindSpeedUnlikely},
	{models.FieldWindGust, 0, 500, FlagWindSpeedUnlikely},
	{models.FieldPressure, 300, 1100, FlagPressureOutOfRange},
	{models.FieldPrecipitation, 0, 500, FlagNegativeAmount},
	{models.FieldSnowfall, 0, 500, FlagNegativeAmount},
	{models.FieldSnowDepth, 0, 5000, FlagNegativeAmount},
	{models.FieldVisibility, 0, 1e6, FlagNegativeAmount},
	{models.FieldUVIndex, 0, 25, FlagNegativeAmount},
	{models.FieldCAPE, 0, 1e4, FlagNegativeAmount},
}

// Sanitize drops implausible values to nil in place and returns how many
// values each flag removed.
func Sanitize(ts *models.Timeseries) map[string]int {
	flags := make(map[string]int)
	for i := range ts.Points {
		p := &ts.Points[i]
		for _, r := range plausibleRanges {
			v := p.Value(r.field)
			if v == nil {
				continue
			}
			if *v < r.min || *v > r.max {
				p.SetValue(r.field, nil)
				flags[r.flag]++
			}
		}
	}
	return flags
}
