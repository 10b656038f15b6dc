package models

// Field names one numeric (or ordinal) column of a DataPoint.
type Field string

const (
	FieldTemperature       Field = "temperature"
	FieldApparentTemp      Field = "apparent_temperature"
	FieldDewPoint          Field = "dew_point"
	FieldHumidity          Field = "humidity"
	FieldPrecipitation     Field = "precipitation"
	FieldPrecipProbability Field = "precipitation_probability"
	FieldSnowfall          Field = "snowfall"
	FieldSnowDepth         Field = "snow_depth"
	FieldFreezingLevel     Field = "freezing_level"
	FieldPressure          Field = "pressure"
	FieldCloudCover        Field = "cloud_cover"
	FieldCloudLow          Field = "cloud_cover_low"
	FieldCloudMid          Field = "cloud_cover_mid"
	FieldCloudHigh         Field = "cloud_cover_high"
	FieldVisibility        Field = "visibility"
	FieldWindSpeed         Field = "wind_speed"
	FieldWindDirection     Field = "wind_direction"
	FieldWindGust          Field = "wind_gust"
	FieldUVIndex           Field = "uv_index"
	FieldCAPE              Field = "cape"
	FieldThunder           Field = "thunder_level"
)

var AllFields = []Field{
	FieldTemperature,
	FieldApparentTemp,
	FieldDewPoint,
	FieldHumidity,
	FieldPrecipitation,
	FieldPrecipProbability,
	FieldSnowfall,
	FieldSnowDepth,
	FieldFreezingLevel,
	FieldPressure,
	FieldCloudCover,
	FieldCloudLow,
	FieldCloudMid,
	FieldCloudHigh,
	FieldVisibility,
	FieldWindSpeed,
	FieldWindDirection,
	FieldWindGust,
	FieldUVIndex,
	FieldCAPE,
	FieldThunder,
}

func (f Field) Valid() bool {
	for _, known := range AllFields {
		if f == known {
			return true
		}
	}
	return false
}

// IsPercentage reports whether the field is on a 0-100 scale.
func (f Field) IsPercentage() bool {
	switch f {
	case FieldHumidity, FieldPrecipProbability, FieldCloudCover, FieldCloudLow, FieldCloudMid, FieldCloudHigh:
		return true
	}
	return false
}

func (p *DataPoint) slot(f Field) **float64 {
	switch f {
	case FieldTemperature:
		return &p.Temperature
	case FieldApparentTemp:
		return &p.ApparentTemp
	case FieldDewPoint:
		return &p.DewPoint
	case FieldHumidity:
		return &p.Humidity
	case FieldPrecipitation:
		return &p.Precipitation
	case FieldPrecipProbability:
		return &p.PrecipProbability
	case FieldSnowfall:
		return &p.Snowfall
	case FieldSnowDepth:
		return &p.SnowDepth
	case FieldFreezingLevel:
		return &p.FreezingLevel
	case FieldPressure:
		return &p.Pressure
	case FieldCloudCover:
		return &p.CloudCover
	case FieldCloudLow:
		return &p.CloudLow
	case FieldCloudMid:
		return &p.CloudMid
	case FieldCloudHigh:
		return &p.CloudHigh
	case FieldVisibility:
		return &p.Visibility
	case FieldWindSpeed:
		return &p.WindSpeed
	case FieldWindDirection:
		return &p.WindDirection
	case FieldWindGust:
		return &p.WindGust
	case FieldUVIndex:
		return &p.UVIndex
	case FieldCAPE:
		return &p.CAPE
	}
	return nil
}

// Value returns a copy of the field's value, or nil when absent. Thunder
// level is reported on its ordinal scale.
func (p *DataPoint) Value(f Field) *float64 {
	if f == FieldThunder {
		if p.Thunder == nil {
			return nil
		}
		v := float64(*p.Thunder)
		return &v
	}
	s := p.slot(f)
	if s == nil || *s == nil {
		return nil
	}
	v := **s
	return &v
}

// SetValue stores a copy of v, or clears the field when v is nil.
func (p *DataPoint) SetValue(f Field, v *float64) {
	if f == FieldThunder {
		if v == nil {
			p.Thunder = nil
			return
		}
		lvl := ThunderFromOrdinal(*v)
		p.Thunder = &lvl
		return
	}
	s := p.slot(f)
	if s == nil {
		return
	}
	if v == nil {
		*s = nil
		return
	}
	c := *v
	*s = &c
}

func (p DataPoint) clone() DataPoint {
	out := DataPoint{Time: p.Time}
	for _, f := range AllFields {
		out.SetValue(f, p.Value(f))
	}
	if p.PrecipType != nil {
		pt := *p.PrecipType
		out.PrecipType = &pt
	}
	return out
}

// Float returns a pointer to v.
func Float(v float64) *float64 {
	return &v
}
