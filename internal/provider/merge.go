package provider

import (
	"time"

	"github.com/lox/tripweather/internal/models"
)

// MergeFallback returns a copy of primary in which each named field is
// filled from fallback at matching hours, only where primary has no value.
// The fallback model and the fields it actually filled are recorded in the
// metadata.
func MergeFallback(primary, fallback *models.Timeseries, fields []models.Field) *models.Timeseries {
	out := primary.Clone()
	if fallback == nil || len(fields) == 0 {
		return out
	}

	byHour := make(map[int64]*models.DataPoint, len(fallback.Points))
	for i := range fallback.Points {
		p := &fallback.Points[i]
		byHour[p.Time.Truncate(time.Hour).Unix()] = p
	}

	filled := make(map[models.Field]bool)
	for i := range out.Points {
		p := &out.Points[i]
		fb, ok := byHour[p.Time.Truncate(time.Hour).Unix()]
		if !ok {
			continue
		}
		for _, f := range fields {
			if p.Value(f) != nil {
				continue
			}
			if v := fb.Value(f); v != nil {
				p.SetValue(f, v)
				filled[f] = true
			}
		}
	}

	if len(filled) == 0 {
		return out
	}
	out.Meta.FallbackModel = fallback.Meta.Model
	out.Meta.FallbackMetrics = nil
	for _, f := range fields {
		if filled[f] {
			out.Meta.FallbackMetrics = append(out.Meta.FallbackMetrics, f)
		}
	}
	return out
}
