package aggregate

import (
	"maps"

	"github.com/lox/tripweather/internal/models"
)

// WaypointSeries pairs a waypoint with its forecast.
type WaypointSeries struct {
	Waypoint   models.Waypoint
	Timeseries *models.Timeseries
}

// Config assigns a verb to each field aggregated across waypoints.
type Config struct {
	Verbs map[models.Field]models.Verb
}

var profileVerbs = map[models.ActivityProfile]map[models.Field]models.Verb{
	models.ProfileWintersport: {
		models.FieldTemperature:       models.VerbMin,
		models.FieldApparentTemp:      models.VerbMin,
		models.FieldWindSpeed:         models.VerbMax,
		models.FieldWindGust:          models.VerbMax,
		models.FieldPrecipitation:     models.VerbSum,
		models.FieldSnowfall:          models.VerbSum,
		models.FieldSnowDepth:         models.VerbAtHighest,
		models.FieldFreezingLevel:     models.VerbMin,
		models.FieldCloudCover:        models.VerbAvg,
		models.FieldVisibility:        models.VerbMin,
		models.FieldPrecipProbability: models.VerbMax,
		models.FieldThunder:           models.VerbMax,
		models.FieldUVIndex:           models.VerbMax,
	},
	models.ProfileSummerTrekking: {
		models.FieldTemperature:       models.VerbMax,
		models.FieldApparentTemp:      models.VerbMin,
		models.FieldWindSpeed:         models.VerbMax,
		models.FieldWindGust:          models.VerbMax,
		models.FieldPrecipitation:     models.VerbSum,
		models.FieldPrecipProbability: models.VerbMax,
		models.FieldThunder:           models.VerbMax,
		models.FieldCAPE:              models.VerbMax,
		models.FieldCloudCover:        models.VerbAvg,
		models.FieldHumidity:          models.VerbAvg,
		models.FieldUVIndex:           models.VerbMax,
		models.FieldVisibility:        models.VerbMin,
	},
	models.ProfileGeneral: {
		models.FieldTemperature:       models.VerbAvg,
		models.FieldWindSpeed:         models.VerbMax,
		models.FieldWindGust:          models.VerbMax,
		models.FieldPrecipitation:     models.VerbSum,
		models.FieldPrecipProbability: models.VerbMax,
		models.FieldCloudCover:        models.VerbAvg,
		models.FieldHumidity:          models.VerbAvg,
		models.FieldThunder:           models.VerbMax,
	},
}

// ProfileConfig returns the default verbs for an activity profile. Unknown
// profiles get the general defaults.
func ProfileConfig(p models.ActivityProfile) Config {
	verbs, ok := profileVerbs[p]
	if !ok {
		verbs = profileVerbs[models.ProfileGeneral]
	}
	return Config{Verbs: maps.Clone(verbs)}
}

// WithOverrides returns a copy of c with the given verbs replacing the
// defaults. Invalid fields are ignored.
func (c Config) WithOverrides(overrides map[models.Field]models.Verb) Config {
	out := Config{Verbs: maps.Clone(c.Verbs)}
	if out.Verbs == nil {
		out.Verbs = make(map[models.Field]models.Verb)
	}
	for f, v := range overrides {
		if f.Valid() {
			out.Verbs[f] = v
		}
	}
	return out
}

// TripConfig resolves a trip's aggregation config.
func TripConfig(trip models.Trip) Config {
	return ProfileConfig(trip.Profile).WithOverrides(trip.Aggregation)
}

// AcrossWaypoints aggregates each configured field over every waypoint's
// series. Point-sourced verbs name the waypoint the value came from.
func AcrossWaypoints(inputs []WaypointSeries, cfg Config) map[models.Field]models.AggregatedValue {
	out := make(map[models.Field]models.AggregatedValue, len(cfg.Verbs))
	for field, verb := range cfg.Verbs {
		var samples []Sample
		for _, in := range inputs {
			if in.Timeseries == nil {
				continue
			}
			for i := range in.Timeseries.Points {
				p := &in.Timeseries.Points[i]
				samples = append(samples, Sample{
					Value:     p.Value(field),
					Time:      p.Time,
					Source:    in.Waypoint.Name,
					Elevation: in.Waypoint.Elevation,
				})
			}
		}

		av := models.AggregatedValue{Verb: verb}
		if r, ok := Apply(verb, samples); ok {
			v := round(field, verb, r.Value)
			av.Value = &v
			if verb.PointSourced() {
				av.Source = r.Source
			}
		}
		out[field] = av
	}
	return out
}
