// Package aggregate reduces hourly forecasts to summaries, over time for a
// single segment and across the waypoints of a trip.
package aggregate

import (
	"math"
	"time"

	"github.com/lox/tripweather/internal/models"
)

// Sample is one optional value with enough context for point-sourced verbs.
type Sample struct {
	Value     *float64
	Time      time.Time
	Source    string
	Elevation float64
}

type Result struct {
	Value  float64
	Source string
}

// Apply reduces samples with verb. Nil samples are ignored; when no sample
// has a value the result is not ok. Unknown verbs are never ok.
func Apply(verb models.Verb, samples []Sample) (Result, bool) {
	switch verb {
	case models.VerbMin:
		return pick(samples, func(a, b float64) bool { return a < b })
	case models.VerbMax:
		return pick(samples, func(a, b float64) bool { return a > b })
	case models.VerbSum:
		sum, n := pool(samples)
		return Result{Value: sum}, n > 0
	case models.VerbAvg:
		sum, n := pool(samples)
		if n == 0 {
			return Result{}, false
		}
		return Result{Value: sum / float64(n)}, true
	case models.VerbFirst:
		return byTime(samples, func(a, b time.Time) bool { return a.Before(b) })
	case models.VerbLast:
		return byTime(samples, func(a, b time.Time) bool { return a.After(b) })
	case models.VerbAtHighest:
		return atElevation(samples, func(a, b float64) bool { return a > b })
	case models.VerbAtLowest:
		return atElevation(samples, func(a, b float64) bool { return a < b })
	}
	return Result{}, false
}

// pick returns the first sample that no later sample beats.
func pick(samples []Sample, better func(a, b float64) bool) (Result, bool) {
	var best Result
	found := false
	for _, s := range samples {
		if s.Value == nil {
			continue
		}
		if !found || better(*s.Value, best.Value) {
			best = Result{Value: *s.Value, Source: s.Source}
			found = true
		}
	}
	return best, found
}

func pool(samples []Sample) (float64, int) {
	var sum float64
	n := 0
	for _, s := range samples {
		if s.Value == nil {
			continue
		}
		sum += *s.Value
		n++
	}
	return sum, n
}

func byTime(samples []Sample, earlier func(a, b time.Time) bool) (Result, bool) {
	var best Result
	var bestTime time.Time
	found := false
	for _, s := range samples {
		if s.Value == nil {
			continue
		}
		if !found || earlier(s.Time, bestTime) {
			best = Result{Value: *s.Value, Source: s.Source}
			bestTime = s.Time
			found = true
		}
	}
	return best, found
}

// atElevation takes the earliest value from the single source with the
// extreme elevation among sources that have any value at all.
func atElevation(samples []Sample, higher func(a, b float64) bool) (Result, bool) {
	source := ""
	elevation := 0.0
	found := false
	for _, s := range samples {
		if s.Value == nil {
			continue
		}
		if !found || higher(s.Elevation, elevation) {
			source = s.Source
			elevation = s.Elevation
			found = true
		}
	}
	if !found {
		return Result{}, false
	}
	var fromSource []Sample
	for _, s := range samples {
		if s.Source == source && s.Elevation == elevation {
			fromSource = append(fromSource, s)
		}
	}
	return byTime(fromSource, func(a, b time.Time) bool { return a.Before(b) })
}

// round applies the fixed output rounding: percentages to whole numbers,
// other averages to one decimal.
func round(f models.Field, verb models.Verb, v float64) float64 {
	if f.IsPercentage() {
		return math.Round(v)
	}
	if verb == models.VerbAvg {
		return math.Round(v*10) / 10
	}
	return v
}
