package provider

import (
	"fmt"
	"sort"

	"github.com/lox/tripweather/internal/models"
)

// Region is a model's coverage box. Bounds are inclusive.
type Region struct {
	Model     string
	GridResKm float64
	Endpoint  string
	Priority  int
	MinLat    float64
	MaxLat    float64
	MinLon    float64
	MaxLon    float64
}

func (r Region) Contains(lat, lon float64) bool {
	return lat >= r.MinLat && lat <= r.MaxLat && lon >= r.MinLon && lon <= r.MaxLon
}

func (r Region) IsGlobal() bool {
	return r.MinLat <= -90 && r.MaxLat >= 90 && r.MinLon <= -180 && r.MaxLon >= 180
}

func (r Region) Center() (lat, lon float64) {
	return (r.MinLat + r.MaxLat) / 2, (r.MinLon + r.MaxLon) / 2
}

// OpenMeteoRegions is the Open-Meteo routing table, finest grid first.
var OpenMeteoRegions = []Region{
	{Model: "metno_nordic", GridResKm: 1.0, Endpoint: "/v1/metno", Priority: 1, MinLat: 53.0, MaxLat: 72.0, MinLon: 0.0, MaxLon: 32.0},
	{Model: "meteofrance_arome_france_hd", GridResKm: 1.5, Endpoint: "/v1/meteofrance", Priority: 2, MinLat: 41.0, MaxLat: 52.0, MinLon: -6.0, MaxLon: 10.0},
	{Model: "icon_d2", GridResKm: 2.2, Endpoint: "/v1/dwd-icon", Priority: 3, MinLat: 43.0, MaxLat: 56.0, MinLon: 2.0, MaxLon: 18.0},
	{Model: "icon_eu", GridResKm: 7.0, Endpoint: "/v1/dwd-icon", Priority: 4, MinLat: 29.5, MaxLat: 70.5, MinLon: -23.5, MaxLon: 62.5},
	{Model: "ecmwf_ifs025", GridResKm: 25.0, Endpoint: "/v1/ecmwf", Priority: 5, MinLat: -90, MaxLat: 90, MinLon: -180, MaxLon: 180},
}

// Router picks the highest-resolution model covering a coordinate.
type Router struct {
	regions []Region
}

// NewRouter orders regions by priority and requires the last to be global,
// so every valid coordinate has a model.
func NewRouter(regions []Region) (*Router, error) {
	if len(regions) == 0 {
		return nil, &models.ConfigurationError{Reason: "routing table is empty"}
	}
	sorted := append([]Region(nil), regions...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Priority < sorted[j].Priority })
	last := sorted[len(sorted)-1]
	if !last.IsGlobal() {
		return nil, &models.ConfigurationError{
			Reason: fmt.Sprintf("last region %s (priority %d) is not global", last.Model, last.Priority),
		}
	}
	return &Router{regions: sorted}, nil
}

// MustRouter is NewRouter for static tables.
func MustRouter(regions []Region) *Router {
	r, err := NewRouter(regions)
	if err != nil {
		panic(err)
	}
	return r
}

// SelectModel never fails: the global region matches any coordinate,
// and anything outside it (NaN) is routed there too.
func (r *Router) SelectModel(lat, lon float64) Region {
	for _, reg := range r.regions {
		if reg.Contains(lat, lon) {
			return reg
		}
	}
	return r.regions[len(r.regions)-1]
}

// Candidates returns every region covering the coordinate by priority.
func (r *Router) Candidates(lat, lon float64) []Region {
	var out []Region
	for _, reg := range r.regions {
		if reg.Contains(lat, lon) {
			out = append(out, reg)
		}
	}
	return out
}

func (r *Router) Regions() []Region {
	return append([]Region(nil), r.regions...)
}
