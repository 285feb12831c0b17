// Package geo ranks resources by great-circle distance to a job site.
package geo

import (
	"math"
	"sort"

	"github.com/fieldserve/dispatch/services/dispatch-service/internal/model"
)

// EarthRadiusMiles is the single radius used everywhere distances are
// computed; distances are reported in statute miles.
const EarthRadiusMiles = 3958.8

// Miles returns the Haversine great-circle distance between two coordinates.
func Miles(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := radians(lat2 - lat1)
	dLng := radians(lng2 - lng1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(radians(lat1))*math.Cos(radians(lat2))*
			math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusMiles * c
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}

// Ranked is one assignment candidate: a resource and its distance to the job.
// DistanceMiles is +Inf for resources without a home coordinate.
type Ranked struct {
	Resource      model.Resource
	DistanceMiles float64
}

// Rank orders resources ascending by distance from their home coordinate to
// (lat, lng). Resources lacking a coordinate sort after every geolocated one,
// keeping their relative input order (the sort is stable).
func Rank(resources []model.Resource, lat, lng float64) []Ranked {
	ranked := make([]Ranked, 0, len(resources))
	for _, r := range resources {
		d := math.Inf(1)
		if r.HasLocation() {
			d = Miles(*r.HomeLat, *r.HomeLng, lat, lng)
		}
		ranked = append(ranked, Ranked{Resource: r, DistanceMiles: d})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].DistanceMiles < ranked[j].DistanceMiles
	})
	return ranked
}
