package geo

import (
	"math"
	"testing"

	"github.com/fieldserve/dispatch/services/dispatch-service/internal/model"
)

func ptr(f float64) *float64 { return &f }

func TestMiles_KnownDistance(t *testing.T) {
	// Chicago Loop to Milwaukee city hall, roughly 83 miles.
	d := Miles(41.8781, -87.6298, 43.0389, -87.9065)
	if d < 80 || d > 86 {
		t.Fatalf("Chicago-Milwaukee distance out of range: %.1f miles", d)
	}

	if d := Miles(41.8781, -87.6298, 41.8781, -87.6298); d != 0 {
		t.Fatalf("distance to self should be 0, got %f", d)
	}

	// Symmetry.
	a := Miles(41.8781, -87.6298, 43.0389, -87.9065)
	b := Miles(43.0389, -87.9065, 41.8781, -87.6298)
	if math.Abs(a-b) > 1e-9 {
		t.Fatalf("distance should be symmetric: %f vs %f", a, b)
	}
}

func TestRank_NearestFirst(t *testing.T) {
	resources := []model.Resource{
		{ID: "far", HomeLat: ptr(43.0389), HomeLng: ptr(-87.9065)},
		{ID: "near", HomeLat: ptr(41.9), HomeLng: ptr(-87.65)},
	}
	ranked := Rank(resources, 41.8781, -87.6298)
	if ranked[0].Resource.ID != "near" || ranked[1].Resource.ID != "far" {
		t.Fatalf("expected near before far, got %s, %s", ranked[0].Resource.ID, ranked[1].Resource.ID)
	}
	if ranked[0].DistanceMiles >= ranked[1].DistanceMiles {
		t.Fatal("distances should be ascending")
	}
}

func TestRank_CoordinatelessSortLast(t *testing.T) {
	resources := []model.Resource{
		{ID: "nowhere-a"},
		{ID: "near", HomeLat: ptr(41.9), HomeLng: ptr(-87.65)},
		{ID: "nowhere-b"},
	}
	ranked := Rank(resources, 41.8781, -87.6298)
	if ranked[0].Resource.ID != "near" {
		t.Fatalf("geolocated resource should rank first, got %s", ranked[0].Resource.ID)
	}
	// Coordinateless resources keep their relative input order.
	if ranked[1].Resource.ID != "nowhere-a" || ranked[2].Resource.ID != "nowhere-b" {
		t.Fatalf("coordinateless resources should keep input order, got %s, %s",
			ranked[1].Resource.ID, ranked[2].Resource.ID)
	}
	if !math.IsInf(ranked[1].DistanceMiles, 1) {
		t.Fatal("coordinateless distance should be +Inf")
	}
}
