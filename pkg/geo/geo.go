// Package geo provides the geographic kernel for route planning.
//
// All distance calculations use the Haversine formula on WGS-84 coordinates.
// Travel time is estimated using a constant per-mode average speed — suitable
// for budget accounting. In production, swap with OSRM or Google Maps API.
package geo

import (
	"math"

	"github.com/minh/wayloop/internal/model"
)

// ─── Constants ──────────────────────────────────────────────

const (
	// EarthRadiusKm is the mean radius of Earth in kilometers.
	EarthRadiusKm = 6371.0

	// EarthRadiusM is the mean radius of Earth in meters.
	EarthRadiusM = 6_371_000.0
)

// ─── Distance ───────────────────────────────────────────────

// HaversineKm returns the great-circle distance between two points in kilometers.
//
// Complexity: O(1)
func HaversineKm(a, b model.Location) float64 {
	dLat := degToRad(b.Lat - a.Lat)
	dLon := degToRad(b.Lon - a.Lon)

	sinLat := math.Sin(dLat / 2)
	sinLon := math.Sin(dLon / 2)

	h := sinLat*sinLat +
		math.Cos(degToRad(a.Lat))*math.Cos(degToRad(b.Lat))*sinLon*sinLon

	return 2 * EarthRadiusKm * math.Asin(math.Sqrt(h))
}

// HaversineM returns the great-circle distance between two points in meters.
func HaversineM(a, b model.Location) float64 {
	return HaversineKm(a, b) * 1000.0
}

// TravelMinutes returns the direct travel time between two points in minutes
// at the given average speed in km/h.
//
// Complexity: O(1)
func TravelMinutes(a, b model.Location, speedKmph float64) float64 {
	return (HaversineKm(a, b) / speedKmph) * 60.0
}

// ─── Bearings ───────────────────────────────────────────────

// Bearing returns the initial great-circle bearing from a to b, in degrees
// clockwise from north, normalized to [0, 360).
//
// Complexity: O(1)
func Bearing(a, b model.Location) float64 {
	lat1 := degToRad(a.Lat)
	lat2 := degToRad(b.Lat)
	dLon := degToRad(b.Lon - a.Lon)

	y := math.Sin(dLon) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) -
		math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLon)

	deg := radToDeg(math.Atan2(y, x))
	return math.Mod(deg+360.0, 360.0)
}

// BearingDiff returns the absolute angular difference between two bearings,
// normalized to [0, 180].
func BearingDiff(b1, b2 float64) float64 {
	d := math.Abs(b1 - b2)
	if d > 180.0 {
		d = 360.0 - d
	}
	return d
}

// ZigzagScore rewards continuing in a straight line: 1.0 when the new leg
// keeps the previous bearing, 0.0 on a full reversal.
func ZigzagScore(prevBearing, newBearing float64) float64 {
	return 1.0 - BearingDiff(prevBearing, newBearing)/180.0
}

// CircularScore rewards right-angle turns: 1.0 at a 90° deviation from the
// previous bearing, falling off linearly toward 0° and 180°. Used to steer
// routes into loops instead of out-and-back paths.
func CircularScore(prevBearing, newBearing float64) float64 {
	d := BearingDiff(prevBearing, newBearing)
	return 1.0 - math.Abs(d-90.0)/90.0
}

// ─── Matrices ───────────────────────────────────────────────

// DistanceMatrix returns pairwise great-circle distances in meters for the
// given points. Row 0 / column 0 correspond to points[0] (conventionally the
// user position).
//
// Complexity: O(P²)
func DistanceMatrix(points []model.Location) [][]float64 {
	n := len(points)
	m := make([][]float64, n)
	for i := range m {
		m[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			d := HaversineM(points[i], points[j])
			m[i][j] = d
			m[j][i] = d
		}
	}
	return m
}

// TimeMatrix converts a distance matrix (meters) to travel times (minutes)
// at the given speed in km/h.
func TimeMatrix(dist [][]float64, speedKmph float64) [][]float64 {
	metersPerMinute := speedKmph * 1000.0 / 60.0
	t := make([][]float64, len(dist))
	for i := range dist {
		t[i] = make([]float64, len(dist[i]))
		for j := range dist[i] {
			t[i][j] = dist[i][j] / metersPerMinute
		}
	}
	return t
}

// ─── Helpers ────────────────────────────────────────────────

func degToRad(deg float64) float64 {
	return deg * (math.Pi / 180.0)
}

func radToDeg(rad float64) float64 {
	return rad * (180.0 / math.Pi)
}
