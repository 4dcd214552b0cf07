package geo

import (
	"fmt"
	"math"

	"fleet-monitor/livemap/internal/domain"
)

const earthRadiusKm = 6371.0

type Candidate struct {
	ID         string
	Coordinate domain.Coordinate
}

// Distance returns the great-circle distance between a and b in kilometers.
func Distance(a, b domain.Coordinate) float64 {
	if a == b {
		return 0
	}
	dLat := toRad(b.Latitude - a.Latitude)
	dLon := toRad(b.Longitude - a.Longitude)
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(a.Latitude))*math.Cos(toRad(b.Latitude))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// Bearing returns the initial bearing from a to b in degrees, [0, 360).
// Identical points yield 0.
func Bearing(a, b domain.Coordinate) float64 {
	if a == b {
		return 0
	}
	lat1 := toRad(a.Latitude)
	lat2 := toRad(b.Latitude)
	dLon := toRad(b.Longitude - a.Longitude)

	y := math.Sin(dLon) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLon)

	deg := math.Mod(toDeg(math.Atan2(y, x))+360, 360)
	if deg >= 360 || math.IsNaN(deg) {
		return 0
	}
	return deg
}

// Nearest scans candidates in order; the first one at the minimum
// distance wins.
func Nearest(point domain.Coordinate, candidates []Candidate) (Candidate, float64, bool) {
	var (
		best  Candidate
		bestD = math.Inf(1)
		found bool
	)
	for _, c := range candidates {
		d := Distance(point, c.Coordinate)
		if d < bestD {
			best, bestD, found = c, d, true
		}
	}
	if !found {
		return Candidate{}, 0, false
	}
	return best, bestD, true
}

// InRange reports whether c is finite and within geodetic bounds.
func InRange(c domain.Coordinate) bool {
	if math.IsNaN(c.Latitude) || math.IsInf(c.Latitude, 0) ||
		math.IsNaN(c.Longitude) || math.IsInf(c.Longitude, 0) {
		return false
	}
	return c.Latitude >= -90 && c.Latitude <= 90 &&
		c.Longitude >= -180 && c.Longitude <= 180
}

// IsValid is InRange minus the (0,0) "unknown location" sentinel.
func IsValid(c domain.Coordinate) bool {
	if c.Latitude == 0 && c.Longitude == 0 {
		return false
	}
	return InRange(c)
}

// Speed returns km/h between two fixes; non-positive elapsed time yields 0.
func Speed(a, b domain.Coordinate, elapsedSeconds float64) float64 {
	if elapsedSeconds <= 0 {
		return 0
	}
	return math.Max(0, Distance(a, b)/elapsedSeconds*3600)
}

type Box struct {
	North, South, East, West float64
}

// BoundingBox approximates a square around center using 111 km per degree.
func BoundingBox(center domain.Coordinate, radiusKm float64) Box {
	latDelta := radiusKm / 111
	lonDelta := radiusKm / (111 * math.Cos(toRad(center.Latitude)))
	return Box{
		North: center.Latitude + latDelta,
		South: center.Latitude - latDelta,
		East:  center.Longitude + lonDelta,
		West:  center.Longitude - lonDelta,
	}
}

func (b Box) Contains(c domain.Coordinate) bool {
	return c.Latitude <= b.North && c.Latitude >= b.South &&
		c.Longitude <= b.East && c.Longitude >= b.West
}

func FormatDistance(km float64) string {
	if km < 1 {
		return fmt.Sprintf("%dm", int(math.Round(km*1000)))
	}
	return fmt.Sprintf("%.2fkm", km)
}

func toRad(deg float64) float64 { return deg * math.Pi / 180 }
func toDeg(rad float64) float64 { return rad * 180 / math.Pi }
