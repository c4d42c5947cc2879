// Package routing computes road distances and travel times between service
// areas and laboratories. The primary source is an OSRM-style HTTP endpoint;
// every failure degrades to a great-circle estimate so that problem building
// can always proceed.
package routing

import (
	"fmt"
	"math"
)

// EarthRadiusKM is the mean Earth radius used for great-circle distances.
const EarthRadiusKM = 6371.0

// FallbackSpeedKMH is the assumed average road speed used to synthesize a
// travel time when only a great-circle distance is available.
const FallbackSpeedKMH = 40.0

// Route sources reported in Leg.Source.
const (
	SourceOSRM     = "osrm"
	SourceFallback = "fallback"
	SourceCache    = "cache"
)

// Coordinate is a WGS84 decimal-degree point.
type Coordinate struct {
	Lat float64
	Lng float64
}

// Valid reports whether the coordinate lies in [-90,90]x[-180,180].
func (c Coordinate) Valid() bool {
	return c.Lat >= -90 && c.Lat <= 90 && c.Lng >= -180 && c.Lng <= 180
}

// Key returns the cache key for the coordinate, rounded to 6 decimal places
// (roughly 0.1 m, well below routing resolution).
func (c Coordinate) Key() string {
	return fmt.Sprintf("%.6f,%.6f", c.Lat, c.Lng)
}

// Pair is an (origin, destination) request.
type Pair struct {
	Origin      Coordinate
	Destination Coordinate
}

// Leg is the answer for a single pair.
type Leg struct {
	KM      float64
	Minutes float64
	Source  string
}

// Haversine returns the great-circle distance in kilometers between two
// coordinates.
func Haversine(o, d Coordinate) float64 {
	lat1 := o.Lat * math.Pi / 180
	lat2 := d.Lat * math.Pi / 180
	dlat := (d.Lat - o.Lat) * math.Pi / 180
	dlng := (d.Lng - o.Lng) * math.Pi / 180

	a := math.Sin(dlat/2)*math.Sin(dlat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dlng/2)*math.Sin(dlng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusKM * c
}

// fallbackLeg synthesizes a leg from the great-circle distance at the assumed
// average speed.
func fallbackLeg(o, d Coordinate) Leg {
	km := Haversine(o, d)
	return Leg{
		KM:      km,
		Minutes: km / FallbackSpeedKMH * 60,
		Source:  SourceFallback,
	}
}
