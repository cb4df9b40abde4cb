// Package geo holds the spherical-earth math used to predict vessel positions
package geo

import (
	"math"
	"time"

	"github.com/ngmaloney/vessel-forecast/internal/models"
)

const (
	// EarthRadiusMeters is the mean Earth radius used for projection
	EarthRadiusMeters = 6371000.0

	earthRadiusMiles = 3959.0

	// MetersPerSecondPerKnot converts knots to m/s
	MetersPerSecondPerKnot = 0.514444
)

// KnotsToMetersPerSecond converts a speed in knots to m/s
func KnotsToMetersPerSecond(knots float64) float64 {
	return knots * MetersPerSecondPerKnot
}

// Project returns the position reached after travelling hoursAhead hours along
// a great circle from current at the given heading (radians) and speed (m/s).
// The result is stamped with the current time plus hoursAhead.
func Project(current models.Position, headingRad, speedMps, hoursAhead float64) models.Position {
	return ProjectAt(time.Now(), current, headingRad, speedMps, hoursAhead)
}

// ProjectAt is Project with an explicit reference time
func ProjectAt(from time.Time, current models.Position, headingRad, speedMps, hoursAhead float64) models.Position {
	distance := speedMps * hoursAhead * 3600
	angular := distance / EarthRadiusMeters

	lat1 := toRadians(current.Latitude)
	lon1 := toRadians(current.Longitude)

	lat2 := math.Asin(math.Sin(lat1)*math.Cos(angular) +
		math.Cos(lat1)*math.Sin(angular)*math.Cos(headingRad))
	lon2 := lon1 + math.Atan2(
		math.Sin(headingRad)*math.Sin(angular)*math.Cos(lat1),
		math.Cos(angular)-math.Sin(lat1)*math.Sin(lat2),
	)

	return models.Position{
		Latitude:  toDegrees(lat2),
		Longitude: normalizeLongitude(toDegrees(lon2)),
		Timestamp: from.Add(time.Duration(hoursAhead * float64(time.Hour))),
	}
}

// HaversineMiles calculates distance in miles between two lat/lon points
func HaversineMiles(lat1, lon1, lat2, lon2 float64) float64 {
	lat1Rad := toRadians(lat1)
	lat2Rad := toRadians(lat2)
	deltaLat := toRadians(lat2 - lat1)
	deltaLon := toRadians(lon2 - lon1)

	a := math.Sin(deltaLat/2)*math.Sin(deltaLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*
			math.Sin(deltaLon/2)*math.Sin(deltaLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusMiles * c
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}

func toDegrees(rad float64) float64 {
	return rad * 180 / math.Pi
}

// normalizeLongitude wraps lon into [-180, 180)
func normalizeLongitude(lon float64) float64 {
	lon = math.Mod(lon+180, 360)
	if lon < 0 {
		lon += 360
	}
	return lon - 180
}
