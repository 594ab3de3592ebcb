// Package geo provides the geodesic primitives shared by officer matching
// and attendance verification.
package geo

import (
	"math"

	"github.com/cris-mate/guardian-optix-sub000/internal/model"
)

const (
	earthRadiusMetres = 6371000
	// DefaultRadius applies when a geofence has no radius configured.
	DefaultRadius = 150
)

// Distance returns the great-circle distance in metres between two
// lat/lon points using the Haversine formula.
func Distance(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := radians(lat2 - lat1)
	dLon := radians(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(radians(lat1))*math.Cos(radians(lat2))*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	return earthRadiusMetres * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }

// Classify checks a reported location against a site geofence.
//
// A disabled geofence is a permissive pass and reports inside; an absent
// location or an unresolvable geofence reports unknown. The boundary itself
// counts as inside.
func Classify(loc *model.Location, fence *model.Geofence) string {
	if fence != nil && !fence.Enabled {
		return model.GeofenceInside
	}
	if loc == nil || fence == nil || fence.Center == nil {
		return model.GeofenceUnknown
	}
	radius := fence.Radius
	if radius <= 0 {
		radius = DefaultRadius
	}
	d := Distance(loc.Latitude, loc.Longitude, fence.Center.Latitude, fence.Center.Longitude)
	if d <= radius {
		return model.GeofenceInside
	}
	return model.GeofenceOutside
}
