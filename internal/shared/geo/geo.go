package geo

import (
	"errors"
	"math"
)

const earthRadiusKm = 6371.0

var ErrInvalidCoordinate = errors.New("coordinate out of range")

// LngLat is a coordinate pair in the order map surfaces expect it.
type LngLat [2]float64

func (p LngLat) Lng() float64 { return p[0] }
func (p LngLat) Lat() float64 { return p[1] }

func Validate(lat, lng float64) error {
	if math.IsNaN(lat) || math.IsNaN(lng) {
		return ErrInvalidCoordinate
	}
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return ErrInvalidCoordinate
	}
	return nil
}

// HaversineKm returns the great-circle distance between two points.
func HaversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := toRad(lat2 - lat1)
	dLng := toRad(lng2 - lng1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLng/2)*math.Sin(dLng/2)
	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}
