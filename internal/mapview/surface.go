package mapview

import (
	"ecomap/internal/geopoint"
	"ecomap/internal/shared/geo"
)

type Style string

const (
	StyleStreet    Style = "street"
	StyleSatellite Style = "satellite"
)

func ParseStyle(s string) (Style, bool) {
	switch Style(s) {
	case StyleStreet, StyleSatellite:
		return Style(s), true
	}
	return "", false
}

// StyleURLs returns the MapTiler style documents for each map style.
func StyleURLs(mapTilerKey string) map[Style]string {
	return map[Style]string{
		StyleStreet:    "https://api.maptiler.com/maps/streets/style.json?key=" + mapTilerKey,
		StyleSatellite: "https://api.maptiler.com/maps/hybrid/style.json?key=" + mapTilerKey,
	}
}

// Camera is the initial view of a freshly mounted map.
type Camera struct {
	Center   geo.LngLat `json:"center"`
	Zoom     float64    `json:"zoom"`
	StyleURL string     `json:"style_url"`
}

// Marker describes one marker element. Anchor identifies the element on
// the surface for its whole life.
type Marker struct {
	Anchor      string        `json:"anchor"`
	PointID     string        `json:"point_id"`
	Kind        geopoint.Kind `json:"kind"`
	At          geo.LngLat    `json:"lnglat"`
	Color       string        `json:"color,omitempty"`
	Title       string        `json:"title,omitempty"`
	ClassName   string        `json:"class_name,omitempty"`
	Placement   string        `json:"placement,omitempty"`
	Interactive bool          `json:"interactive"`
}

// Surface is the map rendering capability. Only the Reconciler calls it.
type Surface interface {
	Init(camera Camera) error
	CreateMarker(m Marker) error
	DestroyMarker(anchor string) error
	RepositionMarker(anchor string, at geo.LngLat) error
	SetStyle(styleURL string) error
}
