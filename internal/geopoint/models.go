package geopoint

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"ecomap/internal/shared/geo"
)

type Kind string

const (
	KindOrganization Kind = "organization"
	KindTree         Kind = "tree"
)

// Kinds lists every kind the map renders, in reconciliation order.
var Kinds = []Kind{KindOrganization, KindTree}

func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindOrganization, KindTree:
		return Kind(s), nil
	case "org", "orgs", "organizations":
		return KindOrganization, nil
	case "trees":
		return KindTree, nil
	}
	return "", fmt.Errorf("unknown point kind %q", s)
}

// GeoPoint is one mappable record. Identity is ID; a GeoPoint is never
// patched, a newer snapshot replaces it.
type GeoPoint struct {
	ID      string  `json:"id"`
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	Kind    Kind    `json:"kind"`
	Payload any     `json:"payload,omitempty"`
}

func (p GeoPoint) LngLat() geo.LngLat {
	return geo.LngLat{p.Lng, p.Lat}
}

func (p GeoPoint) Organization() (Organization, bool) {
	org, ok := p.Payload.(Organization)
	return org, ok
}

func (p GeoPoint) Tree() (Tree, bool) {
	tree, ok := p.Payload.(Tree)
	return tree, ok
}

type Organization struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Latitude    float64    `json:"latitude"`
	Longitude   float64    `json:"longitude"`
	Followers   []Follower `json:"followers"`
}

type Tree struct {
	ID          string  `json:"id"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	ImageURL    string  `json:"imageUrl,omitempty"`
	Description string  `json:"description,omitempty"`
}

// Follower accepts both numeric and string user ids.
type Follower struct {
	ID string `json:"id"`
}

func (f *Follower) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	id, err := flexibleID(raw.ID)
	if err != nil {
		return err
	}
	f.ID = id
	return nil
}

func flexibleID(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}
	if raw[0] == '"' {
		var s string
		err := json.Unmarshal(raw, &s)
		return s, err
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", err
	}
	if _, err := strconv.ParseFloat(n.String(), 64); err != nil {
		return "", err
	}
	return n.String(), nil
}

// FollowerIDs returns the follower ids of an organization record.
func (o Organization) FollowerIDs() []string {
	ids := make([]string, 0, len(o.Followers))
	for _, f := range o.Followers {
		if f.ID != "" {
			ids = append(ids, f.ID)
		}
	}
	return ids
}

// FromOrganizations converts fetched organization records, skipping records
// without an id or with out-of-range coordinates.
func FromOrganizations(orgs []Organization) []GeoPoint {
	points := make([]GeoPoint, 0, len(orgs))
	for _, o := range orgs {
		if o.ID == "" || geo.Validate(o.Latitude, o.Longitude) != nil {
			continue
		}
		points = append(points, GeoPoint{
			ID:      o.ID,
			Lat:     o.Latitude,
			Lng:     o.Longitude,
			Kind:    KindOrganization,
			Payload: o,
		})
	}
	return points
}

func FromTrees(trees []Tree) []GeoPoint {
	points := make([]GeoPoint, 0, len(trees))
	for _, t := range trees {
		if t.ID == "" || geo.Validate(t.Latitude, t.Longitude) != nil {
			continue
		}
		points = append(points, GeoPoint{
			ID:      t.ID,
			Lat:     t.Latitude,
			Lng:     t.Longitude,
			Kind:    KindTree,
			Payload: t,
		})
	}
	return points
}
