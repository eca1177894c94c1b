// Package surface renders the map on remote clients: every marker and style
// change is encoded as a JSON command and broadcast to the renderers of one
// view. Renderers joining late get a full sync of the current state.
package surface

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"

	"ecomap/internal/mapview"
	"ecomap/internal/shared/geo"
	"ecomap/internal/stream"
)

var (
	ErrNotInitialized  = errors.New("surface not initialized")
	ErrUnknownAnchor   = errors.New("unknown marker anchor")
	ErrDuplicateAnchor = errors.New("marker anchor already placed")
)

type CommandType string

const (
	CommandInit       CommandType = "init"
	CommandCreate     CommandType = "create_marker"
	CommandDestroy    CommandType = "destroy_marker"
	CommandReposition CommandType = "reposition_marker"
	CommandStyle      CommandType = "set_style"
	CommandSync       CommandType = "sync"
)

type Command struct {
	Type     CommandType      `json:"type"`
	Camera   *mapview.Camera  `json:"camera,omitempty"`
	Marker   *mapview.Marker  `json:"marker,omitempty"`
	Anchor   string           `json:"anchor,omitempty"`
	LngLat   *geo.LngLat      `json:"lnglat,omitempty"`
	StyleURL string           `json:"style_url,omitempty"`
	Markers  []mapview.Marker `json:"markers,omitempty"`
}

type Broadcaster interface {
	Broadcast(viewID string, payload []byte)
}

// Remote implements mapview.Surface on top of a stream hub and
// stream.Listener to serve renderer joins and clicks.
type Remote struct {
	viewID  string
	out     Broadcaster
	onClick func(anchor string)

	mu      sync.Mutex
	camera  *mapview.Camera
	markers map[string]mapview.Marker
}

func NewRemote(viewID string, out Broadcaster, onClick func(anchor string)) *Remote {
	return &Remote{
		viewID:  viewID,
		out:     out,
		onClick: onClick,
		markers: map[string]mapview.Marker{},
	}
}

func (r *Remote) ViewID() string { return r.viewID }

func (r *Remote) Init(camera mapview.Camera) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.camera = &camera
	r.markers = map[string]mapview.Marker{}
	return r.sendLocked(Command{Type: CommandInit, Camera: &camera})
}

func (r *Remote) CreateMarker(m mapview.Marker) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.camera == nil {
		return ErrNotInitialized
	}
	if _, exists := r.markers[m.Anchor]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateAnchor, m.Anchor)
	}
	r.markers[m.Anchor] = m
	return r.sendLocked(Command{Type: CommandCreate, Marker: &m})
}

func (r *Remote) DestroyMarker(anchor string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.markers[anchor]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAnchor, anchor)
	}
	delete(r.markers, anchor)
	return r.sendLocked(Command{Type: CommandDestroy, Anchor: anchor})
}

func (r *Remote) RepositionMarker(anchor string, at geo.LngLat) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.markers[anchor]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAnchor, anchor)
	}
	m.At = at
	r.markers[anchor] = m
	return r.sendLocked(Command{Type: CommandReposition, Anchor: anchor, LngLat: &at})
}

func (r *Remote) SetStyle(styleURL string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.camera == nil {
		return ErrNotInitialized
	}
	r.camera.StyleURL = styleURL
	return r.sendLocked(Command{Type: CommandStyle, StyleURL: styleURL})
}

// Placed lists the markers currently on the surface ordered by anchor.
func (r *Remote) Placed() []mapview.Marker {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.placedLocked()
}

func (r *Remote) placedLocked() []mapview.Marker {
	out := make([]mapview.Marker, 0, len(r.markers))
	for _, m := range r.markers {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Anchor < out[j].Anchor })
	return out
}

// Joined queues the whole current state as one sync command and attaches the
// renderer before the next surface command can be broadcast, so the renderer
// sees every later change exactly once.
func (r *Remote) Joined(viewID string, client *stream.Client, attach func()) {
	if viewID != r.viewID {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	defer attach()
	if r.camera == nil {
		return
	}
	camera := *r.camera
	payload, err := json.Marshal(Command{Type: CommandSync, Camera: &camera, Markers: r.placedLocked()})
	if err != nil {
		log.Printf("surface sync encode error: %v", err)
		return
	}
	select {
	case client.Send <- payload:
	default:
		log.Printf("renderer on %s is slow, sync dropped", viewID)
	}
}

func (r *Remote) Received(viewID string, ev stream.Event) {
	if viewID != r.viewID || ev.Type != "click" || r.onClick == nil {
		return
	}
	r.onClick(ev.Anchor)
}

// sendLocked broadcasts under r.mu so commands leave in state order and never
// interleave with a renderer joining.
func (r *Remote) sendLocked(cmd Command) error {
	payload, err := json.Marshal(cmd)
	if err != nil {
		return err
	}
	r.out.Broadcast(r.viewID, payload)
	return nil
}
