// Package mapview keeps the markers on a mounted map equal to the latest
// organization and tree snapshots.
//
// For each kind, once SetSnapshot returns with a mounted surface, the live
// marker ids are exactly the snapshot ids. Markers whose id survives a new
// snapshot keep their handle and are never recreated. Snapshots given
// before Mount are buffered, and only the latest one per kind is applied.
package mapview

import (
	"errors"
	"sort"
	"sync"

	"ecomap/internal/geopoint"
	"ecomap/internal/metrics"
	"ecomap/internal/shared/geo"

	"github.com/google/uuid"
)

const (
	defaultTreeColor = "#10B981"
	orgMarkerClass   = "custom-org-marker"
)

var ErrUnknownStyle = errors.New("unknown map style")

// MarkerHandle owns one rendered marker bound to one point id.
type MarkerHandle struct {
	anchor string
	id     string
	kind   geopoint.Kind

	mu    sync.RWMutex
	point geopoint.GeoPoint
}

func (h *MarkerHandle) Anchor() string { return h.anchor }

func (h *MarkerHandle) PointID() string { return h.id }

func (h *MarkerHandle) Kind() geopoint.Kind { return h.kind }

// Point is the record from the latest snapshot containing this id.
func (h *MarkerHandle) Point() geopoint.GeoPoint {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.point
}

func (h *MarkerHandle) setPoint(p geopoint.GeoPoint) {
	h.mu.Lock()
	h.point = p
	h.mu.Unlock()
}

type Options struct {
	Center    geo.LngLat
	Zoom      float64
	Styles    map[Style]string
	Style     Style
	TreeColor string
	Metrics   *metrics.Metrics
}

type Reconciler struct {
	opts      Options
	selection *Selection

	// reconcileMu serializes surface work; mu guards the fields below.
	reconcileMu sync.Mutex

	mu       sync.Mutex
	surface  Surface
	style    Style
	latest   map[geopoint.Kind][]geopoint.GeoPoint
	gen      map[geopoint.Kind]uint64
	live     map[geopoint.Kind]map[string]*MarkerHandle
	byAnchor map[string]*MarkerHandle
}

func NewReconciler(opts Options) *Reconciler {
	if opts.Styles == nil {
		opts.Styles = StyleURLs("")
	}
	if opts.Style == "" {
		opts.Style = StyleStreet
	}
	if opts.TreeColor == "" {
		opts.TreeColor = defaultTreeColor
	}
	r := &Reconciler{
		opts:      opts,
		selection: &Selection{},
		style:     opts.Style,
		latest:    map[geopoint.Kind][]geopoint.GeoPoint{},
		gen:       map[geopoint.Kind]uint64{},
		live:      map[geopoint.Kind]map[string]*MarkerHandle{},
		byAnchor:  map[string]*MarkerHandle{},
	}
	for _, k := range geopoint.Kinds {
		r.live[k] = map[string]*MarkerHandle{}
	}
	return r
}

// Mount initializes the surface and applies buffered snapshots. Mounting an
// already mounted reconciler does nothing.
func (r *Reconciler) Mount(s Surface) error {
	r.reconcileMu.Lock()
	r.mu.Lock()
	if r.surface != nil {
		r.mu.Unlock()
		r.reconcileMu.Unlock()
		return nil
	}
	camera := Camera{Center: r.opts.Center, Zoom: r.opts.Zoom, StyleURL: r.opts.Styles[r.style]}
	r.mu.Unlock()

	if err := s.Init(camera); err != nil {
		r.reconcileMu.Unlock()
		return err
	}

	r.mu.Lock()
	r.surface = s
	kinds := make([]geopoint.Kind, 0, len(r.latest))
	for _, k := range geopoint.Kinds {
		if _, ok := r.latest[k]; ok {
			kinds = append(kinds, k)
		}
	}
	r.mu.Unlock()
	r.reconcileMu.Unlock()

	var errs []error
	for _, k := range kinds {
		if err := r.reconcile(k); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (r *Reconciler) Mounted() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.surface != nil
}

// Unmount destroys every live marker and releases the surface. Snapshots
// are kept so a later Mount renders them again.
func (r *Reconciler) Unmount() error {
	r.reconcileMu.Lock()
	defer r.reconcileMu.Unlock()

	r.mu.Lock()
	surface := r.surface
	r.surface = nil
	var handles []*MarkerHandle
	for _, k := range geopoint.Kinds {
		for _, h := range r.live[k] {
			handles = append(handles, h)
		}
		r.live[k] = map[string]*MarkerHandle{}
	}
	r.byAnchor = map[string]*MarkerHandle{}
	r.mu.Unlock()

	r.selection.Clear()
	if surface == nil {
		return nil
	}

	var errs []error
	for _, h := range handles {
		if err := surface.DestroyMarker(h.anchor); err != nil {
			errs = append(errs, err)
			continue
		}
		r.opts.Metrics.MarkerOp(string(h.Kind()), "destroy")
	}
	for _, k := range geopoint.Kinds {
		r.opts.Metrics.MarkersLive(string(k), 0)
	}
	return errors.Join(errs...)
}

// SetSnapshot replaces the authoritative point list for kind. Duplicate ids
// keep their last occurrence.
func (r *Reconciler) SetSnapshot(kind geopoint.Kind, points []geopoint.GeoPoint) error {
	snapshot := dedupe(kind, points)

	r.mu.Lock()
	r.latest[kind] = snapshot
	r.gen[kind]++
	if _, ok := r.live[kind]; !ok {
		r.live[kind] = map[string]*MarkerHandle{}
	}
	r.mu.Unlock()

	return r.reconcile(kind)
}

func dedupe(kind geopoint.Kind, points []geopoint.GeoPoint) []geopoint.GeoPoint {
	index := make(map[string]int, len(points))
	out := make([]geopoint.GeoPoint, 0, len(points))
	for _, p := range points {
		if p.ID == "" {
			continue
		}
		p.Kind = kind
		if i, ok := index[p.ID]; ok {
			out[i] = p
			continue
		}
		index[p.ID] = len(out)
		out = append(out, p)
	}
	return out
}

func (r *Reconciler) superseded(kind geopoint.Kind, gen uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.gen[kind] != gen || r.surface == nil
}

// reconcile diffs the live markers of kind against the latest snapshot. If
// a newer snapshot arrives midway it stops; the caller that set the newer
// snapshot reconciles next.
func (r *Reconciler) reconcile(kind geopoint.Kind) error {
	r.reconcileMu.Lock()
	defer r.reconcileMu.Unlock()

	r.mu.Lock()
	surface := r.surface
	if surface == nil {
		r.mu.Unlock()
		return nil
	}
	gen := r.gen[kind]
	target := r.latest[kind]
	current := make(map[string]*MarkerHandle, len(r.live[kind]))
	for id, h := range r.live[kind] {
		current[id] = h
	}
	r.mu.Unlock()

	wanted := make(map[string]struct{}, len(target))
	for _, p := range target {
		wanted[p.ID] = struct{}{}
	}

	var errs []error
	for _, id := range sortedIDs(current) {
		if _, keep := wanted[id]; keep {
			continue
		}
		if r.superseded(kind, gen) {
			return errors.Join(errs...)
		}
		h := current[id]
		if err := surface.DestroyMarker(h.anchor); err != nil {
			errs = append(errs, err)
			continue
		}
		r.mu.Lock()
		delete(r.live[kind], id)
		delete(r.byAnchor, h.anchor)
		r.mu.Unlock()
		r.selection.clearIf(id)
		r.opts.Metrics.MarkerOp(string(kind), "destroy")
	}

	for _, p := range target {
		if r.superseded(kind, gen) {
			return errors.Join(errs...)
		}
		if h, ok := current[p.ID]; ok {
			if h.Point().LngLat() != p.LngLat() {
				if err := surface.RepositionMarker(h.anchor, p.LngLat()); err != nil {
					errs = append(errs, err)
					continue
				}
				r.opts.Metrics.MarkerOp(string(kind), "reposition")
			}
			h.setPoint(p)
			continue
		}

		h := &MarkerHandle{anchor: uuid.NewString(), id: p.ID, kind: kind, point: p}
		if err := surface.CreateMarker(r.markerFor(h)); err != nil {
			errs = append(errs, err)
			continue
		}
		r.mu.Lock()
		r.live[kind][p.ID] = h
		r.byAnchor[h.anchor] = h
		r.mu.Unlock()
		r.opts.Metrics.MarkerOp(string(kind), "create")
	}

	r.mu.Lock()
	n := len(r.live[kind])
	r.mu.Unlock()
	r.opts.Metrics.MarkersLive(string(kind), n)
	return errors.Join(errs...)
}

func (r *Reconciler) markerFor(h *MarkerHandle) Marker {
	p := h.Point()
	m := Marker{
		Anchor:  h.anchor,
		PointID: h.id,
		Kind:    h.kind,
		At:      p.LngLat(),
	}
	switch h.kind {
	case geopoint.KindOrganization:
		m.Interactive = true
		m.ClassName = orgMarkerClass
		m.Placement = "bottom"
		if org, ok := p.Organization(); ok {
			m.Title = org.Name
		}
	case geopoint.KindTree:
		m.Color = r.opts.TreeColor
	}
	return m
}

func sortedIDs(m map[string]*MarkerHandle) []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Markers lists the live markers of kind ordered by point id.
func (r *Reconciler) Markers(kind geopoint.Kind) []*MarkerHandle {
	r.mu.Lock()
	defer r.mu.Unlock()
	live := r.live[kind]
	out := make([]*MarkerHandle, 0, len(live))
	for _, id := range sortedIDs(live) {
		out = append(out, live[id])
	}
	return out
}

func (r *Reconciler) Handle(kind geopoint.Kind, pointID string) (*MarkerHandle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.live[kind][pointID]
	return h, ok
}

// Snapshot returns the latest snapshot of kind, applied or buffered.
func (r *Reconciler) Snapshot(kind geopoint.Kind) []geopoint.GeoPoint {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]geopoint.GeoPoint(nil), r.latest[kind]...)
}

func (r *Reconciler) Style() Style {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.style
}

// SetStyle switches the base map style. Markers are left as they are.
func (r *Reconciler) SetStyle(style Style) error {
	url, ok := r.opts.Styles[style]
	if !ok {
		return ErrUnknownStyle
	}

	r.reconcileMu.Lock()
	defer r.reconcileMu.Unlock()

	r.mu.Lock()
	if r.style == style {
		r.mu.Unlock()
		return nil
	}
	surface := r.surface
	r.mu.Unlock()

	if surface != nil {
		if err := surface.SetStyle(url); err != nil {
			return err
		}
	}
	r.mu.Lock()
	r.style = style
	r.mu.Unlock()
	return nil
}

func (r *Reconciler) ToggleStyle() (Style, error) {
	next := StyleSatellite
	if r.Style() == StyleSatellite {
		next = StyleStreet
	}
	if err := r.SetStyle(next); err != nil {
		return r.Style(), err
	}
	return next, nil
}

// Click handles a click on the surface. Clicking an organization marker
// selects it; clicking anything else, anchor "" included, clears the
// selection.
func (r *Reconciler) Click(anchor string) (string, bool) {
	r.mu.Lock()
	h, ok := r.byAnchor[anchor]
	r.mu.Unlock()

	if !ok || h.Kind() != geopoint.KindOrganization {
		r.selection.Clear()
		return "", false
	}
	r.selection.Select(h.PointID())
	return h.PointID(), true
}

func (r *Reconciler) Select(orgID string) bool {
	if _, ok := r.Handle(geopoint.KindOrganization, orgID); !ok {
		return false
	}
	r.selection.Select(orgID)
	return true
}

func (r *Reconciler) ClearSelection() {
	r.selection.Clear()
}

// Selected resolves the selection to the organization record of the latest
// snapshot.
func (r *Reconciler) Selected() (geopoint.Organization, bool) {
	id, ok := r.selection.Current()
	if !ok {
		return geopoint.Organization{}, false
	}
	h, ok := r.Handle(geopoint.KindOrganization, id)
	if !ok {
		return geopoint.Organization{}, false
	}
	return h.Point().Organization()
}
