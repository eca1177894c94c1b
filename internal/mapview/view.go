package mapview

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"

	"ecomap/internal/geopoint"
	"ecomap/internal/metrics"
	"ecomap/internal/notice"
	"ecomap/internal/shared/geo"

	"golang.org/x/sync/errgroup"
)

// PointSource fetches the authoritative point list of one kind.
type PointSource interface {
	FetchPoints(ctx context.Context, kind geopoint.Kind) ([]geopoint.GeoPoint, error)
}

// SnapshotHook observes every snapshot the view applies.
type SnapshotHook func(kind geopoint.Kind, points []geopoint.GeoPoint)

type ViewOptions struct {
	Notices notice.Sink
	Metrics *metrics.Metrics
	Hooks   []SnapshotHook
}

// View feeds fetched snapshots into a Reconciler. A fetch that completes
// after a newer fetch of the same kind has been applied is dropped.
type View struct {
	rec     *Reconciler
	source  PointSource
	notices notice.Sink
	metrics *metrics.Metrics
	hooks   []SnapshotHook

	mu      sync.Mutex
	issued  map[geopoint.Kind]uint64
	applied map[geopoint.Kind]uint64

	// hookMu is taken before mu; hooks only ever see the applied snapshot.
	hookMu sync.Mutex
}

func NewView(rec *Reconciler, source PointSource, opts ViewOptions) *View {
	if opts.Notices == nil {
		opts.Notices = notice.Log
	}
	return &View{
		rec:     rec,
		source:  source,
		notices: opts.Notices,
		metrics: opts.Metrics,
		hooks:   opts.Hooks,
		issued:  map[geopoint.Kind]uint64{},
		applied: map[geopoint.Kind]uint64{},
	}
}

func (v *View) Reconciler() *Reconciler { return v.rec }

// Load fetches every kind concurrently. A failed kind keeps its previous
// markers; the first error is returned after all kinds finish.
func (v *View) Load(ctx context.Context) error {
	var g errgroup.Group
	for _, kind := range geopoint.Kinds {
		kind := kind
		g.Go(func() error {
			return v.Refresh(ctx, kind)
		})
	}
	return g.Wait()
}

// Refresh fetches one kind and applies it unless a newer fetch already did.
func (v *View) Refresh(ctx context.Context, kind geopoint.Kind) error {
	v.mu.Lock()
	v.issued[kind]++
	seq := v.issued[kind]
	v.mu.Unlock()

	points, err := v.source.FetchPoints(ctx, kind)
	if err != nil {
		v.metrics.FetchFailed(string(kind))
		v.notices.Notify(notice.Error("map", string(kind), fmt.Sprintf("could not load %s markers", kind)))
		return fmt.Errorf("fetch %s: %w", kind, err)
	}

	v.mu.Lock()
	if seq < v.applied[kind] {
		v.mu.Unlock()
		log.Printf("dropping stale %s snapshot #%d", kind, seq)
		return nil
	}
	v.applied[kind] = seq
	// the reconciler keeps the order SetSnapshot is called in
	err = v.rec.SetSnapshot(kind, points)
	v.mu.Unlock()

	v.runHooks(kind, seq, points)
	if err != nil {
		return fmt.Errorf("reconcile %s: %w", kind, err)
	}
	return nil
}

// runHooks skips a snapshot that a newer refresh replaced while this one was
// waiting; the newer refresh runs the hooks itself.
func (v *View) runHooks(kind geopoint.Kind, seq uint64, points []geopoint.GeoPoint) {
	if len(v.hooks) == 0 {
		return
	}
	v.hookMu.Lock()
	defer v.hookMu.Unlock()

	v.mu.Lock()
	current := v.applied[kind] == seq
	v.mu.Unlock()
	if !current {
		return
	}
	for _, hook := range v.hooks {
		hook(kind, points)
	}
}

type NearbyPoint struct {
	Point      geopoint.GeoPoint `json:"point"`
	DistanceKm float64           `json:"distance_km"`
}

// Nearby lists points of the latest snapshots within radiusKm of lat/lng,
// closest first. An empty kinds list means every kind.
func (v *View) Nearby(lat, lng, radiusKm float64, kinds ...geopoint.Kind) ([]NearbyPoint, error) {
	if err := geo.Validate(lat, lng); err != nil {
		return nil, err
	}
	if radiusKm <= 0 {
		return nil, fmt.Errorf("radius must be positive")
	}
	if len(kinds) == 0 {
		kinds = geopoint.Kinds
	}
	var out []NearbyPoint
	for _, kind := range kinds {
		for _, p := range v.rec.Snapshot(kind) {
			d := geo.HaversineKm(lat, lng, p.Lat, p.Lng)
			if d <= radiusKm {
				out = append(out, NearbyPoint{Point: p, DistanceKm: d})
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].DistanceKm < out[j].DistanceKm
	})
	return out, nil
}
