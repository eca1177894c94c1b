// Package follow tracks which users follow each organization on the map.
// Relations are seeded from organization snapshots and flipped through the
// optimistic mutation engine.
package follow

import (
	"context"
	"errors"
	"sync"
	"time"

	"ecomap/internal/api"
	"ecomap/internal/geopoint"
	"ecomap/internal/metrics"
	"ecomap/internal/mutation"
	"ecomap/internal/notice"
	"ecomap/internal/session"
)

var ErrOrgNotFound = errors.New("organization not found")

// RelationSetter issues follow and unfollow requests.
type RelationSetter interface {
	SetRelation(ctx context.Context, kind api.RelationKind, subjectID string, active bool) error
}

type Options struct {
	Timeout time.Duration
	Notices notice.Sink
	Metrics *metrics.Metrics
}

type Store struct {
	engine *mutation.Engine

	mu        sync.RWMutex
	relations map[string]*mutation.Relation
}

func NewStore(backend RelationSetter, opts Options) *Store {
	s := &Store{relations: map[string]*mutation.Relation{}}
	s.engine = mutation.New(s, func(ctx context.Context, orgID string, active bool) error {
		return backend.SetRelation(ctx, api.RelationFollow, orgID, active)
	}, mutation.Options{
		Name:           string(api.RelationFollow),
		Timeout:        opts.Timeout,
		Notices:        opts.Notices,
		Metrics:        opts.Metrics,
		FailureMessage: "could not update follow, please try again",
	})
	return s
}

func (s *Store) Engine() *mutation.Engine { return s.engine }

// Sync reseeds follower sets from an organization snapshot. Organizations
// with a follow request in flight keep the requested state on top of the
// fetched followers. Other kinds are ignored, so Sync can be used directly
// as a snapshot hook.
func (s *Store) Sync(kind geopoint.Kind, points []geopoint.GeoPoint) {
	if kind != geopoint.KindOrganization {
		return
	}
	next := make(map[string]*mutation.Relation, len(points))
	for _, p := range points {
		org, ok := p.Organization()
		if !ok {
			continue
		}
		rel := mutation.NewRelation(p.ID, org.FollowerIDs()...)
		next[p.ID] = &rel
	}

	s.engine.Exclusive(func(pending func(string) (*mutation.Ticket, bool)) {
		for id, rel := range next {
			if t, ok := pending(id); ok {
				rel.Set(t.ActorID, t.RequestedActive)
			}
		}
		s.mu.Lock()
		s.relations = next
		s.mu.Unlock()
	})
}

func (s *Store) Active(orgID, actorID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rel, ok := s.relations[orgID]
	if !ok {
		return false, mutation.ErrUnknownSubject
	}
	return rel.Has(actorID), nil
}

func (s *Store) SetActive(orgID, actorID string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rel, ok := s.relations[orgID]
	if !ok {
		return mutation.ErrUnknownSubject
	}
	rel.Set(actorID, active)
	return nil
}

func (s *Store) View(orgID, actorID string) (mutation.View, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rel, ok := s.relations[orgID]
	if !ok {
		return mutation.View{}, false
	}
	return rel.View(actorID), true
}

// ToggleFollow flips the current user's follow of orgID and returns the
// optimistic state. accepted is false while an earlier request is pending.
func (s *Store) ToggleFollow(state session.State, orgID string) (view mutation.View, accepted bool, err error) {
	if err := state.CanMutate(); err != nil {
		return mutation.View{}, false, err
	}
	_, accepted, err = s.engine.Toggle(state.UserID, orgID)
	if errors.Is(err, mutation.ErrUnknownSubject) {
		return mutation.View{}, false, ErrOrgNotFound
	}
	if err != nil {
		return mutation.View{}, false, err
	}
	view, _ = s.View(orgID, state.UserID)
	return view, accepted, nil
}
