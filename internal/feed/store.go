// Package feed holds the post feed. Likes go through the optimistic
// mutation engine; comments are appended once the backend accepts them.
package feed

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"ecomap/internal/api"
	"ecomap/internal/metrics"
	"ecomap/internal/mutation"
	"ecomap/internal/notice"
	"ecomap/internal/session"
)

var (
	ErrPostNotFound = errors.New("post not found")
	ErrEmptyComment = errors.New("comment content required")
)

// Backend is the part of the api client the feed needs.
type Backend interface {
	FetchFeed(ctx context.Context) ([]api.Post, error)
	SetRelation(ctx context.Context, kind api.RelationKind, subjectID string, active bool) error
	FetchComments(ctx context.Context, postID string) ([]api.Comment, error)
	SubmitComment(ctx context.Context, postID, content string) (api.Comment, error)
}

type Options struct {
	Timeout time.Duration
	Notices notice.Sink
	Metrics *metrics.Metrics
}

type Store struct {
	backend Backend
	notices notice.Sink
	metrics *metrics.Metrics
	likes   *mutation.Engine

	mu       sync.RWMutex
	posts    []*Post
	index    map[string]*Post
	comments map[string][]api.Comment
	loadedAt time.Time
}

func NewStore(backend Backend, opts Options) *Store {
	if opts.Notices == nil {
		opts.Notices = notice.Log
	}
	s := &Store{
		backend:  backend,
		notices:  opts.Notices,
		metrics:  opts.Metrics,
		index:    map[string]*Post{},
		comments: map[string][]api.Comment{},
	}
	s.likes = mutation.New(s, func(ctx context.Context, postID string, active bool) error {
		return backend.SetRelation(ctx, api.RelationLike, postID, active)
	}, mutation.Options{
		Name:           string(api.RelationLike),
		Timeout:        opts.Timeout,
		Notices:        opts.Notices,
		Metrics:        opts.Metrics,
		FailureMessage: "could not update like, please try again",
	})
	return s
}

func (s *Store) Likes() *mutation.Engine { return s.likes }

// Load replaces the feed with a fresh fetch. On failure the current feed is
// kept and the error is both returned and reported as a notice. Posts with
// a pending like keep their optimistic state.
func (s *Store) Load(ctx context.Context) error {
	fetched, err := s.backend.FetchFeed(ctx)
	if err != nil {
		s.metrics.FetchFailed("feed")
		s.notices.Notify(notice.Error("feed", "", "could not refresh the feed"))
		return fmt.Errorf("fetch feed: %w", err)
	}

	posts := make([]*Post, 0, len(fetched))
	index := make(map[string]*Post, len(fetched))
	for _, p := range fetched {
		if p.ID == "" {
			continue
		}
		if _, dup := index[p.ID]; dup {
			continue
		}
		post := fromAPI(p)
		posts = append(posts, post)
		index[post.ID] = post
	}

	s.likes.Exclusive(func(pending func(string) (*mutation.Ticket, bool)) {
		for _, post := range posts {
			if t, ok := pending(post.ID); ok {
				post.Like.Set(t.ActorID, t.RequestedActive)
			}
		}
		s.mu.Lock()
		s.posts = posts
		s.index = index
		s.loadedAt = time.Now()
		s.mu.Unlock()
	})
	return nil
}

// LoadedAt is the time of the last successful Load, zero before one.
func (s *Store) LoadedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadedAt
}

// Posts returns the feed in backend order as seen by actorID.
func (s *Store) Posts(actorID string) []PostView {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]PostView, 0, len(s.posts))
	for _, p := range s.posts {
		out = append(out, p.View(actorID))
	}
	return out
}

func (s *Store) Post(postID, actorID string) (PostView, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.index[postID]
	if !ok {
		return PostView{}, false
	}
	return p.View(actorID), true
}

// Active and SetActive let the like engine read and flip a post's like set.
func (s *Store) Active(postID, actorID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.index[postID]
	if !ok {
		return false, mutation.ErrUnknownSubject
	}
	return p.Like.Has(actorID), nil
}

func (s *Store) SetActive(postID, actorID string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.index[postID]
	if !ok {
		return mutation.ErrUnknownSubject
	}
	p.Like.Set(actorID, active)
	return nil
}

// LikeToggle flips the current user's like on postID. A toggle on a post
// that already has a request in flight returns accepted=false.
func (s *Store) LikeToggle(state session.State, postID string) (PostView, bool, error) {
	if err := state.CanMutate(); err != nil {
		return PostView{}, false, err
	}
	_, accepted, err := s.likes.Toggle(state.UserID, postID)
	if errors.Is(err, mutation.ErrUnknownSubject) {
		return PostView{}, false, ErrPostNotFound
	}
	if err != nil {
		return PostView{}, false, err
	}
	view, _ := s.Post(postID, state.UserID)
	return view, accepted, nil
}

// Comments fetches the comment list of postID and remembers it.
func (s *Store) Comments(ctx context.Context, postID string) ([]api.Comment, error) {
	comments, err := s.backend.FetchComments(ctx, postID)
	if err != nil {
		s.metrics.FetchFailed("comments")
		return nil, fmt.Errorf("fetch comments of %s: %w", postID, err)
	}
	s.mu.Lock()
	s.comments[postID] = append([]api.Comment(nil), comments...)
	s.mu.Unlock()
	return comments, nil
}

// SubmitComment posts a comment. Once the backend accepts it, the comment is
// appended to the remembered list and the post's count goes up by one.
func (s *Store) SubmitComment(ctx context.Context, state session.State, postID, content string) (api.Comment, error) {
	if err := state.CanMutate(); err != nil {
		return api.Comment{}, err
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return api.Comment{}, ErrEmptyComment
	}

	comment, err := s.backend.SubmitComment(ctx, postID, content)
	if err != nil {
		s.notices.Notify(notice.Error("comment", postID, "could not post your comment"))
		return api.Comment{}, fmt.Errorf("submit comment on %s: %w", postID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if list, ok := s.comments[postID]; ok {
		s.comments[postID] = append(list, comment)
	}
	if p, ok := s.index[postID]; ok {
		p.CommentCount++
	}
	return comment, nil
}
