// Package mutation applies user toggles (like a post, follow an
// organization) to local state before the backend answers, and rolls them
// back when it refuses.
//
// At most one request per subject is in flight. A toggle on a subject that
// already has a pending ticket is rejected without touching state or the
// network. Every ticket resolves within the engine timeout, so a subject can
// never stay locked.
package mutation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"ecomap/internal/metrics"
	"ecomap/internal/notice"

	"github.com/google/uuid"
)

const DefaultTimeout = 20 * time.Second

var (
	ErrNoActor        = errors.New("toggle requires an actor")
	ErrUnknownSubject = errors.New("unknown subject")
	ErrTimeout        = errors.New("toggle request timed out")
)

// Target holds the relation state the engine mutates. Implementations
// guard their own state; the engine serializes calls per subject.
type Target interface {
	Active(subjectID, actorID string) (bool, error)
	SetActive(subjectID, actorID string, active bool) error
}

// SendFunc issues the backend request: add when active is true, remove
// otherwise.
type SendFunc func(ctx context.Context, subjectID string, active bool) error

type Options struct {
	// Name labels tickets, notices and metrics ("like", "follow").
	Name    string
	Timeout time.Duration
	Notices notice.Sink
	Metrics *metrics.Metrics
	// FailureMessage is shown to the user when a toggle is rolled back.
	FailureMessage string
}

type Engine struct {
	target  Target
	send    SendFunc
	name    string
	timeout time.Duration
	notices notice.Sink
	metrics *metrics.Metrics
	failMsg string

	mu      sync.Mutex
	pending map[string]*Ticket
}

func New(target Target, send SendFunc, opts Options) *Engine {
	if opts.Name == "" {
		opts.Name = "relation"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Notices == nil {
		opts.Notices = notice.Log
	}
	if opts.FailureMessage == "" {
		opts.FailureMessage = fmt.Sprintf("could not update %s, please try again", opts.Name)
	}
	return &Engine{
		target:  target,
		send:    send,
		name:    opts.Name,
		timeout: opts.Timeout,
		notices: opts.Notices,
		metrics: opts.Metrics,
		failMsg: opts.FailureMessage,
		pending: map[string]*Ticket{},
	}
}

func (e *Engine) Name() string { return e.name }

// Toggle flips actorID's membership of subjectID. The new state is applied
// before Toggle returns and the backend request runs in the background.
//
// If a ticket is already pending for subjectID, Toggle returns that ticket
// with accepted=false and does nothing else.
func (e *Engine) Toggle(actorID, subjectID string) (t *Ticket, accepted bool, err error) {
	if actorID == "" {
		return nil, false, ErrNoActor
	}

	e.mu.Lock()
	if existing, ok := e.pending[subjectID]; ok {
		e.mu.Unlock()
		e.metrics.Toggle(e.name, "rejected")
		return existing, false, nil
	}

	current, err := e.target.Active(subjectID, actorID)
	if err != nil {
		e.mu.Unlock()
		return nil, false, err
	}
	requested := !current
	if err := e.target.SetActive(subjectID, actorID, requested); err != nil {
		e.mu.Unlock()
		return nil, false, err
	}

	t = &Ticket{
		ID:              uuid.NewString(),
		Relation:        e.name,
		SubjectID:       subjectID,
		ActorID:         actorID,
		PreviousActive:  current,
		RequestedActive: requested,
		CreatedAt:       time.Now(),
		status:          StatusPending,
		done:            make(chan struct{}),
	}
	e.pending[subjectID] = t
	e.mu.Unlock()

	e.metrics.PendingDelta(e.name, 1)
	go e.run(t)
	return t, true, nil
}

// Pending returns the in-flight ticket for subjectID, if any.
func (e *Engine) Pending(subjectID string) (*Ticket, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.pending[subjectID]
	return t, ok
}

// Exclusive runs fn while no toggle can start or resolve. Stores use it to
// replace their snapshot without losing optimistic state of pending tickets.
func (e *Engine) Exclusive(fn func(pending func(subjectID string) (*Ticket, bool))) {
	e.mu.Lock()
	defer e.mu.Unlock()
	fn(func(subjectID string) (*Ticket, bool) {
		t, ok := e.pending[subjectID]
		return t, ok
	})
}

func (e *Engine) run(t *Ticket) {
	ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
	defer cancel()

	result := make(chan error, 1)
	go func() {
		result <- e.send(ctx, t.SubjectID, t.RequestedActive)
	}()

	var err error
	select {
	case err = <-result:
	case <-ctx.Done():
		err = ErrTimeout
	}
	e.resolve(t, err)
}

// resolve never re-applies state on success: the local value is already
// what was requested and the response is only a confirmation.
func (e *Engine) resolve(t *Ticket, err error) {
	e.mu.Lock()
	if e.pending[t.SubjectID] == t {
		delete(e.pending, t.SubjectID)
	}
	if err != nil {
		if rbErr := e.target.SetActive(t.SubjectID, t.ActorID, t.PreviousActive); rbErr != nil && !errors.Is(rbErr, ErrUnknownSubject) {
			log.Printf("%s rollback for %s failed: %v", e.name, t.SubjectID, rbErr)
		}
	}
	e.mu.Unlock()

	e.metrics.PendingDelta(e.name, -1)
	if err != nil {
		t.finish(StatusRolledBack, err)
		e.metrics.Toggle(e.name, "rolled_back")
		e.notices.Notify(notice.Error(e.name, t.SubjectID, e.failMsg))
		return
	}
	t.finish(StatusCommitted, nil)
	e.metrics.Toggle(e.name, "committed")
}
