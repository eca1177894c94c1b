package mutation

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusCommitted  Status = "committed"
	StatusRolledBack Status = "rolled_back"
)

// Ticket records one optimistic flip of a relation until the backend
// confirms or rejects it.
type Ticket struct {
	ID              string
	Relation        string
	SubjectID       string
	ActorID         string
	PreviousActive  bool
	RequestedActive bool
	CreatedAt       time.Time

	mu     sync.Mutex
	status Status
	err    error
	done   chan struct{}
}

func (t *Ticket) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// Err is the failure that rolled the ticket back, if any.
func (t *Ticket) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Done is closed once the ticket is committed or rolled back.
func (t *Ticket) Done() <-chan struct{} {
	return t.done
}

func (t *Ticket) Wait(ctx context.Context) (Status, error) {
	select {
	case <-t.done:
		return t.Status(), nil
	case <-ctx.Done():
		return t.Status(), ctx.Err()
	}
}

func (t *Ticket) finish(status Status, err error) {
	t.mu.Lock()
	t.status = status
	t.err = err
	t.mu.Unlock()
	close(t.done)
}

func (t *Ticket) MarshalJSON() ([]byte, error) {
	status := t.Status()
	var errText string
	if err := t.Err(); err != nil {
		errText = err.Error()
	}
	return json.Marshal(struct {
		ID              string    `json:"id"`
		Relation        string    `json:"relation"`
		SubjectID       string    `json:"subject_id"`
		ActorID         string    `json:"actor_id"`
		PreviousActive  bool      `json:"previous_active"`
		RequestedActive bool      `json:"requested_active"`
		Status          Status    `json:"status"`
		Error           string    `json:"error,omitempty"`
		CreatedAt       time.Time `json:"created_at"`
	}{t.ID, t.Relation, t.SubjectID, t.ActorID, t.PreviousActive, t.RequestedActive, status, errText, t.CreatedAt})
}
