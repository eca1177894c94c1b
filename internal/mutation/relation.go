package mutation

import "sort"

// Relation is the membership set between actors and a single subject: the
// users who like a post, or who follow an organization.
type Relation struct {
	subjectID string
	members   map[string]struct{}
}

func NewRelation(subjectID string, members ...string) Relation {
	r := Relation{subjectID: subjectID, members: make(map[string]struct{}, len(members))}
	for _, m := range members {
		if m != "" {
			r.members[m] = struct{}{}
		}
	}
	return r
}

func (r Relation) SubjectID() string { return r.subjectID }

func (r Relation) Has(actorID string) bool {
	_, ok := r.members[actorID]
	return ok
}

// Set adds or removes actorID. Adding an existing member is a no-op, so
// membership never double counts.
func (r *Relation) Set(actorID string, present bool) {
	if r.members == nil {
		r.members = map[string]struct{}{}
	}
	if present {
		r.members[actorID] = struct{}{}
		return
	}
	delete(r.members, actorID)
}

func (r Relation) Count() int { return len(r.members) }

func (r Relation) Members() []string {
	out := make([]string, 0, len(r.members))
	for m := range r.members {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

func (r Relation) Clone() Relation {
	return NewRelation(r.subjectID, r.Members()...)
}

// View is the relation as seen by one actor. IsActive always equals
// Members containing ActorID.
type View struct {
	SubjectID string   `json:"subject_id"`
	ActorID   string   `json:"actor_id,omitempty"`
	IsActive  bool     `json:"is_active"`
	Members   []string `json:"members"`
	Count     int      `json:"count"`
}

func (r Relation) View(actorID string) View {
	return View{
		SubjectID: r.subjectID,
		ActorID:   actorID,
		IsActive:  actorID != "" && r.Has(actorID),
		Members:   r.Members(),
		Count:     r.Count(),
	}
}
