package mutation

import "testing"

func TestRelationSetIsIdempotent(t *testing.T) {
	r := NewRelation("post-1", "u1", "", "u2")
	r.Set("u1", true)
	r.Set("u3", true)
	r.Set("u3", true)
	if r.Count() != 3 {
		t.Fatalf("expected 3 members, got %d", r.Count())
	}
	r.Set("u2", false)
	r.Set("u2", false)
	if r.Has("u2") || r.Count() != 2 {
		t.Fatalf("unexpected members: %v", r.Members())
	}
}

func TestRelationViewActiveMatchesMembership(t *testing.T) {
	r := NewRelation("org-1", "u1")
	if v := r.View("u1"); !v.IsActive || v.Count != 1 || v.SubjectID != "org-1" {
		t.Fatalf("unexpected view: %+v", v)
	}
	if v := r.View("u2"); v.IsActive {
		t.Fatalf("non-member must be inactive")
	}
	if v := r.View(""); v.IsActive {
		t.Fatalf("anonymous view must be inactive")
	}
}

func TestRelationCloneIsIndependent(t *testing.T) {
	r := NewRelation("post-1", "u1")
	c := r.Clone()
	c.Set("u2", true)
	if r.Has("u2") {
		t.Fatalf("clone must not share members")
	}
	var zero Relation
	zero.Set("u1", true)
	if !zero.Has("u1") {
		t.Fatalf("zero relation must accept members")
	}
}
