// ShareSync - Preprint Metadata Synchronization for SHARE
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sharesync

package graph

import "testing"

func TestClosureDeduplicatesSharedNodes(t *testing.T) {
	t.Parallel()

	g := New()
	work := g.AddWithID("preprint", "p1", nil)
	tag := g.Add("tag", Fields{"name": "t1"})
	through := g.Add("throughtags", Fields{"creative_work": work, "tag": tag})
	g.Set(work, "tags", []Handle{through})

	// A second lookup of the same tag builds an equal node.
	lookup := g.Add("tag", Fields{"name": "t1"})

	c := g.Closure(work, through, lookup)
	if c.Len() != 3 {
		t.Fatalf("Len() = %d, want 3 (preprint, throughtags, tag)", c.Len())
	}
	// lookup is a seed, so the walk reaches it before through's tag.
	if got := c.OfType("tag"); len(got) != 1 || got[0] != lookup {
		t.Errorf("OfType(tag) = %v, want [%d]", got, lookup)
	}
	if first, ok := c.Canonical(tag); !ok || first != lookup {
		t.Errorf("Canonical(tag) = %d, %v; want %d", first, ok, lookup)
	}
	if !g.Equal(tag, lookup) {
		t.Error("tag and lookup should be structurally equal")
	}
	if _, ok := c.Canonical(g.Add("tag", Fields{"name": "unreached"})); ok {
		t.Error("unreached node should not have a canonical handle")
	}
}

func TestClosureRedirectsReferencesToCanonicalNode(t *testing.T) {
	t.Parallel()

	g := New()
	work := g.AddWithID("preprint", "p1", nil)

	// Two relations built independently for the same institution.
	mk := func() Handle {
		p := g.Add("institution", Fields{"name": "Center for Open Science"})
		return g.Add("agentworkrelation", Fields{"creative_work": work, "agent": p})
	}
	first := mk()
	second := mk()

	c := g.Closure(work, first, second)
	records := c.Serialize()
	if len(records) != 3 {
		t.Fatalf("records = %d, want 3", len(records))
	}

	ids := make(map[string]bool)
	for _, rec := range records {
		ids[rec["@id"].(string)] = true
	}
	for _, rec := range records {
		for key, value := range rec {
			ref, ok := value.(map[string]any)
			if !ok {
				continue
			}
			if !ids[ref["@id"].(string)] {
				t.Errorf("%s.%s references %v which is not in the document", rec["@type"], key, ref["@id"])
			}
		}
	}
}

func TestClosureTerminatesOnCycles(t *testing.T) {
	t.Parallel()

	g := New()
	person := g.AddWithID("person", "u1", nil)
	ident := g.Add("agentidentifier", Fields{"agent": person, "uri": "https://osf.io/u1/"})
	g.Append(person, "identifiers", ident)
	aff := g.Add("isaffiliatedwith", Fields{"subject": person, "related": g.AddWithID("institution", "COS", nil)})
	g.Append(person, "related_agents", aff)

	c := g.Closure(person)
	if c.Len() != 4 {
		t.Errorf("Len() = %d, want 4", c.Len())
	}
	if nodes := c.Nodes(); nodes[0] != person {
		t.Errorf("first visited = %d, want seed %d", nodes[0], person)
	}
}

func TestClosureIsDeterministic(t *testing.T) {
	t.Parallel()

	build := func() []map[string]any {
		g := New()
		work := g.AddWithID("preprint", "p1", Fields{"title": "T"})
		for _, name := range []string{"b", "a"} {
			tag := g.AddWithID("tag", name, Fields{"name": name})
			g.Append(work, "tags", g.Add("throughtags", Fields{"creative_work": work, "tag": tag}))
		}
		return g.Closure(work).Serialize()
	}

	first, second := build(), build()
	if len(first) != len(second) {
		t.Fatalf("lengths differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i]["@id"] != second[i]["@id"] {
			t.Errorf("record %d: @id %v vs %v", i, first[i]["@id"], second[i]["@id"])
		}
	}
}
