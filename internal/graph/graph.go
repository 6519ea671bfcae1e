// ShareSync - Preprint Metadata Synchronization for SHARE
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sharesync

// Package graph models a SHARE normalized-data document as a graph of typed
// nodes.
//
// Nodes live in an arena owned by a Graph and refer to each other through
// Handle values, so back-references (person <-> agentidentifier) never form
// pointer cycles. A Graph is built fresh for every formatting call and
// discarded after serialization.
//
//	g := graph.New()
//	work := g.AddWithID("preprint", "abc12", graph.Fields{"title": "On Things"})
//	tag := g.AddWithID("tag", "open-science", graph.Fields{"name": "open-science"})
//	g.Add("throughtags", graph.Fields{"creative_work": work, "tag": tag})
//	doc := g.Closure(work).Serialize()
package graph

import (
	"fmt"
	"iter"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// Handle identifies a node inside its Graph.
type Handle int

// Fields are the keyword arguments of a node. Handle values become single
// relations, []Handle values become list relations and everything else is
// a scalar attribute.
type Fields map[string]any

// Relation is a named edge from one node to one or more nodes.
type Relation struct {
	Targets []Handle
	// Many is true for list relations, which serialize as a list of
	// references even when they hold a single target.
	Many bool
}

// GraphNode is a typed record with scalar attributes and relations.
type GraphNode struct {
	// Type is the lower-cased SHARE type, e.g. "creativework" or "throughtags".
	Type string

	// ID is an optional stable identity. Nodes sharing a type and ID are the
	// same semantic node.
	ID string

	Attrs     map[string]any
	Relations map[string]Relation
}

// Graph is an arena of nodes.
type Graph struct {
	nodes []*GraphNode
	ids   map[Handle]string
}

// blankNamespace seeds the name-based UUIDs used for blank node ids.
var blankNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://share.osf.io/api/v2/normalizeddata/"))

// New returns an empty graph.
func New() *Graph {
	return &Graph{ids: make(map[Handle]string)}
}

// Add creates a node without a stable identity.
func (g *Graph) Add(typ string, fields Fields) Handle {
	return g.AddWithID(typ, "", fields)
}

// AddWithID creates a node whose identity is its type and id.
func (g *Graph) AddWithID(typ, id string, fields Fields) Handle {
	h := Handle(len(g.nodes))
	g.nodes = append(g.nodes, &GraphNode{
		Type:      strings.ToLower(typ),
		ID:        id,
		Attrs:     make(map[string]any),
		Relations: make(map[string]Relation),
	})
	for key, value := range fields {
		g.Set(h, key, value)
	}
	return h
}

// Len returns the number of nodes in the arena, reachable or not.
func (g *Graph) Len() int {
	return len(g.nodes)
}

// Node returns the node behind h. It panics if h does not belong to g.
func (g *Graph) Node(h Handle) *GraphNode {
	g.check(h)
	return g.nodes[h]
}

func (g *Graph) check(h Handle) {
	if h < 0 || int(h) >= len(g.nodes) {
		panic(fmt.Sprintf("graph: handle %d out of range (%d nodes)", h, len(g.nodes)))
	}
}

// Set assigns a field after construction using the same classification as
// Add. Setting a key replaces any previous attribute or relation of that
// name.
func (g *Graph) Set(h Handle, key string, value any) {
	n := g.Node(h)
	delete(n.Attrs, key)
	delete(n.Relations, key)

	switch v := value.(type) {
	case Handle:
		g.check(v)
		n.Relations[key] = Relation{Targets: []Handle{v}}
	case []Handle:
		for _, t := range v {
			g.check(t)
		}
		n.Relations[key] = Relation{Targets: append([]Handle(nil), v...), Many: true}
	default:
		n.Attrs[key] = value
	}
}

// Append adds targets to the list relation name, creating it if needed.
func (g *Graph) Append(h Handle, name string, targets ...Handle) {
	n := g.Node(h)
	for _, t := range targets {
		g.check(t)
	}
	delete(n.Attrs, name)
	rel := n.Relations[name]
	rel.Targets = append(rel.Targets, targets...)
	rel.Many = true
	n.Relations[name] = rel
}

// Related yields every node h refers to directly, flattening list
// relations. Relations are visited in name order, so the sequence is
// deterministic and can be ranged over any number of times.
func (g *Graph) Related(h Handle) iter.Seq[Handle] {
	n := g.Node(h)
	return func(yield func(Handle) bool) {
		for _, name := range sortedKeys(n.Relations) {
			for _, t := range n.Relations[name].Targets {
				if !yield(t) {
					return
				}
			}
		}
	}
}

// BlankID returns the "_:"-prefixed document id of h. Nodes with a stable
// structural key get a name-based UUID, so identical input produces
// identical documents; others get a random UUID. The id is fixed the first
// time it is requested.
func (g *Graph) BlankID(h Handle) string {
	g.check(h)
	if id, ok := g.ids[h]; ok {
		return id
	}
	var id string
	if key, stable := g.key(h, map[Handle]bool{}); stable {
		id = "_:" + uuid.NewSHA1(blankNamespace, []byte(key)).String()
	} else {
		id = "_:" + uuid.NewString()
	}
	g.ids[h] = id
	return id
}

// Ref returns the reference record {"@id", "@type"} for h.
func (g *Graph) Ref(h Handle) map[string]any {
	return map[string]any{"@id": g.BlankID(h), "@type": g.Node(h).Type}
}

// Serialize flattens h into a record. Attributes that are nil, empty
// strings or empty maps are omitted; relations become references, and a
// list relation lists each target once.
func (g *Graph) Serialize(h Handle) map[string]any {
	return g.serialize(h, func(t Handle) Handle { return t })
}

func (g *Graph) serialize(h Handle, resolve func(Handle) Handle) map[string]any {
	n := g.Node(h)
	rec := g.Ref(h)
	for key, value := range n.Attrs {
		if isEmpty(value) {
			continue
		}
		rec[key] = value
	}
	for name, rel := range n.Relations {
		if rel.Many {
			if len(rel.Targets) == 0 {
				continue
			}
			refs := make([]map[string]any, 0, len(rel.Targets))
			seen := make(map[Handle]bool, len(rel.Targets))
			for _, t := range rel.Targets {
				t = resolve(t)
				if seen[t] {
					continue
				}
				seen[t] = true
				refs = append(refs, g.Ref(t))
			}
			rec[name] = refs
			continue
		}
		rec[name] = g.Ref(resolve(rel.Targets[0]))
	}
	return rec
}

func isEmpty(value any) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return v == ""
	case map[string]any:
		return len(v) == 0
	case map[string]string:
		return len(v) == 0
	}
	return false
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
