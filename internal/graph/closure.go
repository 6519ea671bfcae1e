// ShareSync - Preprint Metadata Synchronization for SHARE
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sharesync

package graph

// Closure is the de-duplicated set of nodes reachable from a set of seeds.
type Closure struct {
	g         *Graph
	order     []Handle
	canonical map[Handle]Handle
}

// Closure walks the graph breadth-first from seeds. A node whose Key was
// already visited is not emitted again; references to it are redirected to
// the first node visited with that key.
func (g *Graph) Closure(seeds ...Handle) *Closure {
	c := &Closure{g: g, canonical: make(map[Handle]Handle)}
	seen := make(map[string]Handle)

	queue := append([]Handle(nil), seeds...)
	for len(queue) > 0 {
		h := queue[0]
		queue = queue[1:]
		if _, done := c.canonical[h]; done {
			continue
		}

		key := g.Key(h)
		if first, ok := seen[key]; ok {
			c.canonical[h] = first
			continue
		}
		seen[key] = h
		c.canonical[h] = h
		c.order = append(c.order, h)

		for r := range g.Related(h) {
			queue = append(queue, r)
		}
	}
	return c
}

// Graph returns the arena the closure was computed over.
func (c *Closure) Graph() *Graph {
	return c.g
}

// Nodes returns the canonical handles in visit order.
func (c *Closure) Nodes() []Handle {
	return append([]Handle(nil), c.order...)
}

// Len returns the number of distinct nodes.
func (c *Closure) Len() int {
	return len(c.order)
}

// Canonical returns the node emitted in place of h, and false when h was
// not reached.
func (c *Closure) Canonical(h Handle) (Handle, bool) {
	first, ok := c.canonical[h]
	return first, ok
}

// OfType returns the canonical handles whose type is typ.
func (c *Closure) OfType(typ string) []Handle {
	var out []Handle
	for _, h := range c.order {
		if c.g.Node(h).Type == typ {
			out = append(out, h)
		}
	}
	return out
}

// Serialize returns the "@graph" array: one record per distinct node, with
// every reference pointing at a canonical node.
func (c *Closure) Serialize() []map[string]any {
	resolve := func(h Handle) Handle {
		if first, ok := c.canonical[h]; ok {
			return first
		}
		return h
	}
	out := make([]map[string]any, 0, len(c.order))
	for _, h := range c.order {
		out = append(out, c.g.serialize(h, resolve))
	}
	return out
}
