// ShareSync - Preprint Metadata Synchronization for SHARE
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sharesync

package graph

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
)

// Key returns the structural identity of h.
//
// A node with an ID is keyed by type and ID. Any other node is keyed by its
// type, its non-empty scalar attributes and the keys of its relation
// targets, with list relations compared as sets. A relation that leads back
// to a node whose key is still being computed is keyed by handle, which
// keeps reference cycles finite at the price of treating such nodes by
// identity.
func (g *Graph) Key(h Handle) string {
	key, _ := g.key(h, map[Handle]bool{})
	return key
}

// Equal reports whether a and b are the same semantic node.
func (g *Graph) Equal(a, b Handle) bool {
	return a == b || g.Key(a) == g.Key(b)
}

// key returns the structural key of h and whether it is independent of
// handle numbers.
func (g *Graph) key(h Handle, onStack map[Handle]bool) (string, bool) {
	n := g.Node(h)
	if n.ID != "" {
		return n.Type + "#" + n.ID, true
	}
	if onStack[h] {
		return "&" + strconv.Itoa(int(h)), false
	}
	onStack[h] = true
	defer delete(onStack, h)

	stable := true
	var b strings.Builder
	b.WriteString(n.Type)
	b.WriteByte('{')

	for _, name := range sortedKeys(n.Attrs) {
		value := n.Attrs[name]
		if isEmpty(value) {
			continue
		}
		b.WriteString(name)
		b.WriteByte('=')
		b.WriteString(encodeScalar(value))
		b.WriteByte(';')
	}

	for _, name := range sortedKeys(n.Relations) {
		rel := n.Relations[name]
		targets := make([]string, 0, len(rel.Targets))
		for _, t := range rel.Targets {
			k, ok := g.key(t, onStack)
			stable = stable && ok
			targets = append(targets, k)
		}
		if rel.Many {
			sort.Strings(targets)
		}
		b.WriteString(name)
		b.WriteString("->[")
		b.WriteString(strings.Join(targets, ","))
		b.WriteString("];")
	}

	b.WriteByte('}')
	return b.String(), stable
}

func encodeScalar(value any) string {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Sprintf("%#v", value)
	}
	return string(data)
}
