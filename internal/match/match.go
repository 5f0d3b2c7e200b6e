// Package match locates nodes inside a composition forest. All lookups are
// pure pre-order traversals; a miss is an empty result, never an error.
package match

import (
	"github.com/ivlev/compositor/internal/tree"
)

// ByID collects every node whose id is in ids, in document order. Matched
// nodes are recursed into as well: a node and its own descendant may both
// be targets of the same reference set.
func ByID(forest []*tree.Node, ids []string) []*tree.Node {
	if len(ids) == 0 {
		return nil
	}

	wanted := make(map[string]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}

	var found []*tree.Node
	var walk func(nodes []*tree.Node)
	walk = func(nodes []*tree.Node) {
		for _, n := range nodes {
			if wanted[n.ID] {
				found = append(found, n)
			}
			walk(n.Children)
		}
	}
	walk(forest)

	return found
}

// First returns the first node in document order with the given id, or nil.
func First(forest []*tree.Node, id string) *tree.Node {
	matches := ByID(forest, []string{id})
	if len(matches) == 0 {
		return nil
	}
	return matches[0]
}

// Query selects nodes by type and/or componentId. A zero field matches
// everything; when both are set, both must hold.
type Query struct {
	Type        tree.NodeType
	ComponentID string
}

// ByQuery collects every node satisfying the query, in document order.
func ByQuery(forest []*tree.Node, q Query) []*tree.Node {
	var found []*tree.Node
	tree.Walk(forest, func(n *tree.Node) {
		if q.Type != "" && n.Type != q.Type {
			return
		}
		if q.ComponentID != "" && n.ComponentID != q.ComponentID {
			return
		}
		found = append(found, n)
	})

	return found
}
