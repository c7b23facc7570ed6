package tagscan

import (
	"cmp"
	"fmt"
	"slices"
)

// maxGraphDepth caps transitive walks. The reference graph may contain
// cycles; the visited set stops revisits and the cap bounds the work.
const maxGraphDepth = 100

// RefGraph is the subgraph reachable from a root tag within a depth bound.
type RefGraph struct {
	Root  TagID
	Nodes []RefGraphNode // root first, then by depth and id
	Edges []Edge         // edges between visited nodes
	Depth int            // deepest level reached, may be below the requested depth
}

// RefGraphNode is a tag in a RefGraph with its BFS distance from the root.
// Missing is set for referenced ids that have no tag in the index.
type RefGraphNode struct {
	ID      TagID
	Depth   int
	Missing bool
}

// TransitiveReferences walks outgoing references from id breadth-first up
// to maxDepth. A maxDepth of 0 returns only the root; negative is an error;
// values above 100 are capped. Returns nil, nil if id is not indexed.
func (q *QueryBuilder) TransitiveReferences(id TagID, maxDepth int) (*RefGraph, error) {
	return q.walk(id, maxDepth, "transitive references", q.index.ReferencesOf, func(e Edge) TagID { return e.To })
}

// TransitiveReferrers walks incoming references to id breadth-first. Depth
// rules match TransitiveReferences.
func (q *QueryBuilder) TransitiveReferrers(id TagID, maxDepth int) (*RefGraph, error) {
	return q.walk(id, maxDepth, "transitive referrers", q.index.ReferencedBy, func(e Edge) TagID { return e.From })
}

func (q *QueryBuilder) walk(root TagID, maxDepth int, op string, next func(TagID) []Edge, far func(Edge) TagID) (*RefGraph, error) {
	if maxDepth < 0 {
		return nil, fmt.Errorf("%s: maxDepth must be non-negative, got %d", op, maxDepth)
	}
	if maxDepth > maxGraphDepth {
		maxDepth = maxGraphDepth
	}
	if _, ok := q.index.Tag(root); !ok {
		return nil, nil
	}

	result := &RefGraph{Root: root, Edges: []Edge{}}
	visited := map[TagID]int{root: 0} // tag id -> depth
	type bfsEntry struct {
		id    TagID
		depth int
	}
	queue := []bfsEntry{{id: root, depth: 0}}
	expanded := make(map[TagID][]Edge)

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		// Don't explore further if at maxDepth
		if current.depth >= maxDepth {
			continue
		}

		edges := next(current.id)
		expanded[current.id] = edges
		for _, e := range edges {
			id := far(e)
			if _, seen := visited[id]; seen {
				continue
			}
			newDepth := current.depth + 1
			visited[id] = newDepth
			result.Depth = max(result.Depth, newDepth)
			queue = append(queue, bfsEntry{id: id, depth: newDepth})
		}
	}

	for id, depth := range visited {
		_, ok := q.index.Tag(id)
		result.Nodes = append(result.Nodes, RefGraphNode{ID: id, Depth: depth, Missing: !ok})
	}
	slices.SortFunc(result.Nodes, func(a, b RefGraphNode) int {
		return cmp.Or(cmp.Compare(a.Depth, b.Depth), cmp.Compare(a.ID, b.ID))
	})

	// Keep only edges whose far end was visited; edges out of the last
	// level were never expanded.
	for _, edges := range expanded {
		for _, e := range edges {
			if _, ok := visited[far(e)]; ok {
				result.Edges = append(result.Edges, e)
			}
		}
	}
	slices.SortFunc(result.Edges, func(a, b Edge) int {
		return cmp.Or(cmp.Compare(a.From, b.From), cmp.Compare(a.Offset, b.Offset), cmp.Compare(a.To, b.To))
	})
	return result, nil
}
