package graph

import (
	"context"

	"github.com/zero-day-ai/kgraph/schema"
)

// ExpandFunc returns the edges of every id in frontier. Backends that pay per
// round trip answer the whole frontier with one request. The order of each
// neighbor list must be stable; it decides which path wins a tie.
type ExpandFunc func(ctx context.Context, frontier []string) (map[string][]Neighbor, error)

// Visit is one node reached by BFS.
type Visit struct {
	ID     string
	Depth  int
	Parent string
	Via    schema.RelationType
}

// BFS walks breadth first from start for at most depth hops. Each node is
// visited once, the first time it is discovered; the start node is not
// returned. Visits come back in discovery order.
func BFS(ctx context.Context, expand ExpandFunc, start string, depth int) ([]Visit, error) {
	visits, _, err := walk(ctx, expand, start, "", depth)
	return visits, err
}

// ShortestPath returns the ids along a shortest path from "from" to "to" by
// hop count, or nil when "to" is not reachable within maxDepth hops.
func ShortestPath(ctx context.Context, expand ExpandFunc, from, to string, maxDepth int) ([]string, error) {
	if from == to {
		return []string{from}, nil
	}
	visits, found, err := walk(ctx, expand, from, to, maxDepth)
	if err != nil || !found {
		return nil, err
	}

	parent := make(map[string]string, len(visits))
	for _, v := range visits {
		parent[v.ID] = v.Parent
	}
	var path []string
	for id := to; id != from; id = parent[id] {
		path = append(path, id)
	}
	path = append(path, from)
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path, nil
}

// walk runs the level-by-level search. When target is non-empty it stops as
// soon as target is discovered.
func walk(ctx context.Context, expand ExpandFunc, start, target string, depth int) ([]Visit, bool, error) {
	visited := map[string]struct{}{start: {}}
	frontier := []string{start}
	var visits []Visit

	for level := 1; level <= depth && len(frontier) > 0; level++ {
		if err := ctx.Err(); err != nil {
			return visits, false, err
		}
		edges, err := expand(ctx, frontier)
		if err != nil {
			return visits, false, err
		}

		var next []string
		for _, id := range frontier {
			for _, nb := range edges[id] {
				if _, seen := visited[nb.ID]; seen {
					continue
				}
				visited[nb.ID] = struct{}{}
				visits = append(visits, Visit{ID: nb.ID, Depth: level, Parent: id, Via: nb.RelType})
				if target != "" && nb.ID == target {
					return visits, true, nil
				}
				next = append(next, nb.ID)
			}
		}
		frontier = next
	}
	return visits, false, nil
}
