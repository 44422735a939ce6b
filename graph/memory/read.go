package memory

import (
	"context"

	"github.com/zero-day-ai/kgraph/graph"
	"github.com/zero-day-ai/kgraph/schema"
)

// The methods below are the read API used by the query interpreter. They do
// no I/O and take no context; each call holds the read lock for its duration.

// Node returns a copy of the node, or nil.
func (s *Store) Node(id string) *graph.Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nodes[id].Clone()
}

// Nodes returns copies of all nodes of type t in insertion order. An empty t
// returns every node.
func (s *Store) Nodes(t schema.NodeType) []*graph.Node {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*graph.Node, 0, len(s.order))
	for _, id := range s.order {
		n := s.nodes[id]
		if t == "" || n.Type == t {
			out = append(out, n.Clone())
		}
	}
	return out
}

// Neighbors lists the edges of id. An empty rel matches every type.
func (s *Store) Neighbors(id string, rel schema.RelationType, dir graph.Direction) []graph.Neighbor {
	opts := graph.NeighborOptions{Direction: dir}
	if opts.Direction == "" {
		opts.Direction = graph.Outgoing
	}
	if rel != "" {
		opts.RelTypes = []schema.RelationType{rel}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.neighborsLocked(id, opts)
}

// Walk is Traverse with the hop distance of each node.
func (s *Store) Walk(startID string, rels []schema.RelationType, depth int, dir graph.Direction) []graph.Reached {
	reached, _ := s.walk(context.Background(), startID, rels, depth, dir)
	return reached
}

// Path is FindPath without a context.
func (s *Store) Path(fromID, toID string, maxDepth int) []string {
	path, _ := s.FindPath(context.Background(), fromID, toID, maxDepth)
	return path
}
