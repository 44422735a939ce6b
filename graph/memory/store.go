package memory

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/zero-day-ai/kgraph/graph"
	"github.com/zero-day-ai/kgraph/schema"
)

type edge struct {
	from, to  string
	rel       schema.RelationType
	props     map[string]any
	createdAt time.Time
}

// Store is the embedded in-process graph backend.
//
// A single RWMutex guards the whole graph: writes are exclusive and reads
// are shared, so a reader never sees a node without its edges or an edge
// whose endpoint is gone. Nothing survives the process.
type Store struct {
	mu    sync.RWMutex
	gate  *graph.Gate
	now   func() time.Time
	nodes map[string]*graph.Node
	order []string
	out   map[string][]*edge
	in    map[string][]*edge
	edges int
}

// Option configures a Store.
type Option func(*options)

type options struct {
	mode   graph.ValidationMode
	logger *slog.Logger
	now    func() time.Time
}

// WithMode sets the validation mode. Default ModeWarn.
func WithMode(mode graph.ValidationMode) Option {
	return func(o *options) { o.mode = mode }
}

// WithLogger sets the logger. Default slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithClock sets the clock used to stamp created_at.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

var _ graph.Store = (*Store)(nil)

// New creates an empty embedded store validating against s.
func New(s *schema.Schema, opts ...Option) *Store {
	o := options{mode: graph.ModeWarn, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return &Store{
		gate:  graph.NewGate(s, o.mode, o.logger.With("backend", "memory")),
		now:   o.now,
		nodes: make(map[string]*graph.Node),
		out:   make(map[string][]*edge),
		in:    make(map[string][]*edge),
	}
}

// Mode returns the store's validation mode.
func (s *Store) Mode() graph.ValidationMode { return s.gate.Mode() }

// AddNode validates and stores a node, overwriting any node with the same id.
// An overwrite replaces the property map but keeps the original creation time
// and the node's edges.
func (s *Store) AddNode(_ context.Context, id string, t schema.NodeType, props map[string]any) (bool, error) {
	if err := s.gate.CheckNode("AddNode", id, t, props); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	createdAt := s.now().UTC()
	if existing, ok := s.nodes[id]; ok {
		createdAt = existing.CreatedAt
	} else {
		s.order = append(s.order, id)
	}
	s.nodes[id] = &graph.Node{
		ID:         id,
		Type:       t,
		Properties: graph.StampProps(props, t, createdAt),
		CreatedAt:  createdAt,
	}
	return true, nil
}

// AddRelationship adds a directed edge. Adding the same (from, rel, to) edge
// again replaces its properties; edges of other types between the same pair
// are kept alongside.
func (s *Store) AddRelationship(_ context.Context, fromID, toID string, rel schema.RelationType, props map[string]any) (bool, error) {
	const op = "AddRelationship"

	s.mu.Lock()
	defer s.mu.Unlock()

	from, ok := s.nodes[fromID]
	if !ok {
		return false, s.gate.MissingEndpoint(op, fromID, toID, fromID, rel)
	}
	to, ok := s.nodes[toID]
	if !ok {
		return false, s.gate.MissingEndpoint(op, fromID, toID, toID, rel)
	}
	if err := s.gate.CheckRelationship(op, from, to, rel); err != nil {
		return false, err
	}

	now := s.now().UTC()
	for _, e := range s.out[fromID] {
		if e.to == toID && e.rel == rel {
			e.props = graph.CopyProps(props)
			e.props[graph.PropCreatedAt] = e.createdAt
			return true, nil
		}
	}

	e := &edge{from: fromID, to: toID, rel: rel, props: graph.CopyProps(props), createdAt: now}
	e.props[graph.PropCreatedAt] = now
	s.out[fromID] = append(s.out[fromID], e)
	s.in[toID] = append(s.in[toID], e)
	s.edges++
	return true, nil
}

// GetNode returns a copy of the node, or nil.
func (s *Store) GetNode(_ context.Context, id string) (*graph.Node, error) {
	return s.Node(id), nil
}

// GetNodesBatch returns copies of the existing nodes among ids.
func (s *Store) GetNodesBatch(_ context.Context, ids []string, t schema.NodeType) (map[string]*graph.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]*graph.Node, len(ids))
	for _, id := range ids {
		n, ok := s.nodes[id]
		if !ok || (t != "" && n.Type != t) {
			continue
		}
		out[id] = n.Clone()
	}
	return out, nil
}

// GetNeighbors lists the edges of id. Outgoing edges come first, each group
// in insertion order.
func (s *Store) GetNeighbors(_ context.Context, id string, rel schema.RelationType, dir graph.Direction) ([]graph.Neighbor, error) {
	return s.Neighbors(id, rel, dir), nil
}

// GetNeighborsBatch lists the edges of every id. Ids without matching edges
// are absent from the result.
func (s *Store) GetNeighborsBatch(_ context.Context, ids []string, opts graph.NeighborOptions) (map[string][]graph.Neighbor, error) {
	if opts.Direction == "" {
		opts.Direction = graph.Outgoing
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string][]graph.Neighbor, len(ids))
	for _, id := range ids {
		if nbs := s.neighborsLocked(id, opts); len(nbs) > 0 {
			out[id] = nbs
		}
	}
	return out, nil
}

// Traverse returns the nodes within depth hops of startID in BFS order.
func (s *Store) Traverse(ctx context.Context, startID string, rels []schema.RelationType, depth int, dir graph.Direction) ([]*graph.Node, error) {
	reached, err := s.walk(ctx, startID, rels, depth, dir)
	if err != nil {
		return nil, err
	}
	out := make([]*graph.Node, len(reached))
	for i, r := range reached {
		out[i] = r.Node
	}
	return out, nil
}

// FindPath returns a shortest path along outgoing edges of any type.
func (s *Store) FindPath(ctx context.Context, fromID, toID string, maxDepth int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.nodes[fromID]; !ok {
		return nil, nil
	}
	if _, ok := s.nodes[toID]; !ok {
		return nil, nil
	}
	return graph.ShortestPath(ctx, s.expandLocked(graph.NeighborOptions{Direction: graph.Outgoing}), fromID, toID, maxDepth)
}

// Stats computes graph statistics. MaxDepth runs a BFS from every node, so
// the cost grows with N*(N+E).
func (s *Store) Stats(ctx context.Context) (*graph.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := &graph.Stats{
		TotalNodes:          len(s.nodes),
		TotalRelationships:  s.edges,
		NodesByType:         make(map[string]int),
		RelationshipsByType: make(map[string]int),
	}
	for _, n := range s.nodes {
		st.NodesByType[n.Type.String()]++
	}
	for _, es := range s.out {
		for _, e := range es {
			st.RelationshipsByType[e.rel.String()]++
		}
	}
	if st.TotalNodes > 0 {
		st.AvgDegree = 2 * float64(st.TotalRelationships) / float64(st.TotalNodes)
	}

	expand := s.expandLocked(graph.NeighborOptions{Direction: graph.Outgoing})
	for _, id := range s.order {
		visits, err := graph.BFS(ctx, expand, id, len(s.nodes))
		if err != nil {
			return nil, err
		}
		for _, v := range visits {
			if v.Depth > st.MaxDepth {
				st.MaxDepth = v.Depth
			}
		}
	}
	return st, nil
}

// DeleteNode removes the node and every edge touching it.
func (s *Store) DeleteNode(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.nodes[id]; !ok {
		return false, nil
	}

	for _, e := range s.out[id] {
		s.in[e.to] = removeEdge(s.in[e.to], e)
		s.edges--
	}
	// Self loops left s.in[id] in the loop above.
	for _, e := range s.in[id] {
		s.out[e.from] = removeEdge(s.out[e.from], e)
		s.edges--
	}
	delete(s.out, id)
	delete(s.in, id)
	delete(s.nodes, id)

	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true, nil
}

// Clear removes everything.
func (s *Store) Clear(_ context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nodes = make(map[string]*graph.Node)
	s.order = nil
	s.out = make(map[string][]*edge)
	s.in = make(map[string][]*edge)
	s.edges = 0
	return true, nil
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// Close is a no-op; the graph lives as long as the Store value.
func (s *Store) Close(context.Context) error { return nil }

func removeEdge(es []*edge, target *edge) []*edge {
	for i, e := range es {
		if e == target {
			return append(es[:i], es[i+1:]...)
		}
	}
	return es
}

// neighborsLocked must be called with s.mu held.
func (s *Store) neighborsLocked(id string, opts graph.NeighborOptions) []graph.Neighbor {
	var out []graph.Neighbor
	if opts.Direction.Follows(graph.Outgoing) {
		for _, e := range s.out[id] {
			if opts.MatchRel(e.rel) && opts.MatchTarget(s.nodes[e.to].Type) {
				out = append(out, graph.Neighbor{ID: e.to, RelType: e.rel, Direction: graph.Outgoing, Properties: graph.CopyProps(e.props)})
			}
		}
	}
	if opts.Direction.Follows(graph.Incoming) {
		for _, e := range s.in[id] {
			if opts.MatchRel(e.rel) && opts.MatchTarget(s.nodes[e.from].Type) {
				out = append(out, graph.Neighbor{ID: e.from, RelType: e.rel, Direction: graph.Incoming, Properties: graph.CopyProps(e.props)})
			}
		}
	}
	return out
}

// expandLocked adapts neighborsLocked to graph.BFS. s.mu must stay held for
// as long as the returned function is used.
func (s *Store) expandLocked(opts graph.NeighborOptions) graph.ExpandFunc {
	return func(_ context.Context, frontier []string) (map[string][]graph.Neighbor, error) {
		out := make(map[string][]graph.Neighbor, len(frontier))
		for _, id := range frontier {
			out[id] = s.neighborsLocked(id, opts)
		}
		return out, nil
	}
}

func (s *Store) walk(ctx context.Context, startID string, rels []schema.RelationType, depth int, dir graph.Direction) ([]graph.Reached, error) {
	if dir == "" {
		dir = graph.Outgoing
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.nodes[startID]; !ok {
		return nil, nil
	}
	visits, err := graph.BFS(ctx, s.expandLocked(graph.NeighborOptions{RelTypes: rels, Direction: dir}), startID, depth)
	if err != nil {
		return nil, err
	}
	out := make([]graph.Reached, 0, len(visits))
	for _, v := range visits {
		out = append(out, graph.Reached{Node: s.nodes[v.ID].Clone(), Depth: v.Depth})
	}
	return out, nil
}
