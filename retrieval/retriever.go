package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/google/cel-go/cel"

	"github.com/zero-day-ai/kgraph/graph"
	"github.com/zero-day-ai/kgraph/schema"
	"github.com/zero-day-ai/kgraph/vector"
)

// Result is one ranked node.
type Result struct {
	NodeID string      `json:"node_id"`
	Node   *graph.Node `json:"node,omitempty"`

	// Content is the vector hit text for seeds, otherwise a text property
	// of the node.
	Content string `json:"content,omitempty"`

	// Score is VectorWeight*VectorScore + GraphWeight*GraphScore.
	Score       float64 `json:"score"`
	VectorScore float64 `json:"vector_score"`
	GraphScore  float64 `json:"graph_score"`

	// Distance is the hop count from the seed in Path[0].
	Distance int `json:"distance"`

	// Path lists node ids from the seed to this node.
	Path []string `json:"path"`

	// Relations lists the relationship types along Path.
	Relations []schema.RelationType `json:"relations,omitempty"`

	// Seed is set for nodes returned by the vector searcher.
	Seed bool `json:"seed"`
}

// Retriever fuses vector search with multi-hop graph expansion.
type Retriever struct {
	store    graph.Store
	searcher vector.Searcher
	logger   *slog.Logger
	defaults func(*Query)
	filters  *filterCache
}

// Option configures a Retriever.
type Option func(*Retriever)

// WithLogger sets the logger. Default slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(r *Retriever) { r.logger = logger }
}

// WithDefaults registers a function applied to every query built with
// Retriever.NewQuery.
func WithDefaults(fn func(*Query)) Option {
	return func(r *Retriever) { r.defaults = fn }
}

// New creates a Retriever.
func New(store graph.Store, searcher vector.Searcher, opts ...Option) (*Retriever, error) {
	filters, err := newFilterCache()
	if err != nil {
		return nil, err
	}
	r := &Retriever{store: store, searcher: searcher, filters: filters}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r, nil
}

// NewQuery returns a query for text with the retriever's defaults applied.
func (r *Retriever) NewQuery(text string) *Query {
	q := NewQuery(text)
	if r.defaults != nil {
		r.defaults(q)
	}
	return q
}

// candidate tracks the best known way to reach a node.
type candidate struct {
	id        string
	hops      int
	semantic  float64
	graph     float64
	path      []string
	relations []schema.RelationType
	seed      bool
	// origin is the seed this candidate was reached from.
	origin  string
	content string
}

// Retrieve runs q and returns at most q.MaxResults results, best first.
//
// Each expansion hop issues one GetNeighborsBatch call for the whole
// frontier, following edges in both directions, and the result nodes are
// loaded with a single GetNodesBatch call.
func (r *Retriever) Retrieve(ctx context.Context, q *Query) ([]Result, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	var prg cel.Program
	if q.Filter != "" {
		var err error
		if prg, err = r.filters.program(q.Filter); err != nil {
			return nil, err
		}
	}

	hits, err := r.searcher.Search(ctx, q.Text, q.TopK, q.Filters)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	found := make(map[string]*candidate)
	var order []string
	var frontier []string
	for _, hit := range hits {
		id, ok := hit.GraphNodeID()
		if !ok {
			r.logger.Debug("vector hit without graph node id", "content_len", len(hit.Content))
			continue
		}
		score := clampScore(hit.Score)
		if c, ok := found[id]; ok {
			c.semantic = math.Max(c.semantic, score)
			continue
		}
		found[id] = &candidate{
			id:       id,
			semantic: score,
			path:     []string{id},
			seed:     true,
			origin:   id,
			content:  hit.Content,
		}
		order = append(order, id)
		frontier = append(frontier, id)
	}

	for h := 1; h <= q.MaxHops && len(frontier) > 0; h++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		edges, err := r.store.GetNeighborsBatch(ctx, frontier, graph.NeighborOptions{Direction: graph.Both})
		if err != nil {
			return nil, fmt.Errorf("expanding hop %d: %w", h, err)
		}

		decay := math.Pow(q.Decay, float64(h))
		var next []string
		for _, src := range frontier {
			from := found[src]
			for _, nb := range edges[src] {
				score := q.Weight(nb.RelType) * decay
				c, ok := found[nb.ID]
				switch {
				case !ok:
					c = &candidate{id: nb.ID, hops: h}
					c.extend(from, nb, score)
					found[nb.ID] = c
					order = append(order, nb.ID)
					next = append(next, nb.ID)
				case c.seed:
					if from.origin != c.id {
						c.graph = math.Max(c.graph, score)
					}
				case score > c.graph && h <= c.hops:
					c.extend(from, nb, score)
				}
			}
		}
		frontier = next
	}

	nodes, err := r.store.GetNodesBatch(ctx, order, "")
	if err != nil {
		return nil, fmt.Errorf("loading result nodes: %w", err)
	}

	results := make([]Result, 0, len(order))
	for _, id := range order {
		c := found[id]
		n := nodes[id]
		if n == nil && !c.seed {
			continue
		}
		if !typeAllowed(q.NodeTypes, n) {
			continue
		}

		res := Result{
			NodeID:      id,
			Node:        n,
			Content:     c.content,
			VectorScore: c.semantic,
			GraphScore:  c.graph,
			Score:       q.VectorWeight*c.semantic + q.GraphWeight*c.graph,
			Distance:    c.hops,
			Path:        c.path,
			Relations:   c.relations,
			Seed:        c.seed,
		}
		if res.Content == "" {
			res.Content = nodeText(n)
		}
		if prg != nil && !keep(prg, &res) {
			continue
		}
		results = append(results, res)
	}

	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Distance != b.Distance {
			return a.Distance < b.Distance
		}
		return a.NodeID < b.NodeID
	})
	if len(results) > q.MaxResults {
		results = results[:q.MaxResults]
	}

	r.logger.Debug("retrieval complete",
		"task", q.Task.String(),
		"seeds", len(hits),
		"candidates", len(order),
		"results", len(results))
	return results, nil
}

func (c *candidate) extend(from *candidate, nb graph.Neighbor, score float64) {
	c.graph = score
	c.origin = from.origin
	c.path = append(append([]string(nil), from.path...), nb.ID)
	c.relations = append(append([]schema.RelationType(nil), from.relations...), nb.RelType)
}

func typeAllowed(types []schema.NodeType, n *graph.Node) bool {
	if len(types) == 0 {
		return true
	}
	if n == nil {
		return false
	}
	for _, t := range types {
		if n.Type == t {
			return true
		}
	}
	return false
}

// textProps are tried in order when a node has no vector content.
var textProps = []string{"text", "content", "title", "subject", "name", "description"}

func nodeText(n *graph.Node) string {
	for _, key := range textProps {
		if v, ok := n.Property(key); ok {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}

// clampScore bounds a searcher score to [0, 1]. NaN counts as 0.
func clampScore(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
