package retrieval

import (
	"errors"
	"fmt"

	"github.com/zero-day-ai/kgraph/schema"
)

// Scoring defaults.
const (
	DefaultVectorWeight   = 0.6
	DefaultGraphWeight    = 0.4
	DefaultDecay          = 0.7
	DefaultRelationWeight = 0.4
	DefaultTopK           = 10
	DefaultMaxResults     = 20
)

// ErrInvalidQuery indicates a Query failed validation.
var ErrInvalidQuery = errors.New("invalid retrieval query")

// Query describes one hybrid retrieval. Build it with NewQuery and the With
// methods.
type Query struct {
	// Text is sent to the vector searcher.
	Text string `json:"text"`

	// TopK is the number of semantic matches used as seeds.
	TopK int `json:"top_k"`

	// MaxHops bounds graph expansion from the seeds. Zero disables it.
	MaxHops int `json:"max_hops"`

	// MaxResults caps the ranked output.
	MaxResults int `json:"max_results"`

	VectorWeight float64 `json:"vector_weight"`
	GraphWeight  float64 `json:"graph_weight"`

	// Decay is applied once per hop: a node h hops out scores
	// weight * Decay^h.
	Decay float64 `json:"decay"`

	Task Task `json:"task"`

	// RelationWeights overrides the per relationship weight table.
	RelationWeights map[schema.RelationType]float64 `json:"relation_weights,omitempty"`

	// DefaultWeight scores relationship types absent from RelationWeights.
	DefaultWeight float64 `json:"default_weight"`

	// NodeTypes restricts the returned nodes. Expansion still passes through
	// nodes of other types.
	NodeTypes []schema.NodeType `json:"node_types,omitempty"`

	// Filters are metadata equality filters handed to the vector searcher.
	Filters map[string]any `json:"filters,omitempty"`

	// Filter is an optional CEL expression over node, type, hops and score.
	// Candidates for which it is false are dropped.
	Filter string `json:"filter,omitempty"`
}

// NewQuery returns a general-task query for text with default scoring.
func NewQuery(text string) *Query {
	q := &Query{
		Text:          text,
		TopK:          DefaultTopK,
		MaxResults:    DefaultMaxResults,
		VectorWeight:  DefaultVectorWeight,
		GraphWeight:   DefaultGraphWeight,
		Decay:         DefaultDecay,
		DefaultWeight: DefaultRelationWeight,
	}
	return q.WithTask(TaskGeneral)
}

// WithTask applies the task's hop count and weight table.
func (q *Query) WithTask(t Task) *Query {
	q.Task = t
	q.MaxHops = MaxHops(t)
	q.RelationWeights = RelationWeights(t)
	return q
}

// WithTopK sets the number of seeds.
func (q *Query) WithTopK(k int) *Query {
	q.TopK = k
	return q
}

// WithMaxHops sets the expansion depth.
func (q *Query) WithMaxHops(hops int) *Query {
	q.MaxHops = hops
	return q
}

// WithMaxResults sets the output cap.
func (q *Query) WithMaxResults(n int) *Query {
	q.MaxResults = n
	return q
}

// WithWeights sets the vector and graph weights.
func (q *Query) WithWeights(vector, graph float64) *Query {
	q.VectorWeight = vector
	q.GraphWeight = graph
	return q
}

// WithDecay sets the per-hop decay.
func (q *Query) WithDecay(decay float64) *Query {
	q.Decay = decay
	return q
}

// WithRelationWeight overrides the weight of one relationship type.
func (q *Query) WithRelationWeight(rel schema.RelationType, w float64) *Query {
	if q.RelationWeights == nil {
		q.RelationWeights = make(map[schema.RelationType]float64)
	}
	q.RelationWeights[rel] = w
	return q
}

// WithNodeTypes restricts the returned node types.
func (q *Query) WithNodeTypes(types ...schema.NodeType) *Query {
	q.NodeTypes = types
	return q
}

// WithFilters sets the vector metadata filters.
func (q *Query) WithFilters(filters map[string]any) *Query {
	q.Filters = filters
	return q
}

// WithFilter sets a CEL post-filter, e.g. `type == "person" && hops <= 1`.
func (q *Query) WithFilter(expr string) *Query {
	q.Filter = expr
	return q
}

// Weight returns the weight of rel.
func (q *Query) Weight(rel schema.RelationType) float64 {
	if w, ok := q.RelationWeights[rel]; ok {
		return w
	}
	return q.DefaultWeight
}

// Validate checks the query. Errors wrap ErrInvalidQuery.
func (q *Query) Validate() error {
	if q.Text == "" {
		return fmt.Errorf("%w: text is required", ErrInvalidQuery)
	}
	if q.TopK <= 0 {
		return fmt.Errorf("%w: TopK must be greater than 0, got %d", ErrInvalidQuery, q.TopK)
	}
	if q.MaxHops < 0 {
		return fmt.Errorf("%w: MaxHops must be non-negative, got %d", ErrInvalidQuery, q.MaxHops)
	}
	if q.MaxResults <= 0 {
		return fmt.Errorf("%w: MaxResults must be greater than 0, got %d", ErrInvalidQuery, q.MaxResults)
	}
	if q.VectorWeight < 0 || q.GraphWeight < 0 {
		return fmt.Errorf("%w: weights must be non-negative", ErrInvalidQuery)
	}

	const epsilon = 0.0001
	sum := q.VectorWeight + q.GraphWeight
	if sum < 1.0-epsilon || sum > 1.0+epsilon {
		return fmt.Errorf("%w: VectorWeight + GraphWeight must equal 1.0, got %f", ErrInvalidQuery, sum)
	}

	if q.Decay <= 0 || q.Decay > 1 {
		return fmt.Errorf("%w: Decay must be in (0, 1], got %f", ErrInvalidQuery, q.Decay)
	}
	if q.DefaultWeight < 0 || q.DefaultWeight > 1 {
		return fmt.Errorf("%w: DefaultWeight must be in [0, 1], got %f", ErrInvalidQuery, q.DefaultWeight)
	}
	for rel, w := range q.RelationWeights {
		if w < 0 || w > 1 {
			return fmt.Errorf("%w: weight for %s must be in [0, 1], got %f", ErrInvalidQuery, rel, w)
		}
	}
	if q.Task != "" && !q.Task.IsValid() {
		return fmt.Errorf("%w: unknown task %q", ErrInvalidQuery, q.Task)
	}
	return nil
}
