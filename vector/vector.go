package vector

import (
	"context"
	"fmt"
)

// BridgeField is the metadata key linking a vector hit to a graph node id.
const BridgeField = "graph_node_id"

// Result is one semantic match.
type Result struct {
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata"`
	// Score is a similarity in [0, 1]; higher is closer.
	Score float64 `json:"score"`
}

// GraphNodeID returns the graph node the hit refers to.
func (r Result) GraphNodeID() (string, bool) {
	switch v := r.Metadata[BridgeField].(type) {
	case string:
		return v, v != ""
	case nil:
		return "", false
	default:
		return fmt.Sprint(v), true
	}
}

// Searcher is the vector search boundary. Filters are equality matches on
// metadata; a nil map matches everything.
type Searcher interface {
	Search(ctx context.Context, text string, k int, filters map[string]any) ([]Result, error)
}

// Embedder turns text into an embedding. Embedding models live outside this
// module.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// EmbedderFunc adapts a function to Embedder.
type EmbedderFunc func(ctx context.Context, text string) ([]float32, error)

// Embed calls f.
func (f EmbedderFunc) Embed(ctx context.Context, text string) ([]float32, error) {
	return f(ctx, text)
}

// Indexer stores documents for later search. MemoryIndex and PGSearcher
// implement it.
type Indexer interface {
	Upsert(ctx context.Context, id, content string, metadata map[string]any) error
}
