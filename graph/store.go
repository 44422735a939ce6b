package graph

import (
	"context"
	"fmt"

	"github.com/zero-day-ai/kgraph/schema"
)

// ValidationMode decides what happens when a write fails validation.
type ValidationMode string

const (
	// ModeStrict rejects the write and returns an *Error.
	ModeStrict ValidationMode = "strict"
	// ModeWarn logs the problem and lets the write proceed where it can.
	ModeWarn ValidationMode = "warn"
)

// ParseValidationMode parses a mode name. The empty string means ModeWarn.
func ParseValidationMode(s string) (ValidationMode, error) {
	switch ValidationMode(s) {
	case "", ModeWarn:
		return ModeWarn, nil
	case ModeStrict:
		return ModeStrict, nil
	default:
		return "", fmt.Errorf("invalid validation mode: %q", s)
	}
}

// Store is the backend-agnostic graph contract. Every backend implements all
// of it; callers never branch on which backend they hold.
//
// Backend failures (network errors, an open circuit) are logged by the store
// and surface as a false or nil result with a nil error, so ingestion can
// carry on without the graph. Errors are reserved for strict-mode validation
// failures and malformed arguments.
type Store interface {
	// AddNode validates and stores a node. An existing node with the same id
	// is overwritten (embedded) or merged (external).
	AddNode(ctx context.Context, id string, t schema.NodeType, props map[string]any) (bool, error)

	// AddRelationship adds a directed edge between two existing nodes. It never
	// creates a missing endpoint.
	AddRelationship(ctx context.Context, fromID, toID string, rel schema.RelationType, props map[string]any) (bool, error)

	// GetNode returns the node or nil when it does not exist.
	GetNode(ctx context.Context, id string) (*Node, error)

	// GetNodesBatch returns the existing nodes among ids in one round trip.
	// A non-empty t restricts the result to that type.
	GetNodesBatch(ctx context.Context, ids []string, t schema.NodeType) (map[string]*Node, error)

	// GetNeighbors lists the edges of id in the given direction. An empty rel
	// matches every relationship type.
	GetNeighbors(ctx context.Context, id string, rel schema.RelationType, dir Direction) ([]Neighbor, error)

	// GetNeighborsBatch lists the edges of every id in one round trip.
	GetNeighborsBatch(ctx context.Context, ids []string, opts NeighborOptions) (map[string][]Neighbor, error)

	// Traverse returns the nodes within depth hops of startID, breadth first,
	// each at most once. The start node is not included.
	Traverse(ctx context.Context, startID string, rels []schema.RelationType, depth int, dir Direction) ([]*Node, error)

	// FindPath returns the node ids of a shortest outgoing path, or nil when
	// none exists within maxDepth hops.
	FindPath(ctx context.Context, fromID, toID string, maxDepth int) ([]string, error)

	Stats(ctx context.Context) (*Stats, error)

	// DeleteNode removes a node and every edge touching it.
	DeleteNode(ctx context.Context, id string) (bool, error)

	// Clear removes all nodes and relationships.
	Clear(ctx context.Context) (bool, error)

	// Close releases backend resources.
	Close(ctx context.Context) error
}
