package graph

import (
	"fmt"
	"reflect"
	"time"

	"github.com/zero-day-ai/kgraph/schema"
)

// Property keys stamped onto every node by the stores.
const (
	PropCreatedAt = "created_at"
	PropType      = "type"
)

// Node is a typed entity in the knowledge graph.
type Node struct {
	// ID is the caller-supplied identifier. Stores never generate ids.
	ID string `json:"id"`

	// Type is the node type from the schema.
	Type schema.NodeType `json:"type"`

	// Properties holds the validated property map, including the
	// created_at and type keys added by the store.
	Properties map[string]any `json:"properties"`

	// CreatedAt is when the node was first added. Overwrites keep it.
	CreatedAt time.Time `json:"created_at"`
}

// Property returns a single property value.
func (n *Node) Property(key string) (any, bool) {
	if n == nil || n.Properties == nil {
		return nil, false
	}
	v, ok := n.Properties[key]
	return v, ok
}

// Record returns the node as a flat record: the properties plus "id".
// The returned map is a copy.
func (n *Node) Record() map[string]any {
	rec := make(map[string]any, len(n.Properties)+1)
	for k, v := range n.Properties {
		rec[k] = copyValue(v)
	}
	rec["id"] = n.ID
	if _, ok := rec[PropType]; !ok {
		rec[PropType] = n.Type.String()
	}
	return rec
}

// Clone returns a deep copy of the node. Nested lists and maps in the
// properties are copied too.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	c := *n
	c.Properties = CopyProps(n.Properties)
	return &c
}

// Relationship is a directed, typed edge between two existing nodes.
type Relationship struct {
	FromID     string              `json:"from_id"`
	ToID       string              `json:"to_id"`
	Type       schema.RelationType `json:"type"`
	Properties map[string]any      `json:"properties,omitempty"`
	CreatedAt  time.Time           `json:"created_at"`
}

// Neighbor is one edge seen from a node: the node on the other end, the edge
// type, the direction the edge runs relative to the source and its properties.
type Neighbor struct {
	ID         string              `json:"id"`
	RelType    schema.RelationType `json:"rel_type"`
	Direction  Direction           `json:"direction"`
	Properties map[string]any      `json:"properties,omitempty"`
}

// Reached is a node found by a traversal together with its hop distance.
type Reached struct {
	Node  *Node
	Depth int
}

// Direction selects which edges of a node are followed.
type Direction string

const (
	Outgoing Direction = "outgoing"
	Incoming Direction = "incoming"
	Both     Direction = "both"
)

// ParseDirection parses a direction name. The empty string means Outgoing.
func ParseDirection(s string) (Direction, error) {
	switch Direction(s) {
	case "", Outgoing:
		return Outgoing, nil
	case Incoming:
		return Incoming, nil
	case Both:
		return Both, nil
	default:
		return "", fmt.Errorf("invalid direction: %q", s)
	}
}

// Follows reports whether an edge running in edgeDir is followed by d.
func (d Direction) Follows(edgeDir Direction) bool {
	return d == Both || d == edgeDir
}

// NeighborOptions filters a batched neighbor lookup. Empty slices match everything.
type NeighborOptions struct {
	RelTypes    []schema.RelationType
	Direction   Direction
	TargetTypes []schema.NodeType
}

// MatchRel reports whether rel passes the relationship type filter.
func (o NeighborOptions) MatchRel(rel schema.RelationType) bool {
	if len(o.RelTypes) == 0 {
		return true
	}
	for _, r := range o.RelTypes {
		if r == rel {
			return true
		}
	}
	return false
}

// MatchTarget reports whether t passes the target type filter.
func (o NeighborOptions) MatchTarget(t schema.NodeType) bool {
	if len(o.TargetTypes) == 0 {
		return true
	}
	for _, tt := range o.TargetTypes {
		if tt == t {
			return true
		}
	}
	return false
}

// Stats summarizes the graph.
type Stats struct {
	TotalNodes          int            `json:"total_nodes"`
	TotalRelationships  int            `json:"total_relationships"`
	NodesByType         map[string]int `json:"nodes_by_type"`
	RelationshipsByType map[string]int `json:"relationships_by_type"`
	// AvgDegree is 2E/N: every edge counts once for each endpoint.
	AvgDegree float64 `json:"avg_degree"`
	// MaxDepth is the longest shortest path along outgoing edges.
	MaxDepth int `json:"max_depth"`
}

// CopyProps returns a deep copy of props: slices and maps nested in the
// values are copied, so the result shares no mutable state with props.
// A nil map yields an empty map.
func CopyProps(props map[string]any) map[string]any {
	out := make(map[string]any, len(props))
	for k, v := range props {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch tv := v.(type) {
	case nil, string, bool, int, int32, int64, float32, float64, time.Time:
		return v
	case []any:
		out := make([]any, len(tv))
		for i, e := range tv {
			out[i] = copyValue(e)
		}
		return out
	case map[string]any:
		return CopyProps(tv)
	case []string:
		return append([]string(nil), tv...)
	}
	return copyReflect(reflect.ValueOf(v)).Interface()
}

// copyReflect handles slice, array and map kinds not covered by copyValue.
// Anything else is returned as is.
func copyReflect(rv reflect.Value) reflect.Value {
	switch rv.Kind() {
	case reflect.Slice:
		if rv.IsNil() {
			return rv
		}
		out := reflect.MakeSlice(rv.Type(), rv.Len(), rv.Len())
		for i := 0; i < rv.Len(); i++ {
			out.Index(i).Set(copyElem(rv.Index(i)))
		}
		return out
	case reflect.Array:
		out := reflect.New(rv.Type()).Elem()
		for i := 0; i < rv.Len(); i++ {
			out.Index(i).Set(copyElem(rv.Index(i)))
		}
		return out
	case reflect.Map:
		if rv.IsNil() {
			return rv
		}
		out := reflect.MakeMapWithSize(rv.Type(), rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out.SetMapIndex(iter.Key(), copyElem(iter.Value()))
		}
		return out
	default:
		return rv
	}
}

// copyElem copies a container element, keeping its static type.
func copyElem(ev reflect.Value) reflect.Value {
	if ev.Kind() == reflect.Interface {
		if ev.IsNil() {
			return ev
		}
		c := reflect.ValueOf(copyValue(ev.Interface()))
		out := reflect.New(ev.Type()).Elem()
		out.Set(c)
		return out
	}
	return copyReflect(ev)
}

// StampProps copies props and adds the created_at and type keys.
func StampProps(props map[string]any, t schema.NodeType, createdAt time.Time) map[string]any {
	out := CopyProps(props)
	out[PropCreatedAt] = createdAt
	out[PropType] = t.String()
	return out
}
