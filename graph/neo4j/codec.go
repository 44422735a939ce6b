package neo4j

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/zero-day-ai/kgraph/graph"
	"github.com/zero-day-ai/kgraph/schema"
)

// Neo4j properties cannot hold nested maps, so the full property map is kept
// as a JSON string in n.props. Top-level scalars are also copied onto the node
// so FindNodes and native Cypher can filter on them.

// reserved node property keys written by the store itself.
var reserved = map[string]struct{}{
	"id": {}, "type": {}, "props": {}, graph.PropCreatedAt: {},
}

func encodeProps(props map[string]any) (string, error) {
	out := make(map[string]any, len(props))
	for k, v := range props {
		if k == graph.PropCreatedAt {
			continue // kept in its own column
		}
		out[k] = v
	}
	b, err := json.Marshal(out)
	if err != nil {
		return "", fmt.Errorf("encoding properties: %w", err)
	}
	return string(b), nil
}

// decodeProps parses the JSON column. Integral numbers come back as int64,
// others as float64.
func decodeProps(v any) (map[string]any, error) {
	s, _ := v.(string)
	if s == "" {
		return map[string]any{}, nil
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decoding properties: %w", err)
	}
	for k, val := range raw {
		raw[k] = normalizeNumbers(val)
	}
	return raw, nil
}

func normalizeNumbers(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		f, _ := t.Float64()
		return f
	case []any:
		for i := range t {
			t[i] = normalizeNumbers(t[i])
		}
		return t
	case map[string]any:
		for k := range t {
			t[k] = normalizeNumbers(t[k])
		}
		return t
	}
	return v
}

// scalarFields returns the top-level properties Neo4j can store natively.
func scalarFields(props map[string]any) map[string]any {
	out := make(map[string]any)
	for k, v := range props {
		if _, skip := reserved[k]; skip || !isIdentifier(k) {
			continue
		}
		switch t := v.(type) {
		case string, bool, int, int8, int16, int32, int64, uint8, uint16, uint32, float32, float64:
			out[k] = t
		case time.Time:
			out[k] = t.UTC().Format(time.RFC3339Nano)
		}
	}
	return out
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t.UTC()
	case string:
		if parsed, err := time.Parse(time.RFC3339Nano, t); err == nil {
			return parsed.UTC()
		}
	}
	return time.Time{}
}

// decodeNode reads a row projected with BuildReturn("n", nodeFields).
func decodeNode(row Row) (*graph.Node, error) {
	id, _ := row["id"].(string)
	if id == "" {
		return nil, fmt.Errorf("row has no node id")
	}
	t, _ := row["type"].(string)
	props, err := decodeProps(row["props"])
	if err != nil {
		return nil, fmt.Errorf("node %s: %w", id, err)
	}
	created := parseTime(row["created_at"])
	props[graph.PropCreatedAt] = created
	props[graph.PropType] = t
	return &graph.Node{ID: id, Type: schema.NodeType(t), Properties: props, CreatedAt: created}, nil
}

func decodeNeighbor(row Row) (graph.Neighbor, error) {
	props, err := decodeProps(row["props"])
	if err != nil {
		return graph.Neighbor{}, err
	}
	if created := parseTime(row["created_at"]); !created.IsZero() {
		props[graph.PropCreatedAt] = created
	}
	id, _ := row["id"].(string)
	rel, _ := row["rel"].(string)
	dir, _ := row["direction"].(string)
	return graph.Neighbor{
		ID:         id,
		RelType:    schema.RelationType(rel),
		Direction:  graph.Direction(dir),
		Properties: props,
	}, nil
}

func toInt(v any) int {
	switch n := v.(type) {
	case int64:
		return int(n)
	case int:
		return n
	case float64:
		return int(n)
	}
	return 0
}
