// Package schema defines the node and relationship types of the knowledge graph
// and validates property maps against them.
//
// A Schema is built once at startup and never changes afterwards. It holds:
//
//   - the closed set of node types with their required and optional property names
//   - a property table mapping each property name to a type and bounds
//   - the legal (from type, relation, to type) triples
//   - the closed set of values accepted for the "status" property
//
// # Basic Usage
//
//	s := schema.Default()
//
//	res := s.ValidateNode(schema.NodeTypeMessage, map[string]any{
//		"text":      "lunch at noon?",
//		"timestamp": "2024-03-01T12:00:00Z",
//	}, true)
//	if !res.IsValid {
//		return res.Err()
//	}
//
//	res = s.ValidateRelationship(schema.NodeTypeMessage, schema.RelSentBy, schema.NodeTypePerson)
//
// Validation is a pure function of its input. Whether a failed result rejects
// the write or is only logged is decided by the store's validation mode.
//
// # Loading
//
// ParseYAML and LoadFile read a schema from YAML; LoadFromEtcd reads the same
// document from a single etcd key. A loaded document replaces the built-in tables.
package schema
