// Package kgraph is a personal knowledge graph engine.
//
// It stores typed nodes and relationships validated against a schema,
// answers a small Cypher-like query language, walks and pathfinds the
// graph, and fuses vector search with multi-hop expansion for retrieval.
//
// # Getting Started
//
// The Engine is the single entry point. With no options it runs on the
// embedded in-memory backend with the built-in schema:
//
//	engine, err := kgraph.New(ctx)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer engine.Close(ctx)
//
//	engine.AddNode(ctx, "m1", schema.NodeTypeMessage, map[string]any{
//		"text":      "deploy is blocked on the redis upgrade",
//		"timestamp": "2024-03-01T10:00:00Z",
//	})
//	engine.Link(ctx, "m1", "p1", schema.RelSentBy, nil) // deferred until p1 exists
//
// # Backends
//
// The backend is chosen once, from configuration (see package config):
//
//   - memory: embedded, supports the query language
//   - neo4j: external, behind a circuit breaker and bounded worker pool
//
// Both implement graph.Store, and every store call is traced and counted
// through OpenTelemetry (package telemetry).
//
// # Retrieval
//
// Retrieval needs a vector.Searcher. Pass one with WithSearcher, or pass an
// embedder with WithEmbedder and let the engine build an in-memory index or
// a pgvector searcher from configuration:
//
//	engine.Index(ctx, "doc-1", "redis upgrade blocked", "m1", nil)
//	results, err := engine.Retrieve(ctx, engine.NewQuery("redis"))
package kgraph
