// Package graph defines the backend-agnostic knowledge graph contract.
//
// Store is implemented by the embedded backend in graph/memory and by the
// Neo4j backend in graph/neo4j. The backend is chosen once when the engine is
// built; everything above this package works against Store alone.
//
// # Validation Mode
//
// Every store is built with a ValidationMode. Gate applies it:
//
//   - ModeStrict: schema violations, illegal relationship triples and missing
//     endpoints return an *Error and the write does not happen.
//   - ModeWarn: schema problems are logged and the write proceeds. A missing
//     endpoint is logged at debug level and the relationship is skipped.
//
// # Traversal
//
// BFS and ShortestPath implement the breadth-first search shared by both
// backends. Expansion happens one level at a time through an ExpandFunc, so a
// remote backend pays one round trip per level rather than one per node.
//
//	visits, err := graph.BFS(ctx, expand, "m1", 2)
//	for _, v := range visits {
//		fmt.Println(v.ID, v.Depth, v.Via)
//	}
package graph
