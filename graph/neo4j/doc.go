// Package neo4j implements graph.Store on a Neo4j server.
//
// Nodes carry the Node label plus a label for their type, and are merged by
// id. The full property map is kept as JSON in n.props because Neo4j cannot
// store nested maps; top-level scalars are mirrored as native properties so
// FindNodes and hand-written Cypher can filter on them. Batch reads and every
// BFS level are answered with one query each.
//
// All calls run on a workpool.Pool behind a gobreaker circuit breaker. The
// driver is wrapped by CypherClient so tests can substitute a fake:
//
//	client, err := neo4j.NewDriverClient(ctx, neo4j.Config{URI: "neo4j://localhost:7687", Username: "neo4j", Password: pw})
//	if err != nil {
//		return err
//	}
//	store := neo4j.New(client, schema.Default(), neo4j.WithMode(graph.ModeStrict))
//	defer store.Close(ctx)
package neo4j
