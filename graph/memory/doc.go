// Package memory implements the embedded, in-process graph backend.
//
// The graph lives in adjacency lists guarded by one RWMutex and is lost when
// the process exits. Besides graph.Store it offers a context-free read API
// (Node, Nodes, Neighbors, Walk, Path) that the query interpreter runs on.
//
//	store := memory.New(schema.Default(), memory.WithMode(graph.ModeStrict))
//	_, err := store.AddNode(ctx, "p1", schema.NodeTypePerson, map[string]any{"name": "Ada"})
package memory
