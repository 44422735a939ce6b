// Package retrieval implements hybrid multi-hop retrieval.
//
// A query first asks a vector.Searcher for semantic matches. Every match whose
// metadata names a graph node seeds a breadth-first expansion over the graph
// store. A node h hops from its seed earns a graph score of
// weight(rel) * decay^h, where rel is the last relationship on its path. The
// final score blends both signals:
//
//	score = VectorWeight*vector_score + GraphWeight*graph_score
//
// Task presets tune the hop count and relationship weights:
//
//	q := retrieval.NewQuery("what did Ada say about the budget").
//		WithTask(retrieval.TaskResearch).
//		WithFilter(`type == "message" && hops <= 2`)
//	results, err := retriever.Retrieve(ctx, q)
package retrieval
