// Package vector is the semantic search boundary used by hybrid retrieval.
//
// A Searcher returns scored text hits; hits that carry a graph_node_id in
// their metadata seed graph expansion. Two implementations are provided: an
// in-memory cosine index and a Postgres searcher backed by pgvector.
//
//	pool, err := vector.Connect(ctx, dsn)
//	if err != nil {
//		return err
//	}
//	searcher, err := vector.NewPGSearcher(pool, embedder, "")
package vector
