// Package linker adds relationships whose endpoints may not exist yet.
//
// Ingestion often sees a reference before the node it points to. Instead of
// dropping such a relationship, Link queues it under the missing node id;
// when that node is later added through AddNode, the queued links are
// replayed. Pending links live in memory or in Redis.
//
//	l := linker.New(store, pending)
//	status, err := l.Link(ctx, "m1", "p9", schema.RelSentBy, nil) // LinkDeferred
//	_, res, err := l.AddNode(ctx, "p9", schema.NodeTypePerson, props)
//	// res.Created == 1
package linker
