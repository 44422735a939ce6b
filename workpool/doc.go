// Package workpool provides a bounded goroutine pool for blocking I/O.
//
// The Neo4j graph backend issues every driver call through a Pool so that a
// slow or hung database session occupies one worker rather than the caller's
// goroutine.
//
//	pool := workpool.New(workpool.Options{Concurrency: 8})
//	defer pool.Close(ctx)
//
//	rows, err := workpool.Submit(ctx, pool, func(ctx context.Context) ([]Row, error) {
//		return client.Read(ctx, cypher, params)
//	})
package workpool
