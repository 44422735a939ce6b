// Package query interprets a small Cypher-like query language over the
// embedded graph backend.
//
// Three statement forms are supported:
//
//	MATCH (m:Message)-[:IN_CHANNEL]->(c:Channel) WHERE c.name = "general" RETURN m
//	TRAVERSE FROM "m1" FOLLOW [SENT_BY, IN_CHANNEL] DEPTH 2 RETURN nodes
//	PATH FROM "p1" TO "p2" MAX_DEPTH 4 RETURN path
//
// WHERE takes one flat chain of conditions joined by AND or by OR; the two
// cannot be mixed and there is no grouping. RETURN projects whole records,
// fields, or COUNT/SUM/AVG/MIN/MAX aggregates, optionally bucketed with
// GROUP BY. Results are capped at a configurable row count and report when
// the cap applied.
//
// External backends do not run this language; they expose their native query
// facility instead.
package query
