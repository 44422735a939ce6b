// Package telemetry instruments a graph.Store with OpenTelemetry.
//
// Every call opens a span named kgraph.store.<op> and records the
// kgraph.store.operations counter and kgraph.store.duration histogram,
// both labelled with op and outcome. The outcome is "ok", "error", or
// "empty" when the store answered false or nil, which is how an unreachable
// backend shows up.
package telemetry
