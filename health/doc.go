// Package health checks the backends an engine depends on.
//
// Graph stores report backend failures as false or nil results rather than
// errors, so an outage is invisible on the write path. The checks here ping
// each dependency directly and fold the answers into one Status:
//
//   - PingCheck: ping one dependency and report how long it took
//   - Combine: aggregate multiple checks into a single status
//
// # Usage Example
//
//	status := health.Combine(
//	    health.PingCheck(ctx, "graph", store, true),
//	    health.PingCheck(ctx, "pending", pending, false),
//	)
//	if status.IsUnhealthy() {
//	    log.Error("graph backend down", "details", status.Details)
//	}
//
// A failed critical check makes the combined status unhealthy; a failed
// non-critical check only degrades it.
package health
