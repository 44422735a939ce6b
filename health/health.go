package health

import (
	"context"
	"fmt"
	"time"
)

// Health states.
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// Status represents the health state of a component.
type Status struct {
	// Status is the current health state (healthy, degraded, or unhealthy).
	Status string `json:"status"`

	// Message provides a human-readable description of the health status.
	Message string `json:"message,omitempty"`

	// Details contains additional diagnostic information.
	Details map[string]any `json:"details,omitempty"`
}

// IsHealthy returns true if the status is StatusHealthy.
func (s Status) IsHealthy() bool { return s.Status == StatusHealthy }

// IsDegraded returns true if the status is StatusDegraded.
func (s Status) IsDegraded() bool { return s.Status == StatusDegraded }

// IsUnhealthy returns true if the status is StatusUnhealthy.
func (s Status) IsUnhealthy() bool { return s.Status == StatusUnhealthy }

// Healthy creates a healthy status.
func Healthy(message string, details map[string]any) Status {
	return Status{Status: StatusHealthy, Message: message, Details: details}
}

// Degraded creates a degraded status.
func Degraded(message string, details map[string]any) Status {
	return Status{Status: StatusDegraded, Message: message, Details: details}
}

// Unhealthy creates an unhealthy status.
func Unhealthy(message string, details map[string]any) Status {
	return Status{Status: StatusUnhealthy, Message: message, Details: details}
}

// Pinger is a dependency that can be checked.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingCheck pings p. A failure is unhealthy when critical is set and
// degraded otherwise. A nil p is healthy: there is nothing to check.
//
// Example:
//
//	status := health.PingCheck(ctx, "neo4j", store, true)
func PingCheck(ctx context.Context, name string, p Pinger, critical bool) Status {
	if p == nil {
		return Healthy(fmt.Sprintf("%s has no health check", name), map[string]any{"name": name})
	}

	start := time.Now()
	err := p.Ping(ctx)
	details := map[string]any{
		"name":       name,
		"latency_ms": time.Since(start).Milliseconds(),
	}
	if err == nil {
		return Healthy(fmt.Sprintf("%s reachable", name), details)
	}

	details["error"] = err.Error()
	msg := fmt.Sprintf("%s unreachable: %v", name, err)
	if critical {
		return Unhealthy(msg, details)
	}
	return Degraded(msg, details)
}

// Combine aggregates multiple health checks into a single status.
// Any unhealthy check makes the result unhealthy; otherwise any degraded
// check makes it degraded.
func Combine(checks ...Status) Status {
	if len(checks) == 0 {
		return Healthy("no checks provided", nil)
	}

	var unhealthy, degraded []string
	healthy := 0
	for _, check := range checks {
		msg := check.Message
		if msg == "" {
			msg = "unnamed check"
		}
		switch check.Status {
		case StatusUnhealthy:
			unhealthy = append(unhealthy, msg)
		case StatusDegraded:
			degraded = append(degraded, msg)
		case StatusHealthy:
			healthy++
		}
	}

	if len(unhealthy) > 0 {
		return Unhealthy(fmt.Sprintf("%d check(s) failed", len(unhealthy)), map[string]any{
			"total":           len(checks),
			"unhealthy":       len(unhealthy),
			"degraded":        len(degraded),
			"healthy":         healthy,
			"failed_checks":   unhealthy,
			"degraded_checks": degraded,
		})
	}
	if len(degraded) > 0 {
		return Degraded(fmt.Sprintf("%d check(s) degraded", len(degraded)), map[string]any{
			"total":           len(checks),
			"degraded":        len(degraded),
			"healthy":         healthy,
			"degraded_checks": degraded,
		})
	}
	return Healthy(fmt.Sprintf("all %d check(s) passed", len(checks)), nil)
}
