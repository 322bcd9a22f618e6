// Package health aggregates liveness and readiness checks for the
// assistant's backing services (Redis, Postgres, Qdrant, embeddings).
package health

import (
	"context"
	"time"
)

// Status is the outcome of a single check.
type Status int

const (
	StatusHealthy Status = iota
	StatusDegraded
	StatusUnhealthy
	StatusUnknown
)

func (s Status) String() string {
	switch s {
	case StatusHealthy:
		return "healthy"
	case StatusDegraded:
		return "degraded"
	case StatusUnhealthy:
		return "unhealthy"
	default:
		return "unknown"
	}
}

// CheckResult is the outcome of one component's check.
type CheckResult struct {
	Component string        `json:"component"`
	Status    Status        `json:"status"`
	Message   string        `json:"message,omitempty"`
	Error     string        `json:"error,omitempty"`
	Critical  bool          `json:"critical"`
	Duration  time.Duration `json:"duration"`
	Timestamp time.Time     `json:"timestamp"`
}

// Checker probes one backing service.
type Checker interface {
	// Name is the unique component name.
	Name() string

	// Check probes the component. ctx carries the per-check timeout.
	Check(ctx context.Context) CheckResult

	// Critical reports whether a failure makes the service not ready.
	Critical() bool

	// Timeout bounds a single probe.
	Timeout() time.Duration
}

// Report is a point-in-time view over all registered checks.
type Report struct {
	Status     Status                 `json:"status"`
	Message    string                 `json:"message"`
	Ready      bool                   `json:"ready"`
	Components map[string]CheckResult `json:"components"`
	Timestamp  time.Time              `json:"timestamp"`
}
