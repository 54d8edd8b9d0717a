// Package cluster defines the cluster API capability the executor drives:
// apply a resolved resource document, and read back a resource's health.
package cluster

import (
	"context"

	"github.com/rollout-k8s/rolloutctl/internal/release"
)

// HealthState is the readiness signal of an applied resource.
type HealthState string

const (
	// HealthPending means the resource exists but is not ready yet.
	HealthPending HealthState = "pending"
	// HealthReady means the resource satisfies its readiness conditions.
	HealthReady HealthState = "ready"
	// HealthDegraded means the resource reports a failure condition.
	HealthDegraded HealthState = "degraded"
	// HealthUnknown means the state could not be determined.
	HealthUnknown HealthState = "unknown"
)

// ResourceStatus describes the result of applying one resource document.
type ResourceStatus struct {
	// Ref identifies the applied resource.
	Ref string
	// Operation is what the cluster reported (e.g. created, configured).
	Operation string
}

// Interface is the cluster API capability. Calls are externally-timed network
// operations; callers apply their own timeout around each call.
type Interface interface {
	// Apply submits the resolved document to the cluster.
	Apply(ctx context.Context, doc release.ResourceDocument) (ResourceStatus, error)
	// Health reads the resource's current readiness signal.
	Health(ctx context.Context, doc release.ResourceDocument) (HealthState, error)
}
