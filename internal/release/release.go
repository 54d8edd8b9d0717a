// Package release defines the core domain model for deployment releases:
// resolved resource documents, release lifecycle states, binding sets and
// the ledger contract used by the planner and executor.
package release

import "time"

// Status is the lifecycle state of a release.
type Status string

const (
	// StatusPlanned means the release has been computed but not applied.
	StatusPlanned Status = "planned"
	// StatusApplying means an apply is in progress for this release.
	StatusApplying Status = "applying"
	// StatusSucceeded means all resources were applied and passed health gates.
	StatusSucceeded Status = "succeeded"
	// StatusFailed means the apply halted before completing; already-applied
	// resources are left in place.
	StatusFailed Status = "failed"
	// StatusRolledBack means the previous succeeded release was re-applied
	// over this failed one.
	StatusRolledBack Status = "rolled_back"
)

// BindingSet maps placeholder names to concrete values for one release.
type BindingSet map[string]any

// ResourceDocument is a fully resolved declarative object produced by
// applying a binding set to a template. Raw holds the canonical JSON
// serialization; ContentHash is the SHA-256 digest of Raw and uniquely
// identifies the document content.
type ResourceDocument struct {
	// Kind is the resource kind (e.g. Deployment, ConfigMap).
	Kind string `json:"kind"`
	// Name is the resource name.
	Name string `json:"name"`
	// Namespace is the target namespace, if namespaced.
	Namespace string `json:"namespace,omitempty"`
	// Raw is the canonical JSON body of the resolved resource.
	Raw []byte `json:"raw"`
	// ContentHash is "sha256:<hex>" over Raw.
	ContentHash string `json:"contentHash"`
	// DependsOn lists names of resources in the same template that must be
	// applied (and healthy) before this one.
	DependsOn []string `json:"dependsOn,omitempty"`
	// Changed reports whether this document differs from the environment's
	// last succeeded release at plan time.
	Changed bool `json:"changed"`
}

// Ref returns a stable identifier of the form kind/name or kind/namespace/name.
func (d ResourceDocument) Ref() string {
	if d.Namespace != "" {
		return d.Kind + "/" + d.Namespace + "/" + d.Name
	}
	return d.Kind + "/" + d.Name
}

// Release represents one deployment attempt for an environment.
// Documents are fully resolved before any apply begins and are stored in
// planned apply order.
type Release struct {
	// ID is the unique release identifier.
	ID string `json:"id"`
	// Environment is the target environment name.
	Environment string `json:"environment"`
	// ArtifactRef is the content-addressed image reference being deployed.
	ArtifactRef ArtifactRef `json:"artifactRef"`
	// Bindings holds the binding set the release was resolved with.
	Bindings BindingSet `json:"bindings,omitempty"`
	// Documents is the ordered list of resolved resource documents.
	Documents []ResourceDocument `json:"documents"`
	// Status is the current lifecycle state.
	Status Status `json:"status"`
	// Applied lists refs of resources successfully applied so far. It is
	// populated by the executor so operators can tell actual cluster state
	// after a failure without re-querying it.
	Applied []string `json:"applied,omitempty"`
	// PreviousID references the prior release for the environment, if any.
	PreviousID string `json:"previousId,omitempty"`
	// CreatedAt is when the release was planned.
	CreatedAt time.Time `json:"createdAt"`
	// UpdatedAt is when the release last changed state.
	UpdatedAt time.Time `json:"updatedAt"`
}

// Document returns the resource document with the given ref, if present.
func (r *Release) Document(ref string) (ResourceDocument, bool) {
	for _, doc := range r.Documents {
		if doc.Ref() == ref {
			return doc, true
		}
	}
	return ResourceDocument{}, false
}
