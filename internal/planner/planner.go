// Package planner computes releases: it resolves templates against a binding
// set, diffs the result against the environment's last succeeded release, and
// orders resources by declared dependency.
package planner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/rollout-k8s/rolloutctl/internal/release"
	"github.com/rollout-k8s/rolloutctl/internal/template"
)

// imageRefSlot is the conventional placeholder bound to the artifact
// reference when the template declares it and the caller did not.
const imageRefSlot = "imageRef"

// Planner computes planned releases and records them in the ledger.
type Planner struct {
	store  *template.Store
	ledger release.Ledger
	logger *slog.Logger
	clock  func() time.Time
}

// New constructs a planner over the given template store and ledger.
func New(store *template.Store, ledger release.Ledger, logger *slog.Logger) *Planner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Planner{
		store:  store,
		ledger: ledger,
		logger: logger,
		clock:  time.Now,
	}
}

// WithClock overrides the planning timestamp source. Intended for tests.
func (p *Planner) WithClock(clock func() time.Time) *Planner {
	p.clock = clock
	return p
}

// Plan resolves the templates with the binding set, diffs against the
// environment's last succeeded release, orders the documents and appends the
// planned release to the ledger. All documents are fully resolved before the
// release exists; no partial resolution escapes.
func (p *Planner) Plan(ctx context.Context, environment string, artifactRef release.ArtifactRef, bindings release.BindingSet) (*release.Release, error) {
	if environment == "" {
		return nil, fmt.Errorf("environment is required: %w", release.ErrValidation)
	}
	if artifactRef.IsZero() {
		return nil, fmt.Errorf("artifact ref is required: %w", release.ErrValidation)
	}

	effective := make(release.BindingSet, len(bindings)+1)
	for name, value := range bindings {
		effective[name] = value
	}
	if _, bound := effective[imageRefSlot]; !bound && p.store.HasSlot(imageRefSlot) {
		effective[imageRefSlot] = artifactRef.String()
	}

	docs, err := p.store.Resolve(effective)
	if err != nil {
		return nil, err
	}

	previous, err := p.ledger.LastSucceeded(ctx, environment)
	switch {
	case err == nil:
	case errors.Is(err, release.ErrNotFound):
		previous = nil
	default:
		return nil, err
	}

	markChanged(docs, previous)

	ordered, err := orderDocuments(docs)
	if err != nil {
		return nil, err
	}

	now := p.clock().UTC()
	rel := &release.Release{
		ID:          uuid.NewString(),
		Environment: environment,
		ArtifactRef: artifactRef,
		Bindings:    effective,
		Documents:   ordered,
		Status:      release.StatusPlanned,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if previous != nil {
		rel.PreviousID = previous.ID
	}

	if err := p.ledger.Append(ctx, rel); err != nil {
		return nil, err
	}

	p.logger.Info("release planned",
		"release", rel.ID,
		"environment", environment,
		"artifact", artifactRef.String(),
		"resources", len(ordered),
		"changed", countChanged(ordered),
	)
	return rel, nil
}

// markChanged flags documents whose content hash differs from the previous
// succeeded release. With no previous release, every document is new.
func markChanged(docs []release.ResourceDocument, previous *release.Release) {
	if previous == nil {
		for i := range docs {
			docs[i].Changed = true
		}
		return
	}
	prevHashes := make(map[string]string, len(previous.Documents))
	for _, doc := range previous.Documents {
		prevHashes[doc.Ref()] = doc.ContentHash
	}
	for i := range docs {
		hash, existed := prevHashes[docs[i].Ref()]
		docs[i].Changed = !existed || hash != docs[i].ContentHash
	}
}

// orderDocuments topologically sorts documents by declared dependency.
// Ties (no dependency relation) are broken by declaration order, not
// alphabetically, so the template author's ordering intent is preserved.
func orderDocuments(docs []release.ResourceDocument) ([]release.ResourceDocument, error) {
	index := make(map[string]int, len(docs))
	for i, doc := range docs {
		index[doc.Ref()] = i
	}

	inDegree := make([]int, len(docs))
	dependents := make(map[int][]int, len(docs))
	for i, doc := range docs {
		for _, dep := range doc.DependsOn {
			from, ok := index[dep]
			if !ok {
				return nil, fmt.Errorf("document %s depends on unknown resource %s: %w", doc.Ref(), dep, release.ErrValidation)
			}
			dependents[from] = append(dependents[from], i)
			inDegree[i]++
		}
	}

	ordered := make([]release.ResourceDocument, 0, len(docs))
	done := make([]bool, len(docs))
	for len(ordered) < len(docs) {
		next := -1
		for i := range docs {
			if !done[i] && inDegree[i] == 0 {
				next = i
				break
			}
		}
		if next < 0 {
			return nil, fmt.Errorf("dependency graph contains a cycle: %w", release.ErrValidation)
		}
		done[next] = true
		ordered = append(ordered, docs[next])
		for _, dependent := range dependents[next] {
			inDegree[dependent]--
		}
	}
	return ordered, nil
}

func countChanged(docs []release.ResourceDocument) int {
	n := 0
	for _, doc := range docs {
		if doc.Changed {
			n++
		}
	}
	return n
}
