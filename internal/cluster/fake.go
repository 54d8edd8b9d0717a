package cluster

import (
	"context"
	"fmt"
	"sync"

	"github.com/rollout-k8s/rolloutctl/internal/release"
)

// Fake is an in-memory [Interface] implementation for tests. Health responses
// can be scripted per resource ref; every mutating call is recorded.
type Fake struct {
	mu sync.Mutex

	// ApplyErrs maps a resource ref to an error returned by Apply.
	ApplyErrs map[string]error
	// HealthSeq maps a resource ref to a sequence of health states returned
	// by successive Health calls. The last state repeats once exhausted.
	HealthSeq map[string][]HealthState

	applied     []string
	healthCalls map[string]int
}

// NewFake constructs an empty fake cluster where every resource applies
// cleanly and is immediately ready.
func NewFake() *Fake {
	return &Fake{
		ApplyErrs:   make(map[string]error),
		HealthSeq:   make(map[string][]HealthState),
		healthCalls: make(map[string]int),
	}
}

// Apply records the call and returns the scripted error, if any.
func (f *Fake) Apply(_ context.Context, doc release.ResourceDocument) (ResourceStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	ref := doc.Ref()
	if err := f.ApplyErrs[ref]; err != nil {
		return ResourceStatus{}, err
	}
	f.applied = append(f.applied, ref)
	return ResourceStatus{Ref: ref, Operation: "configured"}, nil
}

// Health returns the next scripted state for the resource, defaulting to ready.
func (f *Fake) Health(_ context.Context, doc release.ResourceDocument) (HealthState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	ref := doc.Ref()
	call := f.healthCalls[ref]
	f.healthCalls[ref] = call + 1

	seq, ok := f.HealthSeq[ref]
	if !ok || len(seq) == 0 {
		return HealthReady, nil
	}
	if call >= len(seq) {
		return seq[len(seq)-1], nil
	}
	return seq[call], nil
}

// Applied returns the refs passed to Apply, in call order.
func (f *Fake) Applied() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.applied))
	copy(out, f.applied)
	return out
}

// HealthCalls returns how many times Health was polled for the given ref.
func (f *Fake) HealthCalls(ref string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.healthCalls[ref]
}

// FailApply scripts an apply failure for the given ref.
func (f *Fake) FailApply(ref string, msg string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ApplyErrs[ref] = fmt.Errorf("%s", msg)
}
