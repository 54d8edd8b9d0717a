package release

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation indicates bad or missing bindings, type mismatches or
	// malformed inputs. Never retried.
	ErrValidation = errors.New("validation failed")

	// ErrConcurrentApply indicates the environment's apply lock is already
	// held. Surfaced immediately; the caller may retry manually.
	ErrConcurrentApply = errors.New("concurrent apply rejected")

	// ErrApplyFailed indicates a rollout halted before all resources were
	// applied and health-gated.
	ErrApplyFailed = errors.New("apply failed")

	// ErrStateInconsistency indicates ledger corruption or missing expected
	// previous state. Fatal; never auto-repaired.
	ErrStateInconsistency = errors.New("state inconsistency")

	// ErrNotFound indicates a requested record does not exist.
	ErrNotFound = errors.New("not found")
)

// NoPreviousStateError is returned when a rollback is requested for an
// environment that has no succeeded release to return to.
type NoPreviousStateError struct {
	// Environment is the environment the rollback targeted.
	Environment string
}

func (e *NoPreviousStateError) Error() string {
	return fmt.Sprintf("no previous succeeded release for environment %q", e.Environment)
}

// Unwrap classifies the error as a state inconsistency.
func (e *NoPreviousStateError) Unwrap() error { return ErrStateInconsistency }

// ApplyError reports a halted rollout together with the cluster state at the
// moment of failure.
type ApplyError struct {
	// ReleaseID is the release whose apply failed.
	ReleaseID string
	// Resource is the ref of the resource that caused the halt, if any.
	Resource string
	// Applied lists refs applied successfully before the halt.
	Applied []string
	// Cause is the underlying failure.
	Cause error
}

func (e *ApplyError) Error() string {
	if e.Resource == "" {
		return fmt.Sprintf("release %s: apply failed after %d applied resource(s): %v", e.ReleaseID, len(e.Applied), e.Cause)
	}
	return fmt.Sprintf("release %s: resource %s failed (applied before failure: %d): %v", e.ReleaseID, e.Resource, len(e.Applied), e.Cause)
}

// Unwrap classifies the error as an apply failure and preserves the cause.
func (e *ApplyError) Unwrap() []error { return []error{ErrApplyFailed, e.Cause} }
