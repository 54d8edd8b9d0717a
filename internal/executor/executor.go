// Package executor applies planned releases against the cluster API with
// ordering, health-gating and explicit rollback semantics. Release state moves
// Planned -> Applying -> {Succeeded | Failed}; Failed -> RolledBack is a
// distinct, explicitly invoked transition so partial outcomes are never masked.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/rollout-k8s/rolloutctl/internal/cluster"
	"github.com/rollout-k8s/rolloutctl/internal/release"
)

// Config tunes retry and timeout behavior around cluster calls.
type Config struct {
	// HealthAttempts bounds health-gating polls per resource.
	HealthAttempts uint
	// HealthBackoff is the initial delay between health polls; delays grow
	// exponentially up to HealthBackoffCeiling.
	HealthBackoff time.Duration
	// HealthBackoffCeiling caps the health poll delay.
	HealthBackoffCeiling time.Duration
	// ApplyAttempts bounds retries of a transiently failing apply call.
	ApplyAttempts uint
	// ClusterCallTimeout bounds each individual cluster call, independent of
	// the health-gating retry policy.
	ClusterCallTimeout time.Duration
}

// DefaultConfig returns the executor defaults.
func DefaultConfig() Config {
	return Config{
		HealthAttempts:       10,
		HealthBackoff:        2 * time.Second,
		HealthBackoffCeiling: 30 * time.Second,
		ApplyAttempts:        3,
		ClusterCallTimeout:   30 * time.Second,
	}
}

// Outcome reports what an apply or rollback actually did. Applied always
// lists the resources that made it to the cluster, so operators know the
// actual cluster state after a failure without re-querying it.
type Outcome struct {
	// Release is the release in its final state.
	Release *release.Release
	// Applied lists refs applied successfully, in order.
	Applied []string
	// Skipped lists refs skipped because they were unchanged.
	Skipped []string
	// FailedResource is the ref that halted the rollout, if any.
	FailedResource string
}

// Executor drives rollouts against a cluster, recording every lifecycle
// transition in the ledger.
type Executor struct {
	cluster cluster.Interface
	ledger  release.Ledger
	locks   *envLocks
	logger  *slog.Logger
	cfg     Config
	clock   func() time.Time
}

// New constructs an executor.
func New(c cluster.Interface, ledger release.Ledger, cfg Config, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	defaults := DefaultConfig()
	if cfg.HealthAttempts == 0 {
		cfg.HealthAttempts = defaults.HealthAttempts
	}
	if cfg.HealthBackoff <= 0 {
		cfg.HealthBackoff = defaults.HealthBackoff
	}
	if cfg.HealthBackoffCeiling <= 0 {
		cfg.HealthBackoffCeiling = defaults.HealthBackoffCeiling
	}
	if cfg.ApplyAttempts == 0 {
		cfg.ApplyAttempts = defaults.ApplyAttempts
	}
	if cfg.ClusterCallTimeout <= 0 {
		cfg.ClusterCallTimeout = defaults.ClusterCallTimeout
	}
	return &Executor{
		cluster: c,
		ledger:  ledger,
		locks:   newEnvLocks(),
		logger:  logger,
		cfg:     cfg,
		clock:   time.Now,
	}
}

// WithClock overrides the transition timestamp source. Intended for tests.
func (e *Executor) WithClock(clock func() time.Time) *Executor {
	e.clock = clock
	return e
}

// Apply rolls out the release. It acquires the environment's exclusive lock
// (failing fast with [release.ErrConcurrentApply]), re-diffs against the
// ledger so an already-applied release performs no mutating calls, then
// applies changed documents in planned order with health gating. The first
// resource that exhausts its health retries halts forward progress; the
// release is marked Failed and already-applied resources are left in place.
func (e *Executor) Apply(ctx context.Context, rel *release.Release) (Outcome, error) {
	if rel == nil {
		return Outcome{}, fmt.Errorf("release is nil: %w", release.ErrValidation)
	}
	switch rel.Status {
	case release.StatusPlanned, release.StatusSucceeded:
	default:
		return Outcome{}, fmt.Errorf("release %s is %s, only planned or succeeded releases can be applied: %w",
			rel.ID, rel.Status, release.ErrValidation)
	}

	if !e.locks.tryAcquire(rel.Environment) {
		return Outcome{}, fmt.Errorf("environment %q: %w", rel.Environment, release.ErrConcurrentApply)
	}
	defer e.locks.release(rel.Environment)

	// Re-diff against ledger-recorded state so re-applying an identical
	// release is a no-op (idempotence).
	previous, err := e.ledger.LastSucceeded(ctx, rel.Environment)
	if err != nil && !errors.Is(err, release.ErrNotFound) {
		return Outcome{}, err
	}
	refreshChanged(rel, previous)

	rel.Status = release.StatusApplying
	rel.Applied = nil
	rel.UpdatedAt = e.clock().UTC()
	if err := e.ledger.Append(ctx, rel); err != nil {
		return Outcome{}, err
	}
	e.logger.Info("applying release", "release", rel.ID, "environment", rel.Environment, "resources", len(rel.Documents))

	outcome, applyErr := e.applyDocuments(ctx, rel, rel.Documents, false)
	outcome.Release = rel
	rel.Applied = outcome.Applied
	rel.UpdatedAt = e.clock().UTC()

	if applyErr != nil {
		rel.Status = release.StatusFailed
		if err := e.ledger.Append(ctx, rel); err != nil {
			e.logger.Error("record failed release", "release", rel.ID, "error", err)
		}
		e.logger.Error("release failed",
			"release", rel.ID,
			"resource", outcome.FailedResource,
			"applied", outcome.Applied,
			"error", applyErr,
		)
		return outcome, &release.ApplyError{
			ReleaseID: rel.ID,
			Resource:  outcome.FailedResource,
			Applied:   outcome.Applied,
			Cause:     applyErr,
		}
	}

	rel.Status = release.StatusSucceeded
	if err := e.ledger.Append(ctx, rel); err != nil {
		return outcome, err
	}
	e.logger.Info("release succeeded", "release", rel.ID, "applied", len(outcome.Applied), "skipped", len(outcome.Skipped))
	return outcome, nil
}

// Rollback re-applies the environment's last succeeded release and marks the
// newly failed release RolledBack. It is never invoked automatically.
func (e *Executor) Rollback(ctx context.Context, environment string) (Outcome, error) {
	if !e.locks.tryAcquire(environment) {
		return Outcome{}, fmt.Errorf("environment %q: %w", environment, release.ErrConcurrentApply)
	}
	defer e.locks.release(environment)

	previous, err := e.ledger.LastSucceeded(ctx, environment)
	if err != nil {
		if errors.Is(err, release.ErrNotFound) {
			return Outcome{}, &release.NoPreviousStateError{Environment: environment}
		}
		return Outcome{}, err
	}

	failed, err := e.ledger.Latest(ctx, environment)
	if err != nil {
		return Outcome{}, err
	}
	if failed.Status != release.StatusFailed {
		return Outcome{}, fmt.Errorf("latest release %s for %q is %s, nothing to roll back: %w",
			failed.ID, environment, failed.Status, release.ErrValidation)
	}

	e.logger.Info("rolling back", "environment", environment, "to", previous.ID, "failed", failed.ID)

	// Re-apply every document of the known-good release, ignoring diff flags.
	outcome, applyErr := e.applyDocuments(ctx, previous, previous.Documents, true)
	outcome.Release = failed
	if applyErr != nil {
		return outcome, &release.ApplyError{
			ReleaseID: previous.ID,
			Resource:  outcome.FailedResource,
			Applied:   outcome.Applied,
			Cause:     applyErr,
		}
	}

	failed.Status = release.StatusRolledBack
	failed.UpdatedAt = e.clock().UTC()
	if err := e.ledger.Append(ctx, failed); err != nil {
		return outcome, err
	}
	e.logger.Info("rollback complete", "environment", environment, "release", failed.ID)
	return outcome, nil
}

// applyDocuments applies docs in order. When force is false, unchanged
// documents are skipped without any cluster call. Cancellation between
// resources halts the rollout; the already-applied prefix stays in place.
func (e *Executor) applyDocuments(ctx context.Context, rel *release.Release, docs []release.ResourceDocument, force bool) (Outcome, error) {
	var outcome Outcome
	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			outcome.FailedResource = doc.Ref()
			return outcome, fmt.Errorf("rollout aborted: %w", err)
		}
		if !force && !doc.Changed {
			outcome.Skipped = append(outcome.Skipped, doc.Ref())
			e.logger.Debug("resource unchanged, skipping", "release", rel.ID, "resource", doc.Ref())
			continue
		}

		if err := e.applyOne(ctx, doc); err != nil {
			outcome.FailedResource = doc.Ref()
			return outcome, err
		}
		if err := e.awaitHealthy(ctx, doc); err != nil {
			outcome.FailedResource = doc.Ref()
			return outcome, err
		}
		outcome.Applied = append(outcome.Applied, doc.Ref())
		e.logger.Info("resource applied", "release", rel.ID, "resource", doc.Ref())
	}
	return outcome, nil
}

// applyOne submits a document with a per-call timeout, retrying transient
// failures a bounded number of times.
func (e *Executor) applyOne(ctx context.Context, doc release.ResourceDocument) error {
	err := retry.Do(
		func() error {
			callCtx, cancel := context.WithTimeout(ctx, e.cfg.ClusterCallTimeout)
			defer cancel()
			_, err := e.cluster.Apply(callCtx, doc)
			return err
		},
		retry.Context(ctx),
		retry.Attempts(e.cfg.ApplyAttempts),
		retry.Delay(e.cfg.HealthBackoff),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return fmt.Errorf("apply %s: %w", doc.Ref(), err)
	}
	return nil
}

// awaitHealthy polls the resource's readiness signal with bounded attempts
// and exponential backoff capped at the configured ceiling.
func (e *Executor) awaitHealthy(ctx context.Context, doc release.ResourceDocument) error {
	err := retry.Do(
		func() error {
			callCtx, cancel := context.WithTimeout(ctx, e.cfg.ClusterCallTimeout)
			defer cancel()
			state, err := e.cluster.Health(callCtx, doc)
			if err != nil {
				return err
			}
			if state != cluster.HealthReady {
				return fmt.Errorf("resource %s is %s", doc.Ref(), state)
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(e.cfg.HealthAttempts),
		retry.Delay(e.cfg.HealthBackoff),
		retry.MaxDelay(e.cfg.HealthBackoffCeiling),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return fmt.Errorf("health gate for %s: %w", doc.Ref(), err)
	}
	return nil
}

// refreshChanged recomputes the per-document changed flags against the
// environment's last succeeded release as recorded in the ledger.
func refreshChanged(rel *release.Release, previous *release.Release) {
	if previous == nil {
		for i := range rel.Documents {
			rel.Documents[i].Changed = true
		}
		return
	}
	prevHashes := make(map[string]string, len(previous.Documents))
	for _, doc := range previous.Documents {
		prevHashes[doc.Ref()] = doc.ContentHash
	}
	for i := range rel.Documents {
		doc := &rel.Documents[i]
		hash, existed := prevHashes[doc.Ref()]
		doc.Changed = !existed || hash != doc.ContentHash
	}
}
