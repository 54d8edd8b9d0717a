package executor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rollout-k8s/rolloutctl/internal/cluster"
	"github.com/rollout-k8s/rolloutctl/internal/ledger"
	"github.com/rollout-k8s/rolloutctl/internal/logging"
	"github.com/rollout-k8s/rolloutctl/internal/release"
)

const (
	refConfig     = "ConfigMap/apps/app-config"
	refDeployment = "Deployment/apps/app"
	refService    = "Service/apps/app"
)

func testConfig() Config {
	return Config{
		HealthAttempts:       2,
		HealthBackoff:        time.Millisecond,
		HealthBackoffCeiling: 2 * time.Millisecond,
		ApplyAttempts:        2,
		ClusterCallTimeout:   time.Second,
	}
}

func newTestExecutor(t *testing.T, c cluster.Interface) (*Executor, *ledger.Store) {
	t.Helper()
	ldg, err := ledger.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { ldg.Close() })
	return New(c, ldg, testConfig(), logging.Discard()), ldg
}

func plannedRelease(id string) *release.Release {
	return &release.Release{
		ID:          id,
		Environment: "staging",
		Status:      release.StatusPlanned,
		ArtifactRef: release.ArtifactRef{
			Repository: "registry.local/app",
			Digest:     "sha256:aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
		},
		Documents: []release.ResourceDocument{
			{Kind: "ConfigMap", Name: "app-config", Namespace: "apps", Raw: []byte(`{"kind":"ConfigMap"}`), ContentHash: "sha256:cfg", Changed: true},
			{Kind: "Deployment", Name: "app", Namespace: "apps", Raw: []byte(`{"kind":"Deployment"}`), ContentHash: "sha256:dep", DependsOn: []string{refConfig}, Changed: true},
			{Kind: "Service", Name: "app", Namespace: "apps", Raw: []byte(`{"kind":"Service"}`), ContentHash: "sha256:svc", Changed: true},
		},
	}
}

func TestApplyRollsOutInOrder(t *testing.T) {
	fake := cluster.NewFake()
	exec, ldg := newTestExecutor(t, fake)
	ctx := context.Background()

	rel := plannedRelease("rel-1")
	require.NoError(t, ldg.Append(ctx, rel))

	outcome, err := exec.Apply(ctx, rel)
	require.NoError(t, err)

	assert.Equal(t, []string{refConfig, refDeployment, refService}, outcome.Applied)
	assert.Empty(t, outcome.Skipped)
	assert.Equal(t, release.StatusSucceeded, rel.Status)
	assert.Equal(t, []string{refConfig, refDeployment, refService}, fake.Applied())

	recorded, err := ldg.Get(ctx, "rel-1")
	require.NoError(t, err)
	assert.Equal(t, release.StatusSucceeded, recorded.Status)
	assert.Equal(t, outcome.Applied, recorded.Applied)
}

func TestApplyHaltsOnUnhealthyResource(t *testing.T) {
	fake := cluster.NewFake()
	fake.HealthSeq[refDeployment] = []cluster.HealthState{cluster.HealthPending}
	exec, ldg := newTestExecutor(t, fake)
	ctx := context.Background()

	rel := plannedRelease("rel-1")
	require.NoError(t, ldg.Append(ctx, rel))

	outcome, err := exec.Apply(ctx, rel)
	require.Error(t, err)
	assert.ErrorIs(t, err, release.ErrApplyFailed)

	var applyErr *release.ApplyError
	require.ErrorAs(t, err, &applyErr)
	assert.Equal(t, refDeployment, applyErr.Resource)
	assert.Equal(t, []string{refConfig}, applyErr.Applied, "the applied prefix stays in place")

	// The failing resource was applied but never passed its health gate; the
	// resource after it was never attempted.
	assert.Equal(t, []string{refConfig, refDeployment}, fake.Applied())
	assert.Equal(t, 2, fake.HealthCalls(refDeployment), "health polls are bounded")
	assert.Equal(t, refDeployment, outcome.FailedResource)

	recorded, err := ldg.Get(ctx, "rel-1")
	require.NoError(t, err)
	assert.Equal(t, release.StatusFailed, recorded.Status)
}

func TestApplyHaltsOnApplyError(t *testing.T) {
	fake := cluster.NewFake()
	fake.FailApply(refService, "server rejected manifest")
	exec, ldg := newTestExecutor(t, fake)
	ctx := context.Background()

	rel := plannedRelease("rel-1")
	require.NoError(t, ldg.Append(ctx, rel))

	_, err := exec.Apply(ctx, rel)
	require.Error(t, err)
	assert.ErrorIs(t, err, release.ErrApplyFailed)
	assert.Contains(t, err.Error(), "server rejected manifest")

	var applyErr *release.ApplyError
	require.ErrorAs(t, err, &applyErr)
	assert.Equal(t, []string{refConfig, refDeployment}, applyErr.Applied)
}

func TestApplyRejectsConcurrentRollout(t *testing.T) {
	fake := cluster.NewFake()
	exec, ldg := newTestExecutor(t, fake)
	ctx := context.Background()

	rel := plannedRelease("rel-1")
	require.NoError(t, ldg.Append(ctx, rel))

	require.True(t, exec.locks.tryAcquire("staging"))
	defer exec.locks.release("staging")

	_, err := exec.Apply(ctx, rel)
	assert.ErrorIs(t, err, release.ErrConcurrentApply)
	assert.Empty(t, fake.Applied(), "a rejected apply must not touch the cluster")

	// No applying entry was recorded for the rejected attempt.
	recorded, err := ldg.Get(ctx, "rel-1")
	require.NoError(t, err)
	assert.Equal(t, release.StatusPlanned, recorded.Status)
}

func TestApplyIsIdempotent(t *testing.T) {
	fake := cluster.NewFake()
	exec, ldg := newTestExecutor(t, fake)
	ctx := context.Background()

	rel := plannedRelease("rel-1")
	require.NoError(t, ldg.Append(ctx, rel))

	_, err := exec.Apply(ctx, rel)
	require.NoError(t, err)
	require.Len(t, fake.Applied(), 3)

	outcome, err := exec.Apply(ctx, rel)
	require.NoError(t, err)
	assert.Empty(t, outcome.Applied)
	assert.Equal(t, []string{refConfig, refDeployment, refService}, outcome.Skipped)
	assert.Len(t, fake.Applied(), 3, "re-applying an identical release performs no mutating calls")
}

func TestApplyValidatesStatus(t *testing.T) {
	exec, _ := newTestExecutor(t, cluster.NewFake())

	rel := plannedRelease("rel-1")
	rel.Status = release.StatusFailed
	_, err := exec.Apply(context.Background(), rel)
	assert.ErrorIs(t, err, release.ErrValidation)

	_, err = exec.Apply(context.Background(), nil)
	assert.ErrorIs(t, err, release.ErrValidation)
}

// cancelOnApply cancels the rollout context when a given resource is applied,
// simulating an operator interrupt mid-rollout.
type cancelOnApply struct {
	*cluster.Fake
	ref    string
	cancel context.CancelFunc
}

func (c *cancelOnApply) Apply(ctx context.Context, doc release.ResourceDocument) (cluster.ResourceStatus, error) {
	if doc.Ref() == c.ref {
		c.cancel()
		return cluster.ResourceStatus{}, ctx.Err()
	}
	return c.Fake.Apply(ctx, doc)
}

func TestApplyCancellationPreservesAppliedPrefix(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fake := cluster.NewFake()
	interrupting := &cancelOnApply{Fake: fake, ref: refDeployment, cancel: cancel}
	exec, ldg := newTestExecutor(t, interrupting)

	rel := plannedRelease("rel-1")
	require.NoError(t, ldg.Append(context.Background(), rel))

	outcome, err := exec.Apply(ctx, rel)
	require.Error(t, err)
	assert.ErrorIs(t, err, release.ErrApplyFailed)
	assert.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, []string{refConfig}, outcome.Applied)
	assert.Equal(t, []string{refConfig}, fake.Applied(), "resources after the interrupt are never attempted")
	assert.Equal(t, release.StatusFailed, rel.Status)
}

func TestRollbackReappliesLastSucceeded(t *testing.T) {
	fake := cluster.NewFake()
	exec, ldg := newTestExecutor(t, fake)
	ctx := context.Background()

	good := plannedRelease("rel-good")
	good.Status = release.StatusSucceeded
	require.NoError(t, ldg.Append(ctx, good))

	bad := plannedRelease("rel-bad")
	bad.Status = release.StatusFailed
	require.NoError(t, ldg.Append(ctx, bad))

	outcome, err := exec.Rollback(ctx, "staging")
	require.NoError(t, err)

	// Every document of the known-good release is re-applied, diff flags ignored.
	assert.Equal(t, []string{refConfig, refDeployment, refService}, outcome.Applied)
	assert.Equal(t, []string{refConfig, refDeployment, refService}, fake.Applied())
	assert.Equal(t, "rel-bad", outcome.Release.ID)
	assert.Equal(t, release.StatusRolledBack, outcome.Release.Status)

	latest, err := ldg.Latest(ctx, "staging")
	require.NoError(t, err)
	assert.Equal(t, "rel-bad", latest.ID)
	assert.Equal(t, release.StatusRolledBack, latest.Status)
}

func TestRollbackRequiresFailedLatest(t *testing.T) {
	exec, ldg := newTestExecutor(t, cluster.NewFake())
	ctx := context.Background()

	good := plannedRelease("rel-good")
	good.Status = release.StatusSucceeded
	require.NoError(t, ldg.Append(ctx, good))

	_, err := exec.Rollback(ctx, "staging")
	assert.ErrorIs(t, err, release.ErrValidation)
}

func TestRollbackWithoutSucceededRelease(t *testing.T) {
	exec, ldg := newTestExecutor(t, cluster.NewFake())
	ctx := context.Background()

	bad := plannedRelease("rel-bad")
	bad.Status = release.StatusFailed
	require.NoError(t, ldg.Append(ctx, bad))

	_, err := exec.Rollback(ctx, "staging")
	require.Error(t, err)
	assert.ErrorIs(t, err, release.ErrStateInconsistency)

	var npse *release.NoPreviousStateError
	require.ErrorAs(t, err, &npse)
	assert.Equal(t, "staging", npse.Environment)
}

func TestRollbackRejectsConcurrentRollout(t *testing.T) {
	exec, _ := newTestExecutor(t, cluster.NewFake())

	require.True(t, exec.locks.tryAcquire("staging"))
	defer exec.locks.release("staging")

	_, err := exec.Rollback(context.Background(), "staging")
	assert.ErrorIs(t, err, release.ErrConcurrentApply)
}
