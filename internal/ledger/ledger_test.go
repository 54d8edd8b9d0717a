package ledger

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rollout-k8s/rolloutctl/internal/release"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	var ticks int64
	store.WithClock(func() time.Time {
		ticks++
		return base.Add(time.Duration(ticks) * time.Second)
	})
	return store
}

func testRelease(id, env string, status release.Status) *release.Release {
	return &release.Release{
		ID:          id,
		Environment: env,
		Status:      status,
		ArtifactRef: release.ArtifactRef{
			Repository: "registry.local/app",
			Digest:     "sha256:aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
		},
		Documents: []release.ResourceDocument{
			{Kind: "Deployment", Name: "app", Namespace: env, Raw: []byte(`{"kind":"Deployment"}`), ContentHash: "sha256:deadbeef", Changed: true},
		},
	}
}

func TestAppendAndGet(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	rel := testRelease("rel-1", "staging", release.StatusPlanned)
	require.NoError(t, store.Append(ctx, rel))

	rel.Status = release.StatusSucceeded
	require.NoError(t, store.Append(ctx, rel))

	got, err := store.Get(ctx, "rel-1")
	require.NoError(t, err)
	assert.Equal(t, release.StatusSucceeded, got.Status, "Get returns the latest snapshot")
	assert.Equal(t, rel.ArtifactRef, got.ArtifactRef)
	require.Len(t, got.Documents, 1)
	assert.Equal(t, "Deployment/staging/app", got.Documents[0].Ref())

	_, err = store.Get(ctx, "missing")
	assert.ErrorIs(t, err, release.ErrNotFound)
}

func TestAppendRequiresIdentity(t *testing.T) {
	store := openTestStore(t)
	err := store.Append(context.Background(), &release.Release{ID: "rel-1"})
	assert.ErrorIs(t, err, release.ErrValidation)
	err = store.Append(context.Background(), nil)
	assert.ErrorIs(t, err, release.ErrValidation)
}

func TestLatestAndLastSucceeded(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, testRelease("rel-1", "staging", release.StatusSucceeded)))
	require.NoError(t, store.Append(ctx, testRelease("rel-2", "staging", release.StatusFailed)))
	require.NoError(t, store.Append(ctx, testRelease("rel-3", "prod", release.StatusSucceeded)))

	latest, err := store.Latest(ctx, "staging")
	require.NoError(t, err)
	assert.Equal(t, "rel-2", latest.ID)

	succeeded, err := store.LastSucceeded(ctx, "staging")
	require.NoError(t, err)
	assert.Equal(t, "rel-1", succeeded.ID)

	_, err = store.Latest(ctx, "empty")
	assert.ErrorIs(t, err, release.ErrNotFound)
	_, err = store.LastSucceeded(ctx, "empty")
	assert.ErrorIs(t, err, release.ErrNotFound)
}

func TestHistoryIsChainedInAppendOrder(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	rel := testRelease("rel-1", "staging", release.StatusPlanned)
	require.NoError(t, store.Append(ctx, rel))
	rel.Status = release.StatusApplying
	require.NoError(t, store.Append(ctx, rel))
	rel.Status = release.StatusSucceeded
	require.NoError(t, store.Append(ctx, rel))
	require.NoError(t, store.Append(ctx, testRelease("rel-other", "prod", release.StatusPlanned)))

	entries, err := store.History(ctx, "staging")
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, genesisHash, entries[0].PrevHash)
	assert.Equal(t, entries[0].ContentHash, entries[1].PrevHash)
	assert.Equal(t, entries[1].ContentHash, entries[2].PrevHash)

	statuses := []release.Status{entries[0].Status, entries[1].Status, entries[2].Status}
	assert.Equal(t, []release.Status{release.StatusPlanned, release.StatusApplying, release.StatusSucceeded}, statuses)
	assert.True(t, entries[0].CreatedAt.Before(entries[2].CreatedAt))
}

func TestVerify(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	rel := testRelease("rel-1", "staging", release.StatusPlanned)
	require.NoError(t, store.Append(ctx, rel))
	rel.Status = release.StatusSucceeded
	require.NoError(t, store.Append(ctx, rel))

	require.NoError(t, store.Verify(ctx, "staging"))
	require.NoError(t, store.Verify(ctx, "empty"), "empty environment verifies trivially")

	// A tampered entry must break verification.
	_, err := store.db.ExecContext(ctx, `UPDATE ledger_entries SET status = 'failed' WHERE seq = 2`)
	require.NoError(t, err)

	err = store.Verify(ctx, "staging")
	assert.ErrorIs(t, err, release.ErrStateInconsistency)
}

func TestConcurrentAppendsKeepChainIntact(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 5; i++ {
				rel := testRelease(fmt.Sprintf("rel-%d-%d", g, i), "staging", release.StatusPlanned)
				if err := store.Append(ctx, rel); err != nil {
					t.Error(err)
				}
			}
		}(g)
	}
	wg.Wait()

	require.NoError(t, store.Verify(ctx, "staging"))

	entries, err := store.History(ctx, "staging")
	require.NoError(t, err)
	require.Len(t, entries, 20)

	// Racing appends must form one chain, never two entries off the same head.
	prev := genesisHash
	for _, entry := range entries {
		assert.Equal(t, prev, entry.PrevHash, "seq %d", entry.Seq)
		prev = entry.ContentHash
	}
}

func TestVerifyDetectsBrokenChain(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	rel := testRelease("rel-1", "staging", release.StatusPlanned)
	require.NoError(t, store.Append(ctx, rel))
	require.NoError(t, store.Append(ctx, testRelease("rel-2", "staging", release.StatusPlanned)))

	_, err := store.db.ExecContext(ctx, `UPDATE ledger_entries SET prev_hash = 'sha256:bogus' WHERE seq = 2`)
	require.NoError(t, err)

	err = store.Verify(ctx, "staging")
	assert.ErrorIs(t, err, release.ErrStateInconsistency)
}
