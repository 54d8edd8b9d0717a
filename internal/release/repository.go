package release

import "context"

// Ledger persists release lifecycle transitions as an append-only history per
// environment. Concurrent appends for the same environment are serialized by
// the executor's exclusive apply lock.
type Ledger interface {
	// Append records the release's current state as a new ledger entry.
	Append(ctx context.Context, rel *Release) error
	// Get returns the latest recorded snapshot of the release with the given ID.
	Get(ctx context.Context, releaseID string) (*Release, error)
	// Latest returns the most recently recorded release for the environment,
	// or ErrNotFound when the environment has no history.
	Latest(ctx context.Context, environment string) (*Release, error)
	// LastSucceeded returns the most recent release that reached
	// StatusSucceeded for the environment, or ErrNotFound.
	LastSucceeded(ctx context.Context, environment string) (*Release, error)
}
