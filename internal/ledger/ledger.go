// Package ledger persists release history as an append-only, per-environment
// hash-chained log backed by SQLite. Entries carry the full resolved release
// snapshot so history never requires replaying template resolution.
package ledger

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/rollout-k8s/rolloutctl/internal/canon"
	"github.com/rollout-k8s/rolloutctl/internal/release"
)

//go:embed migrations/*.sql
var migrations embed.FS

// genesisHash seeds each environment's hash chain.
const genesisHash = "genesis"

// Entry is one immutable record of a release lifecycle transition. Entries
// are never mutated after append; per environment they form a total order
// consistent with real-time release creation.
type Entry struct {
	// Seq is the global append sequence number.
	Seq int64 `json:"seq"`
	// Environment is the entry's environment key.
	Environment string `json:"environment"`
	// ReleaseID identifies the release the entry belongs to.
	ReleaseID string `json:"releaseId"`
	// Status is the release status recorded by this entry.
	Status release.Status `json:"status"`
	// Snapshot is the full release at the time of the transition.
	Snapshot release.Release `json:"snapshot"`
	// ContentHash is the hash of this entry's chained content.
	ContentHash string `json:"contentHash"`
	// PrevHash links to the previous entry for the same environment.
	PrevHash string `json:"prevHash"`
	// CreatedAt is the append timestamp.
	CreatedAt time.Time `json:"createdAt"`
}

// Store implements [release.Ledger] backed by SQLite.
type Store struct {
	db    *sql.DB
	clock func() time.Time

	// appendMu serializes appends so the head read and the chained insert
	// cannot interleave between callers sharing this store.
	appendMu sync.Mutex
}

// Open opens (or creates) the ledger database at the given path and runs all
// pending migrations. Use ":memory:" for an in-memory ledger.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open ledger database: %w", err)
	}
	// Single connection: SQLite allows one writer anyway, and :memory:
	// databases exist per connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set goose dialect: %w", err)
	}
	goose.SetLogger(goose.NopLogger())
	if err := goose.Up(db, "migrations"); err != nil {
		db.Close()
		return nil, fmt.Errorf("run ledger migrations: %w", err)
	}

	return &Store{db: db, clock: time.Now}, nil
}

// WithClock overrides the append timestamp source. Intended for tests.
func (s *Store) WithClock(clock func() time.Time) *Store {
	s.clock = clock
	return s
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// Append records the release's current state as a new ledger entry chained to
// the environment's previous entry. Head read and insert run in one
// transaction so a racing append fails instead of forking the chain; an entry
// is recorded either fully or not at all.
func (s *Store) Append(ctx context.Context, rel *release.Release) error {
	if rel == nil {
		return fmt.Errorf("release is nil: %w", release.ErrValidation)
	}
	if rel.Environment == "" || rel.ID == "" {
		return fmt.Errorf("release must have an id and environment: %w", release.ErrValidation)
	}

	snapshot, err := json.Marshal(rel)
	if err != nil {
		return fmt.Errorf("marshal release snapshot: %w", err)
	}

	s.appendMu.Lock()
	defer s.appendMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin ledger append: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	prevHash, err := headHash(ctx, tx, rel.Environment)
	if err != nil {
		return err
	}
	contentHash, err := chainHash(rel.ID, rel.Status, snapshot, prevHash)
	if err != nil {
		return err
	}

	createdAt := s.clock().UTC()
	_, err = tx.ExecContext(ctx,
		`INSERT INTO ledger_entries (environment, release_id, status, snapshot, content_hash, prev_hash, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rel.Environment, rel.ID, string(rel.Status), string(snapshot), contentHash, prevHash,
		createdAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("append ledger entry: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit ledger append: %w", err)
	}
	return nil
}

// Get returns the latest recorded snapshot of the release with the given ID.
func (s *Store) Get(ctx context.Context, releaseID string) (*release.Release, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT snapshot FROM ledger_entries WHERE release_id = ? ORDER BY seq DESC LIMIT 1`,
		releaseID,
	)
	rel, err := scanSnapshot(row)
	if err != nil {
		if errors.Is(err, release.ErrNotFound) {
			return nil, fmt.Errorf("release %q: %w", releaseID, release.ErrNotFound)
		}
		return nil, err
	}
	return rel, nil
}

// Latest returns the most recently recorded release for the environment.
func (s *Store) Latest(ctx context.Context, environment string) (*release.Release, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT snapshot FROM ledger_entries WHERE environment = ? ORDER BY seq DESC LIMIT 1`,
		environment,
	)
	rel, err := scanSnapshot(row)
	if err != nil {
		if errors.Is(err, release.ErrNotFound) {
			return nil, fmt.Errorf("environment %q has no history: %w", environment, release.ErrNotFound)
		}
		return nil, err
	}
	return rel, nil
}

// LastSucceeded returns the most recent release that reached
// [release.StatusSucceeded] for the environment.
func (s *Store) LastSucceeded(ctx context.Context, environment string) (*release.Release, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT snapshot FROM ledger_entries WHERE environment = ? AND status = ? ORDER BY seq DESC LIMIT 1`,
		environment, string(release.StatusSucceeded),
	)
	rel, err := scanSnapshot(row)
	if err != nil {
		if errors.Is(err, release.ErrNotFound) {
			return nil, fmt.Errorf("environment %q has no succeeded release: %w", environment, release.ErrNotFound)
		}
		return nil, err
	}
	return rel, nil
}

// History returns all entries for the environment in append order.
func (s *Store) History(ctx context.Context, environment string) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, environment, release_id, status, snapshot, content_hash, prev_hash, created_at
		 FROM ledger_entries WHERE environment = ? ORDER BY seq ASC`,
		environment,
	)
	if err != nil {
		return nil, fmt.Errorf("query ledger history: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Verify walks the environment's hash chain and recomputes every entry hash.
// Any break is reported as a state inconsistency; it is never auto-repaired.
func (s *Store) Verify(ctx context.Context, environment string) error {
	entries, err := s.History(ctx, environment)
	if err != nil {
		return err
	}

	prevHash := genesisHash
	for _, entry := range entries {
		if entry.PrevHash != prevHash {
			return fmt.Errorf("ledger chain broken at seq %d for %q: expected prev %s, got %s: %w",
				entry.Seq, environment, prevHash, entry.PrevHash, release.ErrStateInconsistency)
		}
		snapshot, err := json.Marshal(entry.Snapshot)
		if err != nil {
			return fmt.Errorf("marshal snapshot at seq %d: %w", entry.Seq, err)
		}
		computed, err := chainHash(entry.ReleaseID, entry.Status, snapshot, entry.PrevHash)
		if err != nil {
			return err
		}
		if computed != entry.ContentHash {
			return fmt.Errorf("ledger hash mismatch at seq %d for %q: %w",
				entry.Seq, environment, release.ErrStateInconsistency)
		}
		prevHash = entry.ContentHash
	}
	return nil
}

// headHash returns the content hash of the environment's latest entry, or the
// genesis hash when the environment has no history yet.
func headHash(ctx context.Context, tx *sql.Tx, environment string) (string, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT content_hash FROM ledger_entries WHERE environment = ? ORDER BY seq DESC LIMIT 1`,
		environment,
	)
	var head string
	if err := row.Scan(&head); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return genesisHash, nil
		}
		return "", fmt.Errorf("read ledger head: %w", err)
	}
	return head, nil
}

// chainHash computes the canonical content hash binding an entry to its
// predecessor.
func chainHash(releaseID string, status release.Status, snapshot []byte, prevHash string) (string, error) {
	hash, err := canon.Hash(struct {
		ReleaseID string          `json:"releaseId"`
		Status    string          `json:"status"`
		Snapshot  json.RawMessage `json:"snapshot"`
		Prev      string          `json:"prev"`
	}{releaseID, string(status), snapshot, prevHash})
	if err != nil {
		return "", fmt.Errorf("hash ledger entry: %w", err)
	}
	return hash, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(s scanner) (*release.Release, error) {
	var snapshot string
	if err := s.Scan(&snapshot); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, release.ErrNotFound
		}
		return nil, fmt.Errorf("scan ledger snapshot: %w", err)
	}
	var rel release.Release
	if err := json.Unmarshal([]byte(snapshot), &rel); err != nil {
		return nil, fmt.Errorf("decode release snapshot: %w", release.ErrStateInconsistency)
	}
	return &rel, nil
}

func scanEntry(s scanner) (Entry, error) {
	var entry Entry
	var status, snapshot, createdAt string
	if err := s.Scan(&entry.Seq, &entry.Environment, &entry.ReleaseID, &status, &snapshot, &entry.ContentHash, &entry.PrevHash, &createdAt); err != nil {
		return entry, fmt.Errorf("scan ledger entry: %w", err)
	}
	entry.Status = release.Status(status)
	if err := json.Unmarshal([]byte(snapshot), &entry.Snapshot); err != nil {
		return entry, fmt.Errorf("decode snapshot at seq %d: %w", entry.Seq, release.ErrStateInconsistency)
	}
	parsed, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return entry, fmt.Errorf("parse created_at at seq %d: %w", entry.Seq, release.ErrStateInconsistency)
	}
	entry.CreatedAt = parsed
	return entry, nil
}
