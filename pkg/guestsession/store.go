package guestsession

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Stats summarizes the store contents.
type Stats struct {
	Total         int            `json:"total"`
	Active        int            `json:"active"`
	Authenticated int            `json:"authenticated"`
	Anonymous     int            `json:"anonymous"`
	ByStore       map[string]int `json:"by_store"`
	TotalCreated  int64          `json:"total_created"`
	LastCleanup   time.Time      `json:"last_cleanup"`
}

// Store is the canonical owner of session records and their indices.
type Store interface {
	// Get returns the session by ID. Expired records are deleted lazily
	// and reported as ErrSessionExpired.
	Get(ctx context.Context, id uuid.UUID) (*Session, error)

	// Put stores a new session.
	Put(ctx context.Context, s *Session) error

	// Update replaces an existing session, moving index entries when
	// indexed fields changed.
	Update(ctx context.Context, s *Session) error

	// UpdateActivity updates only the last activity time. Returns
	// ErrSessionNotFound or ErrSessionExpired for stale IDs.
	UpdateActivity(ctx context.Context, id uuid.UUID, at time.Time) error

	// Delete removes a session. Deleting a missing session is a no-op.
	Delete(ctx context.Context, id uuid.UUID) error

	// ByFingerprint returns the live session for a (fingerprint, store)
	// pair, or ErrSessionNotFound.
	ByFingerprint(ctx context.Context, fingerprint, storeID string) (*Session, error)

	// ActiveByFingerprint returns all live sessions for a device across
	// stores.
	ActiveByFingerprint(ctx context.Context, fingerprint string) ([]*Session, error)

	// ActiveByStore returns all live sessions for a store. Expired records
	// are filtered, not deleted: bulk deletion is Cleanup's job.
	ActiveByStore(ctx context.Context, storeID string) ([]*Session, error)

	// ActiveByTable returns all live sessions for a table.
	ActiveByTable(ctx context.Context, tableID string) ([]*Session, error)

	// Cleanup removes every record with ExpiresAt before olderThan and
	// returns the count removed. Persists once at the end.
	Cleanup(ctx context.Context, olderThan time.Time) (int, error)

	// Stats returns store statistics.
	Stats(ctx context.Context) (Stats, error)

	// Close stops background work and persists a final snapshot.
	Close() error
}
