package guestsession

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// snapshotVersion is the persisted schema version. A mismatch on load
// discards the stored data: one-way migration, no field-by-field upgrade.
const snapshotVersion = "1"

// Medium is a durable byte store the session store snapshots into.
//
// The medium is shared mutable state: another process (or browser tab, in
// the original client-side model) may change it between our reads and
// writes. Watch surfaces external change notifications so the store can
// resynchronize; media without change detection return a nil channel.
type Medium interface {
	// Load returns the last saved snapshot, or (nil, nil) when empty.
	Load(ctx context.Context) ([]byte, error)

	// Save replaces the snapshot.
	Save(ctx context.Context, data []byte) error

	// Watch returns a channel that signals external snapshot changes.
	// A nil channel means the medium cannot detect external changes.
	// Consumers stop receiving when ctx is cancelled; media may also end
	// the subscription by closing the channel.
	Watch(ctx context.Context) (<-chan struct{}, error)
}

type snapshotMetadata struct {
	LastCleanup  time.Time `json:"last_cleanup"`
	TotalCreated int64     `json:"total_created"`
	Version      string    `json:"version"`
}

type snapshotDocument struct {
	Sessions map[string]*Session `json:"sessions"`
	Metadata snapshotMetadata    `json:"metadata"`
}

func encodeSnapshot(sessions map[uuid.UUID]*Session, meta snapshotMetadata) ([]byte, error) {
	doc := snapshotDocument{
		Sessions: make(map[string]*Session, len(sessions)),
		Metadata: meta,
	}
	doc.Metadata.Version = snapshotVersion

	for id, s := range sessions {
		doc.Sessions[id.String()] = s
	}
	return json.Marshal(doc)
}

// decodeSnapshot parses a snapshot document. Timestamps come back as real
// time.Time values via encoding/json. Records with unparseable IDs are
// skipped rather than failing the whole load.
func decodeSnapshot(data []byte) (map[uuid.UUID]*Session, snapshotMetadata, error) {
	var doc snapshotDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, snapshotMetadata{}, err
	}
	if doc.Metadata.Version != snapshotVersion {
		return nil, snapshotMetadata{}, ErrSnapshotVersion
	}

	sessions := make(map[uuid.UUID]*Session, len(doc.Sessions))
	for raw, s := range doc.Sessions {
		id, err := uuid.Parse(raw)
		if err != nil || s == nil {
			continue
		}
		s.ID = id
		sessions[id] = s
	}
	return sessions, doc.Metadata, nil
}

// FileMedium persists snapshots to a local file with atomic writes.
type FileMedium struct {
	path string
}

// NewFileMedium creates a file-backed medium at the given path. Parent
// directories are created on first save.
func NewFileMedium(path string) *FileMedium {
	return &FileMedium{path: path}
}

func (m *FileMedium) Load(ctx context.Context) ([]byte, error) {
	data, err := os.ReadFile(m.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Save writes to a temp file and renames, so a crash mid-write never leaves
// a truncated snapshot behind.
func (m *FileMedium) Save(ctx context.Context, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(m.path), 0o755); err != nil {
		return err
	}

	tmp := m.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, m.path)
}

// Watch returns nil: the file medium has no external change detection.
func (m *FileMedium) Watch(ctx context.Context) (<-chan struct{}, error) {
	return nil, nil
}
