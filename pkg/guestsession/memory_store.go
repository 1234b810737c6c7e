package guestsession

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore implements Store with an in-memory primary map and three
// secondary indices. All index maintenance happens inside the same critical
// section as the primary mutation, so a session is either fully indexed or
// fully absent.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*Session

	// Secondary indices, derived from the primary map and never persisted.
	byFingerprint map[string]map[uuid.UUID]struct{}
	byStore       map[string]map[uuid.UUID]struct{}
	byTable       map[string]map[uuid.UUID]struct{}

	medium Medium
	log    *slog.Logger
	meta   snapshotMetadata

	// memoryOnly is set after persistence fails twice in a row; from then
	// on the in-memory state is authoritative for the process lifetime.
	memoryOnly bool

	watchCancel context.CancelFunc
	watchDone   chan struct{}
	closeOnce   sync.Once
}

// StoreOption configures a MemoryStore.
type StoreOption func(*MemoryStore)

// WithMedium attaches a durable medium the store snapshots into after every
// mutation and rehydrates from on startup.
func WithMedium(m Medium) StoreOption {
	return func(s *MemoryStore) {
		s.medium = m
	}
}

// WithStoreLogger sets the logger for persistence degradation events.
func WithStoreLogger(log *slog.Logger) StoreOption {
	return func(s *MemoryStore) {
		if log != nil {
			s.log = log
		}
	}
}

// NewMemoryStore creates a session store, rehydrating from the medium when
// one is attached. A snapshot with an incompatible version is discarded and
// the store starts empty.
func NewMemoryStore(opts ...StoreOption) (*MemoryStore, error) {
	s := &MemoryStore{
		sessions:      make(map[uuid.UUID]*Session),
		byFingerprint: make(map[string]map[uuid.UUID]struct{}),
		byStore:       make(map[string]map[uuid.UUID]struct{}),
		byTable:       make(map[string]map[uuid.UUID]struct{}),
		log:           slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.medium != nil {
		if err := s.rehydrate(context.Background()); err != nil {
			return nil, err
		}
		s.startWatch()
	}

	return s, nil
}

// rehydrate loads the snapshot and rebuilds indices from the primary records.
func (s *MemoryStore) rehydrate(ctx context.Context) error {
	data, err := s.medium.Load(ctx)
	if err != nil {
		// Unreadable medium degrades to an empty in-memory store rather
		// than refusing to start.
		s.log.Error("session snapshot load failed, starting empty", slog.Any("error", err))
		return nil
	}
	if len(data) == 0 {
		return nil
	}

	sessions, meta, err := decodeSnapshot(data)
	if err != nil {
		s.log.Warn("session snapshot discarded", slog.Any("error", err))
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.meta = meta
	for id, sess := range sessions {
		s.sessions[id] = sess
		s.indexLocked(sess)
	}
	return nil
}

func (s *MemoryStore) startWatch() {
	ctx, cancel := context.WithCancel(context.Background())
	ch, err := s.medium.Watch(ctx)
	if err != nil {
		s.log.Warn("snapshot watch unavailable", slog.Any("error", err))
		cancel()
		return
	}
	if ch == nil {
		cancel()
		return
	}

	s.watchCancel = cancel
	s.watchDone = make(chan struct{})
	go func() {
		defer close(s.watchDone)
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-ch:
				if !ok {
					return
				}
				s.resync(ctx)
			}
		}
	}()
}

// resync merges an externally changed snapshot into the in-memory state.
// Conflicts resolve last-write-wins on LastActivity; local sessions the
// snapshot does not know about are kept until cleanup decides otherwise.
func (s *MemoryStore) resync(ctx context.Context) {
	data, err := s.medium.Load(ctx)
	if err != nil || len(data) == 0 {
		return
	}
	loaded, meta, err := decodeSnapshot(data)
	if err != nil {
		s.log.Warn("external snapshot ignored during resync", slog.Any("error", err))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for id, incoming := range loaded {
		current, exists := s.sessions[id]
		if exists && !incoming.LastActivity.After(current.LastActivity) {
			continue
		}
		if exists {
			s.unindexLocked(current)
		}
		s.sessions[id] = incoming
		s.indexLocked(incoming)
	}

	if meta.TotalCreated > s.meta.TotalCreated {
		s.meta.TotalCreated = meta.TotalCreated
	}
	if meta.LastCleanup.After(s.meta.LastCleanup) {
		s.meta.LastCleanup = meta.LastCleanup
	}
}

func addToIndex(idx map[string]map[uuid.UUID]struct{}, key string, id uuid.UUID) {
	if key == "" {
		return
	}
	bucket, ok := idx[key]
	if !ok {
		bucket = make(map[uuid.UUID]struct{})
		idx[key] = bucket
	}
	bucket[id] = struct{}{}
}

func removeFromIndex(idx map[string]map[uuid.UUID]struct{}, key string, id uuid.UUID) {
	if key == "" {
		return
	}
	bucket, ok := idx[key]
	if !ok {
		return
	}
	delete(bucket, id)
	if len(bucket) == 0 {
		delete(idx, key)
	}
}

func (s *MemoryStore) indexLocked(sess *Session) {
	addToIndex(s.byFingerprint, sess.Fingerprint, sess.ID)
	addToIndex(s.byStore, sess.StoreID, sess.ID)
	addToIndex(s.byTable, sess.TableID, sess.ID)
}

func (s *MemoryStore) unindexLocked(sess *Session) {
	removeFromIndex(s.byFingerprint, sess.Fingerprint, sess.ID)
	removeFromIndex(s.byStore, sess.StoreID, sess.ID)
	removeFromIndex(s.byTable, sess.TableID, sess.ID)
}

func (s *MemoryStore) removeLocked(sess *Session) {
	s.unindexLocked(sess)
	delete(s.sessions, sess.ID)
}

func copySession(sess *Session) *Session {
	c := *sess
	return &c
}

// Get returns the session by ID, lazily deleting it when expired.
func (s *MemoryStore) Get(ctx context.Context, id uuid.UUID) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, exists := s.sessions[id]
	if !exists {
		return nil, ErrSessionNotFound
	}
	if sess.IsExpired() {
		s.removeLocked(sess)
		s.persistLocked(ctx)
		return nil, ErrSessionExpired
	}
	return copySession(sess), nil
}

// Put stores a new session and updates all indices atomically.
func (s *MemoryStore) Put(ctx context.Context, sess *Session) error {
	if sess == nil {
		return ErrNilSession
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored := copySession(sess)
	if existing, ok := s.sessions[stored.ID]; ok {
		s.unindexLocked(existing)
	} else {
		s.meta.TotalCreated++
	}
	s.sessions[stored.ID] = stored
	s.indexLocked(stored)
	s.persistLocked(ctx)
	return nil
}

// Update replaces an existing session, moving index entries when indexed
// fields changed.
func (s *MemoryStore) Update(ctx context.Context, sess *Session) error {
	if sess == nil {
		return ErrNilSession
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.sessions[sess.ID]
	if !ok {
		return ErrSessionNotFound
	}

	stored := copySession(sess)
	s.unindexLocked(existing)
	s.sessions[stored.ID] = stored
	s.indexLocked(stored)
	s.persistLocked(ctx)
	return nil
}

// UpdateActivity updates only the last activity timestamp.
func (s *MemoryStore) UpdateActivity(ctx context.Context, id uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, exists := s.sessions[id]
	if !exists {
		return ErrSessionNotFound
	}
	if sess.IsExpired() {
		return ErrSessionExpired
	}

	sess.LastActivity = at
	s.persistLocked(ctx)
	return nil
}

// Delete removes a session. Deleting a missing session is a no-op.
func (s *MemoryStore) Delete(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, exists := s.sessions[id]
	if !exists {
		return nil
	}
	s.removeLocked(sess)
	s.persistLocked(ctx)
	return nil
}

// ByFingerprint returns the live session for a (fingerprint, store) pair.
func (s *MemoryStore) ByFingerprint(ctx context.Context, fingerprint, storeID string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id := range s.byFingerprint[fingerprint] {
		sess := s.sessions[id]
		if sess == nil || sess.StoreID != storeID || sess.IsExpired() {
			continue
		}
		return copySession(sess), nil
	}
	return nil, ErrSessionNotFound
}

// ActiveByFingerprint returns all live sessions for a device across stores.
func (s *MemoryStore) ActiveByFingerprint(ctx context.Context, fingerprint string) ([]*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.collectLocked(s.byFingerprint[fingerprint]), nil
}

// ActiveByStore returns live sessions for a store. Expired records are
// filtered without deleting: bulk removal is Cleanup's job, and deleting
// here would mutate the index being iterated.
func (s *MemoryStore) ActiveByStore(ctx context.Context, storeID string) ([]*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.collectLocked(s.byStore[storeID]), nil
}

// ActiveByTable returns live sessions for a table.
func (s *MemoryStore) ActiveByTable(ctx context.Context, tableID string) ([]*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.collectLocked(s.byTable[tableID]), nil
}

func (s *MemoryStore) collectLocked(bucket map[uuid.UUID]struct{}) []*Session {
	result := make([]*Session, 0, len(bucket))
	for id := range bucket {
		sess := s.sessions[id]
		if sess == nil || sess.IsExpired() {
			continue
		}
		result = append(result, copySession(sess))
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result
}

// Cleanup removes every record with ExpiresAt before olderThan, persisting
// once at the end rather than per record.
func (s *MemoryStore) Cleanup(ctx context.Context, olderThan time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for _, sess := range s.sessions {
		if sess.ExpiresAt.Before(olderThan) {
			s.removeLocked(sess)
			removed++
		}
	}

	// The timestamp update alone changes the snapshot, so persist even when
	// nothing was removed.
	s.meta.LastCleanup = time.Now()
	s.persistLocked(ctx)
	return removed, nil
}

// Stats returns store statistics.
func (s *MemoryStore) Stats(ctx context.Context) (Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := Stats{
		Total:        len(s.sessions),
		ByStore:      make(map[string]int, len(s.byStore)),
		TotalCreated: s.meta.TotalCreated,
		LastCleanup:  s.meta.LastCleanup,
	}
	for _, sess := range s.sessions {
		if !sess.IsExpired() {
			stats.Active++
		}
		if sess.IsAuthenticated {
			stats.Authenticated++
		} else {
			stats.Anonymous++
		}
		stats.ByStore[sess.StoreID]++
	}
	return stats, nil
}

// Close stops the watch goroutine and persists a final snapshot.
func (s *MemoryStore) Close() error {
	s.closeOnce.Do(func() {
		if s.watchCancel != nil {
			s.watchCancel()
			<-s.watchDone
		}
		s.mu.Lock()
		s.persistLocked(context.Background())
		s.mu.Unlock()
	})
	return nil
}

// persistLocked snapshots the store into the medium. On failure it evicts
// the oldest half of the records and retries once; a second failure flips
// the store to memory-only for the rest of the process lifetime. Callers
// never see persistence errors.
func (s *MemoryStore) persistLocked(ctx context.Context) {
	if s.medium == nil || s.memoryOnly {
		return
	}

	data, err := encodeSnapshot(s.sessions, s.meta)
	if err != nil {
		s.log.Error("session snapshot encode failed", slog.Any("error", err))
		return
	}

	err = s.medium.Save(ctx, data)
	if err == nil {
		return
	}
	s.log.Warn("session snapshot save failed, evicting oldest half", slog.Any("error", err))

	s.evictOldestHalfLocked()

	data, err = encodeSnapshot(s.sessions, s.meta)
	if err != nil {
		s.log.Error("session snapshot encode failed", slog.Any("error", err))
		return
	}
	if err := s.medium.Save(ctx, data); err != nil {
		s.memoryOnly = true
		s.log.Error("session snapshot save failed twice, continuing memory-only", slog.Any("error", err))
	}
}

// evictOldestHalfLocked drops the oldest 50% of records by CreatedAt to
// shrink the snapshot under the medium's capacity limits.
func (s *MemoryStore) evictOldestHalfLocked() {
	if len(s.sessions) == 0 {
		return
	}

	ordered := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		ordered = append(ordered, sess)
	}
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].CreatedAt.Before(ordered[j].CreatedAt)
	})

	for _, sess := range ordered[:len(ordered)/2] {
		s.removeLocked(sess)
	}
}
