package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryStore implements Store with in-process maps. Suitable for
// single-instance deployments and tests.
type MemoryStore struct {
	mu       sync.Mutex
	attempts map[string][]Attempt
	blocks   map[string]Block

	// maxRetention tracks the longest retention any caller has used, so the
	// background sweep never reclaims attempts a rule may still count.
	maxRetention time.Duration

	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	cleanupOnce     sync.Once
}

// MemoryStoreOption configures a MemoryStore.
type MemoryStoreOption func(*MemoryStore)

// WithCleanupInterval sets how often stale attempts and expired blocks are
// swept. Zero disables the background sweep.
func WithCleanupInterval(interval time.Duration) MemoryStoreOption {
	return func(s *MemoryStore) {
		s.cleanupInterval = interval
	}
}

// NewMemoryStore creates an in-memory store with a background sweep.
func NewMemoryStore(opts ...MemoryStoreOption) *MemoryStore {
	s := &MemoryStore{
		attempts:        make(map[string][]Attempt),
		blocks:          make(map[string]Block),
		cleanupInterval: time.Minute,
		stopCleanup:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.cleanupInterval > 0 {
		go s.cleanupLoop()
	}

	return s
}

func pairKey(identifier, class string) string {
	return class + "\x00" + identifier
}

// RecordAttempt appends an attempt, pruning entries older than retention and
// capping the log at maxRetained in the same critical section.
func (s *MemoryStore) RecordAttempt(ctx context.Context, a Attempt, retention time.Duration, maxRetained int) error {
	key := pairKey(a.Identifier, a.Class)
	cutoff := a.At.Add(-retention)

	s.mu.Lock()
	defer s.mu.Unlock()

	if retention > s.maxRetention {
		s.maxRetention = retention
	}

	log := s.attempts[key]
	kept := make([]Attempt, 0, len(log)+1)
	for _, prev := range log {
		if prev.At.After(cutoff) {
			kept = append(kept, prev)
		}
	}
	kept = append(kept, a)

	if maxRetained > 0 && len(kept) > maxRetained {
		kept = kept[len(kept)-maxRetained:]
	}

	s.attempts[key] = kept
	return nil
}

// CountAttempts counts attempts at or after since, filtered by outcome.
func (s *MemoryStore) CountAttempts(ctx context.Context, identifier, class string, since time.Time, outcome Outcome) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, a := range s.attempts[pairKey(identifier, class)] {
		if a.At.Before(since) {
			continue
		}
		switch outcome {
		case OutcomeSucceeded:
			if !a.Succeeded {
				continue
			}
		case OutcomeFailed:
			if a.Succeeded {
				continue
			}
		}
		count++
	}
	return count, nil
}

// GetBlock returns the active block for the pair, lazily deleting it when
// expired.
func (s *MemoryStore) GetBlock(ctx context.Context, identifier, class string) (*Block, error) {
	key := pairKey(identifier, class)

	s.mu.Lock()
	defer s.mu.Unlock()

	block, exists := s.blocks[key]
	if !exists {
		return nil, nil
	}
	if block.Expired() {
		delete(s.blocks, key)
		return nil, nil
	}

	blockCopy := block
	return &blockCopy, nil
}

func (s *MemoryStore) SetBlock(ctx context.Context, b Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.blocks[pairKey(b.Identifier, b.Class)] = b
	return nil
}

func (s *MemoryStore) DeleteBlock(ctx context.Context, identifier, class string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.blocks, pairKey(identifier, class))
	return nil
}

// Close stops the background sweep.
func (s *MemoryStore) Close() error {
	s.cleanupOnce.Do(func() {
		close(s.stopCleanup)
	})
	return nil
}

func (s *MemoryStore) cleanupLoop() {
	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.cleanup()
		case <-s.stopCleanup:
			return
		}
	}
}

// cleanup drops expired blocks and attempt logs whose newest entry is beyond
// the longest retention any rule uses.
func (s *MemoryStore) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for key, block := range s.blocks {
		if now.After(block.ExpiresAt) {
			delete(s.blocks, key)
		}
	}

	retention := s.maxRetention
	if retention < failureLookback {
		retention = failureLookback
	}
	horizon := now.Add(-retention)
	for key, log := range s.attempts {
		if len(log) == 0 || !log[len(log)-1].At.After(horizon) {
			delete(s.attempts, key)
		}
	}
}
