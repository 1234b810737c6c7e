package ratelimit

import (
	"context"
	"time"
)

// Rule is the per-operation-class policy. New classes are added by
// registering a Rule; the limiter algorithm never special-cases a class.
type Rule struct {
	// Window is the sliding window attempts are counted over.
	Window time.Duration

	// MaxRequests is the attempt budget within Window.
	MaxRequests int

	// BlockDuration is how long an auto- or manually-created block lasts.
	BlockDuration time.Duration

	// SkipSuccessful excludes successful attempts from the window count.
	SkipSuccessful bool

	// SkipFailed excludes failed attempts from the window count.
	SkipFailed bool

	// FailureBlockThreshold is the number of failed attempts within the
	// failure lookback that escalates an over-limit identifier to a block.
	// Zero disables auto-blocking for the class.
	FailureBlockThreshold int
}

// Validate reports whether the rule is usable.
func (r Rule) Validate() error {
	if r.Window <= 0 || r.MaxRequests <= 0 {
		return ErrInvalidRule
	}
	return nil
}

// Attempt is an immutable log entry for one guarded operation.
type Attempt struct {
	Identifier string            `json:"identifier"`
	Class      string            `json:"class"`
	Succeeded  bool              `json:"succeeded"`
	At         time.Time         `json:"at"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Block is a temporary veto on an (identifier, class) pair.
type Block struct {
	Identifier string    `json:"identifier"`
	Class      string    `json:"class"`
	Reason     string    `json:"reason"`
	BlockedAt  time.Time `json:"blocked_at"`
	ExpiresAt  time.Time `json:"expires_at"`
	Attempts   int       `json:"attempts"`
}

// Expired reports whether the block is past its expiry.
func (b Block) Expired() bool {
	return time.Now().After(b.ExpiresAt)
}

// Result is the outcome of a rate limit check.
type Result struct {
	// Allowed indicates whether the operation may proceed.
	Allowed bool

	// Limit is the class budget within its window.
	Limit int

	// Remaining is the number of attempts left in the current window.
	Remaining int

	// RetryAfter hints how long to wait before retrying. Zero when allowed.
	RetryAfter time.Duration

	// Blocked is true when the rejection came from an active block rather
	// than the window count.
	Blocked bool

	// Reason is a human-readable rejection reason, empty when allowed.
	Reason string
}

// Outcome filters attempt counting by success flag.
type Outcome int

const (
	OutcomeAny Outcome = iota
	OutcomeSucceeded
	OutcomeFailed
)

// Store is the persistence backend for attempts and blocks. Implementations
// must prune attempts older than retention and cap retained attempts per
// (identifier, class) at maxRetained on every RecordAttempt.
type Store interface {
	// RecordAttempt appends an attempt to the log.
	RecordAttempt(ctx context.Context, a Attempt, retention time.Duration, maxRetained int) error

	// CountAttempts counts attempts at or after since, filtered by outcome.
	CountAttempts(ctx context.Context, identifier, class string, since time.Time, outcome Outcome) (int, error)

	// GetBlock returns the active block for the pair, or nil when there is
	// none. Expired blocks are removed lazily and reported as absent.
	GetBlock(ctx context.Context, identifier, class string) (*Block, error)

	// SetBlock stores a block, replacing any existing one for the pair.
	SetBlock(ctx context.Context, b Block) error

	// DeleteBlock removes the block for the pair, if any.
	DeleteBlock(ctx context.Context, identifier, class string) error

	// Close releases store resources.
	Close() error
}
