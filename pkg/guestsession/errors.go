package guestsession

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrSessionNotFound indicates no session exists for the given ID.
	ErrSessionNotFound = errors.New("guestsession: session not found")

	// ErrSessionExpired indicates the session exists but is past its TTL.
	ErrSessionExpired = errors.New("guestsession: session expired")

	// ErrInvalidSession indicates a mutation targeted a missing or expired
	// session.
	ErrInvalidSession = errors.New("guestsession: invalid or expired session")

	// ErrInvalidFingerprint indicates the fingerprint fails format validation.
	ErrInvalidFingerprint = errors.New("guestsession: invalid fingerprint")

	// ErrFingerprintBlocked indicates the anomaly detector vetoed the device.
	ErrFingerprintBlocked = errors.New("guestsession: fingerprint blocked")

	// ErrTooManySessions indicates the per-device session ceiling was hit.
	ErrTooManySessions = errors.New("guestsession: too many sessions for device")

	// ErrTableBusy indicates the per-table session ceiling was hit.
	ErrTableBusy = errors.New("guestsession: table is at capacity")

	// ErrRateLimited indicates the rate limiter rejected session creation.
	// Returned wrapped in a RateLimitedError carrying the retry hint.
	ErrRateLimited = errors.New("guestsession: rate limited")

	// ErrStoreIDRequired indicates a visit without a store context.
	ErrStoreIDRequired = errors.New("guestsession: store id is required")

	// ErrNilSession indicates a nil session was passed to the store.
	ErrNilSession = errors.New("guestsession: nil session")

	// ErrSnapshotVersion indicates the persisted snapshot has an
	// incompatible schema version and was discarded.
	ErrSnapshotVersion = errors.New("guestsession: incompatible snapshot version")
)

// RateLimitedError is returned when session creation is throttled. It
// matches ErrRateLimited under errors.Is.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("guestsession: rate limited, retry after %s", e.RetryAfter)
}

func (e *RateLimitedError) Is(target error) bool {
	return target == ErrRateLimited
}
