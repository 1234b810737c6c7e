package guestsession

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/guestkit/pkg/fingerprint"
	"github.com/dmitrymomot/guestkit/pkg/ratelimit"
)

// createClass is the rate-limit operation class guarding session creation.
const createClass = "session-create"

// Verdict is the anomaly detector's judgment of a fingerprint. The manager
// treats it as opaque: risk scoring lives in the collaborator.
type Verdict struct {
	Valid      bool
	Suspicious bool
	Blocked    bool
}

// FingerprintChecker is the outbound anomaly detection collaborator.
type FingerprintChecker interface {
	CheckFingerprint(ctx context.Context, fp string) (Verdict, error)
}

// AbuseLimiter is the slice of the rate limiter the manager needs.
// *ratelimit.Limiter satisfies it.
type AbuseLimiter interface {
	Check(ctx context.Context, identifier, class string) (*ratelimit.Result, error)
	Record(ctx context.Context, identifier, class string, succeeded bool, metadata map[string]string) error
}

// Validation is the result of checking a session ID.
type Validation struct {
	Valid   bool
	Expired bool
	Active  bool
	Session *Session
	Reason  string
}

// Manager orchestrates session lifecycle: it validates creation requests
// against the rate limiter and fingerprint checks, deduplicates live
// sessions per device and store, applies duration policy, and emits audit
// events. It holds no session state of its own; the Store owns the records.
type Manager struct {
	store   Store
	limiter AbuseLimiter
	checker FingerprintChecker
	cfg     Config
	log     *slog.Logger
	hub     *eventHub

	done      chan struct{}
	closeOnce sync.Once
}

// Option configures a Manager.
type Option func(*Manager)

// WithStore sets the session store. Defaults to a memory store without a
// durable medium.
func WithStore(store Store) Option {
	return func(m *Manager) { m.store = store }
}

// WithRateLimiter guards session creation with the given limiter. Without
// one, creation is unthrottled.
func WithRateLimiter(limiter AbuseLimiter) Option {
	return func(m *Manager) { m.limiter = limiter }
}

// WithFingerprintChecker wires the anomaly detection collaborator.
func WithFingerprintChecker(checker FingerprintChecker) Option {
	return func(m *Manager) { m.checker = checker }
}

// WithConfig replaces the default session policy.
func WithConfig(cfg Config) Option {
	return func(m *Manager) { m.cfg = cfg }
}

// WithLogger sets the manager's logger.
func WithLogger(log *slog.Logger) Option {
	return func(m *Manager) {
		if log != nil {
			m.log = log
		}
	}
}

// WithListener registers an event listener at construction time.
func WithListener(l Listener) Option {
	return func(m *Manager) { m.hub.subscribe(l) }
}

// New creates a session manager. The cleanup sweep starts when AutoCleanup
// is enabled; Close stops it.
func New(opts ...Option) (*Manager, error) {
	m := &Manager{
		cfg:  DefaultConfig(),
		log:  slog.Default(),
		done: make(chan struct{}),
	}
	m.hub = newEventHub(m.log)

	for _, opt := range opts {
		opt(m)
	}
	m.hub.log = m.log

	if m.store == nil {
		store, err := NewMemoryStore(WithStoreLogger(m.log))
		if err != nil {
			return nil, err
		}
		m.store = store
	}

	if m.cfg.AutoCleanup && m.cfg.CleanupInterval > 0 {
		go m.cleanupLoop()
	}

	return m, nil
}

// Subscribe registers an audit listener for lifecycle events.
func (m *Manager) Subscribe(l Listener) {
	m.hub.subscribe(l)
}

// CreateSession returns a session for the visit, creating one if the device
// has no live session at the store. Creation is idempotent per
// (fingerprint, store): a repeated call before expiry returns the existing
// session with its activity refreshed.
func (m *Manager) CreateSession(ctx context.Context, v Visit) (*Session, error) {
	if err := v.Validate(); err != nil {
		return nil, err
	}
	if !fingerprint.ValidFormat(v.Fingerprint) {
		return nil, ErrInvalidFingerprint
	}

	if err := m.checkFingerprint(ctx, v.Fingerprint); err != nil {
		return nil, err
	}

	if err := m.checkCreateLimit(ctx, v.IPAddress); err != nil {
		return nil, err
	}

	// Idempotent creation: one live session per device per store.
	if existing, err := m.store.ByFingerprint(ctx, v.Fingerprint, v.StoreID); err == nil {
		existing.Touch()
		if err := m.store.UpdateActivity(ctx, existing.ID, existing.LastActivity); err != nil {
			m.log.Warn("activity refresh on dedup failed", slog.Any("error", err))
		}
		m.recordCreateAttempt(ctx, v, true)
		return existing, nil
	}

	if err := m.checkCeilings(ctx, v); err != nil {
		m.recordCreateAttempt(ctx, v, false)
		return nil, err
	}

	sess := NewSession(v, m.cfg.sessionDuration(v.IsDelivery))
	if err := m.store.Put(ctx, sess); err != nil {
		m.recordCreateAttempt(ctx, v, false)
		return nil, err
	}

	m.recordCreateAttempt(ctx, v, true)
	m.hub.emit(Event{Type: EventCreated, SessionID: sess.ID, StoreID: sess.StoreID, At: time.Now()})
	return sess, nil
}

// ValidateSession checks a session ID. Missing and expired sessions are
// reported in the Validation, not as errors: both are normal outcomes the
// caller reacts to.
func (m *Manager) ValidateSession(ctx context.Context, id uuid.UUID) (*Validation, error) {
	sess, err := m.store.Get(ctx, id)
	switch {
	case errors.Is(err, ErrSessionNotFound):
		return &Validation{Reason: "not found"}, nil
	case errors.Is(err, ErrSessionExpired):
		m.hub.emit(Event{Type: EventExpired, SessionID: id, At: time.Now()})
		return &Validation{Expired: true, Reason: "expired"}, nil
	case err != nil:
		return nil, err
	}

	// Re-judge the device on every validation: a fingerprint blocked after
	// creation invalidates its sessions.
	if m.checker != nil {
		if verdict, err := m.checker.CheckFingerprint(ctx, sess.Fingerprint); err == nil && verdict.Blocked {
			_ = m.ExpireSession(ctx, id)
			return &Validation{Reason: "fingerprint blocked"}, nil
		}
	}

	active := sess.IsActive(m.cfg.InactivityWindow)
	if active {
		sess.Touch()
		if err := m.store.UpdateActivity(ctx, sess.ID, sess.LastActivity); err != nil {
			m.log.Warn("activity touch on validate failed", slog.Any("error", err))
		}
	}

	m.hub.emit(Event{Type: EventValidated, SessionID: sess.ID, StoreID: sess.StoreID, At: time.Now()})
	return &Validation{Valid: true, Active: active, Session: sess}, nil
}

// UpdateActivity refreshes the activity timestamp. Silently ignores missing
// or expired sessions: callers race with expiry and must not fail for it.
func (m *Manager) UpdateActivity(ctx context.Context, id uuid.UUID) error {
	err := m.store.UpdateActivity(ctx, id, time.Now())
	if errors.Is(err, ErrSessionNotFound) || errors.Is(err, ErrSessionExpired) {
		return nil
	}
	if err != nil {
		return err
	}
	m.hub.emit(Event{Type: EventActivityUpdated, SessionID: id, At: time.Now()})
	return nil
}

// AssociateCustomer binds a known customer to the session and marks it
// authenticated.
func (m *Manager) AssociateCustomer(ctx context.Context, id uuid.UUID, customerID string) error {
	sess, err := m.getLive(ctx, id)
	if err != nil {
		return err
	}

	sess.CustomerID = customerID
	sess.IsAuthenticated = true
	sess.Touch()
	if err := m.store.Update(ctx, sess); err != nil {
		return err
	}

	m.hub.emit(Event{Type: EventCustomerAssociated, SessionID: id, StoreID: sess.StoreID, At: time.Now()})
	return nil
}

// IncrementOrderCount records a placed order and its amount.
func (m *Manager) IncrementOrderCount(ctx context.Context, id uuid.UUID, amount float64) error {
	sess, err := m.getLive(ctx, id)
	if err != nil {
		return err
	}

	sess.OrderCount++
	sess.TotalSpent += amount
	sess.Touch()
	if err := m.store.Update(ctx, sess); err != nil {
		return err
	}

	m.hub.emit(Event{Type: EventOrderRecorded, SessionID: id, StoreID: sess.StoreID, At: time.Now()})
	return nil
}

// ExtendSession lengthens the session by the requested minutes, capped at
// MaxSessionDuration from creation. The cap anchors on CreatedAt, so
// repeated small extensions cannot creep past the ceiling.
func (m *Manager) ExtendSession(ctx context.Context, id uuid.UUID, minutes int) error {
	sess, err := m.getLive(ctx, id)
	if err != nil {
		return err
	}

	extended := sess.Duration() + time.Duration(minutes)*time.Minute
	if extended > m.cfg.MaxSessionDuration {
		extended = m.cfg.MaxSessionDuration
	}
	sess.ExpiresAt = sess.CreatedAt.Add(extended)
	sess.Touch()
	if err := m.store.Update(ctx, sess); err != nil {
		return err
	}

	m.hub.emit(Event{Type: EventExtended, SessionID: id, StoreID: sess.StoreID, At: time.Now()})
	return nil
}

// ExpireSession removes the session immediately. Expiring a missing session
// is a no-op.
func (m *Manager) ExpireSession(ctx context.Context, id uuid.UUID) error {
	if err := m.store.Delete(ctx, id); err != nil {
		return err
	}
	m.hub.emit(Event{Type: EventExpired, SessionID: id, At: time.Now()})
	return nil
}

// ActiveSessions returns live sessions for a store.
func (m *Manager) ActiveSessions(ctx context.Context, storeID string) ([]*Session, error) {
	return m.store.ActiveByStore(ctx, storeID)
}

// ActiveTableSessions returns live sessions for a table.
func (m *Manager) ActiveTableSessions(ctx context.Context, tableID string) ([]*Session, error) {
	return m.store.ActiveByTable(ctx, tableID)
}

// CleanExpiredSessions sweeps sessions expired longer than the grace period
// ago. The grace window keeps fresh corpses queryable for diagnostics.
func (m *Manager) CleanExpiredSessions(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-m.cfg.CleanupGrace)
	removed, err := m.store.Cleanup(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		m.hub.emit(Event{Type: EventCleanup, At: time.Now(), Count: removed})
	}
	return removed, nil
}

// SessionStats returns store statistics, optionally narrowed to one store
// (pass "" for all).
func (m *Manager) SessionStats(ctx context.Context, storeID string) (Stats, error) {
	stats, err := m.store.Stats(ctx)
	if err != nil {
		return Stats{}, err
	}
	if storeID == "" {
		return stats, nil
	}

	active, err := m.store.ActiveByStore(ctx, storeID)
	if err != nil {
		return Stats{}, err
	}

	narrowed := Stats{
		Total:       stats.ByStore[storeID],
		Active:      len(active),
		ByStore:     map[string]int{storeID: stats.ByStore[storeID]},
		LastCleanup: stats.LastCleanup,
	}
	for _, sess := range active {
		if sess.IsAuthenticated {
			narrowed.Authenticated++
		} else {
			narrowed.Anonymous++
		}
	}
	return narrowed, nil
}

// Close stops the cleanup sweep. The store is closed separately by whoever
// owns it.
func (m *Manager) Close() error {
	m.closeOnce.Do(func() {
		close(m.done)
	})
	return nil
}

// getLive fetches a session for mutation, mapping absence and expiry to
// ErrInvalidSession: mutating a stale session is a domain error the caller
// must handle.
func (m *Manager) getLive(ctx context.Context, id uuid.UUID) (*Session, error) {
	sess, err := m.store.Get(ctx, id)
	if errors.Is(err, ErrSessionNotFound) || errors.Is(err, ErrSessionExpired) {
		return nil, ErrInvalidSession
	}
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// checkFingerprint consults the anomaly detector. Detector failures log and
// pass: a broken collaborator must not stop the storefront.
func (m *Manager) checkFingerprint(ctx context.Context, fp string) error {
	if m.checker == nil {
		return nil
	}

	verdict, err := m.checker.CheckFingerprint(ctx, fp)
	if err != nil {
		m.log.Warn("fingerprint check failed, proceeding", slog.Any("error", err))
		return nil
	}
	if verdict.Blocked {
		return ErrFingerprintBlocked
	}
	if verdict.Suspicious {
		m.log.Info("suspicious fingerprint admitted", slog.String("fingerprint", fp))
	}
	return nil
}

// checkCreateLimit consults the rate limiter keyed by client IP. Limiter
// errors fail open here for the same availability reason the limiter itself
// fails open on storage errors.
func (m *Manager) checkCreateLimit(ctx context.Context, ip string) error {
	if m.limiter == nil || ip == "" {
		return nil
	}

	res, err := m.limiter.Check(ctx, ip, createClass)
	if err != nil {
		m.log.Warn("rate limit check failed, proceeding", slog.Any("error", err))
		return nil
	}
	if !res.Allowed {
		return &RateLimitedError{RetryAfter: res.RetryAfter}
	}
	return nil
}

func (m *Manager) recordCreateAttempt(ctx context.Context, v Visit, succeeded bool) {
	if m.limiter == nil || v.IPAddress == "" {
		return
	}
	_ = m.limiter.Record(ctx, v.IPAddress, createClass, succeeded, map[string]string{
		"store_id": v.StoreID,
	})
}

// checkCeilings enforces the per-device and per-table concurrency caps.
func (m *Manager) checkCeilings(ctx context.Context, v Visit) error {
	if m.cfg.MaxPerFingerprint > 0 {
		existing, err := m.store.ActiveByFingerprint(ctx, v.Fingerprint)
		if err != nil {
			return err
		}
		if len(existing) >= m.cfg.MaxPerFingerprint {
			return ErrTooManySessions
		}
	}

	if v.TableID != "" && m.cfg.MaxPerTable > 0 {
		seated, err := m.store.ActiveByTable(ctx, v.TableID)
		if err != nil {
			return err
		}
		if len(seated) >= m.cfg.MaxPerTable {
			return ErrTableBusy
		}
	}
	return nil
}

func (m *Manager) cleanupLoop() {
	ticker := time.NewTicker(m.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := m.CleanExpiredSessions(context.Background()); err != nil {
				m.log.Error("session cleanup sweep failed", slog.Any("error", err))
			}
		case <-m.done:
			return
		}
	}
}
