package guestsession

import (
	"time"

	"github.com/google/uuid"
)

// Session binds an anonymous device to ordering activity at one store for a
// bounded time window.
type Session struct {
	ID uuid.UUID `json:"id"`

	// Ordering context.
	StoreID    string `json:"store_id"`
	TableID    string `json:"table_id,omitempty"`
	IsDelivery bool   `json:"is_delivery"`

	// Device identity.
	Fingerprint string `json:"fingerprint"`
	IPAddress   string `json:"ip_address,omitempty"`
	UserAgent   string `json:"user_agent,omitempty"`

	// Lifecycle.
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
	ExpiresAt    time.Time `json:"expires_at"`

	// Accumulators, only ever increase while the session is live.
	OrderCount int     `json:"order_count"`
	TotalSpent float64 `json:"total_spent"`

	// Identity binding, set when a known customer claims the session.
	IsAuthenticated bool   `json:"is_authenticated"`
	CustomerID      string `json:"customer_id,omitempty"`
}

// Visit is the context a storefront flow supplies when asking for a session.
type Visit struct {
	StoreID     string
	TableID     string
	IsDelivery  bool
	Fingerprint string
	IPAddress   string
	UserAgent   string
	CustomerID  string
}

// Validate checks the required visit fields.
func (v Visit) Validate() error {
	if v.StoreID == "" {
		return ErrStoreIDRequired
	}
	if v.Fingerprint == "" {
		return ErrInvalidFingerprint
	}
	return nil
}

// NewSession creates a session for the visit with the given lifetime.
func NewSession(v Visit, ttl time.Duration) *Session {
	now := time.Now()
	return &Session{
		ID:              uuid.New(),
		StoreID:         v.StoreID,
		TableID:         v.TableID,
		IsDelivery:      v.IsDelivery,
		Fingerprint:     v.Fingerprint,
		IPAddress:       v.IPAddress,
		UserAgent:       v.UserAgent,
		CreatedAt:       now,
		LastActivity:    now,
		ExpiresAt:       now.Add(ttl),
		IsAuthenticated: v.CustomerID != "",
		CustomerID:      v.CustomerID,
	}
}

// IsExpired reports whether the session is past its TTL.
func (s *Session) IsExpired() bool {
	return s != nil && time.Now().After(s.ExpiresAt)
}

// IsActive reports whether the session is unexpired and has seen activity
// within the inactivity window. A session can be valid but inactive: callers
// treat that as "re-confirm" rather than "re-create".
func (s *Session) IsActive(inactivityWindow time.Duration) bool {
	if s == nil || s.IsExpired() {
		return false
	}
	return time.Since(s.LastActivity) <= inactivityWindow
}

// Touch updates the last activity time.
func (s *Session) Touch() {
	if s == nil {
		return
	}
	s.LastActivity = time.Now()
}

// Duration returns the session's current lifetime from creation to expiry.
func (s *Session) Duration() time.Duration {
	return s.ExpiresAt.Sub(s.CreatedAt)
}
