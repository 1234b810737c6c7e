package guestsession

import "time"

// Config holds session policy. Durations are deliberately asymmetric:
// delivery customers order and leave, table guests occupy a sitting.
type Config struct {
	// DeliveryDuration is the session lifetime for delivery contexts.
	DeliveryDuration time.Duration `env:"GUESTSESSION_DELIVERY_DURATION" envDefault:"120m"`

	// TableDuration is the session lifetime for dine-in contexts.
	TableDuration time.Duration `env:"GUESTSESSION_TABLE_DURATION" envDefault:"240m"`

	// InactivityWindow bounds how long a session stays "active" without
	// being touched. An idle-but-unexpired session is valid but inactive.
	InactivityWindow time.Duration `env:"GUESTSESSION_INACTIVITY_WINDOW" envDefault:"30m"`

	// MaxPerFingerprint caps concurrent live sessions per device.
	MaxPerFingerprint int `env:"GUESTSESSION_MAX_PER_FINGERPRINT" envDefault:"3"`

	// MaxPerTable caps concurrent live sessions per table.
	MaxPerTable int `env:"GUESTSESSION_MAX_PER_TABLE" envDefault:"10"`

	// MaxSessionDuration is the hard ceiling extensions can never push a
	// session past, measured from creation.
	MaxSessionDuration time.Duration `env:"GUESTSESSION_MAX_DURATION" envDefault:"8h"`

	// CleanupInterval is how often the expired-session sweep runs.
	CleanupInterval time.Duration `env:"GUESTSESSION_CLEANUP_INTERVAL" envDefault:"1h"`

	// CleanupGrace keeps recently expired sessions queryable for
	// diagnostics before the sweep hard-deletes them.
	CleanupGrace time.Duration `env:"GUESTSESSION_CLEANUP_GRACE" envDefault:"1h"`

	// AutoCleanup enables the periodic sweep.
	AutoCleanup bool `env:"GUESTSESSION_AUTO_CLEANUP" envDefault:"true"`
}

// DefaultConfig returns the standard session policy.
func DefaultConfig() Config {
	return Config{
		DeliveryDuration:   120 * time.Minute,
		TableDuration:      240 * time.Minute,
		InactivityWindow:   30 * time.Minute,
		MaxPerFingerprint:  3,
		MaxPerTable:        10,
		MaxSessionDuration: 8 * time.Hour,
		CleanupInterval:    time.Hour,
		CleanupGrace:       time.Hour,
		AutoCleanup:        true,
	}
}

// sessionDuration returns the policy lifetime for a visit context.
func (c Config) sessionDuration(isDelivery bool) time.Duration {
	if isDelivery {
		return c.DeliveryDuration
	}
	return c.TableDuration
}
