// Package guestsession binds anonymous storefront visitors to short-lived,
// indexed session records without accounts or credentials.
//
// A visitor is identified by a device fingerprint plus ordering context
// (store, optional table, delivery flag). The Manager guards session
// creation with a rate limiter and fingerprint validation, deduplicates
// against live sessions for the same device and store, and applies duration
// policy: delivery sessions are short, table sessions last a full sitting.
//
//	mgr, err := guestsession.New(
//	    guestsession.WithStore(store),
//	    guestsession.WithRateLimiter(limiter),
//	)
//	sess, err := mgr.CreateSession(ctx, guestsession.Visit{
//	    StoreID:     "store-1",
//	    TableID:     "T4",
//	    Fingerprint: fp.Hash,
//	    IPAddress:   ip,
//	})
//
// The in-memory store keeps secondary indices by fingerprint, store, and
// table for O(1) reverse lookups, and can snapshot its contents to a durable
// Medium (file or Redis) that it rehydrates from on startup. Expired records
// are removed lazily on read and eagerly by the periodic cleanup sweep.
//
// Lifecycle operations emit typed events to registered listeners for audit
// logging. Listener panics are recovered and logged, never propagated.
package guestsession
