// Package ratelimit implements a sliding-window rate limiter with escalating
// identifier blocking, partitioned by operation class.
//
// Every guarded operation belongs to a named class ("session-create",
// "whatsapp-verification", ...) with its own window, request budget, and
// block policy. Classes are independent: exhausting one budget never affects
// another.
//
// Callers use the limiter in two steps: Check before attempting the
// operation, Record after it completes. Recording is independent of checking
// so failed downstream calls still consume budget unless the class rule
// excludes failures.
//
//	res, err := limiter.Check(ctx, ip, "session-create")
//	if err != nil || !res.Allowed {
//	    // reject with res.RetryAfter
//	}
//	// ... perform the operation ...
//	_ = limiter.Record(ctx, ip, "session-create", succeeded, nil)
//
// When an identifier exceeds its budget and has accumulated enough recent
// failures, the limiter escalates to a temporary block. Blocks short-circuit
// Check until they expire.
//
// Storage errors never reject traffic: Check fails open and logs the
// anomaly, so a broken store degrades protection rather than availability.
package ratelimit
