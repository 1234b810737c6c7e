// Package fingerprint derives a best-effort device identity hash for
// anonymous visitors from HTTP request signals.
//
// The fingerprint is a similarity signal for deduplicating guest sessions,
// not a security credential: it is built from headers the client controls
// and carries a confidence score reflecting how many identifying signals
// were actually present.
//
//	fp := fingerprint.Generate(r)
//	fp.Hash       // lowercase hex, 32 chars
//	fp.Confidence // 0.5 .. 1.0
//
// Generation never fails. Missing signals degrade to placeholders and lower
// the confidence score instead of aborting.
package fingerprint
