package fingerprint

// Fingerprint is the result of probing a request for device identity signals.
type Fingerprint struct {
	// Hash is a lowercase hex digest of the collected signals.
	Hash string

	// Confidence estimates how identifying the collected signals are,
	// from 0.5 (only universal signals) to 1.0 (all probes succeeded).
	Confidence float64

	// Signals holds the raw per-probe values the hash was built from.
	// Missing signals are recorded as "-" placeholders.
	Signals map[string]string
}

// options configures fingerprint generation behavior.
type options struct {
	// includeIP mixes the client IP into the hash. Off by default: mobile
	// networks and VPNs rotate addresses and would split one device into
	// many fingerprints.
	includeIP bool

	// includeClientHints uses Sec-CH-* headers when present.
	includeClientHints bool

	// includeAcceptHeaders mixes Accept/Accept-Language/Accept-Encoding
	// into the hash.
	includeAcceptHeaders bool
}

// Option is a functional option for Generate.
type Option func(*options)

// WithIP includes the client IP address in the fingerprint. Use only when
// address churn is acceptable (e.g. table sessions on venue Wi-Fi).
func WithIP() Option {
	return func(o *options) { o.includeIP = true }
}

// WithoutClientHints excludes Sec-CH-* client hint headers.
func WithoutClientHints() Option {
	return func(o *options) { o.includeClientHints = false }
}

// WithoutAcceptHeaders excludes Accept-* headers, useful when content
// negotiation varies between requests from the same device.
func WithoutAcceptHeaders() Option {
	return func(o *options) { o.includeAcceptHeaders = false }
}

func applyOptions(opts ...Option) *options {
	o := &options{
		includeIP:            false,
		includeClientHints:   true,
		includeAcceptHeaders: true,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}
