package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"sort"
	"strings"

	"github.com/dmitrymomot/guestkit/pkg/clientip"
	"github.com/dmitrymomot/guestkit/pkg/useragent"
)

const (
	// hashLen uses 16 bytes (128 bits): enough for deduplication while
	// halving storage compared to a full SHA-256 digest.
	hashLen = 16

	// minHashLen is the shortest hash ValidFormat accepts.
	minHashLen = 8

	// suspiciousThreshold is the similarity score below which a
	// fingerprint change is treated as a different device. Fixed policy,
	// deliberately not configurable.
	suspiciousThreshold = 0.3

	// baseConfidence is the floor for fingerprints built from universal
	// signals only (user agent, language, screen hints).
	baseConfidence = 0.5

	confidenceClientHints  = 0.2
	confidenceDeviceClass  = 0.2
	confidenceDeviceMemory = 0.05
	confidenceArch         = 0.05

	missing = "-"
)

// Generate derives a device fingerprint from the request. It never fails:
// absent signals are recorded as placeholders and reduce the confidence
// score instead of aborting.
func Generate(r *http.Request, opts ...Option) Fingerprint {
	o := applyOptions(opts...)

	signals := map[string]string{
		"user_agent": valueOr(r.UserAgent(), missing),
		"language":   valueOr(r.Header.Get("Accept-Language"), missing),
		"screen":     valueOr(screenHints(r), missing),
	}
	confidence := baseConfidence

	if o.includeAcceptHeaders {
		signals["accept"] = valueOr(strings.Join([]string{
			r.Header.Get("Accept"),
			r.Header.Get("Accept-Encoding"),
		}, ";"), missing)
	}

	if o.includeClientHints {
		if hints, ok := probeClientHints(r); ok {
			signals["client_hints"] = hints
			confidence += confidenceClientHints
		} else {
			signals["client_hints"] = missing
		}
	}

	if class, ok := probeDeviceClass(r.UserAgent()); ok {
		signals["device_class"] = class
		confidence += confidenceDeviceClass
	} else {
		signals["device_class"] = missing
	}

	if mem, ok := probeDeviceMemory(r); ok {
		signals["device_memory"] = mem
		confidence += confidenceDeviceMemory
	} else {
		signals["device_memory"] = missing
	}

	if arch, ok := probeArch(r); ok {
		signals["arch"] = arch
		confidence += confidenceArch
	} else {
		signals["arch"] = missing
	}

	if o.includeIP {
		signals["ip"] = valueOr(clientip.GetIP(r), missing)
	}

	return Fingerprint{
		Hash:       hashSignals(signals),
		Confidence: min(confidence, 1.0),
		Signals:    signals,
	}
}

// ValidFormat reports whether the hash is a lowercase hexadecimal string of
// at least 8 characters.
func ValidFormat(hash string) bool {
	if len(hash) < minHashLen {
		return false
	}
	for i := 0; i < len(hash); i++ {
		c := hash[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// Similarity returns the positional character-match ratio of two hashes,
// divided by the longer length. 1.0 for identical strings, 0.0 when either
// is empty. Intentionally cheap: this is not edit distance.
func Similarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0.0
	}
	if a == b {
		return 1.0
	}

	shorter, longer := len(a), len(b)
	if shorter > longer {
		shorter, longer = longer, shorter
	}

	matches := 0
	for i := 0; i < shorter; i++ {
		if a[i] == b[i] {
			matches++
		}
	}
	return float64(matches) / float64(longer)
}

// SuspiciousChange reports whether replacing oldHash with newHash looks like
// a different device rather than signal drift on the same device.
func SuspiciousChange(oldHash, newHash string) bool {
	if !ValidFormat(oldHash) || !ValidFormat(newHash) {
		return true
	}
	if oldHash == newHash {
		return false
	}
	return Similarity(oldHash, newHash) < suspiciousThreshold
}

// probeClientHints collects Sec-CH-UA* identity hints. Succeeds when the
// browser sent any of them.
func probeClientHints(r *http.Request) (string, bool) {
	parts := []string{
		r.Header.Get("Sec-CH-UA"),
		r.Header.Get("Sec-CH-UA-Platform"),
		r.Header.Get("Sec-CH-UA-Platform-Version"),
		r.Header.Get("Sec-CH-UA-Model"),
		r.Header.Get("Sec-CH-UA-Mobile"),
	}

	present := false
	for _, p := range parts {
		if p != "" {
			present = true
			break
		}
	}
	if !present {
		return "", false
	}
	return strings.Join(parts, ";"), true
}

// probeDeviceClass classifies the user agent. Fails for agents that cannot
// be classified or identify as bots, since those carry no device identity.
func probeDeviceClass(rawUA string) (string, bool) {
	ua := useragent.Parse(rawUA)
	if ua.IsUnknown() || ua.IsBot() {
		return "", false
	}
	return strings.Join([]string{ua.DeviceType(), ua.OS(), ua.Browser()}, "/"), true
}

func probeDeviceMemory(r *http.Request) (string, bool) {
	if v := r.Header.Get("Sec-CH-Device-Memory"); v != "" {
		return v, true
	}
	if v := r.Header.Get("Device-Memory"); v != "" {
		return v, true
	}
	return "", false
}

func probeArch(r *http.Request) (string, bool) {
	arch := r.Header.Get("Sec-CH-UA-Arch")
	bitness := r.Header.Get("Sec-CH-UA-Bitness")
	if arch == "" && bitness == "" {
		return "", false
	}
	return arch + "/" + bitness, true
}

// screenHints reads viewport client hints. These are universal enough to be
// a base signal rather than a confidence-bearing probe.
func screenHints(r *http.Request) string {
	width := r.Header.Get("Sec-CH-Viewport-Width")
	if width == "" {
		width = r.Header.Get("Viewport-Width")
	}
	dpr := r.Header.Get("Sec-CH-DPR")
	if dpr == "" {
		dpr = r.Header.Get("DPR")
	}
	if width == "" && dpr == "" {
		return ""
	}
	return width + "x" + dpr
}

// hashSignals digests the signal map in deterministic key order. Keys are
// mixed in alongside values so that ["ab","c"] and ["a","bc"] cannot collide.
func hashSignals(signals map[string]string) string {
	keys := make([]string, 0, len(signals))
	for k := range signals {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(signals[k])
		b.WriteByte('|')
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:hashLen])
}

func valueOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
