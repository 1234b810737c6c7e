package clientip

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// Ordered by trust: CDN-set headers first, generic proxy headers after.
// True-Client-IP is sent by Cloudflare Enterprise and Akamai.
var trustedHeaders = []string{
	"CF-Connecting-IP",
	"True-Client-IP",
}

// GetIP returns the client's IP address for the given request.
//
// Resolution order:
//  1. CDN headers (CF-Connecting-IP, True-Client-IP)
//  2. X-Forwarded-For (first valid entry)
//  3. X-Real-IP
//  4. RemoteAddr
func GetIP(r *http.Request) string {
	for _, h := range trustedHeaders {
		if ip := normalize(r.Header.Get(h)); ip != "" {
			return ip
		}
	}

	// X-Forwarded-For may hold a comma-separated chain; the first valid
	// entry is the original client.
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		for part := range strings.SplitSeq(forwarded, ",") {
			if ip := normalize(part); ip != "" {
				return ip
			}
		}
	}

	if ip := normalize(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if ip := normalize(host); ip != "" {
		return ip
	}
	return r.RemoteAddr
}

// normalize validates and canonicalizes an IP string, returning "" when the
// value is not a parseable address. IPv6 zone identifiers are stripped so the
// same device always maps to the same rate-limit identifier.
func normalize(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return ""
	}
	return addr.WithZone("").String()
}
