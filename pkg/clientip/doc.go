// Package clientip extracts the originating client IP address from HTTP
// requests that arrive through CDNs and reverse proxies.
//
// The resolved address feeds the fingerprint generator and the rate limiter,
// so the extraction order favors headers set by trusted edge infrastructure
// over headers the client can forge:
//
//	ip := clientip.GetIP(r)
//
// An empty string is never returned; when no header yields a valid address
// the remote address of the connection is used as-is.
package clientip
