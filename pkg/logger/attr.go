package logger

import (
	"log/slog"

	"github.com/google/uuid"
)

// Error creates an attribute for a single error under the key "error".
// If err is nil, it returns an empty Attr.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// SessionID records a session identifier under the key "session_id".
func SessionID(id uuid.UUID) slog.Attr {
	return slog.String("session_id", id.String())
}

// StoreID records a store identifier under the key "store_id".
func StoreID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("store_id", id)
}

// Fingerprint records a device fingerprint under the key "fingerprint".
func Fingerprint(fp string) slog.Attr {
	if fp == "" {
		return slog.Attr{}
	}
	return slog.String("fingerprint", fp)
}

// ClientIP records a client address under the key "client_ip".
func ClientIP(ip string) slog.Attr {
	if ip == "" {
		return slog.Attr{}
	}
	return slog.String("client_ip", ip)
}
