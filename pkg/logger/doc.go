// Package logger builds configured slog.Logger instances for guestkit
// services, plus attribute helpers for the identifiers this codebase logs
// most (sessions, stores, devices).
package logger
