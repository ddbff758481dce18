// Package logging builds the structured logger shared by all catalogauth components.
// Components receive a logr.Logger; the sink is a log/slog handler.
package logging

import (
	"io"
	"log/slog"
	"strings"

	"github.com/go-logr/logr"
)

// Standard log field keys.
const (
	KeySession    = "session"
	KeyGeneration = "generation"
	KeyState      = "state"
	KeyDelay      = "delay"
	KeyExpiresAt  = "expiresAt"
	KeyPhase      = "phase"
	KeyKind       = "kind"
	KeyField      = "field"
	KeyRequestID  = "requestID"
	KeyStatus     = "status"
	KeyRefreshes  = "refreshes"
	KeyStore      = "store"
)

// Exchange phases.
const (
	PhaseLogin   = "login"
	PhaseRefresh = "refresh"
)

// New creates a logger writing to w. format is "json" or "text" (default).
func New(w io.Writer, level, format string) logr.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}

	var h slog.Handler
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	return logr.FromSlogHandler(h)
}

// ParseLevel maps debug|info|warn|error to a slog level. Unknown values mean info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
