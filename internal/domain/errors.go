// internal/domain/errors.go
package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnauthorized is returned by gateway calls when the API responds with HTTP 401.
	// Callers can check for it using errors.Is to trigger re-authentication.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNoSession is returned when no session is active.
	ErrNoSession = errors.New("no active session")

	// ErrSessionExpired is returned when the active session's token is past its expiry.
	ErrSessionExpired = errors.New("session expired")

	// ErrInvalidCredentials matches AuthError values of kind AuthInvalidCredentials.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrNetwork matches AuthError values of kind AuthNetwork.
	ErrNetwork = errors.New("authentication endpoint unreachable")

	// ErrServer matches AuthError values of kind AuthServer.
	ErrServer = errors.New("authentication server error")
)

// FieldError describes one structurally invalid CredentialRequest field.
type FieldError struct {
	Field   string
	Message string
}

func (e FieldError) Error() string {
	return e.Field + " " + e.Message
}

// ValidationError is returned when a CredentialRequest fails structural validation.
// No network call is made when it is returned.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Error())
	}
	return "invalid credential request: " + strings.Join(parts, "; ")
}

// Field returns the message for the named field, or "" if the field is valid.
func (e *ValidationError) Field(name string) string {
	for _, f := range e.Fields {
		if f.Field == name {
			return f.Message
		}
	}
	return ""
}

// AuthErrorKind categorizes a failed token exchange.
type AuthErrorKind string

const (
	AuthInvalidCredentials AuthErrorKind = "invalid_credentials"
	AuthNetwork            AuthErrorKind = "network"
	AuthServer             AuthErrorKind = "server"
)

// AuthError is returned when the remote token exchange fails.
type AuthError struct {
	Kind AuthErrorKind
	// StatusCode is the HTTP status, zero for network failures.
	StatusCode int
	// Code and Description carry the OAuth error body when present.
	Code        string
	Description string
	Err         error
}

func (e *AuthError) Error() string {
	var b strings.Builder
	b.WriteString("token exchange failed (")
	b.WriteString(string(e.Kind))
	b.WriteString(")")
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, ": status %d", e.StatusCode)
	}
	if e.Code != "" {
		b.WriteString(": ")
		b.WriteString(e.Code)
		if e.Description != "" {
			b.WriteString(" - ")
			b.WriteString(e.Description)
		}
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *AuthError) Unwrap() error { return e.Err }

// Is matches the sentinel for the error's kind.
func (e *AuthError) Is(target error) bool {
	switch target {
	case ErrInvalidCredentials:
		return e.Kind == AuthInvalidCredentials
	case ErrNetwork:
		return e.Kind == AuthNetwork
	case ErrServer:
		return e.Kind == AuthServer
	}
	return false
}

// SchedulerError is surfaced when a background refresh fails and the session is cancelled.
type SchedulerError struct {
	SessionID string
	// Refreshes is the number of refreshes that succeeded before the failure.
	Refreshes int
	Err       error
}

func (e *SchedulerError) Error() string {
	return fmt.Sprintf("session %s refresh failed after %d refreshes: re-authentication required: %v",
		e.SessionID, e.Refreshes, e.Err)
}

func (e *SchedulerError) Unwrap() error { return e.Err }
