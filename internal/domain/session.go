package domain

import "time"

// DefaultTokenType is used when the authentication endpoint omits token_type.
const DefaultTokenType = "Bearer"

// Session is the authenticated state produced by a successful token exchange.
// Values are snapshots; the refresh scheduler owns the live copy.
type Session struct {
	ID          string
	AccessToken string
	TokenType   string
	Scope       string
	IssuedAt    time.Time
	ExpiresAt   time.Time
	// Refreshes counts successful refreshes since login.
	Refreshes int
}

// TTL returns the validity window captured at issuance.
func (s Session) TTL() time.Duration {
	return s.ExpiresAt.Sub(s.IssuedAt)
}

// Remaining returns how long the token stays valid after now. Never negative.
func (s Session) Remaining(now time.Time) time.Duration {
	if d := s.ExpiresAt.Sub(now); d > 0 {
		return d
	}
	return 0
}

// ValidAt reports whether the session carries a token that has not expired at now.
func (s Session) ValidAt(now time.Time) bool {
	return s.AccessToken != "" && now.Before(s.ExpiresAt)
}

// AuthorizationHeader returns the value for the HTTP Authorization header.
func (s Session) AuthorizationHeader() string {
	tokenType := s.TokenType
	if tokenType == "" {
		tokenType = DefaultTokenType
	}
	return tokenType + " " + s.AccessToken
}
